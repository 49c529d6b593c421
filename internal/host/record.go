package host

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat64s packs values as consecutive little-endian float64 with no padding.
func EncodeFloat64s(values ...float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64s unpacks exactly n float64 values.
func DecodeFloat64s(raw []byte, n int) ([]float64, error) {
	if len(raw) != 8*n {
		return nil, fmt.Errorf("%w: record is %d bytes, want %d", ErrMalformedMessage, len(raw), 8*n)
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return values, nil
}
