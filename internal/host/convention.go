package host

import "fmt"

// LongitudeConvention is the sign a host uses for longitudes on the wire.
// The engine itself works east-positive only.
type LongitudeConvention uint8

const (
	EastPositive LongitudeConvention = iota
	WestPositive
)

func ParseLongitudeConvention(s string) (LongitudeConvention, error) {
	switch s {
	case "", "east":
		return EastPositive, nil
	case "west":
		return WestPositive, nil
	default:
		return 0, fmt.Errorf("unknown longitude convention %q", s)
	}
}

func (c LongitudeConvention) String() string {
	if c == WestPositive {
		return "west"
	}
	return "east"
}

// ToEastPositive converts a wire longitude into the engine convention.
func (c LongitudeConvention) ToEastPositive(lon float64) float64 {
	if c == WestPositive {
		return -lon
	}
	return lon
}

// FromEastPositive converts an engine longitude into the wire convention.
func (c LongitudeConvention) FromEastPositive(lon float64) float64 {
	if c == WestPositive {
		return -lon
	}
	return lon
}
