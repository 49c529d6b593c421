// Package host defines the contract between the session engine and the
// simulator process: the commands a client sends, the tagged messages it
// polls back, and the packed record layout used for simulation data.
package host

import (
	"context"
	"fmt"
)

type (
	EventID      uint32
	RequestID    uint32
	DefinitionID uint32
	ObjectID     uint32
)

// ObjectUser addresses the user-controlled object in data requests.
const ObjectUser ObjectID = 0

// Cadence controls how often the host answers a data request.
type Cadence uint8

const (
	// CadenceOnce answers a single time.
	CadenceOnce Cadence = iota
	// CadenceOnChange answers every simulation frame in which the record changed.
	CadenceOnChange
	// CadencePeriodic answers every simulation frame.
	CadencePeriodic
)

func (c Cadence) String() string {
	switch c {
	case CadenceOnce:
		return "once"
	case CadenceOnChange:
		return "on_change"
	case CadencePeriodic:
		return "periodic"
	default:
		return fmt.Sprintf("cadence(%d)", uint8(c))
	}
}

// ParseCadence accepts the names produced by Cadence.String.
func ParseCadence(s string) (Cadence, error) {
	switch s {
	case "once":
		return CadenceOnce, nil
	case "on_change":
		return CadenceOnChange, nil
	case "periodic":
		return CadencePeriodic, nil
	default:
		return 0, fmt.Errorf("unknown cadence %q", s)
	}
}

// DataType is the wire type of one field in a data definition.
type DataType uint8

const (
	DataTypeFloat64 DataType = iota + 1
)

func (t DataType) Size() int {
	switch t {
	case DataTypeFloat64:
		return 8
	default:
		return 0
	}
}

// InitPosition is the pose an object is created with. Longitude is east-positive.
type InitPosition struct {
	Latitude  float64
	Longitude float64
	Altitude  float64 // feet
	Pitch     float64
	Bank      float64
	Heading   float64
	OnGround  bool
	Airspeed  uint32
}

// Transport is the channel to the host simulator. Implementations deliver
// host messages through Poll; every other method issues one outbound command.
type Transport interface {
	// Open establishes the session. A failure here is a connection failure.
	Open(ctx context.Context, sessionName string) error

	RegisterEvent(id EventID, name string) error
	BindInput(trigger string, id EventID) error
	SetInputEnabled(enabled bool) error

	// RegisterDataField appends one field to a definition; calls build the
	// record layout in order.
	RegisterDataField(def DefinitionID, field, unit string, typ DataType) error
	RequestData(req RequestID, def DefinitionID, object ObjectID, cadence Cadence) error

	// CreateObject asks for a new simulated object. The host answers with
	// ObjectCreated carrying req.
	CreateObject(asset string, pose InitPosition, req RequestID) error
	SetData(def DefinitionID, object ObjectID, raw []byte) error

	// Poll returns the next pending message, or nil when there is none. It
	// must not block for longer than a short transport-defined interval.
	Poll(ctx context.Context) (Message, error)

	Close() error
}
