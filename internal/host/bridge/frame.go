package bridge

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/simcompanion/internal/host"
)

// Frame types for commands sent to the host. Frames coming back use the
// host.Kind names.
const (
	frameOpen              = "open"
	frameRegisterEvent     = "register_event"
	frameBindInput         = "bind_input"
	frameSetInputEnabled   = "set_input_enabled"
	frameRegisterDataField = "register_data_field"
	frameRequestData       = "request_data"
	frameCreateObject      = "create_object"
	frameSetData           = "set_data"
	frameClose             = "close"
)

// frame is the JSON envelope of every websocket message in either direction.
// Raw records travel base64 encoded with an xxhash64 checksum.
type frame struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Name       string             `json:"name,omitempty"`
	Event      host.EventID       `json:"event,omitempty"`
	Data       uint32             `json:"data,omitempty"`
	Trigger    string             `json:"trigger,omitempty"`
	Enabled    bool               `json:"enabled,omitempty"`
	Definition host.DefinitionID  `json:"definition,omitempty"`
	Unit       string             `json:"unit,omitempty"`
	DataType   host.DataType      `json:"data_type,omitempty"`
	Request    host.RequestID     `json:"request,omitempty"`
	Object     host.ObjectID      `json:"object,omitempty"`
	Cadence    string             `json:"cadence,omitempty"`
	Pose       *host.InitPosition `json:"pose,omitempty"`
	Raw        []byte             `json:"raw,omitempty"`
	Checksum   uint64             `json:"checksum,omitempty"`

	Code   host.ExceptionCode `json:"code,omitempty"`
	SendID uint32             `json:"send_id,omitempty"`
	Index  uint32             `json:"index,omitempty"`
}

func newFrame(typ string) frame {
	return frame{ID: uuid.NewString(), Type: typ}
}

func (f *frame) setRaw(raw []byte) {
	f.Raw = raw
	f.Checksum = xxhash.Sum64(raw)
}

func (f frame) verify() error {
	if sum := xxhash.Sum64(f.Raw); sum != f.Checksum {
		return errors.Wrapf(host.ErrMalformedMessage, "frame %s: checksum %x, want %x", f.ID, sum, f.Checksum)
	}
	return nil
}

func encodeFrame(f frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal frame")
	}
	return data, nil
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, errors.Wrapf(host.ErrMalformedMessage, "failed to unmarshal frame: %v", err)
	}
	if f.Type == "" {
		return frame{}, errors.Wrap(host.ErrMalformedMessage, "frame without type")
	}
	return f, nil
}

// messageFrame turns a host message into its frame.
func messageFrame(msg host.Message) frame {
	f := newFrame(string(msg.Kind()))
	switch m := msg.(type) {
	case host.ControlEvent:
		f.Event, f.Data = m.Event, m.Data
	case host.ObjectCreated:
		f.Request, f.Object = m.Request, m.Object
	case host.DataReceived:
		f.Request, f.Object = m.Request, m.Object
		f.setRaw(m.Raw)
	case host.HostException:
		f.Code, f.SendID, f.Index = m.Code, m.SendID, m.Index
	}
	return f
}

// message is the inverse of messageFrame.
func (f frame) message() (host.Message, error) {
	switch host.Kind(f.Type) {
	case host.KindControlEvent:
		return host.ControlEvent{Event: f.Event, Data: f.Data}, nil
	case host.KindObjectCreated:
		return host.ObjectCreated{Request: f.Request, Object: f.Object}, nil
	case host.KindDataReceived:
		if err := f.verify(); err != nil {
			return nil, err
		}
		return host.DataReceived{Request: f.Request, Object: f.Object, Raw: f.Raw}, nil
	case host.KindHostException:
		return host.HostException{Code: f.Code, SendID: f.SendID, Index: f.Index}, nil
	case host.KindHostShutdown:
		return host.HostShutdown{}, nil
	default:
		return nil, errors.Wrapf(host.ErrMalformedMessage, "unknown frame type %q", f.Type)
	}
}
