package host

// Kind names a message variant. It is used as a log field and metrics label.
type Kind string

const (
	KindControlEvent  Kind = "control_event"
	KindObjectCreated Kind = "object_created"
	KindDataReceived  Kind = "data_received"
	KindHostException Kind = "host_exception"
	KindHostShutdown  Kind = "host_shutdown"
)

// Message is one of ControlEvent, ObjectCreated, DataReceived,
// HostException or HostShutdown.
type Message interface {
	Kind() Kind
	isMessage()
}

// ControlEvent reports that a client event fired, usually from a bound key.
type ControlEvent struct {
	Event EventID
	Data  uint32
}

// ObjectCreated confirms a CreateObject request.
type ObjectCreated struct {
	Request RequestID
	Object  ObjectID
}

// DataReceived carries one packed record answering a RequestData.
type DataReceived struct {
	Request RequestID
	Object  ObjectID
	Raw     []byte
}

// HostException reports that the host rejected a command.
type HostException struct {
	Code ExceptionCode
	// SendID identifies the rejected command, Index the offending parameter.
	SendID uint32
	Index  uint32
}

// HostShutdown is sent once when the simulator is quitting.
type HostShutdown struct{}

func (ControlEvent) Kind() Kind  { return KindControlEvent }
func (ObjectCreated) Kind() Kind { return KindObjectCreated }
func (DataReceived) Kind() Kind  { return KindDataReceived }
func (HostException) Kind() Kind { return KindHostException }
func (HostShutdown) Kind() Kind  { return KindHostShutdown }

func (ControlEvent) isMessage()  {}
func (ObjectCreated) isMessage() {}
func (DataReceived) isMessage()  {}
func (HostException) isMessage() {}
func (HostShutdown) isMessage()  {}
