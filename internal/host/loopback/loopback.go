// Package loopback is an in-memory host. It keeps simulation variables per
// object, answers data requests from them, confirms object creation and turns
// bound key presses into control events. Every outbound command is recorded.
package loopback

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/zeusync/simcompanion/internal/host"
)

var _ host.Transport = (*Host)(nil)

// Standard variable names the loopback seeds on the user object.
const (
	VarLatitude       = host.VarPlaneLatitude
	VarLongitude      = host.VarPlaneLongitude
	VarAltitude       = host.VarPlaneAltitude
	VarHeading        = host.VarPlaneHeadingTrue
	VarRudderPosition = host.VarRudderPosition
)

// Op names a recorded outbound command.
type Op string

const (
	OpOpen              Op = "open"
	OpRegisterEvent     Op = "register_event"
	OpBindInput         Op = "bind_input"
	OpSetInputEnabled   Op = "set_input_enabled"
	OpRegisterDataField Op = "register_data_field"
	OpRequestData       Op = "request_data"
	OpCreateObject      Op = "create_object"
	OpSetData           Op = "set_data"
	OpClose             Op = "close"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op         Op
	Name       string
	Event      host.EventID
	Trigger    string
	Enabled    bool
	Definition host.DefinitionID
	Field      string
	Unit       string
	Request    host.RequestID
	Object     host.ObjectID
	Cadence    host.Cadence
	Pose       host.InitPosition
	Raw        []byte
}

type field struct {
	name string
	unit string
	typ  host.DataType
}

type subscription struct {
	req     host.RequestID
	def     host.DefinitionID
	object  host.ObjectID
	cadence host.Cadence
	last    []byte
}

type Option func(*Host)

// WithUserObject seeds the user object's position in wire convention.
func WithUserObject(lat, lon, altFt, heading float64) Option {
	return func(h *Host) {
		h.objects[host.ObjectUser] = map[string]float64{
			VarLatitude:  lat,
			VarLongitude: lon,
			VarAltitude:  altFt,
			VarHeading:   heading,
		}
	}
}

// WithOpenError makes Open fail with err.
func WithOpenError(err error) Option {
	return func(h *Host) { h.openErr = err }
}

// WithCreateFailure answers CreateObject with a CREATE_OBJECT_FAILED exception.
func WithCreateFailure() Option {
	return func(h *Host) { h.failCreate = true }
}

// WithFirstObjectID sets the id handed to the first created object.
func WithFirstObjectID(id host.ObjectID) Option {
	return func(h *Host) { h.nextObject = id }
}

type Host struct {
	mu sync.Mutex

	openErr    error
	failCreate bool

	open     bool
	closed   bool
	name     string
	sendID   uint32
	commands []Command
	queue    []host.Message

	events       map[host.EventID]string
	bindings     map[string]host.EventID
	inputEnabled bool
	definitions  map[host.DefinitionID][]field
	subs         []*subscription

	objects    map[host.ObjectID]map[string]float64
	nextObject host.ObjectID
}

func New(opts ...Option) *Host {
	h := &Host{
		events:      make(map[host.EventID]string),
		bindings:    make(map[string]host.EventID),
		definitions: make(map[host.DefinitionID][]field),
		objects:     make(map[host.ObjectID]map[string]float64),
		nextObject:  1,
	}
	WithUserObject(0, 0, 0, 0)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) Open(_ context.Context, sessionName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openErr != nil {
		return h.openErr
	}
	if h.closed {
		return host.ErrClosed
	}
	if h.open {
		return host.ErrAlreadyOpen
	}
	h.open = true
	h.name = sessionName
	h.recordLocked(Command{Op: OpOpen, Name: sessionName})
	return nil
}

func (h *Host) RegisterEvent(id host.EventID, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpRegisterEvent, Event: id, Name: name})
	if _, dup := h.events[id]; dup {
		h.raiseLocked(host.ExceptionEventIDDuplicate)
		return nil
	}
	h.events[id] = name
	return nil
}

func (h *Host) BindInput(trigger string, id host.EventID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpBindInput, Trigger: trigger, Event: id})
	if _, ok := h.events[id]; !ok {
		h.raiseLocked(host.ExceptionUnrecognizedID)
		return nil
	}
	h.bindings[trigger] = id
	return nil
}

func (h *Host) SetInputEnabled(enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpSetInputEnabled, Enabled: enabled})
	h.inputEnabled = enabled
	return nil
}

func (h *Host) RegisterDataField(def host.DefinitionID, name, unit string, typ host.DataType) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpRegisterDataField, Definition: def, Field: name, Unit: unit})
	if typ.Size() == 0 {
		h.raiseLocked(host.ExceptionInvalidDataType)
		return nil
	}
	h.definitions[def] = append(h.definitions[def], field{name: name, unit: unit, typ: typ})
	return nil
}

func (h *Host) RequestData(req host.RequestID, def host.DefinitionID, object host.ObjectID, cadence host.Cadence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpRequestData, Request: req, Definition: def, Object: object, Cadence: cadence})
	if _, ok := h.definitions[def]; !ok {
		h.raiseLocked(host.ExceptionUnrecognizedID)
		return nil
	}
	if _, ok := h.objects[object]; !ok {
		h.raiseLocked(host.ExceptionUnrecognizedID)
		return nil
	}
	sub := &subscription{req: req, def: def, object: object, cadence: cadence}
	if cadence != host.CadenceOnce {
		h.subs = append(h.subs, sub)
	}
	h.queue = append(h.queue, h.sampleLocked(sub))
	return nil
}

func (h *Host) CreateObject(asset string, pose host.InitPosition, req host.RequestID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpCreateObject, Name: asset, Pose: pose, Request: req})
	if h.failCreate || asset == "" {
		h.raiseLocked(host.ExceptionCreateObjectFailed)
		return nil
	}
	id := h.nextObject
	h.nextObject++
	h.objects[id] = map[string]float64{
		VarLatitude:       pose.Latitude,
		VarLongitude:      pose.Longitude,
		VarAltitude:       pose.Altitude,
		VarHeading:        pose.Heading,
		VarRudderPosition: 0,
	}
	h.queue = append(h.queue, host.ObjectCreated{Request: req, Object: id})
	return nil
}

func (h *Host) SetData(def host.DefinitionID, object host.ObjectID, raw []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return err
	}
	h.recordLocked(Command{Op: OpSetData, Definition: def, Object: object, Raw: append([]byte(nil), raw...)})

	fields, ok := h.definitions[def]
	vars, known := h.objects[object]
	if !ok || !known {
		h.raiseLocked(host.ExceptionUnrecognizedID)
		return nil
	}
	values, err := host.DecodeFloat64s(raw, len(fields))
	if err != nil {
		h.raiseLocked(host.ExceptionSizeMismatch)
		return nil
	}
	changed := false
	for i, f := range fields {
		if vars[f.name] != values[i] {
			vars[f.name] = values[i]
			changed = true
		}
	}
	if changed {
		h.notifyLocked(object)
	}
	return nil
}

func (h *Host) Poll(ctx context.Context) (host.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.usableLocked(); err != nil {
		return nil, err
	}
	if len(h.queue) == 0 {
		for _, sub := range h.subs {
			if sub.cadence == host.CadencePeriodic {
				h.queue = append(h.queue, h.sampleLocked(sub))
			}
		}
	}
	if len(h.queue) == 0 {
		return nil, nil
	}
	msg := h.queue[0]
	h.queue = h.queue[1:]
	return msg, nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.recordLocked(Command{Op: OpClose})
	h.closed = true
	h.open = false
	h.queue = nil
	return nil
}

// PressKey delivers a key press. It reports whether an event was raised,
// which requires input to be enabled and the trigger to be bound.
func (h *Host) PressKey(trigger string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open || !h.inputEnabled {
		return false
	}
	id, ok := h.bindings[trigger]
	if !ok {
		return false
	}
	h.queue = append(h.queue, host.ControlEvent{Event: id})
	return true
}

// Inject queues an arbitrary message.
func (h *Host) Inject(msg host.Message) {
	h.mu.Lock()
	h.queue = append(h.queue, msg)
	h.mu.Unlock()
}

// Shutdown queues the host quit notification.
func (h *Host) Shutdown() {
	h.Inject(host.HostShutdown{})
}

// SetVariable changes a simulation variable as the host physics would.
func (h *Host) SetVariable(object host.ObjectID, name string, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	vars, ok := h.objects[object]
	if !ok {
		return fmt.Errorf("%w: %d", host.ErrUnknownObject, object)
	}
	if vars[name] == value {
		return nil
	}
	vars[name] = value
	h.notifyLocked(object)
	return nil
}

func (h *Host) Variable(object host.ObjectID, name string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.objects[object][name]
	return v, ok
}

// Commands returns a copy of the recorded commands.
func (h *Host) Commands() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Command(nil), h.commands...)
}

// CommandsOf returns the recorded commands with the given op.
func (h *Host) CommandsOf(op Op) []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Command
	for _, c := range h.commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (h *Host) InputEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inputEnabled
}

func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

func (h *Host) usableLocked() error {
	if h.closed {
		return host.ErrClosed
	}
	if !h.open {
		return host.ErrNotOpen
	}
	return nil
}

func (h *Host) recordLocked(c Command) {
	h.sendID++
	h.commands = append(h.commands, c)
}

func (h *Host) raiseLocked(code host.ExceptionCode) {
	h.queue = append(h.queue, host.HostException{Code: code, SendID: h.sendID})
}

func (h *Host) recordFor(sub *subscription) []byte {
	fields := h.definitions[sub.def]
	vars := h.objects[sub.object]
	values := make([]float64, len(fields))
	for i, f := range fields {
		values[i] = vars[f.name]
	}
	return host.EncodeFloat64s(values...)
}

func (h *Host) sampleLocked(sub *subscription) host.Message {
	raw := h.recordFor(sub)
	sub.last = raw
	return host.DataReceived{Request: sub.req, Object: sub.object, Raw: raw}
}

// notifyLocked answers on-change subscriptions whose record differs from the last one sent.
func (h *Host) notifyLocked(object host.ObjectID) {
	for _, sub := range h.subs {
		if sub.object != object || sub.cadence != host.CadenceOnChange {
			continue
		}
		if bytes.Equal(sub.last, h.recordFor(sub)) {
			continue
		}
		h.queue = append(h.queue, h.sampleLocked(sub))
	}
}
