// Package session runs the client side of a host simulator session: the
// handshake, the poll loop, and the routing of host messages to the
// telemetry cache and the companion vehicle controller.
//
// A Session is single-threaded. Handle runs each message to completion and
// nothing inside the session takes a lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/telemetry"
	"github.com/zeusync/simcompanion/internal/vehicle"
)

type Option func(*Session)

func WithLogger(l log.Log) Option {
	return func(s *Session) { s.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

type Session struct {
	id        string
	cfg       Config
	transport host.Transport
	logger    log.Log
	metrics   *Metrics

	cache   *telemetry.Cache
	vehicle *vehicle.Controller

	state  State
	quit   bool
	closed bool
}

func New(transport host.Transport, cfg Config, opts ...Option) *Session {
	cfg.Bindings = cfg.Bindings.Normalize()
	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		transport: transport,
		logger:    log.Nop(),
		cache:     telemetry.NewCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("session", cfg.Name), log.String("session_id", s.id))

	vcfg := cfg.Vehicle
	vcfg.CreateRequest = RequestCreateCompanion
	vcfg.CompanionDefinition = DefinitionCompanion
	s.vehicle = vehicle.NewController(vcfg, s.cache, commands{s}, s.logger.Named("vehicle"))
	return s
}

func (s *Session) ID() string                     { return s.id }
func (s *Session) State() State                   { return s.state }
func (s *Session) Quit() bool                     { return s.quit }
func (s *Session) Vehicle() *vehicle.Controller   { return s.vehicle }
func (s *Session) Telemetry() telemetry.Telemetry { return s.cache.Read() }

// Connect opens the transport and performs the handshake. Input delivery is
// enabled last, once every event, binding and definition exists.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != StateDisconnected || s.closed {
		return &ConnectionError{Session: s.cfg.Name, Err: host.ErrAlreadyOpen}
	}
	if err := s.transport.Open(ctx, s.cfg.Name); err != nil {
		s.logger.Error("connection failed", log.Error(err))
		return &ConnectionError{Session: s.cfg.Name, Err: err}
	}
	if err := s.handshake(); err != nil {
		s.logger.Error("handshake failed", log.Error(err))
		s.closed = true
		if cerr := s.transport.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return &ConnectionError{Session: s.cfg.Name, Err: err}
	}
	s.setState(StateConnected)
	s.logger.Info("connected",
		log.String("create", s.cfg.Bindings.Create),
		log.String("rudder_left", s.cfg.Bindings.RudderLeft),
		log.String("rudder_right", s.cfg.Bindings.RudderRight),
		log.String("quit", s.cfg.Bindings.Quit),
	)
	return nil
}

func (s *Session) handshake() error {
	t := s.transport
	if err := t.SetInputEnabled(false); err != nil {
		return fmt.Errorf("disable input: %w", err)
	}

	bindings := []struct {
		event   host.EventID
		trigger string
	}{
		{EventCreate, s.cfg.Bindings.Create},
		{EventRudderLeft, s.cfg.Bindings.RudderLeft},
		{EventRudderRight, s.cfg.Bindings.RudderRight},
		{EventQuit, s.cfg.Bindings.Quit},
	}
	for _, b := range bindings {
		if err := t.RegisterEvent(b.event, eventNames[b.event]); err != nil {
			return fmt.Errorf("register event %s: %w", eventNames[b.event], err)
		}
		if err := t.BindInput(b.trigger, b.event); err != nil {
			return fmt.Errorf("bind %q: %w", b.trigger, err)
		}
	}

	for _, f := range referenceFields {
		if err := t.RegisterDataField(DefinitionReference, f.name, f.unit, host.DataTypeFloat64); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	for _, f := range companionFields {
		if err := t.RegisterDataField(DefinitionCompanion, f.name, f.unit, host.DataTypeFloat64); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}

	if err := t.RequestData(RequestReference, DefinitionReference, host.ObjectUser, s.cfg.ReferenceCadence); err != nil {
		return fmt.Errorf("request reference telemetry: %w", err)
	}
	if err := t.SetInputEnabled(true); err != nil {
		return fmt.Errorf("enable input: %w", err)
	}
	return nil
}

// Run connects and serves until a quit event, a host shutdown or ctx ends.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve polls and dispatches until the quit flag is set or ctx is done,
// then closes the transport. The quit flag is checked once per iteration.
func (s *Session) Serve(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	idle := time.NewTimer(s.cfg.PollInterval)
	defer idle.Stop()

	for !s.quit {
		if ctx.Err() != nil {
			s.requestQuit("context done")
			break
		}

		msg, perr := s.transport.Poll(ctx)
		if perr != nil {
			if errors.Is(perr, host.ErrMalformedMessage) {
				s.drop("malformed", "undecodable message", log.Error(perr))
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("poll: %w", perr)
		}
		if msg == nil {
			idle.Reset(s.cfg.PollInterval)
			select {
			case <-ctx.Done():
			case <-idle.C:
			}
			continue
		}
		s.Handle(msg)
	}
	return nil
}

// Handle routes one host message. It never fails: rejected operations and
// unusable messages are logged and dropped.
func (s *Session) Handle(msg host.Message) {
	if msg == nil {
		s.drop("malformed", "nil message")
		return
	}
	if s.quit {
		s.drop("after_quit", "message after quit", log.String("kind", string(msg.Kind())))
		return
	}
	s.metrics.message(string(msg.Kind()))

	switch m := msg.(type) {
	case host.ControlEvent:
		s.onControlEvent(m)
	case host.ObjectCreated:
		s.onObjectCreated(m)
	case host.DataReceived:
		s.onData(m)
	case host.HostException:
		s.onException(m)
	case host.HostShutdown:
		s.logger.Info("host shutdown received")
		s.requestQuit("host shutdown")
	default:
		s.drop("malformed", "unknown message kind", log.String("kind", string(msg.Kind())))
	}
}

func (s *Session) onControlEvent(m host.ControlEvent) {
	switch m.Event {
	case EventCreate:
		if _, err := s.vehicle.RequestCreation(); err != nil {
			s.reject("create", err)
			return
		}
		s.setState(StateAwaitingCreationConfirm)
	case EventRudderLeft:
		s.adjustRudder(vehicle.Left)
	case EventRudderRight:
		s.adjustRudder(vehicle.Right)
	case EventQuit:
		s.logger.Info("quit requested")
		s.requestQuit("quit event")
	default:
		s.drop("unknown_event", "unknown control event", log.Uint32("event", uint32(m.Event)))
	}
}

func (s *Session) adjustRudder(dir vehicle.Direction) {
	v, err := s.vehicle.AdjustRudder(dir)
	if err != nil {
		s.reject("rudder_"+dir.String(), err)
		return
	}
	s.metrics.rudder(v)
}

func (s *Session) onObjectCreated(m host.ObjectCreated) {
	if m.Request != RequestCreateCompanion {
		s.drop("unknown_request", "creation confirmed for unknown request",
			log.Uint32("request", uint32(m.Request)),
			log.Uint32("object_id", uint32(m.Object)),
		)
		return
	}
	if !s.vehicle.Pending() {
		s.drop("unexpected_creation", "creation confirmed without a pending request",
			log.Uint32("object_id", uint32(m.Object)),
		)
		return
	}

	s.vehicle.OnCreationConfirmed(m.Object)
	s.setState(StateActive)

	if err := s.send("request_data", func() error {
		return s.transport.RequestData(RequestCompanion, DefinitionCompanion, m.Object, host.CadenceOnChange)
	}); err != nil {
		s.logger.Error("companion telemetry request failed", log.Error(err))
	}
}

func (s *Session) onData(m host.DataReceived) {
	switch m.Request {
	case RequestReference:
		values, err := host.DecodeFloat64s(m.Raw, len(referenceFields))
		if err != nil {
			s.drop("bad_record", "reference record rejected", log.Error(err))
			return
		}
		s.cache.Update(telemetry.GeoPosition{
			Latitude:   values[0],
			Longitude:  s.cfg.Convention.ToEastPositive(values[1]),
			Heading:    values[2],
			AltitudeFt: values[3],
			HasHeading: true,
		})
		s.logger.Debug("reference telemetry",
			log.Float64("latitude", values[0]),
			log.Float64("longitude", values[1]),
			log.Float64("heading", values[2]),
			log.Float64("altitude_ft", values[3]),
		)
	case RequestCompanion:
		if id, ok := s.vehicle.ObjectID(); !ok || id != m.Object {
			s.drop("unknown_object", "companion record for another object", log.Uint32("object_id", uint32(m.Object)))
			return
		}
		values, err := host.DecodeFloat64s(m.Raw, len(companionFields))
		if err != nil {
			s.drop("bad_record", "companion record rejected", log.Error(err))
			return
		}
		s.vehicle.OnTelemetryReport(values[0])
		s.metrics.reportedRudder(values[0])
	default:
		s.drop("unknown_request", "data for unknown request", log.Uint32("request", uint32(m.Request)))
	}
}

func (s *Session) onException(m host.HostException) {
	category := m.Code.Category()
	s.metrics.exception(string(category))
	s.logger.Warn("host exception",
		log.String("code", m.Code.String()),
		log.String("category", string(category)),
		log.String("description", m.Code.Description()),
		log.Uint32("send_id", m.SendID),
		log.Uint32("index", m.Index),
	)

	if m.Code == host.ExceptionCreateObjectFailed && s.vehicle.Pending() {
		s.vehicle.OnCreationFailed()
		s.setState(StateConnected)
	}
}

func (s *Session) requestQuit(reason string) {
	if !s.quit {
		s.quit = true
		s.logger.Debug("quit flag set", log.String("reason", reason))
	}
}

func (s *Session) close() error {
	if s.closed {
		return nil
	}
	s.quit = true
	s.closed = true
	err := s.transport.Close()
	s.setState(StateDisconnected)
	if err != nil {
		s.logger.Error("close failed", log.Error(err))
		return fmt.Errorf("close: %w", err)
	}
	s.logger.Info("disconnected")
	return nil
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state change", log.String("from", s.state.String()), log.String("to", st.String()))
	s.state = st
	s.metrics.state(st)
}

func (s *Session) reject(operation string, err error) {
	if errors.Is(err, vehicle.ErrPreconditionNotMet) {
		s.metrics.rejected(operation)
		s.logger.Warn("operation ignored", log.String("operation", operation), log.Error(err))
		return
	}
	s.logger.Error("operation failed", log.String("operation", operation), log.Error(err))
}

func (s *Session) drop(reason, msg string, fields ...log.Field) {
	s.metrics.dropped(reason)
	s.logger.Warn(msg, append(fields, log.String("reason", reason))...)
}

// send issues one outbound command unless the session is shutting down.
func (s *Session) send(name string, fn func() error) error {
	if s.quit || s.closed {
		return ErrSessionClosed
	}
	if err := fn(); err != nil {
		return err
	}
	s.metrics.command(name)
	return nil
}

// commands is the vehicle controller's view of the transport. It converts
// poses to the host's longitude convention and goes through send.
type commands struct {
	s *Session
}

func (c commands) CreateObject(asset string, pose host.InitPosition, req host.RequestID) error {
	pose.Longitude = c.s.cfg.Convention.FromEastPositive(pose.Longitude)
	return c.s.send("create_object", func() error {
		return c.s.transport.CreateObject(asset, pose, req)
	})
}

func (c commands) SetData(def host.DefinitionID, object host.ObjectID, raw []byte) error {
	return c.s.send("set_data", func() error {
		return c.s.transport.SetData(def, object, raw)
	})
}
