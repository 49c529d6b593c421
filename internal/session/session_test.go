package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/geodesy"
	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/host/loopback"
	"github.com/zeusync/simcompanion/internal/vehicle"
)

const (
	kseaLat     = 47.4318
	kseaLon     = -122.3078
	kseaAltFt   = 433.0
	kseaHeading = 360.0
)

type fixture struct {
	host    *loopback.Host
	session *Session
	metrics *Metrics
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, cfg Config, opts ...loopback.Option) *fixture {
	t.Helper()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	h := loopback.New(opts...)
	s := New(h, cfg, WithLogger(log.FromZap(zap.New(core))), WithMetrics(metrics))
	return &fixture{host: h, session: s, metrics: metrics, logs: logs}
}

func connected(t *testing.T, opts ...loopback.Option) *fixture {
	t.Helper()
	f := newFixture(t, DefaultConfig(), opts...)
	require.NoError(t, f.session.Connect(context.Background()))
	return f
}

// drain dispatches every pending message the way one Serve pass would.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		msg, err := f.host.Poll(context.Background())
		require.NoError(t, err)
		if msg == nil {
			return
		}
		f.session.Handle(msg)
	}
	t.Fatal("message queue did not drain")
}

func (f *fixture) press(t *testing.T, key string) {
	t.Helper()
	require.True(t, f.host.PressKey(key), "key %q not delivered", key)
	f.drain(t)
}

func (f *fixture) active(t *testing.T) {
	t.Helper()
	f.drain(t)
	f.press(t, "C")
	require.Equal(t, StateActive, f.session.State())
}

func ops(cmds []loopback.Command) []loopback.Op {
	out := make([]loopback.Op, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func TestHandshakeOrder(t *testing.T) {
	f := connected(t)

	assert.Equal(t, StateConnected, f.session.State())
	assert.True(t, f.host.InputEnabled())
	assert.NotEmpty(t, f.session.ID())

	assert.Equal(t, []loopback.Op{
		loopback.OpOpen,
		loopback.OpSetInputEnabled,
		loopback.OpRegisterEvent, loopback.OpBindInput,
		loopback.OpRegisterEvent, loopback.OpBindInput,
		loopback.OpRegisterEvent, loopback.OpBindInput,
		loopback.OpRegisterEvent, loopback.OpBindInput,
		loopback.OpRegisterDataField,
		loopback.OpRegisterDataField,
		loopback.OpRegisterDataField,
		loopback.OpRegisterDataField,
		loopback.OpRegisterDataField,
		loopback.OpRequestData,
		loopback.OpSetInputEnabled,
	}, ops(f.host.Commands()))

	toggles := f.host.CommandsOf(loopback.OpSetInputEnabled)
	assert.False(t, toggles[0].Enabled)
	assert.True(t, toggles[1].Enabled)

	binds := f.host.CommandsOf(loopback.OpBindInput)
	assert.Equal(t, "C", binds[0].Trigger)
	assert.Equal(t, EventCreate, binds[0].Event)
	assert.Equal(t, "Q", binds[3].Trigger)
	assert.Equal(t, EventQuit, binds[3].Event)

	req := f.host.CommandsOf(loopback.OpRequestData)[0]
	assert.Equal(t, RequestReference, req.Request)
	assert.Equal(t, host.ObjectUser, req.Object)
	assert.Equal(t, host.CadenceOnce, req.Cadence)
}

func TestConnectFailure(t *testing.T) {
	boom := errors.New("simulator not running")
	f := newFixture(t, DefaultConfig(), loopback.WithOpenError(boom))

	err := f.session.Connect(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "simcompanion", connErr.Session)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateDisconnected, f.session.State())
}

func TestConnectTwiceFails(t *testing.T) {
	f := connected(t)
	err := f.session.Connect(context.Background())
	assert.ErrorIs(t, err, host.ErrAlreadyOpen)
}

func TestReferenceTelemetryCached(t *testing.T) {
	f := connected(t, loopback.WithUserObject(kseaLat, kseaLon, kseaAltFt, kseaHeading))
	assert.False(t, f.session.Telemetry().Valid)

	f.drain(t)
	got := f.session.Telemetry()
	require.True(t, got.Valid)
	assert.Equal(t, kseaLat, got.Position.Latitude)
	assert.Equal(t, kseaLon, got.Position.Longitude)
	assert.Equal(t, kseaAltFt, got.Position.AltitudeFt)
	assert.Equal(t, kseaHeading, got.Position.Heading)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Messages.WithLabelValues(string(host.KindDataReceived))))
}

func TestCreateBeforeTelemetryIsRejected(t *testing.T) {
	f := connected(t)

	f.session.Handle(host.ControlEvent{Event: EventCreate})

	assert.Empty(t, f.host.CommandsOf(loopback.OpCreateObject))
	assert.Equal(t, StateConnected, f.session.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rejected.WithLabelValues("create")))
	assert.Equal(t, 1, f.logs.FilterMessage("operation ignored").Len())
}

func TestCreateNearReference(t *testing.T) {
	f := connected(t, loopback.WithUserObject(kseaLat, kseaLon, kseaAltFt, kseaHeading))
	f.drain(t)

	require.True(t, f.host.PressKey("C"))
	msg, err := f.host.Poll(context.Background())
	require.NoError(t, err)
	f.session.Handle(msg)
	assert.Equal(t, StateAwaitingCreationConfirm, f.session.State())

	creates := f.host.CommandsOf(loopback.OpCreateObject)
	require.Len(t, creates, 1)
	pose := creates[0].Pose
	assert.Equal(t, "VEH_jetTruck", creates[0].Name)
	assert.Equal(t, RequestCreateCompanion, creates[0].Request)
	assert.InDelta(t, 47.4319372, pose.Latitude, 1e-6)
	assert.InDelta(t, kseaLon, pose.Longitude, 1e-9)
	assert.Equal(t, kseaAltFt, pose.Altitude)
	assert.Equal(t, 90.0, pose.Heading)
	assert.True(t, pose.OnGround)

	f.drain(t)
	assert.Equal(t, StateActive, f.session.State())
	id, ok := f.session.Vehicle().ObjectID()
	require.True(t, ok)
	assert.Equal(t, host.ObjectID(1), id)

	reqs := f.host.CommandsOf(loopback.OpRequestData)
	require.Len(t, reqs, 2)
	assert.Equal(t, RequestCompanion, reqs[1].Request)
	assert.Equal(t, DefinitionCompanion, reqs[1].Definition)
	assert.Equal(t, id, reqs[1].Object)
	assert.Equal(t, host.CadenceOnChange, reqs[1].Cadence)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commands.WithLabelValues("create_object")))
	assert.Equal(t, float64(StateActive), testutil.ToFloat64(f.metrics.State))
}

func TestSecondCreateSendsNothing(t *testing.T) {
	f := connected(t)
	f.drain(t)

	f.session.Handle(host.ControlEvent{Event: EventCreate})
	f.session.Handle(host.ControlEvent{Event: EventCreate})
	assert.Len(t, f.host.CommandsOf(loopback.OpCreateObject), 1)

	f.drain(t)
	f.press(t, "C")
	assert.Len(t, f.host.CommandsOf(loopback.OpCreateObject), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Rejected.WithLabelValues("create")))
}

func TestRudderSteps(t *testing.T) {
	f := connected(t)
	f.active(t)

	for i := 0; i < 3; i++ {
		f.press(t, "D")
	}

	sets := f.host.CommandsOf(loopback.OpSetData)
	require.Len(t, sets, 3)
	for i, want := range []float64{0.1, 0.2, 0.3} {
		got, err := host.DecodeFloat64s(sets[i].Raw, 1)
		require.NoError(t, err)
		assert.Equal(t, want, got[0])
		assert.Equal(t, DefinitionCompanion, sets[i].Definition)
	}

	assert.Equal(t, 0.3, f.session.Vehicle().Rudder())
	reported, ok := f.session.Vehicle().ReportedRudder()
	require.True(t, ok)
	assert.Equal(t, 0.3, reported)
	assert.Equal(t, 0.3, testutil.ToFloat64(f.metrics.Rudder))
	assert.Equal(t, 0.3, testutil.ToFloat64(f.metrics.ReportedRudder))

	f.press(t, "A")
	assert.Equal(t, 0.2, f.session.Vehicle().Rudder())
}

func TestRudderWithoutCompanion(t *testing.T) {
	f := connected(t)
	f.drain(t)

	f.press(t, "A")
	f.press(t, "D")

	assert.Empty(t, f.host.CommandsOf(loopback.OpSetData))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rejected.WithLabelValues("rudder_left")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rejected.WithLabelValues("rudder_right")))
}

func TestRudderStopsAtLimit(t *testing.T) {
	f := connected(t)
	f.active(t)

	for i := 0; i < 15; i++ {
		f.session.Handle(host.ControlEvent{Event: EventRudderLeft})
	}
	assert.Equal(t, -1.0, f.session.Vehicle().Rudder())
	assert.Len(t, f.host.CommandsOf(loopback.OpSetData), 10)
}

func TestCreationFailureAllowsRetry(t *testing.T) {
	f := connected(t, loopback.WithCreateFailure())
	f.drain(t)

	f.press(t, "C")
	assert.Equal(t, StateConnected, f.session.State())
	assert.False(t, f.session.Vehicle().Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exceptions.WithLabelValues(string(host.CategoryObject))))

	f.press(t, "C")
	assert.Len(t, f.host.CommandsOf(loopback.OpCreateObject), 2)
}

func TestExceptionIsLoggedAndIgnored(t *testing.T) {
	f := connected(t)
	f.drain(t)

	f.session.Handle(host.HostException{Code: host.ExceptionNameUnrecognized, SendID: 4, Index: 1})
	f.session.Handle(host.HostException{Code: 999})

	assert.Equal(t, StateConnected, f.session.State())
	assert.False(t, f.session.Quit())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exceptions.WithLabelValues(string(host.CategoryProtocol))))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exceptions.WithLabelValues(string(host.CategoryUnknown))))

	entries := f.logs.FilterMessage("host exception").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "NAME_UNRECOGNIZED", entries[0].ContextMap()["code"])
	assert.Equal(t, "EXCEPTION_999", entries[1].ContextMap()["code"])
}

func TestUnusableMessagesAreDropped(t *testing.T) {
	f := connected(t)

	f.session.Handle(nil)
	f.session.Handle(host.DataReceived{Request: RequestReference, Raw: []byte{1, 2, 3}})
	f.session.Handle(host.DataReceived{Request: 77, Raw: host.EncodeFloat64s(1)})
	f.session.Handle(host.ObjectCreated{Request: 77, Object: 9})
	f.session.Handle(host.ObjectCreated{Request: RequestCreateCompanion, Object: 9})
	f.session.Handle(host.DataReceived{Request: RequestCompanion, Object: 9, Raw: host.EncodeFloat64s(0.5)})
	f.session.Handle(host.ControlEvent{Event: 42})

	assert.False(t, f.session.Telemetry().Valid)
	assert.Equal(t, StateConnected, f.session.State())
	_, hasObject := f.session.Vehicle().ObjectID()
	assert.False(t, hasObject)

	for reason, want := range map[string]float64{
		"malformed":           1,
		"bad_record":          1,
		"unknown_request":     2,
		"unexpected_creation": 1,
		"unknown_object":      1,
		"unknown_event":       1,
	} {
		assert.Equal(t, want, testutil.ToFloat64(f.metrics.Dropped.WithLabelValues(reason)), reason)
	}
}

func TestQuitWhileAwaitingCreation(t *testing.T) {
	f := connected(t)
	require.True(t, f.host.PressKey("C"))
	require.True(t, f.host.PressKey("Q"))

	require.NoError(t, f.session.Serve(context.Background()))

	assert.True(t, f.session.Quit())
	assert.Equal(t, StateDisconnected, f.session.State())
	assert.Len(t, f.host.CommandsOf(loopback.OpRequestData), 1, "companion never requested")

	cmds := f.host.Commands()
	last := ops(cmds[len(cmds)-2:])
	assert.Equal(t, []loopback.Op{loopback.OpCreateObject, loopback.OpClose}, last)
}

func TestCommandsRefusedAfterQuit(t *testing.T) {
	f := connected(t)
	f.active(t)
	f.host.Shutdown()

	require.NoError(t, f.session.Serve(context.Background()))
	_, err := f.session.Vehicle().AdjustRudder(vehicle.Right)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, f.host.CommandsOf(loopback.OpSetData))

	f.session.Handle(host.ControlEvent{Event: EventRudderRight})
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Dropped.WithLabelValues("after_quit")))
}

func TestHostShutdownEndsServe(t *testing.T) {
	f := connected(t)
	f.host.Shutdown()

	require.NoError(t, f.session.Serve(context.Background()))
	assert.Len(t, f.host.CommandsOf(loopback.OpClose), 1)
	assert.Equal(t, 1, f.logs.FilterMessage("host shutdown received").Len())
}

func TestCancelEndsServe(t *testing.T) {
	f := connected(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, f.session.Serve(ctx))
	assert.True(t, f.session.Quit())
	assert.Equal(t, StateDisconnected, f.session.State())
}

func TestRunServesUntilQuitKey(t *testing.T) {
	f := newFixture(t, DefaultConfig(), loopback.WithUserObject(kseaLat, kseaLon, kseaAltFt, kseaHeading))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	require.Eventually(t, f.host.InputEnabled, time.Second, time.Millisecond)
	for !f.host.PressKey("Q") {
		time.Sleep(time.Millisecond)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Run did not return after quit")
	}
	assert.Len(t, f.host.CommandsOf(loopback.OpClose), 1)
}

// flaky fails Poll with the queued errors before delegating to the loopback.
type flaky struct {
	*loopback.Host
	errs []error
}

func (f *flaky) Poll(ctx context.Context) (host.Message, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.Host.Poll(ctx)
}

func TestMalformedPollIsSkipped(t *testing.T) {
	h := loopback.New()
	tr := &flaky{Host: h, errs: []error{host.ErrMalformedMessage}}
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := New(tr, DefaultConfig(), WithMetrics(metrics))
	require.NoError(t, s.Connect(context.Background()))
	h.Shutdown()

	require.NoError(t, s.Serve(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dropped.WithLabelValues("malformed")))
}

func TestPollFailureEndsServe(t *testing.T) {
	boom := errors.New("pipe broken")
	h := loopback.New()
	s := New(&flaky{Host: h, errs: []error{boom}}, DefaultConfig())
	require.NoError(t, s.Connect(context.Background()))

	err := s.Serve(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Len(t, h.CommandsOf(loopback.OpClose), 1)
}

func TestWestPositiveConvention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Convention = host.WestPositive
	f := newFixture(t, cfg, loopback.WithUserObject(kseaLat, -kseaLon, kseaAltFt, kseaHeading))
	require.NoError(t, f.session.Connect(context.Background()))
	f.drain(t)

	assert.Equal(t, kseaLon, f.session.Telemetry().Position.Longitude)

	f.press(t, "C")
	pose := f.host.CommandsOf(loopback.OpCreateObject)[0].Pose
	assert.InDelta(t, -kseaLon, pose.Longitude, 1e-9)
}

func TestPeriodicReferenceKeepsCacheFresh(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReferenceCadence = host.CadencePeriodic
	f := newFixture(t, cfg, loopback.WithUserObject(kseaLat, kseaLon, kseaAltFt, kseaHeading))
	require.NoError(t, f.session.Connect(context.Background()))

	next := func() {
		msg, err := f.host.Poll(context.Background())
		require.NoError(t, err)
		f.session.Handle(msg)
	}
	next()
	require.NoError(t, f.host.SetVariable(host.ObjectUser, loopback.VarHeading, 90))
	next()

	assert.Equal(t, 90.0, f.session.Telemetry().Position.Heading)

	require.True(t, f.host.PressKey("C"))
	next()
	pose := f.host.CommandsOf(loopback.OpCreateObject)[0].Pose
	wantLat, wantLon := geodesy.Translate(90, 50, kseaLat, kseaLon)
	assert.InDelta(t, wantLat, pose.Latitude, 1e-12)
	assert.InDelta(t, wantLon, pose.Longitude, 1e-12)
	assert.Equal(t, 180.0, pose.Heading)
}
