package session

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of a session. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Messages   *prometheus.CounterVec
	Dropped    *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Exceptions *prometheus.CounterVec
	Commands   *prometheus.CounterVec

	State          prometheus.Gauge
	Rudder         prometheus.Gauge
	ReportedRudder prometheus.Gauge
}

// NewMetrics registers session metrics against reg, defaulting to the global
// registry when nil. Collectors already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	m := &Metrics{}
	if m.Messages, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simcompanion_messages_total",
		Help: "Host messages dispatched, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.Dropped, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simcompanion_dropped_messages_total",
		Help: "Host messages dropped as malformed or unexpected, labeled by reason.",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if m.Rejected, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simcompanion_rejected_operations_total",
		Help: "Control operations rejected because a precondition was not met.",
	}, []string{"operation"})); err != nil {
		return nil, err
	}
	if m.Exceptions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simcompanion_host_exceptions_total",
		Help: "Exceptions reported by the host, labeled by category.",
	}, []string{"category"})); err != nil {
		return nil, err
	}
	if m.Commands, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simcompanion_commands_total",
		Help: "Outbound commands sent to the host, labeled by command.",
	}, []string{"command"})); err != nil {
		return nil, err
	}
	if m.State, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simcompanion_session_state",
		Help: "Current session state (0 disconnected, 1 connected, 2 awaiting creation, 3 active).",
	})); err != nil {
		return nil, err
	}
	if m.Rudder, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simcompanion_rudder_position",
		Help: "Last commanded companion rudder position.",
	})); err != nil {
		return nil, err
	}
	if m.ReportedRudder, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "simcompanion_reported_rudder_position",
		Help: "Last rudder position reported by the host.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) message(kind string) {
	if m != nil {
		m.Messages.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) rejected(operation string) {
	if m != nil {
		m.Rejected.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) exception(category string) {
	if m != nil {
		m.Exceptions.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) command(name string) {
	if m != nil {
		m.Commands.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) state(s State) {
	if m != nil {
		m.State.Set(float64(s))
	}
}

func (m *Metrics) rudder(v float64) {
	if m != nil {
		m.Rudder.Set(v)
	}
}

func (m *Metrics) reportedRudder(v float64) {
	if m != nil {
		m.ReportedRudder.Set(v)
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return nil, err
	}
	return gauge, nil
}
