package injector

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zeusync/simcompanion/internal/config"
	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/host/bridge"
	"github.com/zeusync/simcompanion/internal/host/loopback"
	"github.com/zeusync/simcompanion/internal/session"
)

// App is everything cmd needs to run one session.
type App struct {
	Config    config.Config
	Logger    *log.Logger
	Registry  *prometheus.Registry
	Transport host.Transport
	Session   *session.Session
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideTransport,
	ProvideSessionConfig,
	ProvideSession,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) (*log.Logger, func(), error) {
	logger, err := log.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) (*session.Metrics, error) {
	return session.NewMetrics(reg)
}

// ProvideTransport picks the host transport named by transport.kind.
func ProvideTransport(cfg config.Config, logger *log.Logger) host.Transport {
	if cfg.Transport.Kind == config.TransportBridge {
		return bridge.NewClient(cfg.Transport.Bridge, logger)
	}
	return NewLoopback(cfg)
}

// NewLoopback builds an in-memory host whose user object sits at the
// configured seed pose, expressed in the configured wire convention.
func NewLoopback(cfg config.Config) *loopback.Host {
	convention, _ := host.ParseLongitudeConvention(cfg.Transport.LongitudeConvention)
	seed := cfg.Transport.Loopback
	return loopback.New(loopback.WithUserObject(
		seed.Latitude,
		convention.FromEastPositive(seed.Longitude),
		seed.AltitudeFt,
		seed.Heading,
	))
}

func ProvideSessionConfig(cfg config.Config) (session.Config, error) {
	return cfg.SessionConfig()
}

func ProvideSession(t host.Transport, cfg session.Config, logger *log.Logger, metrics *session.Metrics) *session.Session {
	return session.New(t, cfg, session.WithLogger(logger), session.WithMetrics(metrics))
}
