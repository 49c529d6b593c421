// Package config loads the simcompanion configuration: a YAML file,
// SIMCOMPANION_* environment overrides, then defaults and validation.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/host/bridge"
	"github.com/zeusync/simcompanion/internal/session"
	"github.com/zeusync/simcompanion/internal/vehicle"
)

const EnvPrefix = "SIMCOMPANION_"

// Transport kinds.
const (
	TransportLoopback = "loopback"
	TransportBridge   = "bridge"
)

type Config struct {
	Session   Session    `yaml:"session" envPrefix:"SESSION_"`
	Companion Companion  `yaml:"companion" envPrefix:"COMPANION_"`
	Transport Transport  `yaml:"transport" envPrefix:"TRANSPORT_"`
	Log       log.Config `yaml:"log" envPrefix:"LOG_"`
	Metrics   Metrics    `yaml:"metrics" envPrefix:"METRICS_"`
}

type Session struct {
	Name         string        `yaml:"name" env:"NAME"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// ReferenceCadence is once, on_change or periodic.
	ReferenceCadence string   `yaml:"reference_cadence" env:"REFERENCE_CADENCE"`
	Bindings         Bindings `yaml:"bindings" envPrefix:"BIND_"`
}

type Bindings struct {
	Create      string `yaml:"create" env:"CREATE"`
	RudderLeft  string `yaml:"rudder_left" env:"RUDDER_LEFT"`
	RudderRight string `yaml:"rudder_right" env:"RUDDER_RIGHT"`
	Quit        string `yaml:"quit" env:"QUIT"`
}

type Companion struct {
	Asset                 string  `yaml:"asset" env:"ASSET"`
	SpawnDistanceFt       float64 `yaml:"spawn_distance_ft" env:"SPAWN_DISTANCE_FT"`
	SpawnHeadingOffsetDeg float64 `yaml:"spawn_heading_offset_deg" env:"SPAWN_HEADING_OFFSET_DEG"`
	RudderStep            float64 `yaml:"rudder_step" env:"RUDDER_STEP"`
}

type Transport struct {
	Kind string `yaml:"kind" env:"KIND"`
	// LongitudeConvention is east or west; it applies to records on the wire.
	LongitudeConvention string        `yaml:"longitude_convention" env:"LONGITUDE_CONVENTION"`
	Bridge              bridge.Config `yaml:"bridge" envPrefix:"BRIDGE_"`
	Loopback            Loopback      `yaml:"loopback" envPrefix:"LOOPBACK_"`
}

// Loopback seeds the in-memory host's user object.
type Loopback struct {
	Latitude   float64 `yaml:"latitude" env:"LATITUDE"`
	Longitude  float64 `yaml:"longitude" env:"LONGITUDE"`
	AltitudeFt float64 `yaml:"altitude_ft" env:"ALTITUDE_FT"`
	Heading    float64 `yaml:"heading" env:"HEADING"`
	// Listen, when set, serves the loopback host to bridge clients instead of
	// running a session.
	Listen string `yaml:"listen" env:"LISTEN"`
}

type Metrics struct {
	// Addr enables the Prometheus listener when non-empty.
	Addr string `yaml:"addr" env:"ADDR"`
	Path string `yaml:"path" env:"PATH"`
}

// Default is a loopback session parked at KSEA.
func Default() Config {
	s := session.DefaultConfig()
	return Config{
		Session: Session{
			Name:             s.Name,
			PollInterval:     s.PollInterval,
			ReferenceCadence: s.ReferenceCadence.String(),
			Bindings: Bindings{
				Create:      s.Bindings.Create,
				RudderLeft:  s.Bindings.RudderLeft,
				RudderRight: s.Bindings.RudderRight,
				Quit:        s.Bindings.Quit,
			},
		},
		Companion: Companion{
			Asset:                 s.Vehicle.AssetName,
			SpawnDistanceFt:       s.Vehicle.SpawnDistanceFt,
			SpawnHeadingOffsetDeg: s.Vehicle.SpawnHeadingOffsetDeg,
			RudderStep:            s.Vehicle.RudderStep,
		},
		Transport: Transport{
			Kind:                TransportLoopback,
			LongitudeConvention: s.Convention.String(),
			Bridge:              bridge.DefaultConfig(),
			Loopback: Loopback{
				Latitude:   47.4318,
				Longitude:  -122.3078,
				AltitudeFt: 433,
				Heading:    360,
			},
		},
		Log: log.Config{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Metrics: Metrics{Path: "/metrics"},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadYAML decodes r over the defaults without consulting the environment.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decodeYAML(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// ParseEnv overrides cfg from SIMCOMPANION_* variables.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	switch c.Transport.Kind {
	case TransportLoopback:
	case TransportBridge:
		if c.Transport.Bridge.URL == "" {
			return fmt.Errorf("transport.bridge.url is required for the bridge transport")
		}
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Metrics.Addr != "" && c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics.addr is set")
	}
	return nil
}

// SessionConfig converts the file form into a validated session.Config.
func (c Config) SessionConfig() (session.Config, error) {
	cadence, err := host.ParseCadence(c.Session.ReferenceCadence)
	if err != nil {
		return session.Config{}, fmt.Errorf("session.reference_cadence: %w", err)
	}
	convention, err := host.ParseLongitudeConvention(c.Transport.LongitudeConvention)
	if err != nil {
		return session.Config{}, fmt.Errorf("transport.longitude_convention: %w", err)
	}

	vcfg := vehicle.DefaultConfig()
	vcfg.AssetName = c.Companion.Asset
	vcfg.SpawnDistanceFt = c.Companion.SpawnDistanceFt
	vcfg.SpawnHeadingOffsetDeg = c.Companion.SpawnHeadingOffsetDeg
	vcfg.RudderStep = c.Companion.RudderStep

	out := session.Config{
		Name:         c.Session.Name,
		PollInterval: c.Session.PollInterval,
		Bindings: session.Bindings{
			Create:      c.Session.Bindings.Create,
			RudderLeft:  c.Session.Bindings.RudderLeft,
			RudderRight: c.Session.Bindings.RudderRight,
			Quit:        c.Session.Bindings.Quit,
		}.Normalize(),
		ReferenceCadence: cadence,
		Convention:       convention,
		Vehicle:          vcfg,
	}
	if err := out.Validate(); err != nil {
		return session.Config{}, err
	}
	return out, nil
}
