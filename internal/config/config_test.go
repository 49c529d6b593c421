package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/simcompanion/internal/host"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simcompanion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	s, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, "simcompanion", s.Name)
	assert.Equal(t, time.Millisecond, s.PollInterval)
	assert.Equal(t, "C", s.Bindings.Create)
	assert.Equal(t, "Q", s.Bindings.Quit)
	assert.Equal(t, host.CadenceOnce, s.ReferenceCadence)
	assert.Equal(t, host.EastPositive, s.Convention)
	assert.Equal(t, "VEH_jetTruck", s.Vehicle.AssetName)
	assert.Equal(t, 50.0, s.Vehicle.SpawnDistanceFt)
	assert.Equal(t, 0.1, s.Vehicle.RudderStep)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, TransportLoopback, cfg.Transport.Kind)
	assert.Equal(t, 47.4318, cfg.Transport.Loopback.Latitude)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
session:
  name: ramp-test
  poll_interval: 5ms
  reference_cadence: periodic
  bindings:
    create: N
companion:
  asset: VEH_fuelTruck
  rudder_step: 0.25
transport:
  kind: bridge
  longitude_convention: west
  bridge:
    url: ws://sim-host:9000/host
log:
  level: debug
  format: json
metrics:
  addr: ":9102"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ramp-test", cfg.Session.Name)
	assert.Equal(t, 5*time.Millisecond, cfg.Session.PollInterval)
	assert.Equal(t, "N", cfg.Session.Bindings.Create)
	assert.Equal(t, "A", cfg.Session.Bindings.RudderLeft, "unset keys keep defaults")
	assert.Equal(t, "ws://sim-host:9000/host", cfg.Transport.Bridge.URL)
	assert.Equal(t, 5*time.Second, cfg.Transport.Bridge.DialTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	s, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, host.CadencePeriodic, s.ReferenceCadence)
	assert.Equal(t, host.WestPositive, s.Convention)
	assert.Equal(t, "VEH_fuelTruck", s.Vehicle.AssetName)
	assert.Equal(t, 0.25, s.Vehicle.RudderStep)
	assert.Equal(t, 50.0, s.Vehicle.SpawnDistanceFt)
}

func TestEnvironmentWinsOverFile(t *testing.T) {
	path := writeFile(t, "session:\n  name: from-file\n")
	t.Setenv("SIMCOMPANION_SESSION_NAME", "from-env")
	t.Setenv("SIMCOMPANION_SESSION_BIND_QUIT", "X")
	t.Setenv("SIMCOMPANION_COMPANION_SPAWN_DISTANCE_FT", "120")
	t.Setenv("SIMCOMPANION_TRANSPORT_BRIDGE_WRITE_TIMEOUT", "250ms")
	t.Setenv("SIMCOMPANION_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Session.Name)
	assert.Equal(t, "X", cfg.Session.Bindings.Quit)
	assert.Equal(t, 120.0, cfg.Companion.SpawnDistanceFt)
	assert.Equal(t, 250*time.Millisecond, cfg.Transport.Bridge.WriteTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejects(t *testing.T) {
	for name, content := range map[string]string{
		"unknown key":          "session:\n  nmae: typo\n",
		"duplicate binding":    "session:\n  bindings:\n    rudder_left: C\n",
		"bad cadence":          "session:\n  reference_cadence: hourly\n",
		"bad convention":       "transport:\n  longitude_convention: north\n",
		"unknown transport":    "transport:\n  kind: carrier-pigeon\n",
		"bridge without url":   "transport:\n  kind: bridge\n  bridge:\n    url: \"\"\n",
		"rudder step too big":  "companion:\n  rudder_step: 1.5\n",
		"negative distance":    "companion:\n  spawn_distance_ft: -1\n",
		"zero poll interval":   "session:\n  poll_interval: 0s\n",
		"metrics without path": "metrics:\n  addr: \":9102\"\n  path: \"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(content))
			assert.Error(t, err)
		})
	}
}

func TestLowercaseBindingsAreUpperCased(t *testing.T) {
	cfg, err := LoadYAML(strings.NewReader("session:\n  bindings:\n    create: n\n    quit: x\n"))
	require.NoError(t, err)

	s, err := cfg.SessionConfig()
	require.NoError(t, err)
	assert.Equal(t, "N", s.Bindings.Create)
	assert.Equal(t, "X", s.Bindings.Quit)

	_, err = LoadYAML(strings.NewReader("session:\n  bindings:\n    quit: c\n"))
	assert.EqualError(t, err, `trigger "C" bound to both create and quit`)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadYAML(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
