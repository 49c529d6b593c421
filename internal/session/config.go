package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/vehicle"
)

// Bindings maps each control event to the input trigger that fires it.
type Bindings struct {
	Create      string
	RudderLeft  string
	RudderRight string
	Quit        string
}

// Normalize upper-cases every trigger; key presses arrive upper-cased.
func (b Bindings) Normalize() Bindings {
	return Bindings{
		Create:      strings.ToUpper(strings.TrimSpace(b.Create)),
		RudderLeft:  strings.ToUpper(strings.TrimSpace(b.RudderLeft)),
		RudderRight: strings.ToUpper(strings.TrimSpace(b.RudderRight)),
		Quit:        strings.ToUpper(strings.TrimSpace(b.Quit)),
	}
}

type Config struct {
	Name string
	// PollInterval is how long the loop waits when no message is pending.
	PollInterval time.Duration
	Bindings     Bindings

	// ReferenceCadence is how often the reference object is read.
	ReferenceCadence host.Cadence
	Convention       host.LongitudeConvention

	Vehicle vehicle.Config
}

func DefaultConfig() Config {
	return Config{
		Name:         "simcompanion",
		PollInterval: time.Millisecond,
		Bindings: Bindings{
			Create:      "C",
			RudderLeft:  "A",
			RudderRight: "D",
			Quit:        "Q",
		},
		ReferenceCadence: host.CadenceOnce,
		Convention:       host.EastPositive,
		Vehicle:          vehicle.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("session name is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	b := c.Bindings.Normalize()
	seen := make(map[string]string, 4)
	for _, bind := range []struct{ event, trigger string }{
		{"create", b.Create},
		{"rudder_left", b.RudderLeft},
		{"rudder_right", b.RudderRight},
		{"quit", b.Quit},
	} {
		if bind.trigger == "" {
			return fmt.Errorf("binding for %s is empty", bind.event)
		}
		if other, dup := seen[bind.trigger]; dup {
			return fmt.Errorf("trigger %q bound to both %s and %s", bind.trigger, other, bind.event)
		}
		seen[bind.trigger] = bind.event
	}
	if c.Vehicle.AssetName == "" {
		return fmt.Errorf("companion asset name is required")
	}
	if c.Vehicle.RudderStep <= 0 || c.Vehicle.RudderStep > vehicle.MaxRudder {
		return fmt.Errorf("rudder step must be in (0, 1], got %v", c.Vehicle.RudderStep)
	}
	if c.Vehicle.SpawnDistanceFt < 0 {
		return fmt.Errorf("spawn distance must not be negative, got %v", c.Vehicle.SpawnDistanceFt)
	}
	return nil
}
