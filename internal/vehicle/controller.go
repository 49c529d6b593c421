// Package vehicle owns the companion object: its creation near the reference
// object and the rudder commands sent to it.
package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeusync/simcompanion/internal/core/observability/log"
	"github.com/zeusync/simcompanion/internal/geodesy"
	"github.com/zeusync/simcompanion/internal/host"
	"github.com/zeusync/simcompanion/internal/telemetry"
)

var (
	// ErrPreconditionNotMet is wrapped by every rejection below. Callers log
	// it and carry on; nothing is retried.
	ErrPreconditionNotMet = errors.New("precondition not met")

	ErrTelemetryUnavailable = fmt.Errorf("%w: no reference telemetry yet", ErrPreconditionNotMet)
	ErrAlreadyCreated       = fmt.Errorf("%w: companion already created", ErrPreconditionNotMet)
	ErrCreationPending      = fmt.Errorf("%w: creation already requested", ErrPreconditionNotMet)
	ErrNoVehicle            = fmt.Errorf("%w: companion does not exist", ErrPreconditionNotMet)
	ErrUnknownDirection     = fmt.Errorf("%w: unknown rudder direction", ErrPreconditionNotMet)
)

const (
	MinRudder = -1.0
	MaxRudder = 1.0

	// quantumScale keeps repeated float steps on exact decimal values.
	quantumScale = 1e9
)

// Direction of a rudder step.
type Direction int

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// Commands is the subset of the transport the controller drives.
type Commands interface {
	CreateObject(asset string, pose host.InitPosition, req host.RequestID) error
	SetData(def host.DefinitionID, object host.ObjectID, raw []byte) error
}

type Config struct {
	AssetName             string
	SpawnDistanceFt       float64
	SpawnHeadingOffsetDeg float64
	RudderStep            float64

	// CreateRequest tags the creation command; CompanionDefinition is the
	// record layout holding the rudder position.
	CreateRequest       host.RequestID
	CompanionDefinition host.DefinitionID
}

func DefaultConfig() Config {
	return Config{
		AssetName:             "VEH_jetTruck",
		SpawnDistanceFt:       50,
		SpawnHeadingOffsetDeg: 90,
		RudderStep:            0.1,
	}
}

// Controller is driven from the session goroutine only.
type Controller struct {
	cfg    Config
	cache  *telemetry.Cache
	cmds   Commands
	logger log.Log

	objectID  host.ObjectID
	hasObject bool
	pending   bool

	rudder      float64
	reported    float64
	hasReported bool
}

func NewController(cfg Config, cache *telemetry.Cache, cmds Commands, logger log.Log) *Controller {
	if logger == nil {
		logger = log.Nop()
	}
	return &Controller{
		cfg:    cfg,
		cache:  cache,
		cmds:   cmds,
		logger: logger,
	}
}

// SpawnPose places the companion SpawnDistanceFt ahead of the reference
// object, turned SpawnHeadingOffsetDeg from its heading.
func (c *Controller) SpawnPose(ref telemetry.GeoPosition) host.InitPosition {
	lat, lon := geodesy.Translate(ref.Heading, c.cfg.SpawnDistanceFt, ref.Latitude, ref.Longitude)
	return host.InitPosition{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  ref.AltitudeFt,
		Heading:   geodesy.NormalizeHeading(ref.Heading + c.cfg.SpawnHeadingOffsetDeg),
		OnGround:  true,
	}
}

// RequestCreation sends one creation command for the companion.
func (c *Controller) RequestCreation() (host.InitPosition, error) {
	switch {
	case c.hasObject:
		return host.InitPosition{}, ErrAlreadyCreated
	case c.pending:
		return host.InitPosition{}, ErrCreationPending
	}

	ref := c.cache.Read()
	if !ref.Valid {
		return host.InitPosition{}, ErrTelemetryUnavailable
	}

	pose := c.SpawnPose(ref.Position)
	if err := c.cmds.CreateObject(c.cfg.AssetName, pose, c.cfg.CreateRequest); err != nil {
		return host.InitPosition{}, fmt.Errorf("create %s: %w", c.cfg.AssetName, err)
	}
	c.pending = true

	c.logger.Info("companion creation requested",
		log.String("asset", c.cfg.AssetName),
		log.Float64("latitude", pose.Latitude),
		log.Float64("longitude", pose.Longitude),
		log.Float64("altitude_ft", pose.Altitude),
		log.Float64("heading", pose.Heading),
	)
	return pose, nil
}

func (c *Controller) OnCreationConfirmed(id host.ObjectID) {
	c.objectID = id
	c.hasObject = true
	c.pending = false
	c.logger.Info("companion created", log.Uint32("object_id", uint32(id)))
}

// OnCreationFailed releases a pending creation so it can be requested again.
func (c *Controller) OnCreationFailed() {
	if c.pending {
		c.pending = false
		c.logger.Warn("companion creation failed")
	}
}

// AdjustRudder moves the rudder one step. A step that would leave
// [MinRudder, MaxRudder] is dropped and the current value returned.
func (c *Controller) AdjustRudder(dir Direction) (float64, error) {
	var delta float64
	switch dir {
	case Left:
		delta = -c.cfg.RudderStep
	case Right:
		delta = c.cfg.RudderStep
	default:
		return c.rudder, fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
	if !c.hasObject {
		return c.rudder, ErrNoVehicle
	}
	next := quantize(c.rudder + delta)
	if next < MinRudder || next > MaxRudder {
		c.logger.Debug("rudder at limit",
			log.String("direction", dir.String()),
			log.Float64("rudder", c.rudder),
		)
		return c.rudder, nil
	}

	raw := host.EncodeFloat64s(next)
	if err := c.cmds.SetData(c.cfg.CompanionDefinition, c.objectID, raw); err != nil {
		return c.rudder, fmt.Errorf("set rudder: %w", err)
	}
	c.rudder = next
	c.logger.Info("rudder set",
		log.String("direction", dir.String()),
		log.Float64("rudder", next),
	)
	return next, nil
}

// OnTelemetryReport records what the host reports; the commanded value stays authoritative.
func (c *Controller) OnTelemetryReport(value float64) {
	c.reported = value
	c.hasReported = true
	c.logger.Info("rudder reported", log.Float64("rudder", value))
}

func (c *Controller) Rudder() float64 { return c.rudder }

func (c *Controller) ReportedRudder() (float64, bool) { return c.reported, c.hasReported }

func (c *Controller) ObjectID() (host.ObjectID, bool) { return c.objectID, c.hasObject }

func (c *Controller) Pending() bool { return c.pending }

func quantize(v float64) float64 {
	return math.Round(v*quantumScale) / quantumScale
}
