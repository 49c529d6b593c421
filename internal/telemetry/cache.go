// Package telemetry keeps the last known pose of the reference object.
package telemetry

// GeoPosition is a pose with east-positive longitude, altitude in feet and
// true heading in degrees.
type GeoPosition struct {
	Latitude   float64
	Longitude  float64
	AltitudeFt float64
	Heading    float64
	HasHeading bool
}

// Telemetry is the most recent sample. Valid stays false until the first Update.
type Telemetry struct {
	Position GeoPosition
	Valid    bool
}

// Cache holds a single sample; each Update replaces it wholesale.
// It is owned by one goroutine and is not safe for concurrent use.
type Cache struct {
	current Telemetry
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Update(sample GeoPosition) {
	c.current = Telemetry{Position: sample, Valid: true}
}

func (c *Cache) Read() Telemetry {
	return c.current
}
