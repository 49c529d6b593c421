package host

// Simulation variable names and units understood by the host.
const (
	VarPlaneLatitude    = "PLANE LATITUDE"
	VarPlaneLongitude   = "PLANE LONGITUDE"
	VarPlaneAltitude    = "PLANE ALTITUDE"
	VarPlaneHeadingTrue = "PLANE HEADING DEGREES TRUE"
	VarRudderPosition   = "RUDDER POSITION"
	UnitDegrees         = "degrees"
	UnitFeet            = "feet"
	UnitPosition        = "position"
)
