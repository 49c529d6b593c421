package session

import "github.com/zeusync/simcompanion/internal/host"

// Client events registered during the handshake.
const (
	EventCreate host.EventID = iota + 1
	EventRudderLeft
	EventRudderRight
	EventQuit
)

// Request identifiers tagging data requests and object creation.
const (
	RequestReference host.RequestID = iota + 1
	RequestCompanion
	RequestCreateCompanion
)

// Data definitions.
const (
	DefinitionReference host.DefinitionID = iota + 1
	DefinitionCompanion
)

type dataField struct {
	name string
	unit string
}

// referenceFields is the layout of the reference record, in wire order.
var referenceFields = []dataField{
	{host.VarPlaneLatitude, host.UnitDegrees},
	{host.VarPlaneLongitude, host.UnitDegrees},
	{host.VarPlaneHeadingTrue, host.UnitDegrees},
	{host.VarPlaneAltitude, host.UnitFeet},
}

var companionFields = []dataField{
	{host.VarRudderPosition, host.UnitPosition},
}

var eventNames = map[host.EventID]string{
	EventCreate:      "Companion.Create",
	EventRudderLeft:  "Companion.RudderLeft",
	EventRudderRight: "Companion.RudderRight",
	EventQuit:        "Companion.Quit",
}
