package host

import "fmt"

// ExceptionCode is the numeric reason the host gives for rejecting a command.
type ExceptionCode uint32

const (
	ExceptionNone                          ExceptionCode = 0
	ExceptionError                         ExceptionCode = 1
	ExceptionSizeMismatch                  ExceptionCode = 2
	ExceptionUnrecognizedID                ExceptionCode = 3
	ExceptionUnopened                      ExceptionCode = 4
	ExceptionVersionMismatch               ExceptionCode = 5
	ExceptionTooManyGroups                 ExceptionCode = 6
	ExceptionNameUnrecognized              ExceptionCode = 7
	ExceptionTooManyEventNames             ExceptionCode = 8
	ExceptionEventIDDuplicate              ExceptionCode = 9
	ExceptionTooManyMaps                   ExceptionCode = 10
	ExceptionTooManyObjects                ExceptionCode = 11
	ExceptionTooManyRequests               ExceptionCode = 12
	ExceptionWeatherInvalidPort            ExceptionCode = 13
	ExceptionWeatherInvalidMetar           ExceptionCode = 14
	ExceptionWeatherUnableToGetObservation ExceptionCode = 15
	ExceptionWeatherUnableToCreateStation  ExceptionCode = 16
	ExceptionWeatherUnableToRemoveStation  ExceptionCode = 17
	ExceptionInvalidDataType               ExceptionCode = 18
	ExceptionInvalidDataSize               ExceptionCode = 19
	ExceptionDataError                     ExceptionCode = 20
	ExceptionInvalidArray                  ExceptionCode = 21
	ExceptionCreateObjectFailed            ExceptionCode = 22
	ExceptionLoadFlightplanFailed          ExceptionCode = 23
	ExceptionOperationInvalidForObjectType ExceptionCode = 24
	ExceptionIllegalOperation              ExceptionCode = 25
	ExceptionAlreadySubscribed             ExceptionCode = 26
	ExceptionInvalidEnum                   ExceptionCode = 27
	ExceptionDefinitionError               ExceptionCode = 28
	ExceptionDuplicateID                   ExceptionCode = 29
	ExceptionDatumID                       ExceptionCode = 30
	ExceptionOutOfBounds                   ExceptionCode = 31
	ExceptionAlreadyCreated                ExceptionCode = 32
	ExceptionObjectOutsideRealityBubble    ExceptionCode = 33
	ExceptionObjectContainer               ExceptionCode = 34
	ExceptionObjectAI                      ExceptionCode = 35
	ExceptionObjectATC                     ExceptionCode = 36
	ExceptionObjectSchedule                ExceptionCode = 37
)

// ExceptionCategory groups exception codes for logs and metrics.
type ExceptionCategory string

const (
	CategoryNone     ExceptionCategory = "none"
	CategoryProtocol ExceptionCategory = "protocol"
	CategoryLimit    ExceptionCategory = "limit"
	CategoryData     ExceptionCategory = "data"
	CategoryObject   ExceptionCategory = "object"
	CategoryWeather  ExceptionCategory = "weather"
	CategoryInternal ExceptionCategory = "internal"
	CategoryUnknown  ExceptionCategory = "unknown"
)

type exceptionInfo struct {
	name        string
	category    ExceptionCategory
	description string
}

var exceptionTable = map[ExceptionCode]exceptionInfo{
	ExceptionNone:                          {"NONE", CategoryNone, "no error"},
	ExceptionError:                         {"ERROR", CategoryInternal, "unspecified host error"},
	ExceptionSizeMismatch:                  {"SIZE_MISMATCH", CategoryData, "data size does not match the definition"},
	ExceptionUnrecognizedID:                {"UNRECOGNIZED_ID", CategoryProtocol, "identifier not recognized by the host"},
	ExceptionUnopened:                      {"UNOPENED", CategoryProtocol, "session is not open"},
	ExceptionVersionMismatch:               {"VERSION_MISMATCH", CategoryProtocol, "client and host versions do not match"},
	ExceptionTooManyGroups:                 {"TOO_MANY_GROUPS", CategoryLimit, "too many notification or input groups"},
	ExceptionNameUnrecognized:              {"NAME_UNRECOGNIZED", CategoryProtocol, "event or variable name not recognized"},
	ExceptionTooManyEventNames:             {"TOO_MANY_EVENT_NAMES", CategoryLimit, "too many event names"},
	ExceptionEventIDDuplicate:              {"EVENT_ID_DUPLICATE", CategoryProtocol, "event identifier already in use"},
	ExceptionTooManyMaps:                   {"TOO_MANY_MAPS", CategoryLimit, "too many input mappings"},
	ExceptionTooManyObjects:                {"TOO_MANY_OBJECTS", CategoryLimit, "too many simulated objects"},
	ExceptionTooManyRequests:               {"TOO_MANY_REQUESTS", CategoryLimit, "too many outstanding requests"},
	ExceptionWeatherInvalidPort:            {"WEATHER_INVALID_PORT", CategoryWeather, "invalid weather port"},
	ExceptionWeatherInvalidMetar:           {"WEATHER_INVALID_METAR", CategoryWeather, "invalid METAR string"},
	ExceptionWeatherUnableToGetObservation: {"WEATHER_UNABLE_TO_GET_OBSERVATION", CategoryWeather, "weather observation unavailable"},
	ExceptionWeatherUnableToCreateStation:  {"WEATHER_UNABLE_TO_CREATE_STATION", CategoryWeather, "weather station could not be created"},
	ExceptionWeatherUnableToRemoveStation:  {"WEATHER_UNABLE_TO_REMOVE_STATION", CategoryWeather, "weather station could not be removed"},
	ExceptionInvalidDataType:               {"INVALID_DATA_TYPE", CategoryData, "invalid data type for the variable"},
	ExceptionInvalidDataSize:               {"INVALID_DATA_SIZE", CategoryData, "invalid data size"},
	ExceptionDataError:                     {"DATA_ERROR", CategoryData, "generic data error"},
	ExceptionInvalidArray:                  {"INVALID_ARRAY", CategoryData, "invalid array"},
	ExceptionCreateObjectFailed:            {"CREATE_OBJECT_FAILED", CategoryObject, "object creation failed"},
	ExceptionLoadFlightplanFailed:          {"LOAD_FLIGHTPLAN_FAILED", CategoryObject, "flight plan could not be loaded"},
	ExceptionOperationInvalidForObjectType: {"OPERATION_INVALID_FOR_OBJECT_TYPE", CategoryObject, "operation invalid for this object type"},
	ExceptionIllegalOperation:              {"ILLEGAL_OPERATION", CategoryProtocol, "illegal operation"},
	ExceptionAlreadySubscribed:             {"ALREADY_SUBSCRIBED", CategoryProtocol, "already subscribed"},
	ExceptionInvalidEnum:                   {"INVALID_ENUM", CategoryProtocol, "invalid enumeration value"},
	ExceptionDefinitionError:               {"DEFINITION_ERROR", CategoryData, "error in data definition"},
	ExceptionDuplicateID:                   {"DUPLICATE_ID", CategoryProtocol, "duplicate identifier"},
	ExceptionDatumID:                       {"DATUM_ID", CategoryData, "unknown datum identifier"},
	ExceptionOutOfBounds:                   {"OUT_OF_BOUNDS", CategoryData, "value out of bounds"},
	ExceptionAlreadyCreated:                {"ALREADY_CREATED", CategoryObject, "object already created"},
	ExceptionObjectOutsideRealityBubble:    {"OBJECT_OUTSIDE_REALITY_BUBBLE", CategoryObject, "object outside the simulated area"},
	ExceptionObjectContainer:               {"OBJECT_CONTAINER", CategoryObject, "object container error"},
	ExceptionObjectAI:                      {"OBJECT_AI", CategoryObject, "AI object error"},
	ExceptionObjectATC:                     {"OBJECT_ATC", CategoryObject, "ATC object error"},
	ExceptionObjectSchedule:                {"OBJECT_SCHEDULE", CategoryObject, "object schedule error"},
}

func (c ExceptionCode) String() string {
	if info, ok := exceptionTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("EXCEPTION_%d", uint32(c))
}

func (c ExceptionCode) Category() ExceptionCategory {
	if info, ok := exceptionTable[c]; ok {
		return info.category
	}
	return CategoryUnknown
}

func (c ExceptionCode) Description() string {
	if info, ok := exceptionTable[c]; ok {
		return info.description
	}
	return "unknown host exception"
}
