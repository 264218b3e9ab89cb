package types

import "strings"

type SensorStatus string

const (
	SensorActive   SensorStatus = "ACTIVE"
	SensorInactive SensorStatus = "INACTIVE"
	SensorLost     SensorStatus = "LOST"
	SensorBlocked  SensorStatus = "BLOCKED"
)

type SensorKind string

const (
	SensorKeyfob SensorKind = "KEYFOB"
	SensorCard   SensorKind = "CARD"
)

type EventKind string

const (
	EventValidAccess   EventKind = "VALID_ACCESS"
	EventDeniedAccess  EventKind = "DENIED_ACCESS"
	EventManualOpen    EventKind = "MANUAL_OPEN"
	EventManualClose   EventKind = "MANUAL_CLOSE"
	EventSensorBlocked EventKind = "SENSOR_BLOCKED"
	EventSensorLost    EventKind = "SENSOR_LOST"

	// EventAutoClose only ever appears as the barrier's last event; it is
	// never written to the access event log.
	EventAutoClose EventKind = "AUTO_CLOSE"
)

type Outcome string

const (
	OutcomeGranted Outcome = "GRANTED"
	OutcomeDenied  Outcome = "DENIED"
)

// NormalizeCode is the canonical form of a credential code. The registry
// stores codes in this form and the validator looks them up the same way,
// so "a1:b2:c3:d4 " and "A1:B2:C3:D4" are the same sensor.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

type ValidateRequest struct {
	Code string `json:"code"`
}

type SensorSummary struct {
	ID         int64      `json:"id"`
	Kind       SensorKind `json:"kind"`
	Alias      string     `json:"alias,omitempty"`
	Department string     `json:"department"`
}

type ValidateResponse struct {
	Granted bool           `json:"granted"`
	Message string         `json:"message"`
	Sensor  *SensorSummary `json:"sensor"`

	// Not serialized; kept for callers (metrics, logs, tests).
	EventKind EventKind `json:"-"`
}
