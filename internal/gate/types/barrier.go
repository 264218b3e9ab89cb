package types

type BarrierStatus string

const (
	BarrierOpen   BarrierStatus = "OPEN"
	BarrierClosed BarrierStatus = "CLOSED"
)

type BarrierStatusResponse struct {
	Status      BarrierStatus `json:"status"`
	LastUpdate  string        `json:"last_update"`
	LastEvent   *EventKind    `json:"last_event"`
	Department  *int64        `json:"department"`
	User        *int64        `json:"user"`
	SecondsOpen *int64        `json:"seconds_open"`
	AutoCloseAt string        `json:"auto_close_at,omitempty"`
}
