package syncapi

import "github.com/twmsh/fy-admin/go/timefmt"

// Box log/status types, reported over the broker.
const (
	LogTypeStatus = "status"
	LogTypeLog    = "log"
)

// BoxLogMessage is the log/status payload a box publishes to the fleet log
// exchange. IPs is a comma-joined address list; Payload is free-form JSON,
// a StatusPayload for heartbeats.
type BoxLogMessage struct {
	HwID    string       `json:"hwid"`
	IPs     string       `json:"ips"`
	Type    string       `json:"type"`
	Level   string       `json:"level"`
	Payload string       `json:"payload"`
	TS      timefmt.Time `json:"ts"`
}
