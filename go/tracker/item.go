// Package tracker coalesces the per-track notify bursts emitted by the
// analyzer into one consolidated record per track uuid, forwarding each
// track exactly once.
package tracker

import (
	"github.com/twmsh/fy-admin/go/api"
	"github.com/twmsh/fy-admin/go/timefmt"
)

// MatchPerson is one recognizer hit attached to a face track.
type MatchPerson struct {
	DbID  string `json:"db_id"`
	UUID  string `json:"uuid"`
	Score int64  `json:"score"`
}

// FaceItem is a face track travelling through the pipeline.
type FaceItem struct {
	UUID    string         `json:"uuid"`
	Notify  api.FaceNotify `json:"notify"`
	TS      timefmt.Time   `json:"ts"`
	Matches []MatchPerson  `json:"matches"`
}

// CarItem is a vehicle track travelling through the pipeline.
type CarItem struct {
	UUID   string        `json:"uuid"`
	Notify api.CarNotify `json:"notify"`
	TS     timefmt.Time  `json:"ts"`
}

// Output is the tagged union handed to the uplink: exactly one of Face or
// Car is set.
type Output struct {
	Face *FaceItem
	Car  *CarItem
}

func (o Output) ID() string {
	if o.Face != nil {
		return o.Face.UUID
	}
	if o.Car != nil {
		return o.Car.UUID
	}
	return ""
}
