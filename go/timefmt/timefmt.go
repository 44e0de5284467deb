// Package timefmt implements the long timestamp format used on every wire
// surface of the system: "2006-01-02 15:04:05.000" in local time.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the wire layout for timestamps exchanged with the sync server,
// the message broker and the track warehouse.
const Layout = "2006-01-02 15:04:05.000"

// Time wraps time.Time so that JSON (un)marshaling uses Layout instead of
// RFC 3339.
type Time struct {
	time.Time
}

func Now() Time {
	return Time{time.Now()}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(Layout) + `"`), nil
}

func (t *Time) UnmarshalJSON(b []byte) error {
	var s = strings.Trim(string(b), `"`)
	parsed, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// Parse parses a Layout-formatted timestamp in the local zone.
func Parse(s string) (Time, error) {
	parsed, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return Time{}, err
	}
	return Time{parsed}, nil
}
