// Package mysqltz reads and writes MySQL DATETIME columns against a server
// running in a fixed UTC offset that may differ from the local zone.
package mysqltz

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Layout is the DATETIME text layout used on the wire. Layout3 carries the
// milliseconds of DATETIME(3) columns.
const (
	Layout  = "2006-01-02 15:04:05"
	Layout3 = "2006-01-02 15:04:05.000"
)

var offsetRe = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// Parse turns an offset spec like "+08:00" into a fixed zone.
func Parse(offset string) (*time.Location, error) {
	var m = offsetRe.FindStringSubmatch(offset)
	if m == nil {
		return nil, fmt.Errorf("invalid timezone offset %q", offset)
	}
	hours, _ := strconv.Atoi(m[2])
	mins, _ := strconv.Atoi(m[3])
	if hours > 14 || mins > 59 {
		return nil, fmt.Errorf("invalid timezone offset %q", offset)
	}

	var secs = hours*3600 + mins*60
	if m[1] == "-" {
		secs = -secs
	}
	return time.FixedZone("UTC"+offset, secs), nil
}

// ReadDT interprets a DATETIME string fetched from the server as a wall
// time in the server zone, returned in the local zone.
func ReadDT(s string, serverTZ *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, serverTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing datetime %q: %w", s, err)
	}
	return t.In(time.Local), nil
}

// WriteDT renders a local time as the DATETIME string the server expects.
func WriteDT(t time.Time, serverTZ *time.Location) string {
	return t.In(serverTZ).Format(Layout)
}

// WriteDT3 renders a local time with milliseconds. Comparison bounds against
// DATETIME(3) columns must use this: a bound truncated to whole seconds keeps
// matching rows whose modify_time carries millis.
func WriteDT3(t time.Time, serverTZ *time.Location) string {
	return t.In(serverTZ).Format(Layout3)
}
