package timefmt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	var ts = Time{time.Date(2026, 8, 25, 9, 30, 0, 250*int(time.Millisecond), time.Local)}

	body, err := json.Marshal(ts)
	require.NoError(t, err)
	require.Equal(t, `"2026-08-25 09:30:00.250"`, string(body))

	var decoded Time
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.True(t, decoded.Equal(ts.Time))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("2026-08-25T09:30:00Z")
	require.Error(t, err)

	parsed, err := Parse("2026-08-25 09:30:00.000")
	require.NoError(t, err)
	require.Equal(t, 9, parsed.Hour())
}
