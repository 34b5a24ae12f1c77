package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestampFixedWidth(t *testing.T) {
	cases := []time.Time{
		time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		time.Date(2024, 1, 2, 3, 4, 5, 1, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 999999999, time.UTC),
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	width := len(TimestampLayout)
	for _, ts := range cases {
		got := FormatTimestamp(ts)
		require.Len(t, got, width, "timestamp %s must be fixed width", got)
	}
}

func TestFormatTimestampForcesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	local := time.Date(2024, 6, 1, 15, 0, 0, 0, loc)

	got := FormatTimestamp(local)
	require.Equal(t, "2024-06-01T12:00:00.000000000Z", got)
}

func TestParseTimestampRoundtrip(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 30, 45, 123456789, time.UTC)

	parsed, err := ParseTimestamp(FormatTimestamp(ts))
	require.NoError(t, err)
	require.True(t, parsed.Equal(ts))
}

func TestParseTimestampRejectsOtherLayouts(t *testing.T) {
	for _, raw := range []string{
		"",
		"2024-06-01T12:30:45Z",
		"2024-06-01 12:30:45.000000000",
		"2024-06-01T12:30:45.000000000+03:00",
		"not a timestamp",
	} {
		_, err := ParseTimestamp(raw)
		require.Error(t, err, "input %q", raw)
		require.True(t, errors.Is(err, ErrInvalidTimestamp))
	}
}

func TestValidateTimestampRejectsZero(t *testing.T) {
	require.Error(t, ValidateTimestamp(time.Time{}))
	require.NoError(t, ValidateTimestamp(time.Now()))
}

// Lexicographic order of formatted timestamps must match chronological
// order; the sqlite backend relies on this for ORDER BY and MAX(ts).
func TestFormattedOrderMatchesChronological(t *testing.T) {
	base := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(49 * time.Hour),
		base,
		base.Add(500 * time.Nanosecond),
		base.Add(-time.Hour),
		base.Add(time.Millisecond),
		base.AddDate(1, 0, 0),
	}

	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = FormatTimestamp(ts)
	}

	sort.Strings(formatted)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	for i := range times {
		require.Equal(t, FormatTimestamp(times[i]), formatted[i])
	}
}
