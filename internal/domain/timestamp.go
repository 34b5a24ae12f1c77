package domain

import (
	"time"

	"github.com/pkg/errors"
)

// TimestampLayout is the canonical snapshot timestamp format: fixed width,
// nanosecond precision, always UTC. Lexicographic order of formatted values
// equals chronological order, which the stores' MAX(ts) and ts <= target
// queries rely on. Snapshots are never reformatted after the first write.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a canonical timestamp. Any other format is rejected
// with ErrInvalidTimestamp: accepting it would silently break the
// lexicographic ordering invariant.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidTimestamp, "%q", s)
	}
	return t, nil
}

// ValidateTimestamp rejects timestamps that cannot be persisted, i.e. the
// zero value. Formatting anything else through FormatTimestamp is safe.
func ValidateTimestamp(t time.Time) error {
	if t.IsZero() {
		return errors.Wrap(ErrInvalidTimestamp, "zero time")
	}
	return nil
}
