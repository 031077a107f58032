package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimestampRange is returned for timestamps that cannot be stored as
// Unix nanoseconds.
var ErrTimestampRange = errors.New("timestamp out of range")

// Bounds of the persisted timestamp form.
var (
	MinTimestamp = time.Unix(0, -1<<63).UTC()
	MaxTimestamp = time.Unix(0, 1<<63-1).UTC()
)

// CheckTimestamp returns ErrTimestampRange if t is outside
// [MinTimestamp, MaxTimestamp]. The zero time is accepted.
func CheckTimestamp(t time.Time) error {
	if t.IsZero() {
		return nil
	}
	if t.Before(MinTimestamp) || t.After(MaxTimestamp) {
		return fmt.Errorf("%w: %s", ErrTimestampRange, t.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// ToNanos converts a timestamp to its persisted form.
// The zero time maps to 0 so an unset watermark round-trips. Callers
// check the range with CheckTimestamp first.
func ToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// FromNanos is the inverse of ToNanos. Results are in UTC.
func FromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
