package types

import (
	"fmt"
	"time"
)

// Timestamp is the time carried by blocks and the genesis document:
// whole seconds since the Unix epoch and a nanosecond remainder.
type Timestamp struct {
	Seconds int64 `cramberry:"1"`
	Nanos   int32 `cramberry:"2"`
}

// NewTimestamp returns the Timestamp of t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns ts in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// IsZero reports whether ts was never set.
func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanos == 0
}

// Validate rejects a nanosecond remainder outside [0, 1e9).
func (ts Timestamp) Validate() error {
	if ts.Nanos < 0 || ts.Nanos >= int32(time.Second) {
		return fmt.Errorf("timestamp nanos %d out of range", ts.Nanos)
	}
	return nil
}
