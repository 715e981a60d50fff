package appointment

import "time"

// Interval is a half-open time range [Start, End) in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval normalizes both instants to UTC and rejects end <= start.
func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: Canonical(start), End: Canonical(end)}
	if !iv.End.After(iv.Start) {
		return Interval{}, ErrInvalidInterval
	}
	return iv, nil
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect: s1 < e2 and s2 < e1.
// Intervals that only touch at an endpoint do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Canonical converts an instant to UTC at microsecond precision, which is how
// every appointment instant is stored and compared.
func Canonical(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
