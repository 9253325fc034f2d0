package domain

import "time"

// TimeInterval is a half-open interval [Start, End) over UTC instants.
// Touching endpoints do not overlap, so back-to-back bookings are allowed.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) TimeInterval {
	return TimeInterval{Start: start.UTC(), End: end.UTC()}
}

func (i TimeInterval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func (i TimeInterval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}
