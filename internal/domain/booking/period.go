package booking

import "time"

// Resolution is the granularity of every stored booking bound. Finer input is
// truncated so all stores judge overlap on the same interval.
const Resolution = time.Second

// Period is a half-open interval [Start, End). Touching periods do not overlap.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod normalises both bounds to UTC and truncates them to Resolution.
// It does not validate ordering: a range shorter than Resolution may become empty.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: start.UTC().Truncate(Resolution), End: end.UTC().Truncate(Resolution)}
}

// IsValid reports whether Start is strictly before End.
func (p Period) IsValid() bool {
	return p.Start.Before(p.End)
}

// Overlaps reports whether p and other share any instant.
func (p Period) Overlaps(other Period) bool {
	return !(!p.End.After(other.Start) || !p.Start.Before(other.End))
}

// Duration returns End - Start.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}
