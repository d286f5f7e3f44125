package domain

import "time"

// Overlaps reports whether [startA, startA+durA) and [startB, startB+durB)
// share any instant. Back-to-back intervals do not overlap.
func Overlaps(startA time.Time, durA time.Duration, startB time.Time, durB time.Duration) bool {
	endA := startA.Add(durA)
	endB := startB.Add(durB)
	return startA.Before(endB) && startB.Before(endA)
}

type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.Duration(), o.Start, o.Duration())
}
