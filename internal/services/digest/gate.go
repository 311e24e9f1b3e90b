// Package digest decides when a regular stock digest is due.
package digest

import (
	"slices"
	"time"
)

// Gate permits a regular digest once per configured offset since local midnight.
type Gate struct {
	schedule map[time.Weekday][]time.Duration
}

// NewGate creates a Gate. The everyday offsets apply to every weekday in addition to
// the weekday specific ones.
func NewGate(everyday []time.Duration, weekdays map[time.Weekday][]time.Duration) *Gate {
	schedule := make(map[time.Weekday][]time.Duration, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		offsets := slices.Concat(everyday, weekdays[day])
		slices.Sort(offsets)
		schedule[day] = slices.Compact(offsets)
	}

	return &Gate{schedule: schedule}
}

// Offsets returns the sorted offsets that apply on the given weekday.
func (g *Gate) Offsets(day time.Weekday) []time.Duration {
	return slices.Clone(g.schedule[day])
}

// ShouldEmit reports whether an offset of now's day has passed that the last digest
// did not cover. The last digest is measured against now's midnight, so a digest
// from a previous day covers nothing.
func (g *Gate) ShouldEmit(now time.Time, last *time.Time) bool {
	offsets := g.schedule[now.Weekday()]
	if len(offsets) == 0 {
		return false
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(midnight)

	for _, offset := range offsets {
		if elapsed < offset {
			break
		}
		if last == nil || last.Sub(midnight) < offset {
			return true
		}
	}

	return false
}
