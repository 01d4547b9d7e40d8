// Package clock computes remaining exam time as a pure function of the
// attempt's wall-clock start instant. Remaining time is never accumulated
// in a countdown variable: a page reload, clock drift or missed tick cannot
// desynchronize it from true elapsed time.
package clock

import (
	"time"

	"github.com/ccingram94/galileo-sub000/internal/models"
)

// Snapshot is one read of both remaining values.
type Snapshot struct {
	TotalRemaining   time.Duration `json:"total_remaining"`
	SectionRemaining time.Duration `json:"section_remaining"`
}

// TotalLimit sums every section's time limit.
func TotalLimit(sections []models.Section) time.Duration {
	var total time.Duration
	for _, s := range sections {
		total += s.TimeLimit()
	}
	return total
}

// SectionStart returns the instant the given section's clock began: the
// attempt start plus the limits of all prior sections. Sections run on a
// fixed schedule anchored to startedAt; finishing one early does not bank
// time for the next.
func SectionStart(sections []models.Section, sectionIdx int, startedAt time.Time) time.Time {
	start := startedAt
	for i := 0; i < sectionIdx && i < len(sections); i++ {
		start = start.Add(sections[i].TimeLimit())
	}
	return start
}

// TotalRemaining is the whole-exam time left at now, floored at zero.
func TotalRemaining(sections []models.Section, startedAt, now time.Time) time.Duration {
	return floor(TotalLimit(sections) - now.Sub(startedAt))
}

// SectionRemaining is the current section's time left at now: the section's
// limit minus the time elapsed since its scheduled start, floored at zero
// and capped at the limit. Moving into a section ahead of its window shows
// at most the section's own allotment; the unused tail of the prior section
// is never banked. Out-of-range section indexes report zero.
func SectionRemaining(sections []models.Section, sectionIdx int, startedAt, now time.Time) time.Duration {
	if sectionIdx < 0 || sectionIdx >= len(sections) {
		return 0
	}
	limit := sections[sectionIdx].TimeLimit()
	remaining := limit - now.Sub(SectionStart(sections, sectionIdx, startedAt))
	if remaining > limit {
		remaining = limit
	}
	return floor(remaining)
}

// Remaining reads both values at once.
func Remaining(sections []models.Section, sectionIdx int, startedAt, now time.Time) Snapshot {
	return Snapshot{
		TotalRemaining:   TotalRemaining(sections, startedAt, now),
		SectionRemaining: SectionRemaining(sections, sectionIdx, startedAt, now),
	}
}

// Expired reports whether the whole exam's time is gone.
func Expired(sections []models.Section, startedAt, now time.Time) bool {
	return TotalRemaining(sections, startedAt, now) <= 0
}

func floor(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
