package habits

import (
	"sort"

	"github.com/latticehabits/lattice/backend/internal/calendar"
)

// milestoneLadder holds the fixed early milestones; past the ladder the next
// milestone is the next multiple of 100 strictly greater than the streak.
var milestoneLadder = []int{7, 14, 21, 30, 60, 90}

// ComputeStreak derives the consecutive-day streak from a segment's full
// entry history. It collects the completed dates, sorts them descending and
// walks backward from the most recent one while each date is exactly one
// calendar day earlier than the previous, stopping at the first gap. The
// returned day is the most recent completed date, zero when none exists.
//
// Recomputation is always from scratch: toggling an earlier day off must
// shrink or split continuity without any incremental bookkeeping.
func ComputeStreak(entries []HabitEntry) (int, calendar.Day) {
	completed := make([]calendar.Day, 0, len(entries))
	for _, entry := range entries {
		if !entry.Completed {
			continue
		}
		day, err := calendar.ParseDay(entry.Date)
		if err != nil {
			continue
		}
		completed = append(completed, day)
	}
	if len(completed) == 0 {
		return 0, calendar.Day{}
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].After(completed[j])
	})

	streak := 1
	for i := 1; i < len(completed); i++ {
		if !completed[i].Equal(completed[i-1].Previous()) {
			break
		}
		streak++
	}
	return streak, completed[0]
}

// EffectiveStreak applies the display liveness rule: the stored streak only
// counts while the last completion is today or yesterday relative to the
// clock. Once older, the displayed value decays to 0 while the stored value
// is retained.
func EffectiveStreak(streak int, lastCompleted calendar.Day, clock calendar.Clock) int {
	if streak <= 0 || lastCompleted.IsZero() {
		return 0
	}
	age := calendar.DaysBetween(lastCompleted, clock.Today())
	if age < 0 || age > 1 {
		return 0
	}
	return streak
}

// NextMilestone returns the next streak threshold to celebrate.
func NextMilestone(streak int) int {
	for _, threshold := range milestoneLadder {
		if streak < threshold {
			return threshold
		}
	}
	return (streak/100 + 1) * 100
}
