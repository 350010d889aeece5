package analytics

import (
	"sort"

	"github.com/latticehabits/lattice/backend/internal/calendar"
	"github.com/latticehabits/lattice/backend/internal/habits"
)

// topHabitLimit caps the ranking to the habits worth showing.
const topHabitLimit = 5

// DayStat is one day's completion ratio across every active segment.
type DayStat struct {
	Date    calendar.Day
	Percent float64
}

// WeekStat is one 7-day bucket's completion ratio. Week 1 covers days 1-7 of
// the month, week 5 the remainder; this is plain day-of-month bucketing, not
// ISO week numbering.
type WeekStat struct {
	Week    int
	Percent float64
}

// HabitRank scores one segment over the days it was active in the month.
type HabitRank struct {
	SegmentID string
	Name      string
	Color     string
	Percent   float64
}

// Snapshot is the display-ready monthly aggregation.
type Snapshot struct {
	Month             calendar.Month
	DailyCompletion   []DayStat
	OverallEfficiency float64
	WeeklyProgress    []WeekStat
	TopHabits         []HabitRank
}

// MonthlySnapshot aggregates completion statistics for one month from an
// in-memory set of segments and entries. It performs no I/O; callers scope
// the inputs (typically to segments overlapping the month) beforehand.
// Every ratio with a zero denominator is 0, never NaN.
func MonthlySnapshot(month calendar.Month, segments []habits.HabitSegment, entries []habits.HabitEntry) Snapshot {
	days := month.Days()

	completedOn := make(map[string]map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.Completed {
			continue
		}
		byDate := completedOn[entry.SegmentID]
		if byDate == nil {
			byDate = make(map[string]bool)
			completedOn[entry.SegmentID] = byDate
		}
		byDate[entry.Date] = true
	}

	daily := make([]DayStat, 0, len(days))
	weekActive := make([]int, 0, 5)
	weekCompleted := make([]int, 0, 5)
	totalActive := 0
	totalCompleted := 0

	for index, day := range days {
		active := 0
		completed := 0
		for _, segment := range segments {
			if !segment.ActiveOn(day) {
				continue
			}
			active++
			if completedOn[segment.SegmentID][day.String()] {
				completed++
			}
		}

		daily = append(daily, DayStat{Date: day, Percent: ratio(completed, active)})
		totalActive += active
		totalCompleted += completed

		week := index / 7
		for len(weekActive) <= week {
			weekActive = append(weekActive, 0)
			weekCompleted = append(weekCompleted, 0)
		}
		weekActive[week] += active
		weekCompleted[week] += completed
	}

	weekly := make([]WeekStat, 0, len(weekActive))
	for week := range weekActive {
		weekly = append(weekly, WeekStat{
			Week:    week + 1,
			Percent: ratio(weekCompleted[week], weekActive[week]),
		})
	}

	return Snapshot{
		Month:             month,
		DailyCompletion:   daily,
		OverallEfficiency: ratio(totalCompleted, totalActive),
		WeeklyProgress:    weekly,
		TopHabits:         rankHabits(days, segments, completedOn),
	}
}

// rankHabits scores each segment over its active days within the month,
// sorts descending by rate and truncates. The sort is stable, so segments
// with equal rates keep their original order.
func rankHabits(days []calendar.Day, segments []habits.HabitSegment, completedOn map[string]map[string]bool) []HabitRank {
	ranks := make([]HabitRank, 0, len(segments))
	for _, segment := range segments {
		activeDays := 0
		completed := 0
		for _, day := range days {
			if !segment.ActiveOn(day) {
				continue
			}
			activeDays++
			if completedOn[segment.SegmentID][day.String()] {
				completed++
			}
		}
		ranks = append(ranks, HabitRank{
			SegmentID: segment.SegmentID,
			Name:      segment.Name,
			Color:     segment.Color,
			Percent:   ratio(completed, activeDays),
		})
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Percent > ranks[j].Percent
	})
	if len(ranks) > topHabitLimit {
		ranks = ranks[:topHabitLimit]
	}
	return ranks
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}
