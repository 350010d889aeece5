package habits

import (
	"github.com/latticehabits/lattice/backend/internal/calendar"
)

// slotSegments filters segments belonging to one slot.
func slotSegments(segments []HabitSegment, slotID SlotID) []HabitSegment {
	matched := make([]HabitSegment, 0, len(segments))
	for _, segment := range segments {
		if segment.SlotID == slotID.String() {
			matched = append(matched, segment)
		}
	}
	return matched
}

// openSegment returns the slot's open segment, or nil when every segment is
// closed. Under the timeline invariant at most one segment is open; if bad
// data holds several, the one with the latest start wins.
func openSegment(segments []HabitSegment) *HabitSegment {
	var open *HabitSegment
	for i := range segments {
		if !segments[i].Open() {
			continue
		}
		if open == nil || laterStart(segments[i], *open) {
			open = &segments[i]
		}
	}
	return open
}

// ActiveSegmentOn resolves which of the given segments is active on the day,
// or nil when none is. The timeline invariant admits at most one match; if
// the invariant has been violated the segment with the latest start date
// wins, with larger id breaking exact start ties, so resolution stays
// deterministic.
func ActiveSegmentOn(segments []HabitSegment, day calendar.Day) *HabitSegment {
	var active *HabitSegment
	for i := range segments {
		if !segments[i].ActiveOn(day) {
			continue
		}
		if active == nil || laterStart(segments[i], *active) {
			active = &segments[i]
		}
	}
	return active
}

func laterStart(candidate, current HabitSegment) bool {
	if candidate.StartDate != current.StartDate {
		return candidate.StartDate > current.StartDate
	}
	return candidate.SegmentID > current.SegmentID
}

// SegmentsOverlappingRange returns every segment whose range intersects
// [from, to], keeping input order. Open segments intersect whenever they
// start on or before the range end.
func SegmentsOverlappingRange(segments []HabitSegment, from, to calendar.Day) []HabitSegment {
	overlapping := make([]HabitSegment, 0, len(segments))
	for _, segment := range segments {
		start, err := calendar.ParseDay(segment.StartDate)
		if err != nil || start.After(to) {
			continue
		}
		if segment.EndDate != nil {
			end, err := calendar.ParseDay(*segment.EndDate)
			if err != nil || end.Before(from) {
				continue
			}
		}
		overlapping = append(overlapping, segment)
	}
	return overlapping
}

// planSegmentInsertion validates that a new segment starting on startDate can
// join the slot's timeline, and returns the predecessor to close (nil when
// none needs closing).
//
// The timeline only ever grows at its tail: a start date at or before an
// existing segment's start, or inside a closed segment's range, is rejected
// rather than reordering history. Inserting at or before the current open
// segment's start is likewise rejected; permitting it would leave two open
// segments active on the same day.
func planSegmentInsertion(existing []HabitSegment, startDate calendar.Day) (*HabitSegment, error) {
	for _, segment := range existing {
		start, err := calendar.ParseDay(segment.StartDate)
		if err != nil {
			continue
		}
		if start.After(startDate) || start.Equal(startDate) {
			return nil, ErrInvalidRange
		}
		if segment.EndDate != nil {
			end, err := calendar.ParseDay(*segment.EndDate)
			if err == nil && !end.Before(startDate) {
				return nil, ErrInvalidRange
			}
		}
	}
	return openSegment(existing), nil
}
