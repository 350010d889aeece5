package habits

import (
	"errors"
	"testing"

	"github.com/latticehabits/lattice/backend/internal/calendar"
)

func closedSegment(t *testing.T, id, slotID, start, end string) HabitSegment {
	t.Helper()
	return HabitSegment{
		SegmentID: id,
		DeviceID:  "device-1",
		SlotID:    slotID,
		Name:      "habit " + id,
		StartDate: start,
		EndDate:   &end,
	}
}

func openSeg(id, slotID, start string) HabitSegment {
	return HabitSegment{
		SegmentID: id,
		DeviceID:  "device-1",
		SlotID:    slotID,
		Name:      "habit " + id,
		StartDate: start,
	}
}

func day(t *testing.T, value string) calendar.Day {
	t.Helper()
	parsed, err := calendar.ParseDay(value)
	if err != nil {
		t.Fatalf("unexpected day parse error: %v", err)
	}
	return parsed
}

func TestActiveSegmentOnResolvesContainment(t *testing.T) {
	segments := []HabitSegment{
		closedSegment(t, "seg-1", "slot-1", "2025-01-01", "2025-01-31"),
		openSeg("seg-2", "slot-1", "2025-02-01"),
	}

	if active := ActiveSegmentOn(segments, day(t, "2025-01-15")); active == nil || active.SegmentID != "seg-1" {
		t.Fatalf("expected seg-1 active mid-january, got %+v", active)
	}
	if active := ActiveSegmentOn(segments, day(t, "2025-02-01")); active == nil || active.SegmentID != "seg-2" {
		t.Fatalf("expected seg-2 active from february, got %+v", active)
	}
	if active := ActiveSegmentOn(segments, day(t, "2030-06-01")); active == nil || active.SegmentID != "seg-2" {
		t.Fatalf("expected open segment active far into the future, got %+v", active)
	}
	if active := ActiveSegmentOn(segments, day(t, "2024-12-31")); active != nil {
		t.Fatalf("expected no segment before the timeline start, got %+v", active)
	}
}

func TestActiveSegmentOnPrefersLatestStartOnOverlap(t *testing.T) {
	// Violated invariant: two segments cover the same day. Resolution must
	// be deterministic in favour of the later start.
	segments := []HabitSegment{
		openSeg("seg-old", "slot-1", "2025-01-01"),
		openSeg("seg-new", "slot-1", "2025-03-01"),
	}

	active := ActiveSegmentOn(segments, day(t, "2025-04-01"))
	if active == nil || active.SegmentID != "seg-new" {
		t.Fatalf("expected latest-start segment to win, got %+v", active)
	}
}

func TestSegmentsOverlappingRange(t *testing.T) {
	segments := []HabitSegment{
		closedSegment(t, "seg-1", "slot-1", "2025-01-01", "2025-01-31"),
		closedSegment(t, "seg-2", "slot-1", "2025-02-01", "2025-02-10"),
		openSeg("seg-3", "slot-1", "2025-02-11"),
	}

	from, to := calendar.NewMonth(2025, 2).Bounds()
	overlapping := SegmentsOverlappingRange(segments, from, to)
	if len(overlapping) != 2 {
		t.Fatalf("expected 2 overlapping segments, got %d", len(overlapping))
	}
	if overlapping[0].SegmentID != "seg-2" || overlapping[1].SegmentID != "seg-3" {
		t.Fatalf("unexpected overlap set: %+v", overlapping)
	}

	// An open segment that started before the window still intersects it.
	earlier := []HabitSegment{openSeg("seg-4", "slot-2", "2024-06-01")}
	if got := SegmentsOverlappingRange(earlier, from, to); len(got) != 1 {
		t.Fatalf("expected early open segment to overlap, got %d", len(got))
	}
}

func TestPlanSegmentInsertionClosesOpenPredecessor(t *testing.T) {
	existing := []HabitSegment{openSeg("seg-1", "slot-1", "2025-01-01")}

	predecessor, err := planSegmentInsertion(existing, day(t, "2025-02-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if predecessor == nil || predecessor.SegmentID != "seg-1" {
		t.Fatalf("expected open predecessor to be returned, got %+v", predecessor)
	}
}

func TestPlanSegmentInsertionRejectsStartNotAfterOpenStart(t *testing.T) {
	existing := []HabitSegment{openSeg("seg-1", "slot-1", "2025-02-01")}

	for _, start := range []string{"2025-02-01", "2025-01-15"} {
		if _, err := planSegmentInsertion(existing, day(t, start)); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange for start %s, got %v", start, err)
		}
	}
}

func TestPlanSegmentInsertionRejectsOverlapWithClosedHistory(t *testing.T) {
	existing := []HabitSegment{closedSegment(t, "seg-1", "slot-1", "2025-01-01", "2025-01-31")}

	if _, err := planSegmentInsertion(existing, day(t, "2025-01-20")); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange inside closed range, got %v", err)
	}

	predecessor, err := planSegmentInsertion(existing, day(t, "2025-02-01"))
	if err != nil {
		t.Fatalf("unexpected error after closed range: %v", err)
	}
	if predecessor != nil {
		t.Fatalf("expected no predecessor to close, got %+v", predecessor)
	}
}
