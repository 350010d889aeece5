package analytics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/latticehabits/lattice/backend/internal/analytics"
	"github.com/latticehabits/lattice/backend/internal/calendar"
	"github.com/latticehabits/lattice/backend/internal/habits"
	"github.com/latticehabits/lattice/backend/internal/store"
)

func TestMonthLoadsOnlyIntersectingRecords(t *testing.T) {
	adapter := store.NewMemoryAdapter()
	january := "2025-01-31"
	segments := []habits.HabitSegment{
		{SegmentID: "seg-old", DeviceID: "device-1", SlotID: "slot-1", Name: "Old", StartDate: "2025-01-01", EndDate: &january},
		{SegmentID: "seg-live", DeviceID: "device-1", SlotID: "slot-1", Name: "Live", StartDate: "2025-02-01"},
	}
	for _, segment := range segments {
		if _, err := adapter.SaveSegment(context.Background(), segment); err != nil {
			t.Fatalf("unexpected save error: %v", err)
		}
	}
	entries := []habits.HabitEntry{
		{EntryID: "e1", DeviceID: "device-1", SegmentID: "seg-live", Date: "2025-06-01", Completed: true},
		{EntryID: "e2", DeviceID: "device-1", SegmentID: "seg-old", Date: "2025-01-15", Completed: true},
	}
	for _, entry := range entries {
		if _, err := adapter.UpsertEntry(context.Background(), entry); err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}

	service, err := analytics.NewService(analytics.ServiceConfig{Adapter: adapter})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	month, err := calendar.ParseMonth("2025-06")
	if err != nil {
		t.Fatalf("unexpected month parse error: %v", err)
	}
	snapshot, err := service.Month(context.Background(), "device-1", month)
	if err != nil {
		t.Fatalf("unexpected month error: %v", err)
	}

	if len(snapshot.TopHabits) != 1 || snapshot.TopHabits[0].SegmentID != "seg-live" {
		t.Fatalf("expected only the live segment ranked, got %+v", snapshot.TopHabits)
	}
	if snapshot.DailyCompletion[0].Percent != 100 {
		t.Fatalf("expected june 1st complete, got %f", snapshot.DailyCompletion[0].Percent)
	}
}

func TestMonthSurfacesAdapterFailure(t *testing.T) {
	adapter := store.NewMemoryAdapter()
	adapter.FailWith(errors.New("injected"))

	service, err := analytics.NewService(analytics.ServiceConfig{Adapter: adapter})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	month, err := calendar.ParseMonth("2025-06")
	if err != nil {
		t.Fatalf("unexpected month parse error: %v", err)
	}
	if _, err := service.Month(context.Background(), "device-1", month); !errors.Is(err, habits.ErrAdapterUnavailable) {
		t.Fatalf("expected ErrAdapterUnavailable, got %v", err)
	}
}
