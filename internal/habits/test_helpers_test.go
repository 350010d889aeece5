package habits_test

import (
	"context"
	"testing"

	"github.com/latticehabits/lattice/backend/internal/calendar"
	"github.com/latticehabits/lattice/backend/internal/habits"
	"github.com/latticehabits/lattice/backend/internal/store"
)

const testDeviceID = habits.DeviceID("device-1")

func mustDay(t *testing.T, value string) calendar.Day {
	t.Helper()
	day, err := calendar.ParseDay(value)
	if err != nil {
		t.Fatalf("unexpected day parse error: %v", err)
	}
	return day
}

func newTestService(t *testing.T, today string) (*habits.Service, *store.MemoryAdapter) {
	t.Helper()
	adapter := store.NewMemoryAdapter()
	service, err := habits.NewService(habits.ServiceConfig{
		Adapter:    adapter,
		Clock:      calendar.FixedClock{Day: mustDay(t, today)},
		IDProvider: habits.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service, adapter
}

func mustCreateSlot(t *testing.T, service *habits.Service, timeOfDay string) habits.Slot {
	t.Helper()
	slot, err := service.CreateSlot(context.Background(), testDeviceID, timeOfDay)
	if err != nil {
		t.Fatalf("unexpected create slot error: %v", err)
	}
	return slot
}

func mustCreateSegment(t *testing.T, service *habits.Service, slotID, name, start string) habits.HabitSegment {
	t.Helper()
	segment, err := service.CreateSegment(context.Background(), testDeviceID, habits.SlotID(slotID), name, "#10b981", mustDay(t, start))
	if err != nil {
		t.Fatalf("unexpected create segment error: %v", err)
	}
	return segment
}

func mustToggle(t *testing.T, service *habits.Service, segmentID, date string, completed bool) habits.ToggleResult {
	t.Helper()
	result, err := service.ToggleEntry(context.Background(), testDeviceID, habits.SegmentID(segmentID), mustDay(t, date), completed)
	if err != nil {
		t.Fatalf("unexpected toggle error: %v", err)
	}
	return result
}
