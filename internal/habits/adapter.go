package habits

import (
	"context"

	"github.com/latticehabits/lattice/backend/internal/calendar"
)

// MonthRange scopes a load to records intersecting [First, Last].
type MonthRange struct {
	First calendar.Day
	Last  calendar.Day
}

// RangeForMonth builds the range covering one calendar month.
func RangeForMonth(month calendar.Month) MonthRange {
	first, last := month.Bounds()
	return MonthRange{First: first, Last: last}
}

// Adapter is the persistence capability the engine consumes. Implementations
// own storage technology, transactions and any retry or timeout policy; the
// engine only issues load/save round trips and surfaces their failures.
//
// Load operations with a nil MonthRange return the device's full history.
// Month-scoped segment loads return every segment whose range intersects the
// window, including open segments that started before it.
type Adapter interface {
	LoadSlots(ctx context.Context, deviceID DeviceID) ([]Slot, error)
	SaveSlot(ctx context.Context, slot Slot) (Slot, error)
	ReorderSlots(ctx context.Context, deviceID DeviceID, orderedIDs []SlotID) error
	// DeleteSlot removes only the slot row; the engine cascades the slot's
	// segments beforehand and reports a failed step as an inconsistency.
	DeleteSlot(ctx context.Context, deviceID DeviceID, slotID SlotID) error

	LoadSegments(ctx context.Context, deviceID DeviceID, window *MonthRange) ([]HabitSegment, error)
	SaveSegment(ctx context.Context, segment HabitSegment) (HabitSegment, error)
	// DeleteSegment removes the segment together with its owned entries.
	DeleteSegment(ctx context.Context, deviceID DeviceID, segmentID SegmentID) error

	LoadEntries(ctx context.Context, deviceID DeviceID, window *MonthRange) ([]HabitEntry, error)
	UpsertEntry(ctx context.Context, entry HabitEntry) (HabitEntry, error)
}
