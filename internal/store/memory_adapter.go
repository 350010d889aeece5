package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/latticehabits/lattice/backend/internal/habits"
)

// MemoryAdapter is the in-memory reference implementation of the engine's
// persistence capability. It backs tests and mirrors the GORM adapter's
// semantics, including the (segment, date) upsert key and window filters.
type MemoryAdapter struct {
	mu       sync.Mutex
	slots    map[string]habits.Slot
	segments map[string]habits.HabitSegment
	entries  map[string]habits.HabitEntry
	failWith error
}

// NewMemoryAdapter constructs an empty adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		slots:    make(map[string]habits.Slot),
		segments: make(map[string]habits.HabitSegment),
		entries:  make(map[string]habits.HabitEntry),
	}
}

// FailWith makes every subsequent operation return the given error until
// cleared with FailWith(nil). Used to exercise adapter-failure paths.
func (a *MemoryAdapter) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failWith = err
}

func (a *MemoryAdapter) failing() error {
	if a.failWith != nil {
		return fmt.Errorf("%w: %v", habits.ErrAdapterUnavailable, a.failWith)
	}
	return nil
}

// LoadSlots returns the device's slots ordered by display rank.
func (a *MemoryAdapter) LoadSlots(_ context.Context, deviceID habits.DeviceID) ([]habits.Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return nil, err
	}
	slots := make([]habits.Slot, 0, len(a.slots))
	for _, slot := range a.slots {
		if slot.DeviceID == deviceID.String() {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Order != slots[j].Order {
			return slots[i].Order < slots[j].Order
		}
		return slots[i].SlotID < slots[j].SlotID
	})
	return slots, nil
}

// SaveSlot creates or updates a slot.
func (a *MemoryAdapter) SaveSlot(_ context.Context, slot habits.Slot) (habits.Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return habits.Slot{}, err
	}
	a.slots[slot.SlotID] = slot
	return slot, nil
}

// ReorderSlots renumbers the device's slots to match the requested order.
func (a *MemoryAdapter) ReorderSlots(_ context.Context, deviceID habits.DeviceID, orderedIDs []habits.SlotID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return err
	}
	for _, slotID := range orderedIDs {
		slot, ok := a.slots[slotID.String()]
		if !ok || slot.DeviceID != deviceID.String() {
			return fmt.Errorf("%w: slot %s", habits.ErrNotFound, slotID)
		}
	}
	for position, slotID := range orderedIDs {
		slot := a.slots[slotID.String()]
		slot.Order = position
		a.slots[slotID.String()] = slot
	}
	return nil
}

// DeleteSlot removes a single slot.
func (a *MemoryAdapter) DeleteSlot(_ context.Context, deviceID habits.DeviceID, slotID habits.SlotID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return err
	}
	slot, ok := a.slots[slotID.String()]
	if !ok || slot.DeviceID != deviceID.String() {
		return fmt.Errorf("%w: slot %s", habits.ErrNotFound, slotID)
	}
	delete(a.slots, slotID.String())
	return nil
}

// LoadSegments returns the device's segments, optionally window-scoped,
// ascending by start date.
func (a *MemoryAdapter) LoadSegments(_ context.Context, deviceID habits.DeviceID, window *habits.MonthRange) ([]habits.HabitSegment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return nil, err
	}
	segments := make([]habits.HabitSegment, 0, len(a.segments))
	for _, segment := range a.segments {
		if segment.DeviceID != deviceID.String() {
			continue
		}
		if window != nil && !segmentIntersects(segment, *window) {
			continue
		}
		segments = append(segments, segment)
	}
	sort.Slice(segments, func(i, j int) bool {
		if segments[i].StartDate != segments[j].StartDate {
			return segments[i].StartDate < segments[j].StartDate
		}
		return segments[i].SegmentID < segments[j].SegmentID
	})
	return segments, nil
}

func segmentIntersects(segment habits.HabitSegment, window habits.MonthRange) bool {
	if segment.StartDate > window.Last.String() {
		return false
	}
	if segment.EndDate != nil && *segment.EndDate < window.First.String() {
		return false
	}
	return true
}

// SaveSegment creates or updates a segment.
func (a *MemoryAdapter) SaveSegment(_ context.Context, segment habits.HabitSegment) (habits.HabitSegment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return habits.HabitSegment{}, err
	}
	a.segments[segment.SegmentID] = segment
	return segment, nil
}

// DeleteSegment removes the segment together with its owned entries.
func (a *MemoryAdapter) DeleteSegment(_ context.Context, deviceID habits.DeviceID, segmentID habits.SegmentID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return err
	}
	segment, ok := a.segments[segmentID.String()]
	if !ok || segment.DeviceID != deviceID.String() {
		return fmt.Errorf("%w: segment %s", habits.ErrNotFound, segmentID)
	}
	delete(a.segments, segmentID.String())
	for entryID, entry := range a.entries {
		if entry.SegmentID == segmentID.String() {
			delete(a.entries, entryID)
		}
	}
	return nil
}

// LoadEntries returns the device's entries, optionally window-scoped,
// ascending by date.
func (a *MemoryAdapter) LoadEntries(_ context.Context, deviceID habits.DeviceID, window *habits.MonthRange) ([]habits.HabitEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return nil, err
	}
	entries := make([]habits.HabitEntry, 0, len(a.entries))
	for _, entry := range a.entries {
		if entry.DeviceID != deviceID.String() {
			continue
		}
		if window != nil && (entry.Date < window.First.String() || entry.Date > window.Last.String()) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].EntryID < entries[j].EntryID
	})
	return entries, nil
}

// UpsertEntry writes the completion record for (segment, date), updating an
// existing row in place.
func (a *MemoryAdapter) UpsertEntry(_ context.Context, entry habits.HabitEntry) (habits.HabitEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failing(); err != nil {
		return habits.HabitEntry{}, err
	}
	for entryID, existing := range a.entries {
		if existing.SegmentID == entry.SegmentID && existing.Date == entry.Date {
			existing.Completed = entry.Completed
			a.entries[entryID] = existing
			return existing, nil
		}
	}
	a.entries[entry.EntryID] = entry
	return entry, nil
}
