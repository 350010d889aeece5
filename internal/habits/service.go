package habits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/latticehabits/lattice/backend/internal/calendar"
	"go.uber.org/zap"
)

var (
	errMissingAdapter    = errors.New("persistence adapter is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingName       = fmt.Errorf("%w: segment name is required", ErrInvalidArgument)
	errMissingTime       = fmt.Errorf("%w: slot time is required", ErrInvalidArgument)
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation-scoped failure code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "habits.service.new"
	opCreateSlot    = "habits.create_slot"
	opDeleteSlot    = "habits.delete_slot"
	opOverview      = "habits.overview"
	opCreateSegment = "habits.create_segment"
	opRenameSegment = "habits.rename_segment"
	opDeleteSegment = "habits.delete_segment"
	opToggleEntry   = "habits.toggle_entry"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies required by the habit engine.
type ServiceConfig struct {
	Adapter    Adapter
	Clock      calendar.Clock
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the habit engine: slot commands, the segment timeline, entry
// toggling with streak recomputation. All state lives behind the adapter;
// the service itself is stateless and safe to share.
type Service struct {
	adapter    Adapter
	clock      calendar.Clock
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the habit engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Adapter == nil {
		return nil, newServiceError(opServiceNew, "missing_adapter", errMissingAdapter)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		adapter:    cfg.Adapter,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateSlot appends a new tracking row for the device, ranked after every
// existing slot.
func (s *Service) CreateSlot(ctx context.Context, deviceID DeviceID, timeOfDay string) (Slot, error) {
	timeOfDay = strings.TrimSpace(timeOfDay)
	if timeOfDay == "" {
		return Slot{}, newServiceError(opCreateSlot, "missing_time", errMissingTime)
	}

	slots, err := s.adapter.LoadSlots(ctx, deviceID)
	if err != nil {
		s.logError(opCreateSlot, "load_slots_failed", err, zap.String("device_id", deviceID.String()))
		return Slot{}, newServiceError(opCreateSlot, "load_slots_failed", err)
	}

	nextOrder := 0
	for _, slot := range slots {
		if slot.Order >= nextOrder {
			nextOrder = slot.Order + 1
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateSlot, "id_generation_failed", err, zap.String("device_id", deviceID.String()))
		return Slot{}, newServiceError(opCreateSlot, "id_generation_failed", err)
	}

	slot := Slot{
		SlotID:   id,
		DeviceID: deviceID.String(),
		Time:     timeOfDay,
		Order:    nextOrder,
	}
	saved, err := s.adapter.SaveSlot(ctx, slot)
	if err != nil {
		s.logError(opCreateSlot, "save_slot_failed", err, zap.String("device_id", deviceID.String()))
		return Slot{}, newServiceError(opCreateSlot, "save_slot_failed", err)
	}
	return saved, nil
}

// DeleteSlot removes a slot and cascades its segments and their entries as
// an ordered sequence of adapter calls. A failure partway through is
// surfaced with the record that failed; already-deleted records are not
// restored, and the caller should treat the state as needing a repair pass.
func (s *Service) DeleteSlot(ctx context.Context, deviceID DeviceID, slotID SlotID) error {
	slots, err := s.adapter.LoadSlots(ctx, deviceID)
	if err != nil {
		s.logError(opDeleteSlot, "load_slots_failed", err, zap.String("device_id", deviceID.String()))
		return newServiceError(opDeleteSlot, "load_slots_failed", err)
	}
	found := false
	for _, slot := range slots {
		if slot.SlotID == slotID.String() {
			found = true
			break
		}
	}
	if !found {
		return newServiceError(opDeleteSlot, "slot_not_found",
			fmt.Errorf("%w: slot %s", ErrNotFound, slotID))
	}

	segments, err := s.adapter.LoadSegments(ctx, deviceID, nil)
	if err != nil {
		s.logError(opDeleteSlot, "load_segments_failed", err, zap.String("device_id", deviceID.String()))
		return newServiceError(opDeleteSlot, "load_segments_failed", err)
	}

	for _, segment := range slotSegments(segments, slotID) {
		if err := s.adapter.DeleteSegment(ctx, deviceID, SegmentID(segment.SegmentID)); err != nil {
			s.logError(opDeleteSlot, "cascade_segment_failed", err,
				zap.String("device_id", deviceID.String()),
				zap.String("slot_id", slotID.String()),
				zap.String("segment_id", segment.SegmentID))
			return newServiceError(opDeleteSlot, "cascade_segment_failed", err)
		}
	}

	if err := s.adapter.DeleteSlot(ctx, deviceID, slotID); err != nil {
		s.logError(opDeleteSlot, "delete_slot_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("slot_id", slotID.String()))
		return newServiceError(opDeleteSlot, "delete_slot_failed", err)
	}
	return nil
}

// SegmentStatus pairs a segment with its display-facing streak projection.
type SegmentStatus struct {
	Segment         HabitSegment
	EffectiveStreak int
	NextMilestone   int
}

// SlotOverview is one tracking row with its full segment timeline.
type SlotOverview struct {
	Slot     Slot
	Segments []SegmentStatus
}

// Overview assembles the device's board: slots in display order, each with
// its segments and their effective streaks at the current date.
func (s *Service) Overview(ctx context.Context, deviceID DeviceID) ([]SlotOverview, error) {
	slots, err := s.adapter.LoadSlots(ctx, deviceID)
	if err != nil {
		s.logError(opOverview, "load_slots_failed", err, zap.String("device_id", deviceID.String()))
		return nil, newServiceError(opOverview, "load_slots_failed", err)
	}
	segments, err := s.adapter.LoadSegments(ctx, deviceID, nil)
	if err != nil {
		s.logError(opOverview, "load_segments_failed", err, zap.String("device_id", deviceID.String()))
		return nil, newServiceError(opOverview, "load_segments_failed", err)
	}

	overview := make([]SlotOverview, 0, len(slots))
	for _, slot := range slots {
		owned := slotSegments(segments, SlotID(slot.SlotID))
		statuses := make([]SegmentStatus, 0, len(owned))
		for _, segment := range owned {
			statuses = append(statuses, SegmentStatus{
				Segment:         segment,
				EffectiveStreak: s.effectiveStreakOf(segment),
				NextMilestone:   NextMilestone(segment.Streak),
			})
		}
		overview = append(overview, SlotOverview{Slot: slot, Segments: statuses})
	}
	return overview, nil
}

func (s *Service) effectiveStreakOf(segment HabitSegment) int {
	if segment.LastCompletedDate == nil {
		return 0
	}
	last, err := calendar.ParseDay(*segment.LastCompletedDate)
	if err != nil {
		return 0
	}
	return EffectiveStreak(segment.Streak, last, s.clock)
}

// CreateSegment starts a new habit occupancy of the slot. When the slot has
// an open segment starting strictly before startDate, that segment is closed
// on the preceding day; any other overlap with existing history fails with
// ErrInvalidRange.
func (s *Service) CreateSegment(ctx context.Context, deviceID DeviceID, slotID SlotID, name, color string, startDate calendar.Day) (HabitSegment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return HabitSegment{}, newServiceError(opCreateSegment, "missing_name", errMissingName)
	}

	slots, err := s.adapter.LoadSlots(ctx, deviceID)
	if err != nil {
		s.logError(opCreateSegment, "load_slots_failed", err, zap.String("device_id", deviceID.String()))
		return HabitSegment{}, newServiceError(opCreateSegment, "load_slots_failed", err)
	}
	slotExists := false
	for _, slot := range slots {
		if slot.SlotID == slotID.String() {
			slotExists = true
			break
		}
	}
	if !slotExists {
		return HabitSegment{}, newServiceError(opCreateSegment, "slot_not_found",
			fmt.Errorf("%w: slot %s", ErrNotFound, slotID))
	}

	segments, err := s.adapter.LoadSegments(ctx, deviceID, nil)
	if err != nil {
		s.logError(opCreateSegment, "load_segments_failed", err, zap.String("device_id", deviceID.String()))
		return HabitSegment{}, newServiceError(opCreateSegment, "load_segments_failed", err)
	}

	predecessor, err := planSegmentInsertion(slotSegments(segments, slotID), startDate)
	if err != nil {
		return HabitSegment{}, newServiceError(opCreateSegment, "range_conflict",
			fmt.Errorf("%w: slot %s start %s", err, slotID, startDate))
	}

	if predecessor != nil {
		closedOn := startDate.Previous().String()
		predecessor.EndDate = &closedOn
		if _, err := s.adapter.SaveSegment(ctx, *predecessor); err != nil {
			s.logError(opCreateSegment, "close_predecessor_failed", err,
				zap.String("device_id", deviceID.String()),
				zap.String("segment_id", predecessor.SegmentID))
			return HabitSegment{}, newServiceError(opCreateSegment, "close_predecessor_failed", err)
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateSegment, "id_generation_failed", err, zap.String("device_id", deviceID.String()))
		return HabitSegment{}, newServiceError(opCreateSegment, "id_generation_failed", err)
	}

	segment := HabitSegment{
		SegmentID: id,
		DeviceID:  deviceID.String(),
		SlotID:    slotID.String(),
		Name:      name,
		Color:     color,
		StartDate: startDate.String(),
	}
	saved, err := s.adapter.SaveSegment(ctx, segment)
	if err != nil {
		s.logError(opCreateSegment, "save_segment_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("slot_id", slotID.String()))
		return HabitSegment{}, newServiceError(opCreateSegment, "save_segment_failed", err)
	}
	return saved, nil
}

// RenameSegment updates display attributes in place. Timeline ranges, the
// streak cache and entries are untouched.
func (s *Service) RenameSegment(ctx context.Context, deviceID DeviceID, segmentID SegmentID, name, color string) (HabitSegment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return HabitSegment{}, newServiceError(opRenameSegment, "missing_name", errMissingName)
	}

	segment, err := s.findSegment(ctx, opRenameSegment, deviceID, segmentID)
	if err != nil {
		return HabitSegment{}, err
	}

	segment.Name = name
	segment.Color = color
	saved, err := s.adapter.SaveSegment(ctx, *segment)
	if err != nil {
		s.logError(opRenameSegment, "save_segment_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("segment_id", segmentID.String()))
		return HabitSegment{}, newServiceError(opRenameSegment, "save_segment_failed", err)
	}
	return saved, nil
}

// DeleteSegment removes the segment and its entries. The surrounding
// timeline is left as-is, so a gap may remain where the segment was.
func (s *Service) DeleteSegment(ctx context.Context, deviceID DeviceID, segmentID SegmentID) error {
	if _, err := s.findSegment(ctx, opDeleteSegment, deviceID, segmentID); err != nil {
		return err
	}
	if err := s.adapter.DeleteSegment(ctx, deviceID, segmentID); err != nil {
		s.logError(opDeleteSegment, "delete_segment_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("segment_id", segmentID.String()))
		return newServiceError(opDeleteSegment, "delete_segment_failed", err)
	}
	return nil
}

// ToggleResult reports the persisted entry alongside the freshly recomputed
// streak projection.
type ToggleResult struct {
	Entry             HabitEntry
	Segment           HabitSegment
	Streak            int
	LastCompletedDate calendar.Day
}

// ToggleEntry upserts the completion record for (segment, date) and then
// recomputes the segment's streak cache from the full entry history. The
// repeat-toggle case updates the existing entry rather than creating a
// second row for the same day.
func (s *Service) ToggleEntry(ctx context.Context, deviceID DeviceID, segmentID SegmentID, date calendar.Day, completed bool) (ToggleResult, error) {
	segment, err := s.findSegment(ctx, opToggleEntry, deviceID, segmentID)
	if err != nil {
		return ToggleResult{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opToggleEntry, "id_generation_failed", err, zap.String("device_id", deviceID.String()))
		return ToggleResult{}, newServiceError(opToggleEntry, "id_generation_failed", err)
	}

	entry := HabitEntry{
		EntryID:   id,
		DeviceID:  deviceID.String(),
		SegmentID: segmentID.String(),
		Date:      date.String(),
		Completed: completed,
	}
	saved, err := s.adapter.UpsertEntry(ctx, entry)
	if err != nil {
		s.logError(opToggleEntry, "upsert_entry_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("segment_id", segmentID.String()),
			zap.String("date", date.String()))
		return ToggleResult{}, newServiceError(opToggleEntry, "upsert_entry_failed", err)
	}

	entries, err := s.adapter.LoadEntries(ctx, deviceID, nil)
	if err != nil {
		s.logError(opToggleEntry, "load_entries_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("segment_id", segmentID.String()))
		return ToggleResult{}, newServiceError(opToggleEntry, "load_entries_failed", err)
	}
	segmentEntries := make([]HabitEntry, 0, len(entries))
	for _, candidate := range entries {
		if candidate.SegmentID == segmentID.String() {
			segmentEntries = append(segmentEntries, candidate)
		}
	}

	streak, lastCompleted := ComputeStreak(segmentEntries)
	segment.Streak = streak
	if lastCompleted.IsZero() {
		segment.LastCompletedDate = nil
	} else {
		value := lastCompleted.String()
		segment.LastCompletedDate = &value
	}

	updated, err := s.adapter.SaveSegment(ctx, *segment)
	if err != nil {
		s.logError(opToggleEntry, "save_streak_failed", err,
			zap.String("device_id", deviceID.String()),
			zap.String("segment_id", segmentID.String()))
		return ToggleResult{}, newServiceError(opToggleEntry, "save_streak_failed", err)
	}

	return ToggleResult{
		Entry:             saved,
		Segment:           updated,
		Streak:            streak,
		LastCompletedDate: lastCompleted,
	}, nil
}

func (s *Service) findSegment(ctx context.Context, operation string, deviceID DeviceID, segmentID SegmentID) (*HabitSegment, error) {
	segments, err := s.adapter.LoadSegments(ctx, deviceID, nil)
	if err != nil {
		s.logError(operation, "load_segments_failed", err, zap.String("device_id", deviceID.String()))
		return nil, newServiceError(operation, "load_segments_failed", err)
	}
	for i := range segments {
		if segments[i].SegmentID == segmentID.String() {
			return &segments[i], nil
		}
	}
	return nil, newServiceError(operation, "segment_not_found",
		fmt.Errorf("%w: segment %s", ErrNotFound, segmentID))
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("habit engine error", attrs...)
}
