package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/latticehabits/lattice/backend/internal/habits"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("store: database handle is required")

// GormAdapter implements the engine's persistence capability on a GORM
// handle. Driver failures surface as habits.ErrAdapterUnavailable so the
// engine can report them without guessing a fallback.
type GormAdapter struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormAdapter constructs the adapter.
func NewGormAdapter(db *gorm.DB, logger *zap.Logger) (*GormAdapter, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormAdapter{db: db, logger: logger}, nil
}

func unavailable(operation string, cause error) error {
	return fmt.Errorf("store.%s: %w: %v", operation, habits.ErrAdapterUnavailable, cause)
}

// LoadSlots returns the device's slots ordered by display rank.
func (a *GormAdapter) LoadSlots(ctx context.Context, deviceID habits.DeviceID) ([]habits.Slot, error) {
	var slots []habits.Slot
	err := a.db.WithContext(ctx).
		Where("device_id = ?", deviceID.String()).
		Order("display_order ASC").
		Find(&slots).Error
	if err != nil {
		a.logger.Error("slot load failed", zap.String("device_id", deviceID.String()), zap.Error(err))
		return nil, unavailable("load_slots", err)
	}
	return slots, nil
}

// SaveSlot creates or updates a slot row.
func (a *GormAdapter) SaveSlot(ctx context.Context, slot habits.Slot) (habits.Slot, error) {
	if err := a.db.WithContext(ctx).Save(&slot).Error; err != nil {
		a.logger.Error("slot save failed", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return habits.Slot{}, unavailable("save_slot", err)
	}
	return slot, nil
}

// ReorderSlots renumbers the device's slots to match the requested order.
// Ids that do not belong to the device fail the whole command.
func (a *GormAdapter) ReorderSlots(ctx context.Context, deviceID habits.DeviceID, orderedIDs []habits.SlotID) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, slotID := range orderedIDs {
			result := tx.Model(&habits.Slot{}).
				Where("device_id = ? AND slot_id = ?", deviceID.String(), slotID.String()).
				Update("display_order", position)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: slot %s", habits.ErrNotFound, slotID)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, habits.ErrNotFound) {
			return err
		}
		a.logger.Error("slot reorder failed", zap.String("device_id", deviceID.String()), zap.Error(err))
		return unavailable("reorder_slots", err)
	}
	return nil
}

// DeleteSlot removes a single slot row.
func (a *GormAdapter) DeleteSlot(ctx context.Context, deviceID habits.DeviceID, slotID habits.SlotID) error {
	result := a.db.WithContext(ctx).
		Where("device_id = ? AND slot_id = ?", deviceID.String(), slotID.String()).
		Delete(&habits.Slot{})
	if result.Error != nil {
		a.logger.Error("slot delete failed", zap.String("slot_id", slotID.String()), zap.Error(result.Error))
		return unavailable("delete_slot", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: slot %s", habits.ErrNotFound, slotID)
	}
	return nil
}

// LoadSegments returns the device's segments, optionally narrowed to those
// whose range intersects the window. Canonical YYYY-MM-DD strings order
// lexicographically, so the range test runs in SQL.
func (a *GormAdapter) LoadSegments(ctx context.Context, deviceID habits.DeviceID, window *habits.MonthRange) ([]habits.HabitSegment, error) {
	query := a.db.WithContext(ctx).
		Where("device_id = ?", deviceID.String())
	if window != nil {
		query = query.
			Where("start_date <= ?", window.Last.String()).
			Where("end_date IS NULL OR end_date >= ?", window.First.String())
	}

	var segments []habits.HabitSegment
	if err := query.Order("start_date ASC").Find(&segments).Error; err != nil {
		a.logger.Error("segment load failed", zap.String("device_id", deviceID.String()), zap.Error(err))
		return nil, unavailable("load_segments", err)
	}
	return segments, nil
}

// SaveSegment creates or updates a segment row.
func (a *GormAdapter) SaveSegment(ctx context.Context, segment habits.HabitSegment) (habits.HabitSegment, error) {
	if err := a.db.WithContext(ctx).Save(&segment).Error; err != nil {
		a.logger.Error("segment save failed", zap.String("segment_id", segment.SegmentID), zap.Error(err))
		return habits.HabitSegment{}, unavailable("save_segment", err)
	}
	return segment, nil
}

// DeleteSegment removes the segment and its owned entries in one
// transaction, so a failed step never leaves orphaned entries visible.
func (a *GormAdapter) DeleteSegment(ctx context.Context, deviceID habits.DeviceID, segmentID habits.SegmentID) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("device_id = ? AND segment_id = ?", deviceID.String(), segmentID.String()).
			Delete(&habits.HabitEntry{}).Error; err != nil {
			return err
		}
		result := tx.
			Where("device_id = ? AND segment_id = ?", deviceID.String(), segmentID.String()).
			Delete(&habits.HabitSegment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: segment %s", habits.ErrNotFound, segmentID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, habits.ErrNotFound) {
			return err
		}
		a.logger.Error("segment delete failed", zap.String("segment_id", segmentID.String()), zap.Error(err))
		return unavailable("delete_segment", err)
	}
	return nil
}

// LoadEntries returns the device's entries, optionally narrowed to dates
// within the window, ascending by date.
func (a *GormAdapter) LoadEntries(ctx context.Context, deviceID habits.DeviceID, window *habits.MonthRange) ([]habits.HabitEntry, error) {
	query := a.db.WithContext(ctx).
		Where("device_id = ?", deviceID.String())
	if window != nil {
		query = query.Where("date BETWEEN ? AND ?", window.First.String(), window.Last.String())
	}

	var entries []habits.HabitEntry
	if err := query.Order("date ASC").Find(&entries).Error; err != nil {
		a.logger.Error("entry load failed", zap.String("device_id", deviceID.String()), zap.Error(err))
		return nil, unavailable("load_entries", err)
	}
	return entries, nil
}

// UpsertEntry writes the completion record for (segment, date). An existing
// row for the key is updated in place, keeping its id; only then is a new
// row created, so a toggle can never duplicate a day.
func (a *GormAdapter) UpsertEntry(ctx context.Context, entry habits.HabitEntry) (habits.HabitEntry, error) {
	var persisted habits.HabitEntry
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing habits.HabitEntry
		err := tx.
			Where("segment_id = ? AND date = ?", entry.SegmentID, entry.Date).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			persisted = entry
			return nil
		}
		if err != nil {
			return err
		}
		existing.Completed = entry.Completed
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		persisted = existing
		return nil
	})
	if err != nil {
		a.logger.Error("entry upsert failed",
			zap.String("segment_id", entry.SegmentID),
			zap.String("date", entry.Date),
			zap.Error(err))
		return habits.HabitEntry{}, unavailable("upsert_entry", err)
	}
	return persisted, nil
}
