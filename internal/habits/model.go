package habits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/latticehabits/lattice/backend/internal/calendar"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDeviceID indicates that a device identifier is empty or exceeds storage bounds.
	ErrInvalidDeviceID = errors.New("habits: invalid device id")
	// ErrInvalidSlotID indicates that a slot identifier is empty or exceeds storage bounds.
	ErrInvalidSlotID = errors.New("habits: invalid slot id")
	// ErrInvalidSegmentID indicates that a segment identifier is empty or exceeds storage bounds.
	ErrInvalidSegmentID = errors.New("habits: invalid segment id")
	// ErrInvalidArgument indicates that a command carried an empty or malformed field.
	ErrInvalidArgument = errors.New("habits: invalid argument")
	// ErrNotFound indicates that an operation referenced a record that does not exist.
	ErrNotFound = errors.New("habits: record not found")
	// ErrInvalidRange indicates that a timeline mutation would violate segment non-overlap.
	ErrInvalidRange = errors.New("habits: invalid segment range")
	// ErrAdapterUnavailable indicates that the persistence adapter failed to complete a round trip.
	ErrAdapterUnavailable = errors.New("habits: persistence adapter unavailable")
)

// DeviceID represents a validated device identifier.
type DeviceID string

// NewDeviceID validates raw input and returns a DeviceID.
func NewDeviceID(rawInput string) (DeviceID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDeviceID, maxIdentifierLength)
	}
	return DeviceID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DeviceID) String() string {
	return string(id)
}

// SlotID represents a validated slot identifier.
type SlotID string

// NewSlotID validates raw input and returns a SlotID.
func NewSlotID(rawInput string) (SlotID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSlotID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSlotID, maxIdentifierLength)
	}
	return SlotID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SlotID) String() string {
	return string(id)
}

// SegmentID represents a validated segment identifier.
type SegmentID string

// NewSegmentID validates raw input and returns a SegmentID.
func NewSegmentID(rawInput string) (SegmentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSegmentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSegmentID, maxIdentifierLength)
	}
	return SegmentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SegmentID) String() string {
	return string(id)
}

// Device identifies one installation. Created once at bootstrap and
// immutable afterwards except for the username.
type Device struct {
	DeviceID         string `gorm:"column:device_id;primaryKey;size:190;not null"`
	Username         string `gorm:"column:username;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Device) TableName() string {
	return "devices"
}

// Slot is a recurring time-of-day tracking row owned by a device.
// Time is an opaque HH:MM display string; Order defines display rank.
type Slot struct {
	SlotID   string `gorm:"column:slot_id;primaryKey;size:190;not null"`
	DeviceID string `gorm:"column:device_id;size:190;not null;index:idx_slots_device_order,priority:1"`
	Time     string `gorm:"column:time;size:16;not null"`
	Order    int    `gorm:"column:display_order;not null;index:idx_slots_device_order,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Slot) TableName() string {
	return "slots"
}

// HabitSegment is one named, colored occupancy of a slot over a date range.
// EndDate nil means the segment is open (still active going forward).
// Streak and LastCompletedDate are materialized projections of the entry
// history, recomputed on every toggle; they are never independently
// authoritative.
type HabitSegment struct {
	SegmentID         string  `gorm:"column:segment_id;primaryKey;size:190;not null"`
	DeviceID          string  `gorm:"column:device_id;size:190;not null;index"`
	SlotID            string  `gorm:"column:slot_id;size:190;not null;index"`
	Name              string  `gorm:"column:name;size:320;not null"`
	Color             string  `gorm:"column:color;size:32;not null"`
	StartDate         string  `gorm:"column:start_date;size:10;not null"`
	EndDate           *string `gorm:"column:end_date;size:10"`
	Streak            int     `gorm:"column:streak;not null;default:0"`
	LastCompletedDate *string `gorm:"column:last_completed_date;size:10"`
}

// TableName provides the explicit table binding for GORM.
func (HabitSegment) TableName() string {
	return "habit_segments"
}

// Start returns the segment's start date.
func (s HabitSegment) Start() (calendar.Day, error) {
	return calendar.ParseDay(s.StartDate)
}

// ActiveOn reports whether the segment's range contains the given day.
// An open segment is active on every day at or after its start.
func (s HabitSegment) ActiveOn(day calendar.Day) bool {
	start, err := calendar.ParseDay(s.StartDate)
	if err != nil {
		return false
	}
	if day.Before(start) {
		return false
	}
	if s.EndDate == nil {
		return true
	}
	end, err := calendar.ParseDay(*s.EndDate)
	if err != nil {
		return false
	}
	return !day.After(end)
}

// Open reports whether the segment has no end date.
func (s HabitSegment) Open() bool {
	return s.EndDate == nil
}

// HabitEntry records one day's completion for a segment. At most one entry
// exists per (segment_id, date); a repeat toggle updates it in place. An
// entry with Completed=false is equivalent to no entry at all.
type HabitEntry struct {
	EntryID   string `gorm:"column:entry_id;primaryKey;size:190;not null"`
	DeviceID  string `gorm:"column:device_id;size:190;not null;index"`
	SegmentID string `gorm:"column:segment_id;size:190;not null;uniqueIndex:idx_entries_segment_date,priority:1"`
	Date      string `gorm:"column:date;size:10;not null;uniqueIndex:idx_entries_segment_date,priority:2"`
	Completed bool   `gorm:"column:completed;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (HabitEntry) TableName() string {
	return "habit_entries"
}
