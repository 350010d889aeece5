package database

import (
	"errors"
	"time"

	"github.com/latticehabits/lattice/backend/internal/habits"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillStreakCaches = "2026-07-18_backfill_segment_streak_caches"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillStreakCaches, apply: backfillSegmentStreakCaches},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillSegmentStreakCaches re-derives every segment's streak columns from
// its entry history. The cache is a materialized view of the entries, so
// rows written before the cache existed, or drifted by interrupted toggles,
// are repaired here.
func backfillSegmentStreakCaches(db *gorm.DB) error {
	var segments []habits.HabitSegment
	if err := db.Find(&segments).Error; err != nil {
		return err
	}

	for _, segment := range segments {
		var entries []habits.HabitEntry
		if err := db.Where("segment_id = ?", segment.SegmentID).Find(&entries).Error; err != nil {
			return err
		}

		streak, lastCompleted := habits.ComputeStreak(entries)
		var lastValue *string
		if !lastCompleted.IsZero() {
			encoded := lastCompleted.String()
			lastValue = &encoded
		}

		sameLast := (segment.LastCompletedDate == nil && lastValue == nil) ||
			(segment.LastCompletedDate != nil && lastValue != nil && *segment.LastCompletedDate == *lastValue)
		if segment.Streak == streak && sameLast {
			continue
		}

		err := db.Model(&habits.HabitSegment{}).
			Where("segment_id = ?", segment.SegmentID).
			Updates(map[string]interface{}{
				"streak":              streak,
				"last_completed_date": lastValue,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
