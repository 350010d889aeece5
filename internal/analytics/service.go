package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/latticehabits/lattice/backend/internal/calendar"
	"github.com/latticehabits/lattice/backend/internal/habits"
	"go.uber.org/zap"
)

var errMissingAdapter = errors.New("persistence adapter is required")

const (
	opServiceNew = "analytics.service.new"
	opMonth      = "analytics.month"
)

// ServiceConfig describes the dependencies for month queries.
type ServiceConfig struct {
	Adapter habits.Adapter
	Logger  *zap.Logger
}

// Service loads a device's month-scoped records and hands them to the pure
// aggregator. All computation happens over the loaded snapshot; the adapter
// round trips are the only I/O.
type Service struct {
	adapter habits.Adapter
	logger  *zap.Logger
}

// NewService constructs the analytics query service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("%s: %w", opServiceNew, errMissingAdapter)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{adapter: cfg.Adapter, logger: logger}, nil
}

// Month produces the device's analytics snapshot for one calendar month.
func (s *Service) Month(ctx context.Context, deviceID habits.DeviceID, month calendar.Month) (Snapshot, error) {
	window := habits.RangeForMonth(month)

	segments, err := s.adapter.LoadSegments(ctx, deviceID, &window)
	if err != nil {
		s.logger.Error("analytics segment load failed",
			zap.String("operation", opMonth),
			zap.String("device_id", deviceID.String()),
			zap.String("month", month.String()),
			zap.Error(err))
		return Snapshot{}, fmt.Errorf("%s: load segments: %w", opMonth, err)
	}

	entries, err := s.adapter.LoadEntries(ctx, deviceID, &window)
	if err != nil {
		s.logger.Error("analytics entry load failed",
			zap.String("operation", opMonth),
			zap.String("device_id", deviceID.String()),
			zap.String("month", month.String()),
			zap.Error(err))
		return Snapshot{}, fmt.Errorf("%s: load entries: %w", opMonth, err)
	}

	return MonthlySnapshot(month, segments, entries), nil
}
