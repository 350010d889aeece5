package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/latticehabits/lattice/backend/internal/habits"
	"gorm.io/gorm"
)

// ErrInvalidDevice indicates the bootstrap request lacked a usable device id.
var ErrInvalidDevice = errors.New("devices: invalid device")

const defaultUsername = "tracker"

// ServiceConfig describes the dependencies required for device bootstrap.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service creates device records on first contact and returns them verbatim
// afterwards. Bootstrap is idempotent per device id.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the device service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("devices: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// Bootstrap returns the device record for the id, creating it when the
// installation has not been seen before. The username is only applied on
// first creation; an existing device keeps its stored name.
func (s *Service) Bootstrap(ctx context.Context, deviceID habits.DeviceID, username string) (habits.Device, error) {
	if strings.TrimSpace(deviceID.String()) == "" {
		return habits.Device{}, ErrInvalidDevice
	}

	if cached, ok := s.cache.Load(deviceID.String()); ok {
		if device, ok := cached.(habits.Device); ok {
			return device, nil
		}
	}

	var device habits.Device
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID.String()).
		First(&device).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		name := strings.TrimSpace(username)
		if name == "" {
			name = defaultUsername
		}
		device = habits.Device{
			DeviceID:         deviceID.String(),
			Username:         name,
			CreatedAtSeconds: s.now().UTC().Unix(),
		}
		if err := s.db.WithContext(ctx).Create(&device).Error; err != nil {
			return habits.Device{}, err
		}
	} else if err != nil {
		return habits.Device{}, err
	}

	s.cache.Store(deviceID.String(), device)
	return device, nil
}
