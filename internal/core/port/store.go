package port

import (
	"context"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
)

type DeviceSource interface {
	LoadDevices() ([]domain.DeviceRecord, error)
}

type DeviceSink interface {
	SaveDevices(records []domain.DeviceRecord) error
}

type DeviceStore interface {
	DeviceSource
	DeviceSink
}

// EventRecorder keeps the switching history and the daily energy balance.
type EventRecorder interface {
	RecordChanges(ctx context.Context, changes map[string]string, states map[string]domain.DeviceState, sample domain.PowerSample, ts time.Time) error
	RecordDailySummary(ctx context.Context, day time.Time, runtimes map[string]int) error
	RecentEvents(ctx context.Context, limit int) ([]domain.DeviceEvent, error)
	RecordDailyStats(ctx context.Context, stats *domain.DailyStats) error
	DailyStats(ctx context.Context, day time.Time) (*domain.DailyStats, error)
	Close() error
}

type TelemetrySink interface {
	WriteSample(sample domain.PowerSample, controlledPower float64, activeDevices int)
	WriteDeviceStates(devices []domain.DeviceStatus, ts time.Time)
	Close()
}
