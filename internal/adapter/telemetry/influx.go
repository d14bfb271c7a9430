package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	MEASUREMENT_POWER_SAMPLE = "power_sample"
	MEASUREMENT_DEVICE_STATE = "device_state"

	connectTimeout = 10 * time.Second
)

var (
	ErrDisabled         = errors.New("influxdb: disabled")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)

type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// BatchSize points per write, FlushInterval in seconds.
	BatchSize     uint
	FlushInterval uint
}

// InfluxSink batches samples and device states into InfluxDB. Writes are
// non-blocking; failures are logged from the write API error channel.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *zap.Logger
}

var _ port.TelemetrySink = (*InfluxSink)(nil)

func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*InfluxSink, error) {
	if opts.URL == "" {
		return nil, ErrDisabled
	}
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushInterval*1000))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	s := &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(opts.Org, opts.Bucket),
		logger:   logger,
	}
	go s.handleWriteErrors(s.writeAPI.Errors())
	logger.Info("telemetry: connected to influxdb", zap.String("url", opts.URL), zap.String("bucket", opts.Bucket))
	return s, nil
}

func (s *InfluxSink) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		s.logger.Warn("telemetry: write failed", zap.Error(err))
	}
}

func (s *InfluxSink) WriteSample(sample domain.PowerSample, controlledPower float64, activeDevices int) {
	s.writeAPI.WritePoint(SamplePoint(sample, controlledPower, activeDevices))
}

func (s *InfluxSink) WriteDeviceStates(devices []domain.DeviceStatus, ts time.Time) {
	for _, d := range devices {
		s.writeAPI.WritePoint(DeviceStatePoint(d, ts))
	}
}

func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

func SamplePoint(sample domain.PowerSample, controlledPower float64, activeDevices int) *write.Point {
	fields := map[string]any{
		"surplus_power":    sample.SurplusPower,
		"grid_power":       sample.GridPower,
		"pv_power":         sample.PVPower,
		"load_power":       sample.LoadPower,
		"self_consumption": sample.SelfConsumption,
		"autarky_rate":     sample.AutarkyRate,
		"controlled_power": controlledPower,
		"active_devices":   activeDevices,
	}
	if sample.HasBattery {
		fields["battery_power"] = sample.BatteryPower
		fields["battery_soc"] = sample.BatterySoC
	}
	return write.NewPoint(MEASUREMENT_POWER_SAMPLE, map[string]string{}, fields, sample.Timestamp)
}

func DeviceStatePoint(d domain.DeviceStatus, ts time.Time) *write.Point {
	on := d.State == domain.DeviceStateOn
	power := 0.0
	if on && d.PowerConsumption != nil {
		power = *d.PowerConsumption
	}
	return write.NewPoint(MEASUREMENT_DEVICE_STATE,
		map[string]string{"device": d.Name},
		map[string]any{
			"on":            on,
			"state":         string(d.State),
			"power":         power,
			"runtime_today": d.CurrentRuntime,
			"time_allowed":  d.TimeAllowed,
		},
		ts)
}
