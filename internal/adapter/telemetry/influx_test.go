package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fields(p *write.Point) map[string]any {
	m := map[string]any{}
	for _, f := range p.FieldList() {
		m[f.Key] = f.Value
	}
	return m
}

func tags(p *write.Point) map[string]string {
	m := map[string]string{}
	for _, t := range p.TagList() {
		m[t.Key] = t.Value
	}
	return m
}

func TestSamplePoint(t *testing.T) {

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	p := SamplePoint(domain.PowerSample{SurplusPower: 1250, PVPower: 3000, Timestamp: ts}, 800, 2)
	assert.Equal(t, MEASUREMENT_POWER_SAMPLE, p.Name())
	assert.Equal(t, ts, p.Time())
	f := fields(p)
	assert.Equal(t, 1250.0, f["surplus_power"])
	assert.Equal(t, 800.0, f["controlled_power"])
	assert.Equal(t, int64(2), f["active_devices"])
	assert.NotContains(t, f, "battery_soc")

	f = fields(SamplePoint(domain.PowerSample{PVPower: 700, GridPower: 300}.WithDerived(), 0, 0))
	assert.Equal(t, 1000.0, f["load_power"])
	assert.Equal(t, 70.0, f["autarky_rate"])

	p = SamplePoint(domain.PowerSample{HasBattery: true, BatterySoC: 23.5, BatteryPower: -572.45}, 0, 0)
	f = fields(p)
	assert.Equal(t, 23.5, f["battery_soc"])
	assert.Equal(t, -572.45, f["battery_power"])
}

func TestDeviceStatePoint(t *testing.T) {

	power := 400.0
	st := domain.DeviceStatus{
		DeviceRecord:   domain.DeviceRecord{Name: "pump", PowerConsumption: &power},
		State:          domain.DeviceStateOn,
		CurrentRuntime: 42,
		TimeAllowed:    true,
	}
	p := DeviceStatePoint(st, time.Now())
	assert.Equal(t, MEASUREMENT_DEVICE_STATE, p.Name())
	assert.Equal(t, map[string]string{"device": "pump"}, tags(p))
	f := fields(p)
	assert.Equal(t, true, f["on"])
	assert.Equal(t, "on", f["state"])
	assert.Equal(t, 400.0, f["power"])
	assert.Equal(t, int64(42), f["runtime_today"])

	st.State = domain.DeviceStateBlocked
	assert.Equal(t, 0.0, fields(DeviceStatePoint(st, time.Now()))["power"])
}

func TestConnectDisabled(t *testing.T) {

	_, err := Connect(context.Background(), Options{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrDisabled)
}
