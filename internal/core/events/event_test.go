package events

import (
	"testing"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerSampleToUpdateEvents(t *testing.T) {

	evs := PowerSampleToUpdateEvents(domain.PowerSample{SurplusPower: 800, GridPower: -800, PVPower: 2000})
	assert.Len(t, evs, 3)

	evs = PowerSampleToUpdateEvents(domain.PowerSample{SurplusPower: 800, HasBattery: true, BatterySoC: 55})
	require.Len(t, evs, 5)
	soc, ok := evs[4].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_BATTERY_SOC, soc.SensorId())
	assert.Equal(t, 55.0, soc.Value)
}

func TestDeviceStatusUpdateEvents(t *testing.T) {

	evs := DeviceStatusUpdateEvents([]domain.DeviceStatus{{
		DeviceRecord:   domain.DeviceRecord{Name: "Pool Pump"},
		State:          domain.DeviceStateOn,
		CurrentRuntime: 42,
	}})
	require.Len(t, evs, 3)

	sw := evs[0].(domain.SwitchSensorUpdateEvent)
	assert.Equal(t, "device_pool_pump", sw.SensorId())
	assert.True(t, sw.Value)
	assert.Equal(t, 42.0, evs[1].(domain.FloatSensorUpdateEvent).Value)
	assert.Equal(t, "on", evs[2].(domain.TextSensorUpdateEvent).Value)
}

func TestLastActionUpdateEvents(t *testing.T) {

	assert.Nil(t, LastActionUpdateEvents(nil))

	evs := LastActionUpdateEvents(map[string]string{
		"b": "switched on",
		"a": "switched off - surplus below threshold",
	})
	require.Len(t, evs, 1)
	assert.Equal(t, "a: switched off - surplus below threshold; b: switched on",
		evs[0].(domain.TextSensorUpdateEvent).Value)
}
