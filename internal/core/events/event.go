package events

import (
	"fmt"
	"slices"
	"strings"

	. "github.com/berfenger/surplus2mqtt/internal/core/domain"
)

func PowerSampleToUpdateEvents(sample PowerSample) []any {
	var events []any

	// Surplus
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SURPLUS_POWER,
		},
		Value:    sample.SurplusPower,
		Decimals: 2,
	})
	// Grid
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_GRID_POWER,
		},
		Value:    sample.GridPower,
		Decimals: 2,
	})
	// PV
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PV_POWER,
		},
		Value:    sample.PVPower,
		Decimals: 2,
	})
	if sample.HasBattery {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_POWER,
			},
			Value:    sample.BatteryPower,
			Decimals: 2,
		})
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_SOC,
			},
			Value:    sample.BatterySoC,
			Decimals: 1,
		})
	}

	return events
}

func ControlledLoadUpdateEvents(controlledPower float64, activeDevices int) []any {
	var events []any

	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CONTROLLED_POWER,
		},
		Value:    controlledPower,
		Decimals: 0,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ACTIVE_DEVICES,
		},
		Value:    float64(activeDevices),
		Decimals: 0,
	})

	return events
}

// DeviceStatusUpdateEvents emits the switch state, runtime and state text of every device.
func DeviceStatusUpdateEvents(devices []DeviceStatus) []any {
	var events []any
	for _, d := range devices {
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceSwitchId(d.Name),
			},
			Value: d.State == DeviceStateOn,
		})
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceRuntimeSensorId(d.Name),
			},
			Value:    float64(d.CurrentRuntime),
			Decimals: 0,
		})
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceStateSensorId(d.Name),
			},
			Value: string(d.State),
		})
	}
	return events
}

// LastActionUpdateEvents reports a change-set as one text value, devices in name order.
func LastActionUpdateEvents(changes map[string]string) []any {
	if len(changes) == 0 {
		return nil
	}
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, changes[name])
	}
	return []any{TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LAST_ACTION,
		},
		Value: strings.Join(parts, "; "),
	}}
}
