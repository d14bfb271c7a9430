package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/surplus2mqtt/pkg/sunspec"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_ID_SURPLUS_POWER      = "surplus_power"
	SENSOR_ID_GRID_POWER         = "grid_power"
	SENSOR_ID_PV_POWER           = "pv_power"
	SENSOR_ID_BATTERY_POWER      = "battery_power"
	SENSOR_ID_BATTERY_SOC        = "battery_soc"
	SENSOR_ID_CONTROLLED_POWER   = "controlled_power"
	SENSOR_ID_ACTIVE_DEVICES     = "active_devices"
	SENSOR_ID_LAST_ACTION        = "last_action"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_BATTERY         = "battery"
	DEVICE_CLASS_DURATION        = "duration"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

const DEVICE_SWITCH_ID_PREFIX = "device_"

var nonIdChars = regexp.MustCompile("[^a-z0-9_]+")

// DeviceSwitchId maps a device name to the id used in MQTT topics.
func DeviceSwitchId(name string) string {
	return DEVICE_SWITCH_ID_PREFIX + strings.Trim(nonIdChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func DeviceRuntimeSensorId(name string) string {
	return DeviceSwitchId(name) + "_runtime"
}

func DeviceStateSensorId(name string) string {
	return DeviceSwitchId(name) + "_state"
}

func BridgeDevice(baseTopic string) DiscoveryDevice {
	return DiscoveryDevice{
		Id:           fmt.Sprintf("surplus_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Surplus2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Surplus2MQTT %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(info *sunspec.InverterInfo) DiscoveryDevice {
	return DiscoveryDevice{
		Id:           fmt.Sprintf("sur_inverter_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device DiscoveryDevice) DiscoveryDevice {
	return DiscoveryDevice{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice DiscoveryDevice) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	// Controlled power
	sensors = append(sensors, powerSensor(IdDevice(bridgeDevice), SENSOR_ID_CONTROLLED_POWER, "Controlled power", "mdi:power-plug"))

	// Active devices
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(bridgeDevice),
		Id:         SENSOR_ID_ACTIVE_DEVICES,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Active devices",
		StateClass: STATE_CLASS_MEASUREMENT,
		Icon:       "mdi:counter",
		UniqueId:   uniqueId(bridgeDevice.Id, SENSOR_ID_ACTIVE_DEVICES),
	})

	// Last action
	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(bridgeDevice),
		Id:             SENSOR_ID_LAST_ACTION,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Last action",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:history",
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_LAST_ACTION),
	})

	return sensors
}

func PowerFlowSensors(device DiscoveryDevice, hasBattery bool) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, powerSensor(device, SENSOR_ID_SURPLUS_POWER, "Surplus power", "mdi:solar-power-variant"))
	sensors = append(sensors, powerSensor(IdDevice(device), SENSOR_ID_GRID_POWER, "Grid power", "mdi:transmission-tower"))
	sensors = append(sensors, powerSensor(IdDevice(device), SENSOR_ID_PV_POWER, "PV power", "mdi:solar-power"))

	if hasBattery {
		sensors = append(sensors, powerSensor(IdDevice(device), SENSOR_ID_BATTERY_POWER, "Battery power", ""))
		sensors = append(sensors, GenericSensor{
			Device:            IdDevice(device),
			Id:                SENSOR_ID_BATTERY_SOC,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Battery SoC",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_BATTERY,
			UnitOfMeasurement: "%",
			UniqueId:          uniqueId(device.Id, SENSOR_ID_BATTERY_SOC),
		})
	}

	return sensors
}

func ControlledDeviceSwitches(bridgeDevice DiscoveryDevice, names []string) []GenericSwitch {

	var switches []GenericSwitch

	for _, name := range names {
		id := DeviceSwitchId(name)
		switches = append(switches, GenericSwitch{
			Device:   IdDevice(bridgeDevice),
			Id:       id,
			Name:     name,
			UniqueId: uniqueId(bridgeDevice.Id, id),
			Icon:     "mdi:power-socket-eu",
		})
	}

	return switches
}

func ControlledDeviceSensors(bridgeDevice DiscoveryDevice, names []string) []GenericSensor {

	var sensors []GenericSensor

	for _, name := range names {
		runtimeId := DeviceRuntimeSensorId(name)
		sensors = append(sensors, GenericSensor{
			Device:            IdDevice(bridgeDevice),
			Id:                runtimeId,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("%s runtime today", name),
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_DURATION,
			UnitOfMeasurement: "min",
			UniqueId:          uniqueId(bridgeDevice.Id, runtimeId),
		})
		stateId := DeviceStateSensorId(name)
		sensors = append(sensors, GenericSensor{
			Device:           IdDevice(bridgeDevice),
			Id:               stateId,
			SensorType:       SENSOR_TYPE_SENSOR,
			Name:             fmt.Sprintf("%s state", name),
			EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
			EnabledByDefault: optionalBool(false),
			UniqueId:         uniqueId(bridgeDevice.Id, stateId),
		})
	}

	return sensors
}

func powerSensor(device DiscoveryDevice, id, name, icon string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              icon,
		UniqueId:          uniqueId(device.Id, id),
	}
}

func uniqueId(deviceId string, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[:8]
}

func optionalBool(value bool) *bool {
	return &value
}
