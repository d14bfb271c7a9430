package domain

import (
	"time"

	"github.com/berfenger/surplus2mqtt/pkg/sunspec"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_POWERFLOW    = "powerflow"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_SCHEDULER    = "scheduler"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	Inverter *sunspec.InverterInfo
	ACMeter  *sunspec.ACMeterInfo
}

type GetPowerSampleRequest struct {
	ActorRequestMixIn
}

type GetPowerSampleResponse struct {
	ActorResponseMixIn
	Sample *PowerSample
}

// SchedulePowerSampleRequest asks the scheduler to act on a fresh sample.
type SchedulePowerSampleRequest struct {
	ActorRequestMixIn
	Sample PowerSample
}

type SchedulePowerSampleResponse struct {
	ActorResponseMixIn
	Skipped bool
	Changes map[string]string
}

type GetCurrentSampleRequest struct {
	ActorRequestMixIn
}

type GetCurrentSampleResponse struct {
	ActorResponseMixIn
	Sample          *PowerSample
	ControlledPower float64
	ActiveDevices   int
}

type GetDevicesRequest struct {
	ActorRequestMixIn
}

type GetDevicesResponse struct {
	ActorResponseMixIn
	Devices []DeviceStatus
}

type GetDeviceRequest struct {
	ActorRequestMixIn
	Name string
}

type GetDeviceResponse struct {
	ActorResponseMixIn
	Device *DeviceStatus
}

type AddDeviceRequest struct {
	ActorRequestMixIn
	Record DeviceRecord
}

type AddDeviceResponse struct {
	ActorResponseMixIn
	Device *DeviceStatus
}

type RemoveDeviceRequest struct {
	ActorRequestMixIn
	Name string
}

type RemoveDeviceResponse struct {
	ActorResponseMixIn
}

type SwitchMode string

const (
	SwitchModeOn     SwitchMode = "on"
	SwitchModeOff    SwitchMode = "off"
	SwitchModeToggle SwitchMode = "toggle"
)

// SwitchDeviceRequest addresses a device by Name, or by its MQTT SwitchId when Name is empty.
type SwitchDeviceRequest struct {
	ActorRequestMixIn
	Name     string
	SwitchId string
	Mode     SwitchMode
}

type SwitchDeviceResponse struct {
	ActorResponseMixIn
	Name   string
	Action string
	State  DeviceState
}

type SaveDevicesRequest struct {
	ActorRequestMixIn
}

type SaveDevicesResponse struct {
	ActorResponseMixIn
	Count int
}

type DailyResetRequest struct {
	ActorRequestMixIn
}

type DailyResetResponse struct {
	ActorResponseMixIn
}

type GetEventsRequest struct {
	ActorRequestMixIn
	Limit int
}

type GetEventsResponse struct {
	ActorResponseMixIn
	Events []DeviceEvent
}

// GetDailyStatsRequest asks for the energy balance of Day, or of the running
// day when Day is zero.
type GetDailyStatsRequest struct {
	ActorRequestMixIn
	Day time.Time
}

type GetDailyStatsResponse struct {
	ActorResponseMixIn
	Stats *DailyStats
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

// PublishDiscoveryRequest publishes discovery configs, and clears the
// retained configs of the Removed entities.
type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors         []GenericSensor
	Switches        []GenericSwitch
	RemovedSensors  []GenericSensor
	RemovedSwitches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
