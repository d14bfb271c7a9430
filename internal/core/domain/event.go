package domain

import (
	"fmt"
	"time"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// DeviceChangesEvent carries the change-set of one scheduler run.
type DeviceChangesEvent struct {
	Changes   map[string]string
	Sample    PowerSample
	Timestamp time.Time
}

// DeviceRosterChangedEvent is published when devices are added, removed or reloaded.
type DeviceRosterChangedEvent struct {
	Devices []string
}

// DeviceEvent is one entry of the switching history.
type DeviceEvent struct {
	Timestamp    time.Time   `json:"timestamp"`
	Device       string      `json:"device"`
	Action       string      `json:"action"`
	State        DeviceState `json:"state"`
	SurplusPower float64     `json:"surplus_power"`
}
