package domain

type DeviceState string

const (
	DeviceStateOff     DeviceState = "off"
	DeviceStateOn      DeviceState = "on"
	DeviceStateBlocked DeviceState = "blocked"
)

func (s DeviceState) Valid() bool {
	switch s {
	case DeviceStateOff, DeviceStateOn, DeviceStateBlocked:
		return true
	}
	return false
}
