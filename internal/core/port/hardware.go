package port

// HardwareAdapter switches physical devices and reports their live state.
// Implementations must be safe to call from the scheduler actor only.
type HardwareAdapter interface {
	Connect() bool
	Disconnect()
	SwitchOn(deviceName string) bool
	SwitchOff(deviceName string) bool
	// GetState returns nil when the state is unknown.
	GetState(deviceName string) *bool
	ListDevices() []string
	IsDeviceAvailable(deviceName string) bool
	InterfaceType() string
	Connected() bool
}
