package hardware

import "github.com/berfenger/surplus2mqtt/internal/core/port"

const (
	TypeNone = "none"
	TypeMQTT = "mqtt"
)

// NullAdapter is used when no hardware backend is configured. Every device
// is available and every command succeeds, so the scheduler runs unchanged.
type NullAdapter struct{}

var _ port.HardwareAdapter = NullAdapter{}

func NewNullAdapter() NullAdapter {
	return NullAdapter{}
}

func (NullAdapter) Connect() bool                 { return true }
func (NullAdapter) Disconnect()                   {}
func (NullAdapter) SwitchOn(string) bool          { return true }
func (NullAdapter) SwitchOff(string) bool         { return true }
func (NullAdapter) GetState(string) *bool         { return nil }
func (NullAdapter) ListDevices() []string         { return []string{} }
func (NullAdapter) IsDeviceAvailable(string) bool { return true }
func (NullAdapter) InterfaceType() string         { return TypeNone }
func (NullAdapter) Connected() bool               { return true }
