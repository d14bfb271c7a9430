package domain

// DiscoveryDevice groups entities under one Home Assistant device.
type DiscoveryDevice struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            DiscoveryDevice
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // power, battery, duration
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device   DiscoveryDevice
	Id       string
	Name     string
	UniqueId string
	Icon     string
}
