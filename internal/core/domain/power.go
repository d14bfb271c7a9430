package domain

import (
	"time"

	"github.com/berfenger/surplus2mqtt/pkg/sunspec"
)

// PowerSample is a single reading of the site power flow.
type PowerSample struct {
	// Power exported to the grid, >= 0
	SurplusPower float64 `json:"surplus_power"`
	// Signed grid flow. Positive = import
	GridPower float64 `json:"grid_power"`
	PVPower   float64 `json:"pv_power"`
	// Battery DC flow. Positive = discharging
	BatteryPower float64   `json:"battery_power"`
	BatterySoC   float64   `json:"battery_soc"`
	HasBattery   bool      `json:"has_battery"`
	Timestamp    time.Time `json:"timestamp"`

	// Derived by WithDerived
	LoadPower       float64 `json:"load_power"`
	SelfConsumption float64 `json:"self_consumption"`
	AutarkyRate     float64 `json:"autarky_rate"`
}

// GridImport is the power drawn from the grid, >= 0.
func (s PowerSample) GridImport() float64 {
	return max(s.GridPower, 0)
}

func (s PowerSample) BatteryCharge() float64 {
	return max(-s.BatteryPower, 0)
}

func (s PowerSample) BatteryDischarge() float64 {
	return max(s.BatteryPower, 0)
}

// WithDerived returns the sample with the house load, the part of it covered
// on site and the autarky rate (percent) filled in.
func (s PowerSample) WithDerived() PowerSample {
	s.LoadPower = max(s.PVPower+s.BatteryPower+s.GridPower, 0)
	s.SelfConsumption = max(s.LoadPower-s.GridImport(), 0)
	s.AutarkyRate = 0
	if s.LoadPower > 0 {
		s.AutarkyRate = s.SelfConsumption * 100 / s.LoadPower
	}
	return s
}

// SampleFromReadings builds a sample from the meter flow, and from the
// inverter and its storage block when they were read.
func SampleFromReadings(meter *sunspec.ACMeterPowerFlow, inverter *sunspec.InverterPowerFlow,
	storage *sunspec.StorageState, ts time.Time) PowerSample {
	sample := PowerSample{Timestamp: ts}
	if meter != nil {
		sample.GridPower = meter.CurrentPowerFlowWatt
		sample.SurplusPower = meter.CurrentExportPowerWatt
	}
	if inverter != nil {
		sample.PVPower = inverter.PVPowerWatt
	}
	if storage != nil {
		sample.HasBattery = true
		sample.BatterySoC = storage.StateOfCharge
		if inverter != nil {
			sample.BatteryPower = inverter.BatteryDCPowerFlowWatt
		}
	}
	return sample.WithDerived()
}
