package sunspec

import (
	"math"
	"sync"
)

// FakeACMeterReader is an in-memory smart meter. The grid flow can be changed
// while the reader is in use.
type FakeACMeterReader struct {
	mu   sync.Mutex
	flow float64
	err  error
}

func NewFakeACMeterReader() *FakeACMeterReader {
	return &FakeACMeterReader{flow: -1250}
}

// SetPowerFlow sets the grid flow in watts. Positive = import.
func (reader *FakeACMeterReader) SetPowerFlow(watts float64) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.flow = watts
}

// SetError makes every following read fail with err. nil clears it.
func (reader *FakeACMeterReader) SetError(err error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	reader.err = err
}

func (reader *FakeACMeterReader) Open() error     { return nil }
func (reader *FakeACMeterReader) Close() error    { return nil }
func (reader *FakeACMeterReader) Validate() error { return nil }

func (reader *FakeACMeterReader) GetInfo() (*ACMeterInfo, error) {
	return &ACMeterInfo{
		Manufacturer: "Fronius",
		Model:        "Smart Meter TS 100A-1",
		Version:      "1.2",
		Serial:       "00000001",
	}, nil
}

func (reader *FakeACMeterReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	if reader.err != nil {
		return nil, reader.err
	}
	return meterPowerFlow(reader.flow, 2770.34, 550.22, 50, 234.24), nil
}

// FakeInverterReader is an in-memory hybrid inverter with a battery.
type FakeInverterReader struct {
	mu      sync.Mutex
	pv      float64
	battery float64
	soc     float64
	storage bool
}

func NewFakeInverterReader() *FakeInverterReader {
	return &FakeInverterReader{pv: 920.3, battery: -572.45, soc: 23.5, storage: true}
}

// SetBattery sets the battery DC flow (positive = discharging) and state of charge.
func (inv *FakeInverterReader) SetBattery(flowWatt float64, soc float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.battery = flowWatt
	inv.soc = soc
}

func (inv *FakeInverterReader) SetStorage(present bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.storage = present
}

func (inv *FakeInverterReader) SetPV(watts float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.pv = watts
}

func (inv *FakeInverterReader) Open() error     { return nil }
func (inv *FakeInverterReader) Close() error    { return nil }
func (inv *FakeInverterReader) Validate() error { return nil }

func (inv *FakeInverterReader) GetInfo() (*InverterInfo, error) {
	hasStorage, _ := inv.HasStorage()
	return &InverterInfo{
		Manufacturer:      "Fronius",
		Model:             "Primo GEN24 4.0",
		Version:           "1.30.7-1",
		Serial:            "00000002",
		MaxRatedPowerWatt: 4000,
		HasStorage:        hasStorage,
	}, nil
}

func (inv *FakeInverterReader) GetState() (*InverterState, error) {
	return &InverterState{
		CabinetTemperature: 51.7,
		OperatingState:     InverterStatusMPPT,
		OperatingStateStr:  InverterStatusToString(InverterStatusMPPT),
	}, nil
}

func (inv *FakeInverterReader) GetPowerFlow() (*InverterPowerFlow, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	pf := &InverterPowerFlow{PVPowerWatt: inv.pv}
	if inv.storage {
		pf.BatteryDCPowerFlowWatt = inv.battery
		if inv.battery < 0 {
			pf.BatteryChargePowerWatt = math.Abs(inv.battery)
		} else {
			pf.BatteryDischargePowerWatt = inv.battery
		}
	}
	pf.ACPowerWatt = pf.PVPowerWatt + pf.BatteryDCPowerFlowWatt
	return pf, nil
}

func (inv *FakeInverterReader) HasStorage() (bool, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.storage, nil
}

func (inv *FakeInverterReader) GetStorageState() (*StorageState, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.storage {
		return nil, ErrStorageUnsupported
	}
	status := uint16(StorageChargeStatusHolding)
	switch {
	case inv.battery < 0:
		status = StorageChargeStatusCharging
	case inv.battery > 0:
		status = StorageChargeStatusDischarging
	}
	return &StorageState{
		StateOfCharge:       inv.soc,
		MaxCapacityWatt:     5260,
		CurrentCapacityWatt: uint32(math.Round(inv.soc / 100 * 5260)),
		ChargeStatus:        status,
		ChargeStatusStr:     StorageChargeStatusToString(status),
	}, nil
}
