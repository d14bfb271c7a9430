package sunspec

import "fmt"

const (
	StorageChargeStatusOff         = 1
	StorageChargeStatusEmpty       = 2
	StorageChargeStatusDischarging = 3
	StorageChargeStatusCharging    = 4
	StorageChargeStatusFull        = 5
	StorageChargeStatusHolding     = 6
	StorageChargeStatusTest        = 7
)

var storageChargeStatusNames = map[uint16]string{
	StorageChargeStatusOff:         "off",
	StorageChargeStatusEmpty:       "empty",
	StorageChargeStatusDischarging: "discharging",
	StorageChargeStatusCharging:    "charging",
	StorageChargeStatusFull:        "full",
	StorageChargeStatusHolding:     "holding",
	StorageChargeStatusTest:        "test",
}

func StorageChargeStatusToString(status uint16) string {
	if name, ok := storageChargeStatusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", status)
}

const (
	InverterStatusOff          = 1
	InverterStatusSleeping     = 2
	InverterStatusStarting     = 3
	InverterStatusMPPT         = 4
	InverterStatusThrottled    = 5
	InverterStatusShuttingDown = 6
	InverterStatusFault        = 7
	InverterStatusStandby      = 8
)

var inverterStatusNames = map[uint16]string{
	InverterStatusOff:          "off",
	InverterStatusSleeping:     "sleeping",
	InverterStatusStarting:     "starting",
	InverterStatusMPPT:         "mppt_tracking",
	InverterStatusThrottled:    "throttled",
	InverterStatusShuttingDown: "shutting_down",
	InverterStatusFault:        "fault",
	InverterStatusStandby:      "standby",
}

func InverterStatusToString(state uint16) string {
	if name, ok := inverterStatusNames[state]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", state)
}

type ACMeterInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

type ACMeterPowerFlow struct {
	// Positive = import. Negative = export
	CurrentPowerFlowWatt   float64
	CurrentImportPowerWatt float64
	CurrentExportPowerWatt float64
	TotalEnergyExportedKWh float64
	TotalEnergyImportedKWh float64
	Frequency              float64
	PhaseAVoltage          float64
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*ACMeterInfo, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}

type InverterInfo struct {
	Manufacturer      string
	Model             string
	Version           string
	Serial            string
	MaxRatedPowerWatt uint32
	HasStorage        bool
}

type InverterState struct {
	CabinetTemperature float64
	OperatingState     uint16
	OperatingStateStr  string
}

type InverterPowerFlow struct {
	ACPowerWatt               float64
	PVPowerWatt               float64
	BatteryChargePowerWatt    float64
	BatteryDischargePowerWatt float64
	// Positive = discharging
	BatteryDCPowerFlowWatt float64
}

type StorageState struct {
	StateOfCharge       float64
	MaxCapacityWatt     uint32
	CurrentCapacityWatt uint32
	ChargeStatus        uint16
	ChargeStatusStr     string
}

type InverterModbusReader interface {
	Open() error
	Close() error
	Validate() error
	GetInfo() (*InverterInfo, error)
	GetState() (*InverterState, error)
	GetPowerFlow() (*InverterPowerFlow, error)
	HasStorage() (bool, error)
	GetStorageState() (*StorageState, error)
}
