package sunspec

import (
	"errors"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

var ErrStorageUnsupported = errors.New("sunspec: storage block not supported")

type inverterBlocks struct {
	common   uint16
	inverter uint16
	status   uint16
	mppt     uint16
	storage  uint16
}

func (blk *inverterBlocks) complete() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.status > 0 && blk.mppt > 0 && blk.storage > 0
}

func (blk *inverterBlocks) usable() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.status > 0 && blk.mppt > 0
}

// InverterReader reads a SunSpec hybrid inverter (models 101-103, 122, 124, 160).
type InverterReader struct {
	ModbusClient
	blocks        inverterBlocks
	ignoreFronius bool
}

func NewInverterReader(ip string, port uint, address uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (InverterModbusReader, error) {
	client, err := newModbusClient(ip, port, address, timeout,
		logger.With(zap.String("target", "inverter"), zap.Uint8("unit", address)), instrumentation)
	if err != nil {
		return nil, err
	}
	return &InverterReader{ModbusClient: client, ignoreFronius: ignoreFronius}, nil
}

func (inv *InverterReader) Open() error {
	if err := inv.client.Open(); err != nil {
		return err
	}
	return inv.survey()
}

func (inv *InverterReader) Close() error {
	return inv.client.Close()
}

func (inv *InverterReader) Validate() error {
	if inv.ignoreFronius {
		return nil
	}
	str, err := inv.readString(inv.blocks.common+2, 32)
	if err != nil {
		return err
	}
	if str != "Fronius" {
		return errors.New("could not find a Fronius inverter")
	}
	return nil
}

func (inv *InverterReader) GetInfo() (*InverterInfo, error) {
	common, err := readCommonBlock(inv.ModbusClient, inv.blocks.common)
	if err != nil {
		return nil, err
	}
	pow, err := inv.readRegister(inv.blocks.inverter+82, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	powSF, err := inv.readRegister(inv.blocks.inverter+102, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	hasStorage, err := inv.HasStorage()
	if err != nil {
		return nil, err
	}
	return &InverterInfo{
		Manufacturer:      common.manufacturer,
		Model:             common.model,
		Version:           common.version,
		Serial:            common.serial,
		MaxRatedPowerWatt: uint32(applySF(pow, powSF)),
		HasStorage:        hasStorage,
	}, nil
}

func (inv *InverterReader) GetState() (*InverterState, error) {
	temp, err := inv.readRegister(inv.blocks.inverter+33, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	tempSF, err := inv.readRegister(inv.blocks.inverter+37, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	state, err := inv.readRegister(inv.blocks.inverter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &InverterState{
		CabinetTemperature: applySF(temp, tempSF),
		OperatingState:     state,
		OperatingStateStr:  InverterStatusToString(state),
	}, nil
}

// GetPowerFlow reads AC output and the MPPT modules. Depending on the module
// count, the last two modules carry battery charge and discharge power.
func (inv *InverterReader) GetPowerFlow() (*InverterPowerFlow, error) {
	acpower, err := inv.readRegisters(inv.blocks.inverter+14, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	dcPowerSF, err := inv.readRegister(inv.blocks.mppt+4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	nMods, err := inv.readRegister(inv.blocks.mppt+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	read := func(index uint16) (float64, error) {
		raw, err := inv.readMPPTPower(index)
		if err != nil {
			return 0, err
		}
		return applySF(raw, dcPowerSF), nil
	}

	var pv, charge, discharge float64
	pvMods, battery := mpptLayout(nMods)
	for i := uint16(0); i < pvMods; i++ {
		p, err := read(i)
		if err != nil {
			return nil, err
		}
		pv += p
	}
	if battery {
		if charge, err = read(nMods - 2); err != nil {
			return nil, err
		}
		if discharge, err = read(nMods - 1); err != nil {
			return nil, err
		}
	}

	return &InverterPowerFlow{
		ACPowerWatt:               applySFint16(int16(acpower[0]), acpower[1]),
		PVPowerWatt:               pv,
		BatteryChargePowerWatt:    charge,
		BatteryDischargePowerWatt: discharge,
		BatteryDCPowerFlowWatt:    discharge - charge,
	}, nil
}

// mpptLayout maps the MPPT module count to PV module count and battery presence.
func mpptLayout(nMods uint16) (pvMods uint16, battery bool) {
	switch nMods {
	case 0:
		return 0, false
	case 1:
		return 1, false
	case 2:
		return 2, false
	case 3:
		return 1, true
	default:
		return 2, true
	}
}

func (inv *InverterReader) readMPPTPower(index uint16) (uint16, error) {
	baseAddr := inv.blocks.mppt + 10 + 20*index
	dcpower, err := inv.readRegister(baseAddr+11, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	if int16(dcpower) == -1 {
		return 0, nil
	}
	return dcpower, nil
}

func (inv *InverterReader) HasStorage() (bool, error) {
	storageConn, err := inv.readRegister(inv.blocks.status+3, modbus.HOLDING_REGISTER)
	if err != nil {
		return false, err
	}
	if storageConn&0x0001 == 0 {
		return false, nil
	}
	return inv.blocks.storage > 0, nil
}

func (inv *InverterReader) GetStorageState() (*StorageState, error) {
	if inv.blocks.storage == 0 {
		return nil, ErrStorageUnsupported
	}
	regs, err := inv.readRegisters(inv.blocks.storage+2, 24, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return storageState(regs), nil
}

func storageState(regs []uint16) *StorageState {
	soc := applySF(regs[6], regs[20])
	if regs[9] == StorageChargeStatusOff {
		soc = 0
	}
	maxCap := applySF(regs[0], regs[17])
	return &StorageState{
		StateOfCharge:       soc,
		MaxCapacityWatt:     uint32(math.Round(maxCap)),
		CurrentCapacityWatt: uint32(math.Round(soc / 100 * maxCap)),
		ChargeStatus:        regs[9],
		ChargeStatusStr:     StorageChargeStatusToString(regs[9]),
	}
}

func (inv *InverterReader) survey() error {
	blocks := inverterBlocks{}
	err := surveyBlocks(inv.ModbusClient, "inverter", 20, func(block *modbusBlock) bool {
		switch {
		case block.id >= SUNSPEC_WK_INVERTERS_MIN && block.id <= SUNSPEC_WK_INVERTERS_MAX:
			blocks.inverter = block.baseAddr
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id == SUNSPEC_WK_STATUS:
			blocks.status = block.baseAddr
		case block.id == SUNSPEC_WK_STORAGE:
			blocks.storage = block.baseAddr
		case block.id == SUNSPEC_WK_MPPT:
			blocks.mppt = block.baseAddr
		}
		return blocks.complete()
	})
	if err != nil {
		return err
	}
	if !blocks.usable() {
		return errors.New("could not find all required sunspec blocks (common, inverter, status, mppt)")
	}
	inv.blocks = blocks
	return nil
}
