package sunspec

import (
	"errors"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type meterBlocks struct {
	common  uint16
	acMeter uint16
}

func (blk *meterBlocks) complete() bool {
	return blk.common > 0 && blk.acMeter > 0
}

// MeterReader reads a SunSpec smart meter (models 201-204, integer + scale factor).
type MeterReader struct {
	ModbusClient
	blocks        meterBlocks
	ignoreFronius bool
}

func NewMeterReader(ip string, port uint, address uint8, timeout time.Duration,
	ignoreFronius bool, logger *zap.Logger, instrumentation *ModbusInstrument) (ACMeterModbusReader, error) {
	client, err := newModbusClient(ip, port, address, timeout,
		logger.With(zap.String("target", "acMeter"), zap.Uint8("unit", address)), instrumentation)
	if err != nil {
		return nil, err
	}
	return &MeterReader{ModbusClient: client, ignoreFronius: ignoreFronius}, nil
}

func (reader *MeterReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	return reader.survey()
}

func (reader *MeterReader) Close() error {
	return reader.client.Close()
}

func (reader *MeterReader) Validate() error {
	str, err := reader.readString(sunspecBaseAddr, 4)
	if err != nil {
		return err
	}
	if str != sunspecMarker {
		return errors.New("could not find a SunSpec smart meter")
	}
	if reader.ignoreFronius {
		return nil
	}
	str, err = reader.readString(sunspecBaseAddr+4, 32)
	if err != nil {
		return err
	}
	if str != "Fronius" {
		return errors.New("could not find a Fronius smart meter")
	}
	return nil
}

func (reader *MeterReader) GetInfo() (*ACMeterInfo, error) {
	common, err := readCommonBlock(reader.ModbusClient, reader.blocks.common)
	if err != nil {
		return nil, err
	}
	return &ACMeterInfo{
		Manufacturer: common.manufacturer,
		Model:        common.model,
		Version:      common.version,
		Serial:       common.serial,
	}, nil
}

func (reader *MeterReader) currentPowerFlowWatt() (float64, error) {
	totalRealPower, err := reader.readRegister(reader.blocks.acMeter+18, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	totalRealPowerSF, err := reader.readRegister(reader.blocks.acMeter+22, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	return applySFint16(int16(totalRealPower), totalRealPowerSF), nil
}

func (reader *MeterReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	totalRealPower, err := reader.currentPowerFlowWatt()
	if err != nil {
		return nil, err
	}
	totalEnergyExported, err := reader.readUint32(reader.blocks.acMeter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totalEnergyImported, err := reader.readUint32(reader.blocks.acMeter+46, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totWhSF, err := reader.readRegister(reader.blocks.acMeter+54, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	freq, err := reader.readRegisters(reader.blocks.acMeter+16, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseA, err := reader.readRegister(reader.blocks.acMeter+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseASF, err := reader.readRegister(reader.blocks.acMeter+15, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return meterPowerFlow(totalRealPower,
		applySFuint32(totalEnergyExported, totWhSF)/1000,
		applySFuint32(totalEnergyImported, totWhSF)/1000,
		applySF(freq[0], freq[1]),
		applySF(phaseA, phaseASF)), nil
}

func meterPowerFlow(flow, exportedKWh, importedKWh, frequency, voltage float64) *ACMeterPowerFlow {
	pf := &ACMeterPowerFlow{
		CurrentPowerFlowWatt:   flow,
		TotalEnergyExportedKWh: exportedKWh,
		TotalEnergyImportedKWh: importedKWh,
		Frequency:              frequency,
		PhaseAVoltage:          voltage,
	}
	if flow < 0 {
		pf.CurrentExportPowerWatt = math.Abs(flow)
	} else {
		pf.CurrentImportPowerWatt = flow
	}
	return pf
}

func (reader *MeterReader) survey() error {
	blocks := meterBlocks{}
	err := surveyBlocks(reader.ModbusClient, "smart meter", 10, func(block *modbusBlock) bool {
		switch {
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id >= SUNSPEC_WK_METERS_MIN && block.id <= SUNSPEC_WK_METERS_MAX:
			blocks.acMeter = block.baseAddr
		}
		return blocks.complete()
	})
	if err != nil {
		return err
	}
	if !blocks.complete() {
		return errors.New("could not find all required sunspec blocks (common, ac_meter)")
	}
	reader.blocks = blocks
	return nil
}

type commonBlock struct {
	manufacturer string
	model        string
	version      string
	serial       string
}

func readCommonBlock(reader ModbusClient, base uint16) (commonBlock, error) {
	var c commonBlock
	var err error
	if c.manufacturer, err = reader.readString(base+2, 32); err != nil {
		return c, err
	}
	if c.model, err = reader.readString(base+18, 32); err != nil {
		return c, err
	}
	if c.version, err = reader.readString(base+42, 16); err != nil {
		return c, err
	}
	if c.serial, err = reader.readString(base+50, 32); err != nil {
		return c, err
	}
	return c, nil
}
