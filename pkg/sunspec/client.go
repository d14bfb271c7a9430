package sunspec

import (
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusClient wraps a Modbus TCP connection with SunSpec helpers.
// It only reads registers.
type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func newModbusClient(ip string, port uint, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     tcpURL(ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return ModbusClient{}, err
	}
	if unitId > 0 {
		if err := client.SetUnitId(unitId); err != nil {
			return ModbusClient{}, err
		}
	}
	inst := []ModbusInstrument{traceLoggerInstrumentation(logger)}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return ModbusClient{client: client, instrument: inst}, nil
}

func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	f := slices.Index(bytes, 0x00)
	if f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func (reader ModbusClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, regType)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, regType)
}

func (reader ModbusClient) readUint32(addr uint16, regType modbus.RegType) (uint32, error) {
	defer RecordTimer("ReadUint32", reader.instrument)()
	return reader.client.ReadUint32(addr, regType)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

// scale factors are signed powers of ten stored as uint16

func applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func applySFint16(number int16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func applySFuint32(number uint32, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus read", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
