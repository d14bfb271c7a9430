package sunspec

import (
	"fmt"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_CONTROLS      = 123
	SUNSPEC_WK_STORAGE       = 124
	SUNSPEC_WK_MPPT          = 160
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204

	sunspecBaseAddr = 40000
	sunspecMarker   = "SunS"
)

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == 0xFFFF
}

func surveyModbusBlock(client *modbus.ModbusClient, baseAddr uint16) (*modbusBlock, error) {
	wellKnownValue, err := client.ReadRegister(baseAddr, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	length, err := client.ReadRegister(baseAddr+1, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       wellKnownValue,
		length:   length,
		baseAddr: baseAddr,
	}, nil
}

// surveyBlocks walks the SunSpec model chain and calls visit for every block
// until the end marker, maxBlocks blocks, or visit returns true.
func surveyBlocks(reader ModbusClient, kind string, maxBlocks int, visit func(*modbusBlock) bool) error {
	str, err := reader.readString(sunspecBaseAddr, 4)
	if err != nil {
		return err
	}
	if str != sunspecMarker {
		return fmt.Errorf("could not find a SunSpec %s", kind)
	}

	var baseAddr uint16 = sunspecBaseAddr + 2
	for n := 0; n <= maxBlocks; n++ {
		block, err := surveyModbusBlock(reader.client, baseAddr)
		if err != nil {
			return err
		}
		if block.isEndBlock() || visit(block) {
			return nil
		}
		baseAddr = baseAddr + block.length + 2
	}
	return nil
}

func tcpURL(ip string, port uint) string {
	return fmt.Sprintf("tcp://%s:%d", ip, port)
}
