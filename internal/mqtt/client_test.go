package mqtt

import (
	"testing"

	"github.com/berfenger/surplus2mqtt/internal/config"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := &config.Config{MQTT: config.MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "surplus", HADiscoveryTopic: "homeassistant"}}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	r := switchCommandExtractor("loremTopic")
	cmd, err := parseSwitchCommand(r, "loremTopic/switch/device_pool_pump/command", []byte("on"))
	require.NoError(t, err)

	assert.Equal("device_pool_pump", cmd.DeviceId, "device extract")
	assert.Equal(COMMAND_SWITCH, cmd.Command)
	assert.Equal("on", cmd.Payload)
}

func TestSwitchCommandParseFail(t *testing.T) {

	r := switchCommandExtractor("loremTopic")
	for _, topic := range []string{
		"loremTopic/switch/my_device/state",
		"otherTopic/switch/my_device/command",
		"loremTopic/switch/my_device/command/extra",
	} {
		_, err := parseSwitchCommand(r, topic, []byte("on"))
		assert.ErrorIs(t, err, ErrInvalidCommand, topic)
	}
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	assert.Equal("surplus/bridge/state", c.BridgeStateTopic())
	assert.Equal("surplus/sensor/surplus_power/state", c.SensorStateTopic(domain.SENSOR_ID_SURPLUS_POWER))
	assert.Equal("surplus/switch/device_boiler/state", c.SwitchStateTopic("device_boiler"))
	assert.Equal("surplus/switch/device_boiler/command", c.SwitchCommandTopic("device_boiler"))
	assert.Equal("surplus/switch/+/command", c.commandTopic())
}

func TestDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	bridge := domain.BridgeDevice("surplus")
	switches := domain.ControlledDeviceSwitches(bridge, []string{"Boiler"})
	require.Len(t, switches, 1)

	msg := GenericSwitchToHADiscoveryMessage(c, switches[0])
	assert.Equal("surplus/switch/device_boiler/command", msg.CommandTopic)
	assert.Equal("surplus/switch/device_boiler/state", msg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ON, msg.PayloadOn)
	assert.Equal("homeassistant/switch/"+bridge.Id+"/device_boiler/config",
		HADiscoverySwitchTopic(c.DiscoveryPrefix(), switches[0]))

	sensors := domain.BridgeSensors(bridge)
	state := GenericSensorToHADiscoveryMessage(c, sensors[0])
	assert.Equal(c.BridgeStateTopic(), state.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, state.PayloadOn)
	assert.Equal("homeassistant/binary_sensor/"+bridge.Id+"/bridge/config",
		HADiscoverySensorTopic(c.DiscoveryPrefix(), sensors[0]))
}
