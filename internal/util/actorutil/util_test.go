package actorutil

import (
	"testing"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedMQTTCommandToRequest(t *testing.T) {

	assert := assert.New(t)

	req, err := ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{
		DeviceId: "device_pool_pump",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "ON",
	})
	require.NoError(t, err)
	sw, ok := req.(domain.SwitchDeviceRequest)
	require.True(t, ok)
	assert.Equal("device_pool_pump", sw.SwitchId)
	assert.Equal(domain.SwitchModeOn, sw.Mode)

	req, err = ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{
		DeviceId: "device_pool_pump",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "toggle",
	})
	require.NoError(t, err)
	assert.Equal(domain.SwitchModeToggle, req.(domain.SwitchDeviceRequest).Mode)

	_, err = ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{
		DeviceId: "device_pool_pump",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "maybe",
	})
	assert.Error(err)

	_, err = ParsedMQTTCommandToRequest(mqtt.ParsedMQTTCommand{
		DeviceId: "bridge",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "on",
	})
	assert.ErrorIs(err, ErrUnknownCommand)
}
