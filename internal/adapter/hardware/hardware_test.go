package hardware

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	mqtt.Token
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                       { return !t.timedOut }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Error() error                     { return t.err }

type published struct {
	topic   string
	payload any
}

// fakeClient implements the parts of mqtt.Client the adapter uses.
type fakeClient struct {
	mqtt.Client
	open       bool
	publishErr error
	published  []published
	subscribed []string
	handler    mqtt.MessageHandler
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Connect() mqtt.Token {
	c.open = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) { c.open = false }

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) mqtt.Token {
	c.subscribed = append(c.subscribed, topic)
	c.handler = handler
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	c.published = append(c.published, published{topic, payload})
	return &fakeToken{err: c.publishErr}
}

func TestNullAdapter(t *testing.T) {

	assert := assert.New(t)

	a := NewNullAdapter()
	assert.True(a.Connect())
	assert.True(a.Connected())
	assert.True(a.SwitchOn("anything"))
	assert.True(a.SwitchOff("anything"))
	assert.True(a.IsDeviceAvailable("anything"))
	assert.Nil(a.GetState("anything"))
	assert.Empty(a.ListDevices())
	assert.Equal("none", a.InterfaceType())
}

func TestMQTTAdapterCommands(t *testing.T) {

	require := require.New(t)

	client := &fakeClient{}
	a := newMQTTAdapter(client, "zigbee2mqtt/", time.Second, zap.NewNop())

	require.False(a.SwitchOn("plug"), "not connected")
	require.True(a.Connect())
	require.Equal([]string{"zigbee2mqtt/+"}, client.subscribed)

	require.True(a.SwitchOn("plug"))
	require.True(a.SwitchOff("plug"))
	require.Equal([]published{
		{"zigbee2mqtt/plug/set", PAYLOAD_ON},
		{"zigbee2mqtt/plug/set", PAYLOAD_OFF},
	}, client.published)

	client.publishErr = errors.New("broker gone")
	require.False(a.SwitchOn("plug"))
	require.Equal(TypeMQTT, a.InterfaceType())
}

func TestMQTTAdapterTracksState(t *testing.T) {

	assert := assert.New(t)

	a := newMQTTAdapter(&fakeClient{}, "z2m", time.Second, zap.NewNop())
	assert.False(a.IsDeviceAvailable("heater"))
	assert.Nil(a.GetState("heater"))

	a.handleState("z2m/heater", []byte(`{"state":"ON","power":1200}`))
	a.handleState("z2m/pump", []byte("off"))
	a.handleState("z2m/pump/availability", []byte("online"))
	a.handleState("z2m/lamp", []byte("garbage"))
	a.handleState("other/fan", []byte("ON"))

	assert.True(a.IsDeviceAvailable("heater"))
	assert.True(*a.GetState("heater"))
	assert.False(*a.GetState("pump"))
	assert.False(a.IsDeviceAvailable("lamp"))
	assert.Equal([]string{"heater", "pump"}, a.ListDevices())
}

func TestMQTTAdapterReconnect(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	client := &fakeClient{}
	a := newMQTTAdapter(client, "z2m", time.Second, zap.NewNop())
	require.True(a.Connect())
	a.onConnect(client)
	require.Equal([]string{"z2m/+"}, client.subscribed, "first connection subscribes once")

	a.handleState("z2m/heater", []byte("ON"))
	a.handleState("z2m/pump", []byte("OFF"))
	require.True(*a.GetState("heater"))

	a.onConnectionLost(client, errors.New("EOF"))
	assert.Nil(a.GetState("heater"), "no stale state while disconnected")
	assert.False(a.IsDeviceAvailable("pump"))

	a.onConnect(client)
	assert.Equal([]string{"z2m/+", "z2m/+"}, client.subscribed)
	assert.Equal([]published{
		{"z2m/heater/get", PAYLOAD_GET_STATE},
		{"z2m/pump/get", PAYLOAD_GET_STATE},
	}, client.published)

	a.handleState("z2m/heater", []byte(`{"state":"OFF"}`))
	assert.False(*a.GetState("heater"))

	a.onConnect(client)
	assert.Len(client.subscribed, 2, "later connect callbacks do nothing")
}

func TestParseStatePayload(t *testing.T) {

	for payload, want := range map[string]bool{
		"ON": true, "on": true, "true": true, "1": true,
		"OFF": false, "false": false, " 0 ": false,
		`{"state":"OFF"}`: false,
	} {
		got, err := parseStatePayload([]byte(payload))
		assert.NoError(t, err, payload)
		assert.Equal(t, want, got, payload)
	}

	_, err := parseStatePayload([]byte(`{"state":`))
	assert.Error(t, err)
	_, err = parseStatePayload([]byte("maybe"))
	assert.Error(t, err)
}
