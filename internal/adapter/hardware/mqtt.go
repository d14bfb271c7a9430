package hardware

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/port"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	PAYLOAD_ON        = "ON"
	PAYLOAD_OFF       = "OFF"
	PAYLOAD_GET_STATE = `{"state":""}`
)

// MQTTAdapter drives smart plugs exposed on MQTT the way zigbee2mqtt does:
// state on <prefix>/<device>, commands on <prefix>/<device>/set.
type MQTTAdapter struct {
	client      mqtt.Client
	topicPrefix string
	timeout     time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	states map[string]bool
	// set while the broker connection is down; known keeps the devices
	// whose state has to be asked for again
	lost  bool
	known []string
}

var _ port.HardwareAdapter = (*MQTTAdapter)(nil)

func NewMQTTAdapter(opts *mqtt.ClientOptions, topicPrefix string, timeout time.Duration, logger *zap.Logger) *MQTTAdapter {
	a := newMQTTAdapter(nil, topicPrefix, timeout, logger)
	// paho reconnects with a clean session, subscriptions must be restored
	opts.SetOnConnectHandler(a.onConnect)
	opts.SetConnectionLostHandler(a.onConnectionLost)
	a.client = mqtt.NewClient(opts)
	return a
}

func newMQTTAdapter(client mqtt.Client, topicPrefix string, timeout time.Duration, logger *zap.Logger) *MQTTAdapter {
	return &MQTTAdapter{
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		timeout:     timeout,
		logger:      logger.With(zap.String("adapter", TypeMQTT)),
		states:      make(map[string]bool),
	}
}

func (a *MQTTAdapter) StateTopic(device string) string {
	return fmt.Sprintf("%s/%s", a.topicPrefix, device)
}

func (a *MQTTAdapter) CommandTopic(device string) string {
	return fmt.Sprintf("%s/%s/set", a.topicPrefix, device)
}

func (a *MQTTAdapter) GetTopic(device string) string {
	return fmt.Sprintf("%s/%s/get", a.topicPrefix, device)
}

func (a *MQTTAdapter) subscription() string {
	return fmt.Sprintf("%s/+", a.topicPrefix)
}

func (a *MQTTAdapter) subscribe() error {
	return a.wait(a.client.Subscribe(a.subscription(), 1, a.onStateMessage), "subscribe")
}

func (a *MQTTAdapter) Connect() bool {
	if a.client.IsConnectionOpen() {
		return true
	}
	if err := a.wait(a.client.Connect(), "connect"); err != nil {
		a.logger.Warn("hardware: connection failed", zap.Error(err))
		return false
	}
	if err := a.subscribe(); err != nil {
		a.logger.Warn("hardware: subscription failed", zap.String("topic", a.subscription()), zap.Error(err))
		return false
	}
	a.logger.Info("hardware: connected", zap.String("topic", a.subscription()))
	return true
}

// onConnect runs on every (re)connection. The first connection is handled by Connect.
func (a *MQTTAdapter) onConnect(_ mqtt.Client) {
	a.mu.Lock()
	if !a.lost {
		a.mu.Unlock()
		return
	}
	known := a.known
	a.mu.Unlock()

	if err := a.subscribe(); err != nil {
		a.logger.Warn("hardware: resubscription failed", zap.String("topic", a.subscription()), zap.Error(err))
		return
	}
	a.mu.Lock()
	a.lost = false
	a.known = nil
	a.mu.Unlock()

	for _, device := range known {
		a.client.Publish(a.GetTopic(device), 1, false, PAYLOAD_GET_STATE)
	}
	a.logger.Info("hardware: reconnected", zap.String("topic", a.subscription()), zap.Int("devices", len(known)))
}

// onConnectionLost drops every cached state; they are stale until the broker
// delivers them again.
func (a *MQTTAdapter) onConnectionLost(_ mqtt.Client, err error) {
	a.mu.Lock()
	for device := range a.states {
		if !slices.Contains(a.known, device) {
			a.known = append(a.known, device)
		}
	}
	slices.Sort(a.known)
	a.states = make(map[string]bool)
	a.lost = true
	a.mu.Unlock()
	a.logger.Warn("hardware: connection lost", zap.Error(err))
}

func (a *MQTTAdapter) Disconnect() {
	a.client.Disconnect(uint(a.timeout.Milliseconds()))
}

func (a *MQTTAdapter) SwitchOn(device string) bool {
	return a.command(device, PAYLOAD_ON)
}

func (a *MQTTAdapter) SwitchOff(device string) bool {
	return a.command(device, PAYLOAD_OFF)
}

func (a *MQTTAdapter) command(device, payload string) bool {
	if !a.Connected() {
		return false
	}
	topic := a.CommandTopic(device)
	if err := a.wait(a.client.Publish(topic, 1, false, payload), "publish"); err != nil {
		a.logger.Warn("hardware: command failed", zap.String("topic", topic), zap.Error(err))
		return false
	}
	return true
}

func (a *MQTTAdapter) GetState(device string) *bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	on, ok := a.states[device]
	if !ok {
		return nil
	}
	return &on
}

func (a *MQTTAdapter) ListDevices() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.states))
	for name := range a.states {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsDeviceAvailable reports whether a state message was seen for the device.
func (a *MQTTAdapter) IsDeviceAvailable(device string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.states[device]
	return ok
}

func (a *MQTTAdapter) InterfaceType() string {
	return TypeMQTT
}

func (a *MQTTAdapter) Connected() bool {
	return a.client.IsConnectionOpen()
}

func (a *MQTTAdapter) onStateMessage(_ mqtt.Client, msg mqtt.Message) {
	a.handleState(msg.Topic(), msg.Payload())
}

func (a *MQTTAdapter) handleState(topic string, payload []byte) {
	device, ok := strings.CutPrefix(topic, a.topicPrefix+"/")
	if !ok || device == "" || strings.Contains(device, "/") {
		return
	}
	on, err := parseStatePayload(payload)
	if err != nil {
		a.logger.Debug("hardware: ignoring state message", zap.String("topic", topic), zap.Error(err))
		return
	}
	a.mu.Lock()
	a.states[device] = on
	a.mu.Unlock()
}

func (a *MQTTAdapter) wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(a.timeout) {
		return fmt.Errorf("mqtt %s timed out", op)
	}
	return token.Error()
}

type statePayload struct {
	State string `json:"state"`
}

// parseStatePayload accepts {"state":"ON"} documents and plain on/off payloads.
func parseStatePayload(payload []byte) (bool, error) {
	value := strings.TrimSpace(string(payload))
	if strings.HasPrefix(value, "{") {
		var doc statePayload
		if err := json.Unmarshal(payload, &doc); err != nil {
			return false, err
		}
		value = doc.State
	}
	switch strings.ToLower(value) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errors.New("unknown state payload")
}
