package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/surplus2mqtt/internal/adapter/actor"
	"github.com/berfenger/surplus2mqtt/internal/adapter/hardware"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/registry"
	"github.com/berfenger/surplus2mqtt/internal/mqtt"
	"github.com/berfenger/surplus2mqtt/internal/util"
	"github.com/berfenger/surplus2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = 100
	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	reg := registry.New(logger)
	boiler, err := domain.NewDevice("boiler", 1000, 1, 1000, 500)
	require.NoError(t, err)
	require.NoError(t, reg.Add(boiler))

	meter := sunspec.NewFakeACMeterReader()
	meter.SetPowerFlow(-1500)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(sunspec.NewFakeInverterReader(), meter, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, SchedulerDeps{
			Registry: reg,
			Adapter:  hardware.NewNullAdapter(),
			Store:    &memStore{},
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	// the powerflow loop feeds the scheduler without any request from outside
	assert.Eventually(t, func() bool {
		res, err := context.RequestFuture(pid, domain.GetDeviceRequest{Name: "boiler"}, time.Second).Result()
		if err != nil {
			return false
		}
		resp := res.(domain.GetDeviceResponse)
		return resp.Device != nil && resp.Device.State == domain.DeviceStateOn
	}, 5*time.Second, 100*time.Millisecond)

	res, err = context.RequestFuture(pid, domain.GetCurrentSampleRequest{}, time.Second).Result()
	require.NoError(t, err)
	cur := res.(domain.GetCurrentSampleResponse)
	require.NotNil(t, cur.Sample)
	assert.Equal(t, 1500.0, cur.Sample.SurplusPower)

	res, err = context.RequestFuture(pid, domain.GetDevicesInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, "Fronius", res.(domain.GetDevicesInfoResponse).Inverter.Manufacturer)

	// MQTT commands reach the scheduler through the master
	context.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{DeviceId: domain.DeviceSwitchId("boiler"), Command: mqtt.COMMAND_SWITCH, Payload: "off"}})
	assert.Eventually(t, func() bool {
		return reg.TotalConsumption() == 0
	}, 2*time.Second, 50*time.Millisecond)

	context.Stop(pid)

	as.Shutdown()
}
