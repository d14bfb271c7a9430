package actor

import (
	"testing"
	"time"

	adactor "github.com/berfenger/surplus2mqtt/internal/adapter/actor"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/util"
	"github.com/berfenger/surplus2mqtt/internal/util/actorutil"
	"github.com/berfenger/surplus2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// spawnProbe starts an actor that answers health checks and forwards
// every other user message to the returned channel.
func spawnProbe(as *actor.ActorSystem, id string) (*actor.PID, chan any) {
	received := make(chan any, 64)
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started, *actor.Stopping, *actor.Stopped:
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: id, Healthy: true})
		case domain.GetDevicesRequest:
			ctx.Respond(domain.GetDevicesResponse{Devices: []domain.DeviceStatus{
				{DeviceRecord: domain.DeviceRecord{Name: "boiler"}},
				{DeviceRecord: domain.DeviceRecord{Name: "pump"}},
			}})
		default:
			received <- msg
		}
	}))
	return pid, received
}

func TestPowerFlowActorFeedsScheduler(t *testing.T) {

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	cfg := util.LoadTestConfig()
	cfg.MonitorConfig.PollIntervalMillis = 50

	meter := sunspec.NewFakeACMeterReader()
	meter.SetPowerFlow(-700)
	modbus := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(sunspec.NewFakeInverterReader(), meter, logger)
	}))
	sched, received := spawnProbe(as, domain.ACTOR_ID_SCHEDULER)

	es := &eventstream.EventStream{}
	sensors := make(chan domain.SensorUpdateEvent, 64)
	sub := es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.SensorUpdateEvent); ok {
			select {
			case sensors <- e:
			default:
			}
		}
	})
	defer es.Unsubscribe(sub)

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPowerFlowActor(&cfg, modbus, sched, es, logger)
	}))
	defer as.Root.Stop(pid)

	select {
	case msg := <-received:
		req, ok := msg.(domain.SchedulePowerSampleRequest)
		require.True(t, ok, "got %T", msg)
		assert.Equal(t, 700.0, req.Sample.SurplusPower)
		assert.Equal(t, 23.5, req.Sample.BatterySoC)
	case <-time.After(3 * time.Second):
		t.Fatal("no sample reached the scheduler")
	}

	select {
	case ev := <-sensors:
		assert.NotEmpty(t, ev.SensorId())
	case <-time.After(time.Second):
		t.Fatal("no sensor update published")
	}

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.ActorHealthResponse).Healthy)
}

func TestHADiscoveryActorAnnouncesDevices(t *testing.T) {

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true

	modbus := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(sunspec.NewFakeInverterReader(), sunspec.NewFakeACMeterReader(), logger)
	}))
	mqttProbe, published := spawnProbe(as, domain.ACTOR_ID_MQTT)
	sched, _ := spawnProbe(as, domain.ACTOR_ID_SCHEDULER)
	es := &eventstream.EventStream{}

	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, modbus, mqttProbe, sched, es, logger)
	}))
	defer as.Root.Stop(pid)

	next := func() domain.PublishDiscoveryRequest {
		t.Helper()
		select {
		case msg := <-published:
			req, ok := msg.(domain.PublishDiscoveryRequest)
			require.True(t, ok, "got %T", msg)
			return req
		case <-time.After(3 * time.Second):
			t.Fatal("no discovery published")
		}
		return domain.PublishDiscoveryRequest{}
	}

	base := next()
	ids := make([]string, len(base.Sensors))
	for i := range base.Sensors {
		ids[i] = base.Sensors[i].Id
	}
	assert.Contains(t, ids, domain.SENSOR_ID_SURPLUS_POWER)
	assert.Contains(t, ids, domain.SENSOR_ID_BATTERY_SOC)

	devices := next()
	require.Len(t, devices.Switches, 2)
	assert.Equal(t, domain.DeviceSwitchId("boiler"), devices.Switches[0].Id)
	assert.Empty(t, devices.RemovedSwitches)

	// wait for the actor to listen before changing the roster
	assert.Eventually(t, func() bool {
		res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 200*time.Millisecond).Result()
		return err == nil && res.(domain.ActorHealthResponse).Healthy
	}, 2*time.Second, 20*time.Millisecond)

	es.Publish(domain.DeviceRosterChangedEvent{Devices: []string{"pump", "fan"}})
	changed := next()
	require.Len(t, changed.Switches, 2)
	require.Len(t, changed.RemovedSwitches, 1)
	assert.Equal(t, domain.DeviceSwitchId("boiler"), changed.RemovedSwitches[0].Id)
	assert.Len(t, changed.RemovedSensors, 2)
}
