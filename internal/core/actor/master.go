package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/surplus2mqtt/internal/adapter/actor"
	"github.com/berfenger/surplus2mqtt/internal/config"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	. "github.com/berfenger/surplus2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type ModbusActorProvider func() *adactor.ModbusActor

// healthChecked lists the children whose health makes up the master's.
var healthChecked = []string{
	domain.ACTOR_ID_MODBUS,
	domain.ACTOR_ID_MQTT,
	domain.ACTOR_ID_POWERFLOW,
	domain.ACTOR_ID_SCHEDULER,
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	modbusActor         *actor.PID
	mqttActor           *actor.PID
	powerFlowActor      *actor.PID
	schedulerActor      *actor.PID
	modbusActorProvider ModbusActorProvider
	mqttActorProvider   MQTTActorProvider
	schedulerDeps       SchedulerDeps
	logger              *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, modbusActorProvider ModbusActorProvider, mqttActorProvider MQTTActorProvider,
	schedulerDeps SchedulerDeps, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		modbusActorProvider: modbusActorProvider,
		mqttActorProvider:   mqttActorProvider,
		schedulerDeps:       schedulerDeps,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

// EventStream is the bus shared by the children.
func (state *MasterOfPuppetsActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck.reset()

		modbusActorPID, err := state.startModbusActor(ctx)
		if err != nil {
			panic(err)
		}
		state.modbusActor = modbusActorPID

		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		schedulerActorPID, err := state.startSchedulerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.schedulerActor = schedulerActorPID

		powerFlowActorPID, err := state.startPowerFlowActor(ctx)
		if err != nil {
			panic(err)
		}
		state.powerFlowActor = powerFlowActorPID

		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, id := range healthChecked {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.child(id), domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		req, err := ParsedMQTTCommandToRequest(*msg.Command)
		if err != nil {
			state.logger.Warn("master@default parsedCommand ignored", zap.Error(err))
			return
		}
		ctx.Send(state.schedulerActor, req)
	case domain.GetDevicesInfoRequest:
		ctx.Forward(state.modbusActor)
	case domain.GetDevicesRequest, domain.GetDeviceRequest, domain.AddDeviceRequest, domain.RemoveDeviceRequest,
		domain.SwitchDeviceRequest, domain.SaveDevicesRequest, domain.GetEventsRequest, domain.GetCurrentSampleRequest,
		domain.DailyResetRequest, domain.GetDailyStatsRequest:
		ctx.Forward(state.schedulerActor)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_MODBUS) {
			state.logger.Error("master@default modbus error")
			panic(errors.New("modbus terminated"))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) child(id string) *actor.PID {
	switch id {
	case domain.ACTOR_ID_MODBUS:
		return state.modbusActor
	case domain.ACTOR_ID_MQTT:
		return state.mqttActor
	case domain.ACTOR_ID_POWERFLOW:
		return state.powerFlowActor
	case domain.ACTOR_ID_SCHEDULER:
		return state.schedulerActor
	}
	return nil
}

func restartDecider(logger *zap.Logger) actor.DeciderFunc {
	return func(reason interface{}) actor.Directive {
		logger.Warn("master@supervisor restarting child", zap.Any("reason", reason))
		return actor.RestartDirective
	}
}

func (state *MasterOfPuppetsActor) startModbusActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return state.modbusActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(modbusProps, domain.ACTOR_ID_MODBUS)
}

func (state *MasterOfPuppetsActor) startPowerFlowActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewAllForOneStrategy(1, 10*time.Second, restartDecider(state.logger))

	powerFlowProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPowerFlowActor(&state.config, state.modbusActor, state.schedulerActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(powerFlowProps, domain.ACTOR_ID_POWERFLOW)
}

func (state *MasterOfPuppetsActor) startSchedulerActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, restartDecider(state.logger))

	schedulerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSchedulerActor(&state.config, state.schedulerDeps, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(schedulerProps, domain.ACTOR_ID_SCHEDULER)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, restartDecider(state.logger))

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.modbusActor, state.mqttActor, state.schedulerActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) reset() {
	state.healthy = make(map[string]bool, len(healthChecked))
	state.checksReceived = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= len(healthChecked)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range healthChecked {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
