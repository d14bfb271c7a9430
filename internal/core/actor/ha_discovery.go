package actor

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/config"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	schedulerActor     *actor.PID
	eventStream        *eventstream.EventStream
	eventStreamSub     *eventstream.Subscription
	modbusActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int
	bridgeDevice       domain.DiscoveryDevice
	announced          []string

	logger *zap.Logger
}

type onRosterChanged struct {
	devices []string
}

func NewHADiscoveryActor(config *config.Config, modbusActor, mqttActor, schedulerActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:         config,
		modbusActor:    modbusActor,
		mqttActor:      mqttActor,
		schedulerActor: schedulerActor,
		eventStream:    eventStream,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		state.healthyRecv = 0
		state.modbusActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MODBUS,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.modbusActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.modbusActorHealthy || !state.mqttActorHealthy {
				panic(errors.New("MQTT Actor or Modbus Actor are not healthy"))
			}
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetDevicesInfoRequest{}, 3*time.Second), func(err error) any {
				return domain.GetDevicesInfoResponse{ActorResponseMixIn: domain.ResponseError(err)}
			})
			state.behavior.Become(state.WaitingInfoReceive)
		}
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info GetDevicesInfoResponse", zap.Any("response", msg))

		state.bridgeDevice = domain.BridgeDevice(state.config.MQTT.BaseTopic)
		sensors := domain.BridgeSensors(state.bridgeDevice)

		if msg.Inverter != nil {
			inverterDevice := domain.InverterDevice(msg.Inverter)
			inverterDevice.ViaDevice = state.bridgeDevice.Id
			sensors = append(sensors, domain.PowerFlowSensors(inverterDevice, msg.Inverter.HasStorage)...)
		} else {
			sensors = append(sensors, domain.PowerFlowSensors(domain.IdDevice(state.bridgeDevice), false)...)
		}
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{Sensors: sensors})

		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.schedulerActor, domain.GetDevicesRequest{}, 3*time.Second), func(err error) any {
			return domain.GetDevicesResponse{ActorResponseMixIn: domain.ResponseError(err)}
		})
		state.behavior.Become(state.WaitingDevicesReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@info stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingDevicesReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		names := make([]string, len(msg.Devices))
		for i := range msg.Devices {
			names[i] = msg.Devices[i].Name
		}
		state.announceDevices(ctx, names)

		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(value any) {
			ctx.Send(ctx.Self(), onRosterChanged{devices: value.(domain.DeviceRosterChangedEvent).Devices})
		}, func(value any) bool {
			_, ok := value.(domain.DeviceRosterChangedEvent)
			return ok
		})
		state.behavior.Become(state.ListeningReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@devices stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) ListeningReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case onRosterChanged:
		state.logger.Debug("hadiscovery@listening roster changed", zap.Strings("devices", msg.devices))
		state.announceDevices(ctx, msg.devices)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "listening",
		})
	case *actor.Stopping, *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@listening recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// announceDevices publishes the switch and sensors of every device in names
// and retracts the entities of devices no longer present.
func (state *HADiscoveryActor) announceDevices(ctx actor.Context, names []string) {
	var removed []string
	for _, name := range state.announced {
		if !slices.Contains(names, name) {
			removed = append(removed, name)
		}
	}
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:         domain.ControlledDeviceSensors(state.bridgeDevice, names),
		Switches:        domain.ControlledDeviceSwitches(state.bridgeDevice, names),
		RemovedSensors:  domain.ControlledDeviceSensors(state.bridgeDevice, removed),
		RemovedSwitches: domain.ControlledDeviceSwitches(state.bridgeDevice, removed),
	})
	if len(removed) > 0 {
		state.logger.Info("hadiscovery@listening retract devices", zap.Strings("devices", removed))
	}
	state.announced = slices.Clone(names)
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
