package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/util/actorutil"
	"github.com/berfenger/surplus2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const modbusTaskTimeout = 2 * time.Second

// ModbusActor serializes every read of the inverter and the smart meter.
// Reads run as background tasks; requests arriving meanwhile are stashed.
type ModbusActor struct {
	behavior   actor.Behavior
	stash      *actorutil.Stash
	inverter   sunspec.InverterModbusReader
	acMeter    sunspec.ACMeterModbusReader
	hasStorage bool
	logger     *zap.Logger
	now        func() time.Time
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(inverter sunspec.InverterModbusReader, acMeter sunspec.ACMeterModbusReader, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		inverter: inverter,
		acMeter:  acMeter,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
		now:      time.Now,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if state.inverter != nil {
			if err := state.inverter.Open(); err != nil {
				panic(err)
			}
			if err := state.inverter.Validate(); err != nil {
				panic(err)
			}
			hasStorage, err := state.inverter.HasStorage()
			if err != nil {
				panic(err)
			}
			state.hasStorage = hasStorage
		}
		if state.acMeter != nil {
			if err := state.acMeter.Open(); err != nil {
				panic(err)
			}
			if err := state.acMeter.Validate(); err != nil {
				panic(err)
			}
		}
		state.logger.Info("modbus@starting readers open", zap.Bool("storage", state.hasStorage))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDevicesInfo),
			mapTaskResult[domain.GetDevicesInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDevicesInfoResponse{ActorResponseMixIn: domain.ResponseError(err)},
				replyTo: sender,
			}
		}).WithTimeout(modbusTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetPowerSampleRequest:
		state.logger.Debug("modbus@default GetPowerSampleRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getPowerSample),
			mapTaskResult[domain.GetPowerSampleResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetPowerSampleResponse{ActorResponseMixIn: domain.ResponseError(err)},
				replyTo: sender,
			}
		}).WithTimeout(modbusTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.close()
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("modbus@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) close() {
	if state.inverter != nil {
		state.inverter.Close()
	}
	if state.acMeter != nil {
		state.acMeter.Close()
	}
}

func (a *ModbusActor) getDevicesInfo() (*domain.GetDevicesInfoResponse, error) {
	resp := &domain.GetDevicesInfoResponse{}
	var err error
	if a.inverter != nil {
		if resp.Inverter, err = a.inverter.GetInfo(); err != nil {
			a.logger.Error("modbus: inverter info", zap.Error(err))
			return nil, err
		}
	}
	if a.acMeter != nil {
		if resp.ACMeter, err = a.acMeter.GetInfo(); err != nil {
			a.logger.Error("modbus: meter info", zap.Error(err))
			return nil, err
		}
	}
	return resp, nil
}

// getPowerSample needs the meter; inverter and storage reads are best effort
// as the scheduler works on grid export alone.
func (a *ModbusActor) getPowerSample() (*domain.GetPowerSampleResponse, error) {
	if a.acMeter == nil {
		return nil, fmt.Errorf("modbus: no smart meter configured")
	}
	meter, err := a.acMeter.GetPowerFlow()
	if err != nil {
		a.logger.Error("modbus: meter power flow", zap.Error(err))
		return nil, err
	}
	var inverter *sunspec.InverterPowerFlow
	var storage *sunspec.StorageState
	if a.inverter != nil {
		if inverter, err = a.inverter.GetPowerFlow(); err != nil {
			a.logger.Warn("modbus: inverter power flow", zap.Error(err))
			inverter = nil
		}
		if a.hasStorage && inverter != nil {
			if storage, err = a.inverter.GetStorageState(); err != nil {
				a.logger.Warn("modbus: storage state", zap.Error(err))
				storage = nil
			}
		}
	}
	sample := domain.SampleFromReadings(meter, inverter, storage, a.now())
	return &domain.GetPowerSampleResponse{Sample: &sample}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
