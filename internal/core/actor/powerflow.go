package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/config"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/events"
	. "github.com/berfenger/surplus2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PowerFlowActor polls the modbus actor for power samples, publishes them as
// sensor updates and hands them to the scheduler.
type PowerFlowActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor    *actor.PID
	schedulerActor *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream
	lastSample     *domain.PowerSample
	failures       uint

	logger *zap.Logger
}

type powerFlowTick struct {
}

func NewPowerFlowActor(config *config.Config, modbusActor, schedulerActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PowerFlowActor {
	act := &PowerFlowActor{
		config:         config,
		modbusActor:    modbusActor,
		schedulerActor: schedulerActor,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_POWERFLOW, logger),
		eventStream:    eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PowerFlowActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PowerFlowActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("powerflow@starting started", zap.Duration("interval", state.config.MonitorConfig.PollInterval()))
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.config.MonitorConfig.PollInterval() > 0 {
			state.scheduler.RequestOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), powerFlowTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("powerflow@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PowerFlowActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("powerflow@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POWERFLOW,
			Healthy: state.failures < 3,
			State:   "idle",
		})
	case powerFlowTick:
		state.logger.Debug("powerflow@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetPowerSampleRequest{}, 2500*time.Millisecond), func(err error) any {
			return domain.GetPowerSampleResponse{ActorResponseMixIn: domain.ResponseError(err)}
		})
		state.scheduler.RequestOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), powerFlowTick{})
		state.behavior.BecomeStacked(state.WaitingPFReceive)
	case domain.SchedulePowerSampleResponse:
		if msg.HasResponseError() {
			state.logger.Warn("powerflow@default scheduler rejected sample", zap.Error(msg.GetResponseError()))
		} else if len(msg.Changes) > 0 {
			state.logger.Debug("powerflow@default scheduled", zap.Any("changes", msg.Changes))
		}
	case *actor.Stopping:
	default:
		state.logger.Debug("powerflow@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PowerFlowActor) WaitingPFReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetPowerSampleResponse:
		state.behavior.UnbecomeStacked()
		if msg.HasResponseError() || msg.Sample == nil {
			// a failed read skips this tick; the scheduler keeps the last decisions
			state.failures++
			state.logger.Error("powerflow@waiting GetPowerSampleResponse error", zap.Error(msg.GetResponseError()), zap.Uint("failures", state.failures))
			state.stash.UnstashAll(ctx)
			return
		}
		state.failures = 0
		state.logger.Debug("powerflow@waiting GetPowerSampleResponse", zap.Float64("surplus", msg.Sample.SurplusPower))
		state.lastSample = msg.Sample
		for _, ev := range events.PowerSampleToUpdateEvents(*msg.Sample) {
			state.eventStream.Publish(ev)
		}
		if state.schedulerActor != nil {
			ctx.Request(state.schedulerActor, domain.SchedulePowerSampleRequest{Sample: *msg.Sample})
		}
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("powerflow@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}
