package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/config"
	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/events"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
	"github.com/berfenger/surplus2mqtt/internal/core/registry"
	"github.com/berfenger/surplus2mqtt/internal/core/service"
	. "github.com/berfenger/surplus2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const historyTimeout = 2 * time.Second

// SchedulerDeps are the collaborators of the scheduler actor. Recorder and
// Telemetry are optional.
type SchedulerDeps struct {
	Registry  *registry.Registry
	Adapter   port.HardwareAdapter
	Store     port.DeviceStore
	Recorder  port.EventRecorder
	Telemetry port.TelemetrySink
	Clock     func() time.Time
}

// SchedulerActor owns the energy scheduler. Every mutation of device state
// goes through its mailbox.
type SchedulerActor struct {
	ActorWithStates
	stash       *Stash
	timer       *scheduler.TimerScheduler
	config      *config.Config
	deps        SchedulerDeps
	engine      *service.EnergyScheduler
	gate        *service.UpdateGate
	reset       *service.ResetSchedule
	cancelReset scheduler.CancelFunc
	eventStream *eventstream.EventStream
	lastSample  *domain.PowerSample
	dayStart    time.Time
	stats       *domain.DailyStats

	logger *zap.Logger
}

type dailyResetTick struct {
}

func NewSchedulerActor(config *config.Config, deps SchedulerDeps, eventStream *eventstream.EventStream, logger *zap.Logger) *SchedulerActor {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	act := &SchedulerActor{
		config:      config,
		deps:        deps,
		stash:       &Stash{},
		eventStream: eventStream,
		logger:      ActorLogger(domain.ACTOR_ID_SCHEDULER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.engine = service.NewEnergyScheduler(deps.Registry, deps.Adapter, service.SchedulerConfig{
		Hysteresis:         config.SchedulerConfig.Hysteresis(),
		SettleWindow:       config.SchedulerConfig.SettleWindow(),
		BatteryCriticalSoC: config.SchedulerConfig.BatteryCriticalSoC,
		BatteryMinSoC:      config.SchedulerConfig.BatteryMinSoC,
		FailClosed:         config.SchedulerConfig.FailClosed,
	}, act.logger)
	act.gate = service.NewUpdateGate(config.SchedulerConfig.MinSurplusDelta, config.SchedulerConfig.MinUpdateInterval(),
		config.SchedulerConfig.BatteryCriticalSoC)
	act.Become(SchedStartingState{
		actor: act,
	})
	return act
}

func (state *SchedulerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type SchedStartingState struct {
	ActorState
	actor *SchedulerActor
}

func (state SchedStartingState) Name() string {
	return "starting"
}

func (state SchedStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("scheduler@starting started")
		state.actor.timer = scheduler.NewTimerScheduler(ctx)

		reset, err := service.NewResetSchedule(state.actor.config.SchedulerConfig.DailyResetCron, time.Local)
		if err != nil {
			panic(err)
		}
		state.actor.reset = reset

		if state.actor.deps.Adapter != nil && !state.actor.deps.Adapter.Connected() {
			if !state.actor.deps.Adapter.Connect() {
				state.actor.logger.Warn("scheduler@starting hardware adapter not connected, switching optimistically",
					zap.String("backend", state.actor.deps.Adapter.InterfaceType()))
			}
		}

		now := state.actor.deps.Clock()
		state.actor.dayStart = startOfDay(now)
		state.actor.stats = state.actor.restoreStats(state.actor.dayStart)
		state.actor.scheduleReset(ctx, now)
		state.actor.publishRoster()
		state.actor.publishStatus(nil, now)

		state.actor.logger.Info("scheduler@starting ready", zap.Int("devices", state.actor.deps.Registry.Len()))
		state.actor.Become(SchedRunningState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.cancelTimers()
	default:
		state.actor.logger.Debug("scheduler@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Running state

type SchedRunningState struct {
	ActorState
	actor *SchedulerActor
}

func (state SchedRunningState) Name() string {
	return "running"
}

func (state SchedRunningState) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		a.logger.Debug("scheduler@running ActorHealthRequest")
		healthy := a.deps.Adapter == nil || a.deps.Adapter.Connected()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SCHEDULER,
			Healthy: healthy,
			State:   state.Name(),
		})
	case domain.SchedulePowerSampleRequest:
		now := a.deps.Clock()
		sample := msg.Sample.WithDerived()
		a.lastSample = &sample
		a.stats.Add(sample)
		if a.engine.ConstraintsDue(now) {
			a.gate.Record(sample, now)
		} else if !a.gate.Accept(sample, now) {
			a.logger.Debug("scheduler@running sample skipped", zap.Float64("surplus", sample.SurplusPower))
			ForRequest(msg).Respond(ctx, domain.SchedulePowerSampleResponse{Skipped: true})
			return
		}
		changes := a.engine.Update(sample, now)
		a.afterChanges(changes, sample, now)
		if a.deps.Telemetry != nil {
			a.deps.Telemetry.WriteSample(sample, a.deps.Registry.TotalConsumption(), len(a.deps.Registry.ActiveDevices()))
			a.deps.Telemetry.WriteDeviceStates(a.deps.Registry.Statuses(now), now)
		}
		ForRequest(msg).Respond(ctx, domain.SchedulePowerSampleResponse{Changes: changes})
	case domain.GetCurrentSampleRequest:
		resp := domain.GetCurrentSampleResponse{
			Sample:          a.lastSample,
			ControlledPower: a.deps.Registry.TotalConsumption(),
			ActiveDevices:   len(a.deps.Registry.ActiveDevices()),
		}
		if a.lastSample == nil {
			resp.ActorResponseMixIn = domain.ResponseError(domain.ErrNoSample)
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.GetDevicesRequest:
		ForRequest(msg).Respond(ctx, domain.GetDevicesResponse{Devices: a.deps.Registry.Statuses(a.deps.Clock())})
	case domain.GetDeviceRequest:
		d, ok := a.deps.Registry.Get(msg.Name)
		if !ok {
			ForRequest(msg).Respond(ctx, domain.GetDeviceResponse{
				ActorResponseMixIn: domain.ResponseError(fmt.Errorf("%w: %q", domain.ErrNotFound, msg.Name)),
			})
			return
		}
		status := domain.StatusOf(d, a.deps.Clock())
		ForRequest(msg).Respond(ctx, domain.GetDeviceResponse{Device: &status})
	case domain.AddDeviceRequest:
		ForRequest(msg).Respond(ctx, a.addDevice(msg.Record))
	case domain.RemoveDeviceRequest:
		ForRequest(msg).Respond(ctx, a.removeDevice(msg.Name))
	case domain.SwitchDeviceRequest:
		ForRequest(msg).Respond(ctx, a.switchDevice(msg))
	case domain.SaveDevicesRequest:
		resp := domain.SaveDevicesResponse{}
		n, err := a.deps.Registry.Save(a.deps.Store)
		if err != nil {
			a.logger.Error("scheduler@running save devices", zap.Error(err))
			resp.ActorResponseMixIn = domain.ResponseError(err)
		} else {
			a.logger.Info("scheduler@running devices saved", zap.Int("count", n))
			resp.Count = n
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.GetEventsRequest:
		resp := domain.GetEventsResponse{Events: []domain.DeviceEvent{}}
		if a.deps.Recorder != nil {
			c, cancel := context.WithTimeout(context.Background(), historyTimeout)
			evs, err := a.deps.Recorder.RecentEvents(c, msg.Limit)
			cancel()
			if err != nil {
				resp.ActorResponseMixIn = domain.ResponseError(err)
			} else {
				resp.Events = evs
			}
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.GetDailyStatsRequest:
		ForRequest(msg).Respond(ctx, a.dailyStats(msg.Day))
	case dailyResetTick:
		a.logger.Debug("scheduler@running dailyResetTick")
		now := a.deps.Clock()
		a.dailyReset(now)
		a.scheduleReset(ctx, now)
	case domain.DailyResetRequest:
		a.dailyReset(a.deps.Clock())
		ForRequest(msg).Respond(ctx, domain.DailyResetResponse{})
	case *actor.Stopping:
		a.logger.Debug("scheduler@running stopping")
		a.stop()
	case *actor.Restarting:
		a.cancelTimers()
	default:
		a.logger.Debug("scheduler@running recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (a *SchedulerActor) addDevice(rec domain.DeviceRecord) domain.AddDeviceResponse {
	d, err := rec.ToDevice()
	if err == nil {
		err = a.deps.Registry.Add(d)
	}
	if err != nil {
		a.logger.Warn("scheduler@running add device rejected", zap.String("device", rec.Name), zap.Error(err))
		return domain.AddDeviceResponse{ActorResponseMixIn: domain.ResponseError(err)}
	}
	a.logger.Info("scheduler@running device added", zap.String("device", d.Name), zap.String("priority", d.Priority.Label()))
	a.gate.Reset()
	a.publishRoster()
	status := domain.StatusOf(d, a.deps.Clock())
	return domain.AddDeviceResponse{Device: &status}
}

func (a *SchedulerActor) removeDevice(name string) domain.RemoveDeviceResponse {
	now := a.deps.Clock()
	if _, ok := a.deps.Registry.Get(name); !ok {
		return domain.RemoveDeviceResponse{
			ActorResponseMixIn: domain.ResponseError(fmt.Errorf("%w: %q", domain.ErrNotFound, name)),
		}
	}
	// a running device is released before it leaves the registry
	action, _, err := a.engine.SwitchDevice(name, domain.SwitchModeOff, now)
	if err != nil {
		a.logger.Warn("scheduler@running switch off before remove", zap.String("device", name), zap.Error(err))
	} else if action != "" {
		a.afterChanges(map[string]string{name: action}, a.sampleOrZero(now), now)
	}
	a.deps.Registry.Remove(name)
	a.engine.Forget(name)
	a.logger.Info("scheduler@running device removed", zap.String("device", name))
	a.gate.Reset()
	a.publishRoster()
	return domain.RemoveDeviceResponse{}
}

func (a *SchedulerActor) switchDevice(msg domain.SwitchDeviceRequest) domain.SwitchDeviceResponse {
	name := msg.Name
	if name == "" && msg.SwitchId != "" {
		name = a.nameForSwitchId(msg.SwitchId)
	}
	if name == "" {
		return domain.SwitchDeviceResponse{
			ActorResponseMixIn: domain.ResponseError(fmt.Errorf("%w: switch %q", domain.ErrNotFound, msg.SwitchId)),
		}
	}
	now := a.deps.Clock()
	action, st, err := a.engine.SwitchDevice(name, msg.Mode, now)
	resp := domain.SwitchDeviceResponse{Name: name, Action: action, State: st}
	if err != nil {
		a.logger.Warn("scheduler@running manual switch failed", zap.String("device", name), zap.Error(err))
		resp.ActorResponseMixIn = domain.ResponseError(err)
		// republish so the switch entity falls back to the real state
		a.publishStatus(nil, now)
		return resp
	}
	a.logger.Info("scheduler@running manual switch", zap.String("device", name), zap.String("mode", string(msg.Mode)), zap.String("action", action))
	if action != "" {
		a.afterChanges(map[string]string{name: action}, a.sampleOrZero(now), now)
	} else {
		a.publishStatus(nil, now)
	}
	return resp
}

func (a *SchedulerActor) nameForSwitchId(switchId string) string {
	for _, name := range a.deps.Registry.Names() {
		if domain.DeviceSwitchId(name) == switchId {
			return name
		}
	}
	return ""
}

func (a *SchedulerActor) sampleOrZero(now time.Time) domain.PowerSample {
	if a.lastSample != nil {
		return *a.lastSample
	}
	return domain.PowerSample{Timestamp: now}
}

// afterChanges publishes and records the outcome of a control cycle.
func (a *SchedulerActor) afterChanges(changes map[string]string, sample domain.PowerSample, now time.Time) {
	statuses := a.publishStatus(changes, now)
	if len(changes) == 0 {
		return
	}
	for name, action := range changes {
		a.logger.Info("scheduler@running "+action, zap.String("device", name), zap.Float64("surplus", sample.SurplusPower))
	}
	if a.eventStream != nil {
		a.eventStream.Publish(domain.DeviceChangesEvent{Changes: changes, Sample: sample, Timestamp: now})
	}
	if a.deps.Recorder != nil {
		states := make(map[string]domain.DeviceState, len(changes))
		for _, s := range statuses {
			if _, ok := changes[s.Name]; ok {
				states[s.Name] = s.State
			}
		}
		c, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := a.deps.Recorder.RecordChanges(c, changes, states, sample, now); err != nil {
			a.logger.Error("scheduler@running record changes", zap.Error(err))
		}
	}
}

func (a *SchedulerActor) publishStatus(changes map[string]string, now time.Time) []domain.DeviceStatus {
	statuses := a.deps.Registry.Statuses(now)
	if a.eventStream == nil {
		return statuses
	}
	var evs []any
	if len(changes) > 0 {
		evs = append(evs, events.LastActionUpdateEvents(changes)...)
	}
	evs = append(evs, events.DeviceStatusUpdateEvents(statuses)...)
	evs = append(evs, events.ControlledLoadUpdateEvents(a.deps.Registry.TotalConsumption(), len(a.deps.Registry.ActiveDevices()))...)
	for _, ev := range evs {
		a.eventStream.Publish(ev)
	}
	return statuses
}

func (a *SchedulerActor) publishRoster() {
	if a.eventStream != nil {
		a.eventStream.Publish(domain.DeviceRosterChangedEvent{Devices: a.deps.Registry.Names()})
	}
}

func (a *SchedulerActor) dailyReset(now time.Time) {
	day := a.dayStart
	runtimes := a.engine.DailyReset(now)
	if a.deps.Recorder != nil && len(runtimes) > 0 {
		c, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := a.deps.Recorder.RecordDailySummary(c, day, runtimes); err != nil {
			a.logger.Error("scheduler@running record daily summary", zap.Error(err))
		}
	}
	a.persistStats()
	a.logger.Info("scheduler@running daily stats closed", zap.Time("day", day),
		zap.Float64("pv_kwh", a.stats.PVEnergy), zap.Float64("consumption_kwh", a.stats.ConsumptionEnergy),
		zap.Float64("autarky_avg", a.stats.AutarkyAvg))
	a.dayStart = startOfDay(now)
	a.stats = domain.NewDailyStats(a.dayStart)
	a.gate.Reset()
	a.publishStatus(nil, now)
}

// dailyStats answers from memory for the running day and from the history
// store for earlier days.
func (a *SchedulerActor) dailyStats(day time.Time) domain.GetDailyStatsResponse {
	if day.IsZero() || startOfDay(day).Equal(a.dayStart) {
		return domain.GetDailyStatsResponse{Stats: a.stats.Clone()}
	}
	if a.deps.Recorder == nil {
		return domain.GetDailyStatsResponse{
			ActorResponseMixIn: domain.ResponseError(fmt.Errorf("%w: no history for %s", domain.ErrNotFound, day.Format(time.DateOnly))),
		}
	}
	c, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	st, err := a.deps.Recorder.DailyStats(c, day)
	if err != nil {
		return domain.GetDailyStatsResponse{ActorResponseMixIn: domain.ResponseError(err)}
	}
	return domain.GetDailyStatsResponse{Stats: st}
}

// restoreStats picks up the running day after a restart.
func (a *SchedulerActor) restoreStats(day time.Time) *domain.DailyStats {
	if a.deps.Recorder != nil {
		c, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		st, err := a.deps.Recorder.DailyStats(c, day)
		if err == nil {
			a.logger.Info("scheduler@starting daily stats restored", zap.Int("samples", st.Samples))
			return st
		}
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("scheduler@starting restore daily stats", zap.Error(err))
		}
	}
	return domain.NewDailyStats(day)
}

func (a *SchedulerActor) persistStats() {
	if a.deps.Recorder == nil || a.stats == nil || a.stats.Samples == 0 {
		return
	}
	c, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := a.deps.Recorder.RecordDailyStats(c, a.stats); err != nil {
		a.logger.Error("scheduler@running record daily stats", zap.Error(err))
	}
}

func (a *SchedulerActor) scheduleReset(ctx actor.Context, now time.Time) {
	next, err := a.reset.Next(now)
	if err != nil {
		a.logger.Error("scheduler@running no next daily reset", zap.Error(err))
		return
	}
	a.logger.Debug("scheduler@running next daily reset", zap.Time("at", next))
	a.cancelReset = a.timer.RequestOnce(next.Sub(now), ctx.Self(), dailyResetTick{})
}

func (a *SchedulerActor) cancelTimers() {
	if a.cancelReset != nil {
		a.cancelReset()
		a.cancelReset = nil
	}
}

func (a *SchedulerActor) stop() {
	a.cancelTimers()
	now := a.deps.Clock()
	changes := a.engine.Shutdown(now)
	a.afterChanges(changes, a.sampleOrZero(now), now)
	if a.deps.Adapter != nil {
		a.deps.Adapter.Disconnect()
	}
	if a.deps.Telemetry != nil {
		a.deps.Telemetry.Close()
	}
	a.persistStats()
	if a.deps.Recorder != nil {
		if err := a.deps.Recorder.Close(); err != nil {
			a.logger.Warn("scheduler@stopping close history", zap.Error(err))
		}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
