package service

import (
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
	"github.com/berfenger/surplus2mqtt/internal/core/registry"
	"go.uber.org/zap"
)

const (
	ActionSwitchedOn  = "switched on"
	ActionSwitchedOff = "switched off"

	ReasonBatteryCritical  = "battery critical"
	ReasonSurplusLow       = "surplus below threshold"
	ReasonOutsideWindow    = "outside allowed time window"
	ReasonDailyLimit       = "daily runtime limit reached"
	ReasonShutdown         = "shutdown"
	ReasonManual           = "manual"
	reasonPreemptedPattern = "preempted by higher-priority device %s"
)

type SchedulerConfig struct {
	Hysteresis         time.Duration
	SettleWindow       time.Duration
	BatteryCriticalSoC float64
	BatteryMinSoC      float64
	// FailClosed keeps the internal state unchanged when the adapter rejects a command.
	FailClosed bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Hysteresis:         5 * time.Minute,
		SettleWindow:       15 * time.Second,
		BatteryCriticalSoC: 10,
		BatteryMinSoC:      20,
	}
}

// EnergyScheduler decides every tick which devices run on the current surplus.
// Calls must be serialized by the owner; the scheduler is the only writer of
// device runtime state.
type EnergyScheduler struct {
	Config   SchedulerConfig
	Registry *registry.Registry
	Adapter  port.HardwareAdapter
	Logger   *zap.Logger

	settle *settleTracker
	warned onceSet
}

func NewEnergyScheduler(reg *registry.Registry, adapter port.HardwareAdapter, config SchedulerConfig, logger *zap.Logger) *EnergyScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnergyScheduler{
		Config:   config,
		Registry: reg,
		Adapter:  adapter,
		Logger:   logger,
		settle:   newSettleTracker(config.SettleWindow),
		warned:   onceSet{},
	}
}

func switchedOff(reason string) string {
	return fmt.Sprintf("%s - %s", ActionSwitchedOff, reason)
}

// Update runs one control cycle on sample and returns the actions taken by device name.
func (s *EnergyScheduler) Update(sample domain.PowerSample, now time.Time) map[string]string {
	changes := make(map[string]string)
	s.Registry.Update(func(tx *registry.Tx) {
		s.settle.expire(now)
		s.reconcile(tx, now)

		devices := tx.ByPriority()
		surplus := s.shutdownPass(devices, sample, now, changes)

		s.Logger.Debug("scheduler: power budget",
			zap.Float64("surplus", surplus),
			zap.Float64("controlled", tx.TotalConsumption()))

		surplus = s.preemptionPass(tx, devices, sample, surplus, now, changes)
		s.switchOnPass(devices, sample, surplus+tx.TotalConsumption(), now, changes)
	})
	return changes
}

// reconcile adopts the hardware state of devices whose state changed outside the scheduler.
func (s *EnergyScheduler) reconcile(tx *registry.Tx, now time.Time) {
	if s.Adapter == nil || !s.Adapter.Connected() {
		return
	}
	for _, d := range tx.All() {
		if !s.Adapter.IsDeviceAvailable(d.Name) {
			if s.warned.first(d.Name) {
				s.Logger.Warn("scheduler: device not found on hardware backend, skipping sync",
					zap.String("device", d.Name),
					zap.String("backend", s.Adapter.InterfaceType()))
			}
			continue
		}
		if s.settle.settling(d.Name, now) {
			continue
		}
		state := s.Adapter.GetState(d.Name)
		if state == nil {
			continue
		}
		hwOn := *state
		switch {
		case hwOn && d.State != domain.DeviceStateOn:
			s.Logger.Info("scheduler: device switched on externally", zap.String("device", d.Name))
			d.MarkOn(now)
		case !hwOn && d.State == domain.DeviceStateOn:
			s.Logger.Info("scheduler: device switched off externally", zap.String("device", d.Name))
			d.MarkOff(now)
		}
	}
}

// shutdownPass switches off running devices that lost their supply and
// returns the surplus including the power they released.
func (s *EnergyScheduler) shutdownPass(devices []*domain.Device, sample domain.PowerSample, now time.Time, changes map[string]string) float64 {
	surplus := sample.SurplusPower
	for _, d := range devices {
		if d.State != domain.DeviceStateOn {
			continue
		}
		if s.batteryCritical(sample) {
			if s.switchOff(d, now, ReasonBatteryCritical, changes) {
				surplus += d.PowerConsumption
			}
			continue
		}
		effective := surplus + d.PowerConsumption
		if sample.BatteryPower > 0 {
			effective -= sample.BatteryPower
		}
		if effective < d.SwitchOffThreshold && d.MinRuntimeElapsed(now) {
			if s.switchOff(d, now, ReasonSurplusLow, changes) {
				surplus += d.PowerConsumption
			}
		}
	}
	return surplus
}

// preemptionPass frees budget for important devices by stopping less important ones.
func (s *EnergyScheduler) preemptionPass(tx *registry.Tx, devices []*domain.Device, sample domain.PowerSample,
	surplus float64, now time.Time, changes map[string]string) float64 {

	available := surplus + tx.TotalConsumption()
	for _, target := range devices {
		if target.State == domain.DeviceStateOn || !s.eligible(target, sample, now) {
			continue
		}
		if available >= target.SwitchOnThreshold {
			continue
		}

		var candidates []*domain.Device
		pool := 0.0
		for _, c := range slices.Backward(devices) {
			if available+pool >= target.SwitchOnThreshold {
				break
			}
			if c.State != domain.DeviceStateOn || c.Priority <= target.Priority || !c.MinRuntimeElapsed(now) {
				continue
			}
			candidates = append(candidates, c)
			pool += c.PowerConsumption
		}
		if available+pool < target.SwitchOnThreshold {
			continue
		}

		reason := fmt.Sprintf(reasonPreemptedPattern, target.Name)
		freed := 0.0
		for _, c := range candidates {
			if s.switchOff(c, now, reason, changes) {
				freed += c.PowerConsumption
			}
		}
		surplus += freed
		if freed < pool {
			// some candidate kept running, the budget no longer holds
			continue
		}
		if s.switchOn(target, now, changes) {
			surplus -= target.PowerConsumption
			available -= target.PowerConsumption
		}
	}
	return surplus
}

// switchOnPass applies the feasibility constraints and starts devices in
// priority order while the budget lasts.
func (s *EnergyScheduler) switchOnPass(devices []*domain.Device, sample domain.PowerSample,
	available float64, now time.Time, changes map[string]string) {

	for _, d := range devices {
		if !d.IsTimeAllowed(now) {
			s.block(d, now, ReasonOutsideWindow, changes)
			continue
		}
		if capReached(d, now) {
			s.block(d, now, ReasonDailyLimit, changes)
			continue
		}
		if d.State == domain.DeviceStateBlocked {
			s.Logger.Info("scheduler: device unblocked", zap.String("device", d.Name))
			d.State = domain.DeviceStateOff
		}
		if d.State != domain.DeviceStateOff {
			continue
		}
		if s.batteryAllowsStart(sample) &&
			available >= d.SwitchOnThreshold &&
			d.HysteresisElapsed(now, s.Config.Hysteresis) {
			if s.switchOn(d, now, changes) {
				available -= d.PowerConsumption
			}
		}
	}
}

func (s *EnergyScheduler) block(d *domain.Device, now time.Time, reason string, changes map[string]string) {
	if d.State == domain.DeviceStateOn {
		if !s.switchOff(d, now, reason, changes) {
			return
		}
	}
	if d.State != domain.DeviceStateBlocked {
		s.Logger.Info("scheduler: device blocked", zap.String("device", d.Name), zap.String("reason", reason))
		d.State = domain.DeviceStateBlocked
	}
}

// eligible checks everything but the power budget for an OFF or BLOCKED device.
func (s *EnergyScheduler) eligible(d *domain.Device, sample domain.PowerSample, now time.Time) bool {
	return d.IsTimeAllowed(now) &&
		!capReached(d, now) &&
		s.batteryAllowsStart(sample) &&
		d.HysteresisElapsed(now, s.Config.Hysteresis)
}

func capReached(d *domain.Device, now time.Time) bool {
	return d.MaxRuntimePerDay > 0 && d.CurrentRuntime(now) >= d.MaxRuntimePerDay
}

func (s *EnergyScheduler) batteryCritical(sample domain.PowerSample) bool {
	return sample.HasBattery && sample.BatterySoC < s.Config.BatteryCriticalSoC
}

func (s *EnergyScheduler) batteryAllowsStart(sample domain.PowerSample) bool {
	return !sample.HasBattery || sample.BatterySoC >= s.Config.BatteryMinSoC
}

func (s *EnergyScheduler) switchOn(d *domain.Device, now time.Time, changes map[string]string) bool {
	if !s.actuate(d.Name, true) && s.Config.FailClosed {
		return false
	}
	s.settle.mark(d.Name, now)
	d.MarkOn(now)
	s.Logger.Info("scheduler: device switched on",
		zap.String("device", d.Name),
		zap.Float64("power", d.PowerConsumption))
	changes[d.Name] = ActionSwitchedOn
	return true
}

func (s *EnergyScheduler) switchOff(d *domain.Device, now time.Time, reason string, changes map[string]string) bool {
	if !s.actuate(d.Name, false) && s.Config.FailClosed {
		return false
	}
	s.settle.mark(d.Name, now)
	d.MarkOff(now)
	s.Logger.Info("scheduler: device switched off",
		zap.String("device", d.Name),
		zap.String("reason", reason),
		zap.Int("runtime_today", d.RuntimeToday))
	changes[d.Name] = switchedOff(reason)
	return true
}

// actuate calls the hardware adapter. Failures are logged and reported as false.
func (s *EnergyScheduler) actuate(name string, on bool) (ok bool) {
	if s.Adapter == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Warn("scheduler: hardware adapter panicked",
				zap.String("device", name), zap.Any("panic", r))
			ok = false
		}
	}()
	if on {
		ok = s.Adapter.SwitchOn(name)
	} else {
		ok = s.Adapter.SwitchOff(name)
	}
	if !ok {
		s.Logger.Warn("scheduler: hardware switch failed",
			zap.String("device", name),
			zap.Bool("on", on),
			zap.String("backend", s.Adapter.InterfaceType()))
	}
	return ok
}

// SwitchDevice applies a manual command. It returns the action taken, or an
// empty action when the device already was in the requested state.
func (s *EnergyScheduler) SwitchDevice(name string, mode domain.SwitchMode, now time.Time) (string, domain.DeviceState, error) {
	var (
		action string
		state  domain.DeviceState
		err    error
	)
	s.Registry.Update(func(tx *registry.Tx) {
		d := tx.Get(name)
		if d == nil {
			err = fmt.Errorf("%w: %q", domain.ErrNotFound, name)
			return
		}
		on := d.State != domain.DeviceStateOn
		switch mode {
		case domain.SwitchModeOn:
			on = true
		case domain.SwitchModeOff:
			on = false
		case domain.SwitchModeToggle:
		default:
			err = fmt.Errorf("unknown switch mode %q", mode)
			return
		}
		changes := make(map[string]string, 1)
		switch {
		case on && d.State != domain.DeviceStateOn:
			if !s.switchOn(d, now, changes) {
				err = fmt.Errorf("%w: %q", domain.ErrSwitchFailed, name)
			}
		case !on && d.State == domain.DeviceStateOn:
			if !s.switchOff(d, now, ReasonManual, changes) {
				err = fmt.Errorf("%w: %q", domain.ErrSwitchFailed, name)
			}
		}
		action = changes[name]
		state = d.State
	})
	return action, state, err
}

// Shutdown switches off every running device.
func (s *EnergyScheduler) Shutdown(now time.Time) map[string]string {
	changes := make(map[string]string)
	s.Registry.Update(func(tx *registry.Tx) {
		for _, d := range tx.ActiveDevices() {
			s.switchOff(d, now, ReasonShutdown, changes)
		}
	})
	return changes
}

// DailyReset clears the daily runtime counters and unblocks devices. It
// returns the runtime each device accumulated before the reset.
func (s *EnergyScheduler) DailyReset(now time.Time) map[string]int {
	runtimes := make(map[string]int)
	s.Registry.Update(func(tx *registry.Tx) {
		for _, d := range tx.All() {
			runtimes[d.Name] = d.CurrentRuntime(now)
			d.ResetDaily(now)
		}
	})
	s.Logger.Info("scheduler: daily statistics reset", zap.Int("devices", len(runtimes)))
	return runtimes
}

// ConstraintsDue reports whether a device has to change state because of its
// time window or daily cap, whatever the power sample says.
func (s *EnergyScheduler) ConstraintsDue(now time.Time) bool {
	for _, d := range s.Registry.ByPriority() {
		switch d.State {
		case domain.DeviceStateOn:
			if !d.IsTimeAllowed(now) || capReached(d, now) {
				return true
			}
		case domain.DeviceStateBlocked:
			if d.IsTimeAllowed(now) && !capReached(d, now) {
				return true
			}
		}
	}
	return false
}

// Forget drops transient state kept for a removed device.
func (s *EnergyScheduler) Forget(name string) {
	s.settle.forget(name)
	delete(s.warned, name)
}
