package service

import (
	"math"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
)

// UpdateGate filters power samples so the scheduler only runs when the
// surplus moved noticeably, the battery crossed its critical charge, or
// enough time has passed since the last run.
type UpdateGate struct {
	MinSurplusDelta float64
	MinInterval     time.Duration
	CriticalSoC     float64

	lastSurplus  float64
	lastUpdate   time.Time
	lastCritical bool
	primed       bool
}

func NewUpdateGate(minSurplusDelta float64, minInterval time.Duration, criticalSoC float64) *UpdateGate {
	return &UpdateGate{MinSurplusDelta: minSurplusDelta, MinInterval: minInterval, CriticalSoC: criticalSoC}
}

func (g *UpdateGate) critical(sample domain.PowerSample) bool {
	return sample.HasBattery && sample.BatterySoC < g.CriticalSoC
}

// Accept reports whether the sample should be scheduled and records it when it is.
func (g *UpdateGate) Accept(sample domain.PowerSample, now time.Time) bool {
	if g.primed &&
		g.critical(sample) == g.lastCritical &&
		math.Abs(sample.SurplusPower-g.lastSurplus) < g.MinSurplusDelta &&
		now.Sub(g.lastUpdate) < g.MinInterval {
		return false
	}
	g.Record(sample, now)
	return true
}

// Record marks sample as scheduled. Used when the scheduler runs without asking the gate.
func (g *UpdateGate) Record(sample domain.PowerSample, now time.Time) {
	g.primed = true
	g.lastSurplus = sample.SurplusPower
	g.lastUpdate = now
	g.lastCritical = g.critical(sample)
}

// Reset forces the next sample through.
func (g *UpdateGate) Reset() {
	g.primed = false
}
