package domain

import "time"

// MaxStatsGap caps the time a single sample is integrated over. Longer gaps
// (restarts, meter outages) are not counted as energy.
const MaxStatsGap = 5 * time.Minute

// DailyStats accumulates the site energy balance of one day. Energies are in
// kWh, powers in W.
type DailyStats struct {
	Day time.Time `json:"date"`

	PVEnergy               float64 `json:"pv_energy"`
	ConsumptionEnergy      float64 `json:"consumption_energy"`
	SelfConsumptionEnergy  float64 `json:"self_consumption_energy"`
	FeedInEnergy           float64 `json:"feed_in_energy"`
	GridEnergy             float64 `json:"grid_energy"`
	BatteryChargeEnergy    float64 `json:"battery_charge_energy"`
	BatteryDischargeEnergy float64 `json:"battery_discharge_energy"`

	PVPowerMax          float64 `json:"pv_power_max"`
	ConsumptionPowerMax float64 `json:"consumption_power_max"`
	FeedInPowerMax      float64 `json:"feed_in_power_max"`
	GridPowerMax        float64 `json:"grid_power_max"`
	SurplusPowerMax     float64 `json:"surplus_power_max"`

	BatterySoCMin *float64 `json:"battery_soc_min"`
	BatterySoCMax *float64 `json:"battery_soc_max"`

	AutarkyAvg float64 `json:"autarky_avg"`
	Samples    int     `json:"samples"`

	FirstUpdate *time.Time `json:"first_update"`
	LastUpdate  *time.Time `json:"last_update"`
}

func NewDailyStats(day time.Time) *DailyStats {
	return &DailyStats{Day: day}
}

// Add folds a sample into the day. Its power is held since the previous
// sample, up to MaxStatsGap; the first sample of a day only counts for the
// peaks and averages. Samples older than the last one are ignored.
func (st *DailyStats) Add(sample PowerSample) {
	s := sample.WithDerived()
	ts := s.Timestamp
	if st.LastUpdate != nil && ts.Before(*st.LastUpdate) {
		return
	}

	if st.LastUpdate != nil {
		if elapsed := ts.Sub(*st.LastUpdate); elapsed <= MaxStatsGap {
			hours := elapsed.Hours()
			st.PVEnergy += kWh(s.PVPower, hours)
			st.ConsumptionEnergy += kWh(s.LoadPower, hours)
			st.SelfConsumptionEnergy += kWh(s.SelfConsumption, hours)
			st.FeedInEnergy += kWh(s.SurplusPower, hours)
			st.GridEnergy += kWh(s.GridImport(), hours)
			st.BatteryChargeEnergy += kWh(s.BatteryCharge(), hours)
			st.BatteryDischargeEnergy += kWh(s.BatteryDischarge(), hours)
		}
	} else {
		first := ts
		st.FirstUpdate = &first
	}
	st.LastUpdate = &ts

	st.PVPowerMax = max(st.PVPowerMax, s.PVPower)
	st.ConsumptionPowerMax = max(st.ConsumptionPowerMax, s.LoadPower)
	st.FeedInPowerMax = max(st.FeedInPowerMax, s.SurplusPower)
	st.GridPowerMax = max(st.GridPowerMax, s.GridImport())
	st.SurplusPowerMax = max(st.SurplusPowerMax, s.SurplusPower)

	if s.HasBattery {
		soc := s.BatterySoC
		if st.BatterySoCMin == nil || soc < *st.BatterySoCMin {
			st.BatterySoCMin = &soc
		}
		if st.BatterySoCMax == nil || soc > *st.BatterySoCMax {
			high := soc
			st.BatterySoCMax = &high
		}
	}

	st.AutarkyAvg = (st.AutarkyAvg*float64(st.Samples) + s.AutarkyRate) / float64(st.Samples+1)
	st.Samples++
}

// RuntimeHours is the time between the first and the last sample of the day.
func (st *DailyStats) RuntimeHours() float64 {
	if st.FirstUpdate == nil || st.LastUpdate == nil {
		return 0
	}
	return st.LastUpdate.Sub(*st.FirstUpdate).Hours()
}

// SelfSufficiencyRate is the share (percent) of the consumed energy that did
// not come from the grid.
func (st *DailyStats) SelfSufficiencyRate() float64 {
	if st.ConsumptionEnergy <= 0 {
		return 0
	}
	return st.SelfConsumptionEnergy * 100 / st.ConsumptionEnergy
}

func (st *DailyStats) Clone() *DailyStats {
	c := *st
	c.BatterySoCMin = clonePtr(st.BatterySoCMin)
	c.BatterySoCMax = clonePtr(st.BatterySoCMax)
	c.FirstUpdate = clonePtr(st.FirstUpdate)
	c.LastUpdate = clonePtr(st.LastUpdate)
	return &c
}

func kWh(watts, hours float64) float64 {
	return watts * hours / 1000
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
