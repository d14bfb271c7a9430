package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyStatsAccumulates(t *testing.T) {

	assert := assert.New(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sunny := func(ts time.Time, soc float64) PowerSample {
		return PowerSample{PVPower: 3000, BatteryPower: -500, GridPower: -1000, SurplusPower: 1000,
			HasBattery: true, BatterySoC: soc, Timestamp: ts}
	}

	st := NewDailyStats(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	st.Add(sunny(noon, 40))
	assert.Zero(st.PVEnergy, "the first sample has no duration")
	assert.Equal(3000.0, st.PVPowerMax)
	st.Add(sunny(noon.Add(3*time.Minute), 45))
	st.Add(PowerSample{PVPower: 500, BatteryPower: 200, GridPower: 300, HasBattery: true, BatterySoC: 44,
		Timestamp: noon.Add(6 * time.Minute)})

	assert.InDelta(0.175, st.PVEnergy, 1e-9)
	assert.InDelta(0.125, st.ConsumptionEnergy, 1e-9)
	assert.InDelta(0.11, st.SelfConsumptionEnergy, 1e-9)
	assert.InDelta(0.05, st.FeedInEnergy, 1e-9)
	assert.InDelta(0.015, st.GridEnergy, 1e-9)
	assert.InDelta(0.025, st.BatteryChargeEnergy, 1e-9)
	assert.InDelta(0.01, st.BatteryDischargeEnergy, 1e-9)
	assert.InDelta(88.0, st.SelfSufficiencyRate(), 1e-9)

	assert.Equal(1500.0, st.ConsumptionPowerMax)
	assert.Equal(1000.0, st.FeedInPowerMax)
	assert.Equal(1000.0, st.SurplusPowerMax)
	assert.Equal(300.0, st.GridPowerMax)
	require.NotNil(t, st.BatterySoCMin)
	assert.Equal(40.0, *st.BatterySoCMin)
	assert.Equal(45.0, *st.BatterySoCMax)
	assert.InDelta(90.0, st.AutarkyAvg, 1e-9)
	assert.Equal(3, st.Samples)
}

func TestDailyStatsGaps(t *testing.T) {

	assert := assert.New(t)
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sample := func(ts time.Time) PowerSample {
		return PowerSample{PVPower: 1000, GridPower: -1000, SurplusPower: 1000, Timestamp: ts}
	}

	st := NewDailyStats(noon)
	st.Add(sample(noon))
	st.Add(sample(noon.Add(time.Hour)))
	assert.Zero(st.PVEnergy, "an outage is not integrated")
	assert.Equal(2, st.Samples)

	st.Add(sample(noon.Add(30 * time.Minute)))
	assert.Equal(2, st.Samples, "out of order samples are dropped")

	st.Add(sample(noon.Add(time.Hour + MaxStatsGap)))
	assert.InDelta(1000.0*MaxStatsGap.Hours()/1000, st.PVEnergy, 1e-9)
	assert.InDelta(1+MaxStatsGap.Hours(), st.RuntimeHours(), 1e-9)
	assert.Nil(st.BatterySoCMin, "no battery")
	assert.Zero(st.AutarkyAvg)
}

func TestDailyStatsClone(t *testing.T) {

	st := NewDailyStats(time.Now())
	assert.Zero(t, st.RuntimeHours())
	assert.Zero(t, st.SelfSufficiencyRate())
	st.Add(PowerSample{HasBattery: true, BatterySoC: 50, Timestamp: time.Now()})

	c := st.Clone()
	*c.BatterySoCMin = 10
	*c.LastUpdate = c.LastUpdate.Add(time.Hour)
	assert.Equal(t, 50.0, *st.BatterySoCMin)
	assert.Zero(t, st.RuntimeHours())
}
