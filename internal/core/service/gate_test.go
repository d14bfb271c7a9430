package service

import (
	"testing"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestUpdateGate(t *testing.T) {

	assert := assert.New(t)

	g := NewUpdateGate(50, time.Minute, 10)

	assert.True(g.Accept(surplus(1000), noon), "first sample")
	assert.False(g.Accept(surplus(1030), noon.Add(5*time.Second)))
	assert.True(g.Accept(surplus(1050), noon.Add(10*time.Second)), "delta reached")
	assert.False(g.Accept(surplus(1020), noon.Add(20*time.Second)))
	assert.True(g.Accept(surplus(1020), noon.Add(70*time.Second)), "interval elapsed")

	g.Reset()
	assert.True(g.Accept(surplus(1020), noon.Add(71*time.Second)))
}

func TestUpdateGateBatteryCritical(t *testing.T) {

	assert := assert.New(t)

	battery := func(soc float64) domain.PowerSample {
		return domain.PowerSample{SurplusPower: 500, HasBattery: true, BatterySoC: soc}
	}

	g := NewUpdateGate(50, time.Minute, 10)
	assert.True(g.Accept(battery(12), noon))
	assert.False(g.Accept(battery(10), noon.Add(5*time.Second)))
	assert.True(g.Accept(battery(9.5), noon.Add(10*time.Second)), "crossed below critical")
	assert.False(g.Accept(battery(9), noon.Add(15*time.Second)))
	assert.True(g.Accept(battery(10), noon.Add(20*time.Second)), "recovered above critical")

	g.Record(battery(9), noon.Add(25*time.Second))
	assert.False(g.Accept(battery(8), noon.Add(30*time.Second)), "record updates the reference")
}

func TestSettleTracker(t *testing.T) {

	s := newSettleTracker(15 * time.Second)
	s.mark("a", noon)
	assert.True(t, s.settling("a", noon.Add(14*time.Second)))
	assert.False(t, s.settling("a", noon.Add(15*time.Second)))
	assert.False(t, s.settling("b", noon))

	s.expire(noon.Add(15 * time.Second))
	assert.Empty(t, s.commands)

	o := onceSet{}
	assert.True(t, o.first("x"))
	assert.False(t, o.first("x"))
}
