package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/util/actorutil"
	"github.com/berfenger/surplus2mqtt/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func spawnModbus(t *testing.T, inv sunspec.InverterModbusReader, meter sunspec.ACMeterModbusReader) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(inv, meter, logger) })
	pid := as.Root.Spawn(props)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return as, pid
}

func TestGetDevicesInfoModbusActor(t *testing.T) {

	assert := assert.New(t)

	as, pid := spawnModbus(t, sunspec.NewFakeInverterReader(), sunspec.NewFakeACMeterReader())

	result, err := as.Root.RequestFuture(pid, domain.GetDevicesInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetDevicesInfoResponse)
	require.False(t, resp.HasResponseError())

	assert.Equal("Fronius", resp.Inverter.Manufacturer, "Inverter manufacturer")
	assert.Equal("Primo GEN24 4.0", resp.Inverter.Model, "Inverter model")
	assert.True(resp.Inverter.HasStorage)
	assert.Equal("Smart Meter TS 100A-1", resp.ACMeter.Model, "Meter model")
}

func TestGetPowerSampleModbusActor(t *testing.T) {

	assert := assert.New(t)

	inv := sunspec.NewFakeInverterReader()
	meter := sunspec.NewFakeACMeterReader()
	as, pid := spawnModbus(t, inv, meter)

	result, err := as.Root.RequestFuture(pid, domain.GetPowerSampleRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetPowerSampleResponse)
	require.False(t, resp.HasResponseError())
	require.NotNil(t, resp.Sample)

	assert.Equal(1250.0, resp.Sample.SurplusPower)
	assert.Equal(-1250.0, resp.Sample.GridPower)
	assert.Equal(920.3, resp.Sample.PVPower)
	assert.Equal(-572.45, resp.Sample.BatteryPower)
	assert.Equal(23.5, resp.Sample.BatterySoC)
	assert.True(resp.Sample.HasBattery)
	assert.False(resp.Sample.Timestamp.IsZero())

	meter.SetPowerFlow(400)
	result, err = as.Root.RequestFuture(pid, domain.GetPowerSampleRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp = result.(domain.GetPowerSampleResponse)
	assert.Zero(resp.Sample.SurplusPower)
	assert.Equal(400.0, resp.Sample.GridPower)
}

func TestGetPowerSampleMeterFailure(t *testing.T) {

	meter := sunspec.NewFakeACMeterReader()
	meter.SetError(errors.New("modbus: request timed out"))
	as, pid := spawnModbus(t, sunspec.NewFakeInverterReader(), meter)

	result, err := as.Root.RequestFuture(pid, domain.GetPowerSampleRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetPowerSampleResponse)
	assert.True(t, resp.HasResponseError())
	assert.Nil(t, resp.Sample)

	// the actor keeps serving after a failed read
	meter.SetError(nil)
	result, err = as.Root.RequestFuture(pid, domain.GetPowerSampleRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, result.(domain.GetPowerSampleResponse).HasResponseError())
}
