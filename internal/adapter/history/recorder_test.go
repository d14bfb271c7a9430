package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T) *Recorder {
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	r := NewRecorder(db)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestMigrateIsIdempotent(t *testing.T) {

	ctx := context.Background()
	r := openTestRecorder(t)
	require.NoError(t, r.db.Migrate(ctx))
	v, err := r.db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, v)
}

func TestMigrateFromV1(t *testing.T) {

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DROP TABLE daily_energy`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM schema_version WHERE version > 1`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	v, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = NewRecorder(db).DailyStats(ctx, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound, "daily_energy exists again")
}

func TestRecordAndReadEvents(t *testing.T) {

	ctx := context.Background()
	r := openTestRecorder(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordChanges(ctx,
		map[string]string{"b": "switched off - surplus below threshold", "a": "switched on"},
		map[string]domain.DeviceState{"a": domain.DeviceStateOn, "b": domain.DeviceStateOff},
		domain.PowerSample{SurplusPower: 750}, ts))
	require.NoError(t, r.RecordChanges(ctx,
		map[string]string{"a": "switched off - shutdown"},
		map[string]domain.DeviceState{"a": domain.DeviceStateOff},
		domain.PowerSample{SurplusPower: 10}, ts.Add(time.Minute)))
	require.NoError(t, r.RecordChanges(ctx, nil, nil, domain.PowerSample{}, ts))

	events, err := r.RecentEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, ts.Add(time.Minute).Equal(events[0].Timestamp))
	assert.Equal(t, "a", events[0].Device)
	assert.Equal(t, "switched off - shutdown", events[0].Action)
	assert.Equal(t, domain.DeviceStateOff, events[0].State)
	assert.Equal(t, 10.0, events[0].SurplusPower)
	assert.Equal(t, "b", events[1].Device)
	assert.Equal(t, "a", events[2].Device)

	events, err = r.RecentEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDailySummaryUpserts(t *testing.T) {

	ctx := context.Background()
	r := openTestRecorder(t)
	day := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)

	require.NoError(t, r.RecordDailySummary(ctx, day, map[string]int{"a": 30, "b": 0}))
	require.NoError(t, r.RecordDailySummary(ctx, day, map[string]int{"a": 45}))

	summary, err := r.DailySummary(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 45, "b": 0}, summary)
}

func TestDailyStatsRoundTrip(t *testing.T) {

	ctx := context.Background()
	r := openTestRecorder(t)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)

	_, err := r.DailyStats(ctx, day)
	require.ErrorIs(t, err, domain.ErrNotFound)

	st := domain.NewDailyStats(day)
	st.Add(domain.PowerSample{PVPower: 3000, GridPower: -1000, SurplusPower: 1000, BatteryPower: -500,
		HasBattery: true, BatterySoC: 40, Timestamp: day.Add(12 * time.Hour)})
	st.Add(domain.PowerSample{PVPower: 3000, GridPower: -1000, SurplusPower: 1000, BatteryPower: -500,
		HasBattery: true, BatterySoC: 45, Timestamp: day.Add(12*time.Hour + 3*time.Minute)})
	require.NoError(t, r.RecordDailyStats(ctx, st))

	got, err := r.DailyStats(ctx, day.Add(18*time.Hour))
	require.NoError(t, err)
	assert.True(t, day.Equal(got.Day))
	assert.InDelta(t, st.PVEnergy, got.PVEnergy, 1e-12)
	assert.InDelta(t, st.BatteryChargeEnergy, got.BatteryChargeEnergy, 1e-12)
	assert.Equal(t, 2, got.Samples)
	assert.Equal(t, 40.0, *got.BatterySoCMin)
	assert.Equal(t, 45.0, *got.BatterySoCMax)
	assert.True(t, st.LastUpdate.Equal(*got.LastUpdate))
	assert.InDelta(t, st.RuntimeHours(), got.RuntimeHours(), 1e-12)

	// later snapshots of the same day replace the row
	empty := domain.NewDailyStats(day)
	require.NoError(t, r.RecordDailyStats(ctx, empty))
	got, err = r.DailyStats(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, got.Samples)
	assert.Nil(t, got.BatterySoCMin)
	assert.Nil(t, got.FirstUpdate)
}
