package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
)

// RecordDailyStats stores the energy balance of stats.Day, replacing an earlier one.
func (r *Recorder) RecordDailyStats(ctx context.Context, stats *domain.DailyStats) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_energy (
			day, pv_kwh, consumption_kwh, self_consumption_kwh, feed_in_kwh, grid_kwh,
			battery_charge_kwh, battery_discharge_kwh, pv_power_max, consumption_power_max,
			feed_in_power_max, grid_power_max, surplus_power_max, battery_soc_min, battery_soc_max,
			autarky_avg, samples, first_update, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			pv_kwh = excluded.pv_kwh,
			consumption_kwh = excluded.consumption_kwh,
			self_consumption_kwh = excluded.self_consumption_kwh,
			feed_in_kwh = excluded.feed_in_kwh,
			grid_kwh = excluded.grid_kwh,
			battery_charge_kwh = excluded.battery_charge_kwh,
			battery_discharge_kwh = excluded.battery_discharge_kwh,
			pv_power_max = excluded.pv_power_max,
			consumption_power_max = excluded.consumption_power_max,
			feed_in_power_max = excluded.feed_in_power_max,
			grid_power_max = excluded.grid_power_max,
			surplus_power_max = excluded.surplus_power_max,
			battery_soc_min = excluded.battery_soc_min,
			battery_soc_max = excluded.battery_soc_max,
			autarky_avg = excluded.autarky_avg,
			samples = excluded.samples,
			first_update = excluded.first_update,
			last_update = excluded.last_update
	`, stats.Day.Format(dayLayout), stats.PVEnergy, stats.ConsumptionEnergy, stats.SelfConsumptionEnergy,
		stats.FeedInEnergy, stats.GridEnergy, stats.BatteryChargeEnergy, stats.BatteryDischargeEnergy,
		stats.PVPowerMax, stats.ConsumptionPowerMax, stats.FeedInPowerMax, stats.GridPowerMax, stats.SurplusPowerMax,
		nullFloat(stats.BatterySoCMin), nullFloat(stats.BatterySoCMax), stats.AutarkyAvg, stats.Samples,
		nullTime(stats.FirstUpdate), nullTime(stats.LastUpdate))
	if err != nil {
		return fmt.Errorf("failed to store daily energy: %w", err)
	}
	return nil
}

// DailyStats returns the stored energy balance of day, or domain.ErrNotFound.
func (r *Recorder) DailyStats(ctx context.Context, day time.Time) (*domain.DailyStats, error) {
	key := day.Format(dayLayout)
	var (
		st             domain.DailyStats
		socMin, socMax sql.NullFloat64
		first, last    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT pv_kwh, consumption_kwh, self_consumption_kwh, feed_in_kwh, grid_kwh,
			battery_charge_kwh, battery_discharge_kwh, pv_power_max, consumption_power_max,
			feed_in_power_max, grid_power_max, surplus_power_max, battery_soc_min, battery_soc_max,
			autarky_avg, samples, first_update, last_update
		FROM daily_energy WHERE day = ?
	`, key).Scan(&st.PVEnergy, &st.ConsumptionEnergy, &st.SelfConsumptionEnergy, &st.FeedInEnergy, &st.GridEnergy,
		&st.BatteryChargeEnergy, &st.BatteryDischargeEnergy, &st.PVPowerMax, &st.ConsumptionPowerMax,
		&st.FeedInPowerMax, &st.GridPowerMax, &st.SurplusPowerMax, &socMin, &socMax,
		&st.AutarkyAvg, &st.Samples, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no energy stats for %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query daily energy: %w", err)
	}

	st.Day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if socMin.Valid {
		st.BatterySoCMin = &socMin.Float64
	}
	if socMax.Valid {
		st.BatterySoCMax = &socMax.Float64
	}
	if st.FirstUpdate, err = parseNullTime(first); err != nil {
		return nil, err
	}
	if st.LastUpdate, err = parseNullTime(last); err != nil {
		return nil, err
	}
	return &st, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("bad stats timestamp %q: %w", s.String, err)
	}
	return &t, nil
}
