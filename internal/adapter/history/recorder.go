package history

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"
	"github.com/berfenger/surplus2mqtt/internal/core/port"
)

const (
	DefaultEventLimit = 50
	MaxEventLimit     = 1000
	dayLayout         = "2006-01-02"
)

// Recorder stores the scheduler change-sets and daily runtime summaries.
type Recorder struct {
	db *DB
}

var _ port.EventRecorder = (*Recorder)(nil)

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) RecordChanges(ctx context.Context, changes map[string]string, states map[string]domain.DeviceState,
	sample domain.PowerSample, ts time.Time) error {

	if len(changes) == 0 {
		return nil
	}
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	slices.Sort(names)

	return r.db.Tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO device_events (ts, device, action, state, surplus) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare event insert: %w", err)
		}
		defer stmt.Close()
		for _, name := range names {
			_, err := stmt.ExecContext(ctx, ts.UTC().Format(time.RFC3339Nano), name, changes[name],
				string(states[name]), sample.SurplusPower)
			if err != nil {
				return fmt.Errorf("failed to insert event for %q: %w", name, err)
			}
		}
		return nil
	})
}

// RecordDailySummary stores the runtime of each device for day, replacing an earlier summary.
func (r *Recorder) RecordDailySummary(ctx context.Context, day time.Time, runtimes map[string]int) error {
	key := day.Format(dayLayout)
	return r.db.Tx(ctx, func(tx *sql.Tx) error {
		for name, minutes := range runtimes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO daily_summaries (day, device, runtime_minutes) VALUES (?, ?, ?)
				ON CONFLICT(day, device) DO UPDATE SET runtime_minutes = excluded.runtime_minutes
			`, key, name, minutes)
			if err != nil {
				return fmt.Errorf("failed to store summary for %q: %w", name, err)
			}
		}
		return nil
	})
}

// DailySummary returns the stored runtimes for day.
func (r *Recorder) DailySummary(ctx context.Context, day time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device, runtime_minutes FROM daily_summaries WHERE day = ?`, day.Format(dayLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()
	runtimes := make(map[string]int)
	for rows.Next() {
		var (
			name    string
			minutes int
		)
		if err := rows.Scan(&name, &minutes); err != nil {
			return nil, err
		}
		runtimes[name] = minutes
	}
	return runtimes, rows.Err()
}

// RecentEvents returns the newest events first.
func (r *Recorder) RecentEvents(ctx context.Context, limit int) ([]domain.DeviceEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	limit = min(limit, MaxEventLimit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, device, action, state, surplus FROM device_events
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []domain.DeviceEvent{}
	for rows.Next() {
		var (
			ts    string
			state string
			e     domain.DeviceEvent
		)
		if err := rows.Scan(&ts, &e.Device, &e.Action, &state, &e.SurplusPower); err != nil {
			return nil, err
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("bad event timestamp %q: %w", ts, err)
		}
		e.State = domain.DeviceState(state)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
