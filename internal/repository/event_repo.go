package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sappump/internal/models"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

const (
	insertEventSQL = `
		INSERT OR IGNORE INTO pump_events (
			event_type, source_timestamp, pump_run_time_s,
			pump_interval_s, gallons_per_hour, received_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	selectEventsSQL = `SELECT event_type, source_timestamp, pump_run_time_s, pump_interval_s, gallons_per_hour FROM pump_events`
)

// Insert records a pump event. A duplicate (event_type, source_timestamp)
// pair is silently ignored, which makes retries after a crash safe.
func (r *EventSQLite) Insert(ctx context.Context, e models.PumpEvent) error {
	ts := e.SourceTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		string(e.EventType),
		ts.UTC().Format(time.RFC3339Nano),
		nullFloat(e.PumpRunTimeS),
		nullFloat(e.PumpIntervalS),
		nullFloat(e.GallonsPerHour),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// List returns events within [from, to] (either bound optional), optionally
// filtered by event type, ordered by source timestamp ascending.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ string) ([]models.PumpEvent, error) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		conds = append(conds, "source_timestamp >= ?")
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if !to.IsZero() {
		conds = append(conds, "source_timestamp <= ?")
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	if typ = strings.TrimSpace(typ); typ != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, typ)
	}

	q := selectEventsSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY source_timestamp ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.PumpEvent, 0, 64)
	for rows.Next() {
		var (
			ev       models.PumpEvent
			typStr   string
			tsStr    string
			runTime  sql.NullFloat64
			interval sql.NullFloat64
			flow     sql.NullFloat64
		)
		if err := rows.Scan(&typStr, &tsStr, &runTime, &interval, &flow); err != nil {
			return nil, err
		}
		ev.EventType = models.EventType(typStr)
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parse source_timestamp %q: %w", tsStr, err)
		}
		ev.SourceTimestamp = ts.UTC()
		ev.PumpRunTimeS = floatPtr(runTime)
		ev.PumpIntervalS = floatPtr(interval)
		ev.GallonsPerHour = floatPtr(flow)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
