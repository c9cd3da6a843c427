package repository

import (
	"context"
	"database/sql"
	"time"

	"sappump/internal/models"

	"github.com/google/uuid"
)

type ErrorLogSQLite struct {
	db *sql.DB
}

func NewErrorLogSQLite(db *sql.DB) *ErrorLogSQLite { return &ErrorLogSQLite{db: db} }

const insertErrorLogSQL = `
		INSERT INTO error_logs (id, source, message, source_timestamp, received_at)
		VALUES (?, ?, ?, ?, ?)
	`

// Insert appends an error record. Missing ID and timestamp are filled in.
func (r *ErrorLogSQLite) Insert(ctx context.Context, e models.ErrorLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Source == "" {
		e.Source = "pump"
	}
	ts := e.SourceTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, insertErrorLogSQL,
		e.ID,
		e.Source,
		e.Message,
		ts.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}
