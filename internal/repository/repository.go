package repository

import (
	"context"
	"database/sql"
	"time"

	"sappump/internal/models"
)

// EventRepo is the pump-event sink and query surface. Insert must be
// idempotent on (event_type, source_timestamp): the controller may attempt
// to record the same logical event more than once across restarts.
type EventRepo interface {
	Insert(ctx context.Context, e models.PumpEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.PumpEvent, error)
}

// ErrorLogRepo is the append-only error/warning record sink.
type ErrorLogRepo interface {
	Insert(ctx context.Context, e models.ErrorLog) error
}

type Repository struct {
	Events    EventRepo
	ErrorLogs ErrorLogRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Events:    NewEventSQLite(db),
		ErrorLogs: NewErrorLogSQLite(db),
	}
}
