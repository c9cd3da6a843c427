package service

import (
	"context"
	"time"

	"sappump/internal/models"
	"sappump/internal/repository"
)

// Monitoring exposes the controller's current state, read-only.
type Monitoring interface {
	GetState(ctx context.Context) (models.PumpState, error)
}

// EventLog exposes the persisted pump events with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PumpEvent, error)
}

// LogFilter narrows an event listing. Zero times mean unbounded.
type LogFilter struct {
	From time.Time
	To   time.Time
	Type string
}

// CommandRunner executes the service-mode toggle script out of process.
type CommandRunner interface {
	Run(mode string)
}

// Loop is a restartable background worker supervised by the watchdog.
type Loop interface {
	Start()
	Stop()
	Alive() bool
}

// Service aggregates the read-side sub-services backing the HTTP surface.
type Service struct {
	Monitoring
	EventLog
}

func NewService(ctrl *Controller, repos *repository.Repository) *Service {
	return &Service{
		Monitoring: NewMonitoringService(ctrl),
		EventLog:   NewEventLogService(repos.Events),
	}
}
