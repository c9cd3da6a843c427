package service

import (
	"context"

	"sappump/internal/models"
)

type MonitoringService struct {
	ctrl *Controller
}

func NewMonitoringService(ctrl *Controller) *MonitoringService {
	return &MonitoringService{ctrl: ctrl}
}

// GetState returns a copy of the live controller state.
func (s *MonitoringService) GetState(ctx context.Context) (models.PumpState, error) {
	if err := ctx.Err(); err != nil {
		return models.PumpState{}, err
	}
	return s.ctrl.Snapshot(), nil
}
