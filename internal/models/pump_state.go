package models

import "time"

// PumpStateName identifies the controller's pumping state.
type PumpStateName string

const (
	NotPumping    PumpStateName = "not_pumping"
	Pumping       PumpStateName = "pumping"
	ManualPumping PumpStateName = "manual_pumping"
)

// Active reports whether the state commands the transfer pump to run.
func (s PumpStateName) Active() bool {
	return s == Pumping || s == ManualPumping
}

// PumpState is the controller's shared mutable state. The controller is the
// sole writer; everyone else gets a copy taken under the controller's lock.
// Zero time.Time values mean "unset".
type PumpState struct {
	CurrentState PumpStateName `json:"current_state"`
	FatalError   bool          `json:"fatal_error"`
	// FatalSent latches once a Fatal Error event has been recorded for the
	// current episode, so the terminal event is emitted exactly once.
	FatalSent bool `json:"fatal_sent"`

	PumpStartTime time.Time `json:"pump_start_time"`
	PumpEndTime   time.Time `json:"pump_end_time"`
	LastStopTime  time.Time `json:"last_stop_time"`

	// Metrics derived from the previous fill cycle.
	LastFillTimeS *float64 `json:"last_fill_time_s,omitempty"`
	LastFlowRate  *float64 `json:"last_flow_rate,omitempty"`

	// Start of the unresolved error / stale-signal streaks.
	ErrorStartedAt    time.Time `json:"error_started_at"`
	ADCStaleStartedAt time.Time `json:"adc_stale_started_at"`

	// Duplicate suppression for the error sink.
	LastErrorMessage string    `json:"-"`
	LastErrorLogTime time.Time `json:"-"`
}

// NewPumpState returns the initial safe state.
func NewPumpState() PumpState {
	return PumpState{CurrentState: NotPumping}
}
