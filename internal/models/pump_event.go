package models

import "time"

// EventType labels a persisted pump event. The strings are part of the event
// sink's idempotency key together with the source timestamp, so they must not
// change between releases.
type EventType string

const (
	EventAutoPumpStart   EventType = "Auto Pump Start"
	EventManualPumpStart EventType = "Manual Pump Start"
	EventPumpStop        EventType = "Pump Stop"
	EventFatalError      EventType = "Fatal Error"
)

// PumpEvent is a single persisted pump lifecycle record.
type PumpEvent struct {
	EventType       EventType `json:"event_type"`
	SourceTimestamp time.Time `json:"source_timestamp"`
	PumpRunTimeS    *float64  `json:"pump_run_time_s,omitempty"`
	PumpIntervalS   *float64  `json:"pump_interval_s,omitempty"`
	GallonsPerHour  *float64  `json:"gallons_per_hour,omitempty"`
}

// ErrorLog is a single appended error/warning record.
type ErrorLog struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	Message         string    `json:"message"`
	SourceTimestamp time.Time `json:"source_timestamp"`
}
