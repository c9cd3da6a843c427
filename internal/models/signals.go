package models

// SignalSnapshot is one debounced read of every input channel. It is produced
// fresh on every poll and never persisted. Sources guarantee freshness: a
// snapshot is only returned when the backing data is within its staleness
// bound.
type SignalSnapshot struct {
	TankFull    bool `json:"tank_full"`
	ManualStart bool `json:"manual_start"`
	TankEmpty   bool `json:"tank_empty"`
	ServiceOn   bool `json:"service_on"`
	ServiceOff  bool `json:"service_off"`
	ClearFatal  bool `json:"clear_fatal"`

	// Averaged voltages behind each debounced boolean, for observability.
	Volts ChannelVolts `json:"volts"`

	// Raw vacuum-sensor voltage, when the source samples it.
	VacuumVolts *float64 `json:"vacuum_volts,omitempty"`
}

// ChannelVolts carries the averaged voltage per boolean channel.
type ChannelVolts struct {
	TankFull    float64 `json:"tank_full"`
	ManualStart float64 `json:"manual_start"`
	TankEmpty   float64 `json:"tank_empty"`
	ServiceOn   float64 `json:"service_on"`
	ServiceOff  float64 `json:"service_off"`
	ClearFatal  float64 `json:"clear_fatal"`
}
