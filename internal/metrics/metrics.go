// Package metrics exposes the station's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sappump/internal/models"
)

var (
	AutoPumpStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_auto_pump_starts_total",
		Help: "Auto pump start events recorded.",
	})
	ManualPumpStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_manual_pump_starts_total",
		Help: "Manual pump start events recorded.",
	})
	PumpStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_pump_stops_total",
		Help: "Pump stop events recorded.",
	})
	FatalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_fatal_errors_total",
		Help: "Fatal error episodes recorded.",
	})
	SignalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_signal_errors_total",
		Help: "Controller polls that reported an invalid signal combination.",
	})
	StaleReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_stale_reads_total",
		Help: "Controller polls whose signal read failed freshness checks.",
	})
	LoopRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sappump_loop_restarts_total",
		Help: "Background loops restarted by the watchdog.",
	})

	pumpState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sappump_pump_state",
		Help: "Current pump state: 0 not_pumping, 1 pumping, 2 manual_pumping.",
	})
	fatalActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sappump_fatal_active",
		Help: "Whether a fatal error is latched (1) or not (0).",
	})
)

// SetState publishes the current state machine position.
func SetState(name models.PumpStateName, fatal bool) {
	switch name {
	case models.Pumping:
		pumpState.Set(1)
	case models.ManualPumping:
		pumpState.Set(2)
	default:
		pumpState.Set(0)
	}
	if fatal {
		fatalActive.Set(1)
	} else {
		fatalActive.Set(0)
	}
}
