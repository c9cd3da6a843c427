// Package signal acquires the per-channel boolean inputs that drive the pump
// controller. A Source either samples an ADC directly with majority-vote
// debouncing, or consumes snapshots published by a sibling sampler process
// (shared-memory cache file or MQTT). Snapshot-backed sources enforce a
// freshness bound: a read older than the configured staleness window fails
// with ErrStale, which is the only way the controller learns its inputs
// cannot be trusted.
package signal

import "errors"

import "sappump/internal/models"

// ErrStale marks reads whose backing data is older than the freshness bound.
// Match with errors.Is.
var ErrStale = errors.New("signal data stale")

// Source produces a fresh debounced snapshot of all input channels.
type Source interface {
	ReadSignals() (models.SignalSnapshot, error)
}

// Channel indexes one boolean input.
type Channel int

const (
	ChanTankFull Channel = iota
	ChanManualStart
	ChanTankEmpty
	ChanServiceOn
	ChanServiceOff
	ChanClearFatal
	numChannels
)

func (c Channel) String() string {
	switch c {
	case ChanTankFull:
		return "tank_full"
	case ChanManualStart:
		return "manual_start"
	case ChanTankEmpty:
		return "tank_empty"
	case ChanServiceOn:
		return "service_on"
	case ChanServiceOff:
		return "service_off"
	case ChanClearFatal:
		return "clear_fatal"
	default:
		return "unknown"
	}
}

func setChannel(snap *models.SignalSnapshot, c Channel, high bool, avgVolts float64) {
	switch c {
	case ChanTankFull:
		snap.TankFull = high
		snap.Volts.TankFull = avgVolts
	case ChanManualStart:
		snap.ManualStart = high
		snap.Volts.ManualStart = avgVolts
	case ChanTankEmpty:
		snap.TankEmpty = high
		snap.Volts.TankEmpty = avgVolts
	case ChanServiceOn:
		snap.ServiceOn = high
		snap.Volts.ServiceOn = avgVolts
	case ChanServiceOff:
		snap.ServiceOff = high
		snap.Volts.ServiceOff = avgVolts
	case ChanClearFatal:
		snap.ClearFatal = high
		snap.Volts.ClearFatal = avgVolts
	}
}
