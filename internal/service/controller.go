package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sappump/internal/config"
	"sappump/internal/errlog"
	"sappump/internal/logger"
	"sappump/internal/metrics"
	"sappump/internal/models"
	"sappump/internal/repository"
	"sappump/internal/signal"
)

// gallonsPerFill is the tank volume drained by one fill cycle. Flow rate is
// derived from the time the tank took to refill between pump stop and the
// next tank-full signal.
const gallonsPerFill = 12.18

const (
	holdServiceOn = iota
	holdServiceOff
	holdClearFatal
	numHolds
)

type holdTimer struct {
	start time.Time
	fired bool
}

// Controller runs the pump state machine. It is the sole writer of the shared
// PumpState; every mutation happens under mu, including the event-sink side
// effects, so Snapshot always observes a fully applied poll.
type Controller struct {
	source signal.Source
	events repository.EventRepo
	errors errlog.Sink
	runner CommandRunner
	log    *logger.Logger

	errorThreshold time.Duration
	staleFatal     time.Duration
	holdDuration   time.Duration
	loopDelay      time.Duration
	debugSignalLog bool

	now func() time.Time

	mu    sync.Mutex
	state models.PumpState
	holds [numHolds]holdTimer

	// error_count progress logging, one line per elapsed second.
	lastErrorCountLogged int

	lastSignalLog     *models.SignalSnapshot
	lastSignalLogTime time.Time

	stop  chan struct{}
	done  chan struct{}
	alive atomic.Bool
	runMu sync.Mutex
}

func NewController(
	source signal.Source,
	events repository.EventRepo,
	errSink errlog.Sink,
	runner CommandRunner,
	cfg *config.Config,
	log *logger.Logger,
) *Controller {
	return &Controller{
		source:         source,
		events:         events,
		errors:         errSink,
		runner:         runner,
		log:            log,
		errorThreshold: cfg.ErrorThreshold,
		staleFatal:     cfg.ADCStaleFatal,
		holdDuration:   cfg.ControlHold,
		loopDelay:      cfg.LoopDelay,
		debugSignalLog: cfg.DebugSignalLog,
		state:          models.NewPumpState(),
		now:            time.Now,
	}
}

// Snapshot returns a copy of the controller state. Pointer metrics are
// duplicated so callers never alias controller-owned memory.
func (c *Controller) Snapshot() models.PumpState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if st.LastFillTimeS != nil {
		v := *st.LastFillTimeS
		st.LastFillTimeS = &v
	}
	if st.LastFlowRate != nil {
		v := *st.LastFlowRate
		st.LastFlowRate = &v
	}
	return st
}

// Start launches the polling loop. Starting a running controller is a no-op.
func (c *Controller) Start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.alive.Load() {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.alive.Store(true)
	go c.run(c.stop, c.done)
}

func (c *Controller) Stop() {
	c.runMu.Lock()
	stop, done := c.stop, c.done
	c.runMu.Unlock()
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.log.Warnw("controller loop did not stop in time")
	}
}

func (c *Controller) Alive() bool { return c.alive.Load() }

func (c *Controller) run(stop, done chan struct{}) {
	defer close(done)
	defer c.alive.Store(false)
	for {
		select {
		case <-stop:
			return
		default:
		}

		c.poll()

		select {
		case <-stop:
			return
		case <-time.After(c.loopDelay):
		}
	}
}

// poll performs one acquisition and state-machine pass.
func (c *Controller) poll() {
	snap, err := c.source.ReadSignals()
	if err != nil {
		if errors.Is(err, signal.ErrStale) {
			metrics.StaleReads.Inc()
			c.log.Warnw("signal data stale", "err", err)
			c.handleStale(err.Error())
			return
		}
		c.log.Errorw("signal loop error", "err", err)
		c.mu.Lock()
		c.recordError(fmt.Sprintf("Signal loop error: %v", err))
		c.mu.Unlock()
		return
	}

	// A single good read ends the staleness streak; the general error timer
	// is cleared only by a valid signal combination.
	c.mu.Lock()
	c.state.ADCStaleStartedAt = time.Time{}
	c.mu.Unlock()

	c.handleControlHolds(snap)
	c.logSignals(snap)

	c.mu.Lock()
	prev := c.state.CurrentState
	c.applySignals(snap)
	cur := c.state.CurrentState
	fatal := c.state.FatalError
	c.mu.Unlock()

	metrics.SetState(cur, fatal)
	if cur != prev {
		c.log.Infow("state transition", "from", prev, "to", cur)
	}
}

// handleControlHolds arms a timer on each control channel's rising edge and
// fires its action exactly once after the hold duration. Releasing the input
// re-arms the timer immediately.
func (c *Controller) handleControlHolds(snap models.SignalSnapshot) {
	now := c.now()
	inputs := [numHolds]bool{
		holdServiceOn:  snap.ServiceOn,
		holdServiceOff: snap.ServiceOff,
		holdClearFatal: snap.ClearFatal,
	}
	for key, high := range inputs {
		h := &c.holds[key]
		if !high {
			h.start = time.Time{}
			h.fired = false
			continue
		}
		if h.start.IsZero() {
			h.start = now
		}
		if !h.fired && now.Sub(h.start) >= c.holdDuration {
			c.fireHold(key)
			h.fired = true
		}
	}
}

func (c *Controller) fireHold(key int) {
	switch key {
	case holdServiceOn:
		c.runner.Run("on")
	case holdServiceOff:
		c.runner.Run("off")
	case holdClearFatal:
		c.ClearFatal()
	}
}

// ClearFatal drops the fatal latch and the escalation timers. A no-op when no
// fatal error is latched, and logs nothing in that case.
func (c *Controller) ClearFatal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.FatalError {
		return
	}
	c.state.FatalError = false
	c.state.FatalSent = false
	c.resetErrorTimer()
	c.recordError("Cleared fatal error state")
}

// applySignals runs the truth table over (tank_full, manual_start,
// tank_empty). Caller must hold mu.
func (c *Controller) applySignals(snap models.SignalSnapshot) {
	if c.state.FatalError {
		c.handleFatal()
		return
	}
	if !c.state.ErrorStartedAt.IsZero() && c.now().Sub(c.state.ErrorStartedAt) >= c.errorThreshold {
		c.handleFatal()
		return
	}

	p1, p2, p3 := snap.TankFull, snap.ManualStart, snap.TankEmpty
	state := c.state.CurrentState

	switch {
	case !p1 && !p2 && !p3:
		c.resetErrorTimer()

	case p1 && p2 && p3:
		metrics.SignalErrors.Inc()
		c.incrementError("ERROR: received simultaneous tank empty, manual start, and tank full signals while " + phase(state))
		if state == models.NotPumping {
			c.state.CurrentState = models.Pumping
		}

	case p1 && !p2 && p3:
		metrics.SignalErrors.Inc()
		if state == models.NotPumping {
			c.state.CurrentState = models.Pumping
		}
		c.incrementError("ERROR: received simultaneous tank empty and tank full signals while " + phase(state))

	case !p1 && p2 && p3:
		c.resetErrorTimer()
		c.recordError("WARNING: received simultaneous tank empty and manual pump start signals while " + phase(state))
		c.state.CurrentState = models.NotPumping
		if state.Active() {
			c.pumpStop()
		}

	case p1 && p2 && !p3:
		switch state {
		case models.Pumping:
			c.incrementError("WARNING: received simultaneous tank full and manual start signals while auto pumping")
		case models.ManualPumping:
			c.incrementError("WARNING: received simultaneous tank full and manual start signals while manually pumping")
			c.state.CurrentState = models.Pumping
			c.tankFullStart()
		case models.NotPumping:
			c.incrementError("WARNING: received simultaneous tank full and manual start signals while not pumping")
			c.state.CurrentState = models.Pumping
			c.tankFullStart()
		}

	case p1 && !p2 && !p3:
		switch state {
		case models.Pumping:
			c.incrementError("WARNING: received tank full signal while auto pumping")
		case models.ManualPumping:
			c.incrementError("WARNING: received tank full signal while manual pumping")
			c.state.CurrentState = models.Pumping
			c.tankFullStart()
		case models.NotPumping:
			c.resetErrorTimer()
			c.state.CurrentState = models.Pumping
			c.tankFullStart()
		}

	case !p1 && p2 && !p3:
		c.resetErrorTimer()
		switch state {
		case models.Pumping:
			c.recordError("WARNING: received manual pump signal while auto pumping")
		case models.ManualPumping:
			// steady state
		case models.NotPumping:
			c.state.CurrentState = models.ManualPumping
			c.manualStart()
		}

	case !p1 && !p2 && p3:
		c.resetErrorTimer()
		if state.Active() {
			c.state.CurrentState = models.NotPumping
			c.pumpStop()
		} else if c.state.PumpEndTime.IsZero() {
			c.state.PumpEndTime = c.now()
		}
	}
}

// phase names the current state the way the operator-facing messages do.
func phase(s models.PumpStateName) string {
	switch s {
	case models.Pumping:
		return "auto pumping"
	case models.ManualPumping:
		return "manual pumping"
	default:
		return "not pumping"
	}
}

// handleFatal latches the fatal state and forces not_pumping. The terminal
// Fatal Error event is emitted at most once per episode via FatalSent.
// Caller must hold mu.
func (c *Controller) handleFatal() {
	if !c.state.FatalError {
		c.state.FatalError = true
		c.state.CurrentState = models.NotPumping
		c.state.PumpStartTime = time.Time{}
		c.recordError("FATAL ERROR: STOPPING")
	}
	if !c.state.FatalSent {
		c.insertEvent(models.PumpEvent{
			EventType:       models.EventFatalError,
			SourceTimestamp: c.now(),
		})
		c.state.FatalSent = true
		metrics.FatalErrors.Inc()
	}
	metrics.SetState(c.state.CurrentState, true)
}

// incrementError stamps the start of an error streak, records the message,
// and escalates to fatal once the streak reaches the threshold.
// Caller must hold mu.
func (c *Controller) incrementError(message string) {
	now := c.now()
	if c.state.ErrorStartedAt.IsZero() {
		c.state.ErrorStartedAt = now
	}
	if message != "" {
		c.recordError(message)
	}
	span := now.Sub(c.state.ErrorStartedAt)
	if count := int(span / time.Second); count > 0 && count != c.lastErrorCountLogged {
		c.log.Infow("error streak", "error_count", count)
		c.lastErrorCountLogged = count
	}
	if span >= c.errorThreshold {
		c.handleFatal()
	}
}

func (c *Controller) handleStale(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.state.ADCStaleStartedAt.IsZero() {
		c.state.ADCStaleStartedAt = now
	}
	c.recordError(message)
	if prev := c.state.CurrentState; prev.Active() {
		c.state.CurrentState = models.NotPumping
		c.pumpStop()
		metrics.SetState(c.state.CurrentState, c.state.FatalError)
	}
	if now.Sub(c.state.ADCStaleStartedAt) >= c.staleFatal {
		c.handleFatal()
	}
}

// resetErrorTimer clears both escalation streaks. Caller must hold mu.
func (c *Controller) resetErrorTimer() {
	c.state.ErrorStartedAt = time.Time{}
	c.state.ADCStaleStartedAt = time.Time{}
	c.lastErrorCountLogged = 0
}

// tankFullStart transitions into auto pumping: derives the fill metrics from
// the previous pump_end_time and records an Auto Pump Start event.
// Caller must hold mu.
func (c *Controller) tankFullStart() {
	now := c.now()
	if c.state.PumpStartTime.IsZero() {
		c.state.PumpStartTime = now
	}
	var fillTime, flowRate *float64
	if !c.state.PumpEndTime.IsZero() {
		ft := now.Sub(c.state.PumpEndTime).Seconds()
		if ft < 0 {
			ft = 0
		}
		fillTime = &ft
		if ft > 0 {
			fr := (gallonsPerFill / ft) * 3600.0
			flowRate = &fr
		}
		c.state.LastFillTimeS = fillTime
		c.state.LastFlowRate = flowRate
		c.state.PumpEndTime = time.Time{}
	} else {
		c.recordError("WARNING:tank full & started pumping but no pump_end_time")
	}

	c.insertEvent(models.PumpEvent{
		EventType:       models.EventAutoPumpStart,
		SourceTimestamp: now,
		PumpIntervalS:   fillTime,
		GallonsPerHour:  flowRate,
	})
	metrics.AutoPumpStarts.Inc()
}

// manualStart transitions into manual pumping and records the event. Fill
// metrics do not apply to manual cycles. Caller must hold mu.
func (c *Controller) manualStart() {
	if c.state.PumpStartTime.IsZero() {
		c.state.PumpStartTime = c.now()
	}
	c.state.PumpEndTime = time.Time{}
	c.state.LastFillTimeS = nil
	c.state.LastFlowRate = nil

	c.insertEvent(models.PumpEvent{
		EventType:       models.EventManualPumpStart,
		SourceTimestamp: c.now(),
	})
	metrics.ManualPumpStarts.Inc()
}

// pumpStop records a Pump Stop event with run time, interval since the last
// stop, and the last derived flow rate, then stamps pump_end_time and
// last_stop_time. Caller must hold mu.
func (c *Controller) pumpStop() {
	now := c.now()

	var runTime *float64
	if !c.state.PumpStartTime.IsZero() {
		rt := now.Sub(c.state.PumpStartTime).Seconds()
		if rt < 0 {
			rt = 0
		}
		runTime = &rt
	} else {
		c.recordError("WARNING: Missing valid start time for pump event")
	}

	var interval *float64
	if !c.state.LastStopTime.IsZero() {
		iv := now.Sub(c.state.LastStopTime).Seconds()
		if iv < 0 {
			iv = 0
		}
		interval = &iv
	}

	c.insertEvent(models.PumpEvent{
		EventType:       models.EventPumpStop,
		SourceTimestamp: now,
		PumpRunTimeS:    runTime,
		PumpIntervalS:   interval,
		GallonsPerHour:  c.state.LastFlowRate,
	})
	metrics.PumpStops.Inc()

	c.state.PumpEndTime = now
	c.state.LastStopTime = now
	c.state.PumpStartTime = time.Time{}
}

// recordError pushes a message to the error sinks with duplicate suppression:
// the same message is dropped when repeated within one second. While a fatal
// error is latched every message is prefixed. Caller must hold mu.
func (c *Controller) recordError(message string) {
	if c.state.FatalError && !strings.HasPrefix(message, "[FATAL ERROR]") {
		message = "[FATAL ERROR] " + message
	}
	now := c.now()
	if message == c.state.LastErrorMessage {
		if !c.state.LastErrorLogTime.IsZero() && now.Sub(c.state.LastErrorLogTime) < time.Second {
			return
		}
	}
	c.state.LastErrorMessage = message
	c.state.LastErrorLogTime = now

	if err := c.errors.Append(message, "pump", now); err != nil {
		c.log.Warnw("failed to persist error log", "err", err)
	}
}

func (c *Controller) insertEvent(e models.PumpEvent) {
	if err := c.events.Insert(context.Background(), e); err != nil {
		c.log.Warnw("failed to persist pump event", "event_type", e.EventType, "err", err)
	}
}

// logSignals emits the per-channel debug line when enabled, on change or at
// most once per second.
func (c *Controller) logSignals(snap models.SignalSnapshot) {
	if !c.debugSignalLog {
		return
	}
	now := c.now()
	if c.lastSignalLog != nil && sameSignals(*c.lastSignalLog, snap) && now.Sub(c.lastSignalLogTime) < time.Second {
		return
	}
	vac := 0.0
	if snap.VacuumVolts != nil {
		vac = *snap.VacuumVolts
	}
	c.log.Infof(
		"Signals: Vac=(%.2fv) | tf=%s:(%.2fv) | ms=%s:(%.2fv) | te=%s:(%.2fv) | on=%s:(%.2fv) | off=%s:(%.2fv) | rst=%s:(%.2fv)",
		vac,
		flag(snap.TankFull), snap.Volts.TankFull,
		flag(snap.ManualStart), snap.Volts.ManualStart,
		flag(snap.TankEmpty), snap.Volts.TankEmpty,
		flag(snap.ServiceOn), snap.Volts.ServiceOn,
		flag(snap.ServiceOff), snap.Volts.ServiceOff,
		flag(snap.ClearFatal), snap.Volts.ClearFatal,
	)
	last := snap
	c.lastSignalLog = &last
	c.lastSignalLogTime = now
}

func sameSignals(a, b models.SignalSnapshot) bool {
	return a.TankFull == b.TankFull &&
		a.ManualStart == b.ManualStart &&
		a.TankEmpty == b.TankEmpty &&
		a.ServiceOn == b.ServiceOn &&
		a.ServiceOff == b.ServiceOff &&
		a.ClearFatal == b.ClearFatal
}

func flag(b bool) string {
	if b {
		return "T"
	}
	return "F"
}
