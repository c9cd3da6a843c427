package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"sappump/internal/config"
	"sappump/internal/logger"
	"sappump/internal/models"
	"sappump/internal/signal"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type memEvents struct {
	events    []models.PumpEvent
	insertErr error
}

func (m *memEvents) Insert(ctx context.Context, e models.PumpEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) List(ctx context.Context, from, to time.Time, typ string) ([]models.PumpEvent, error) {
	var out []models.PumpEvent
	for _, e := range m.events {
		if typ != "" && string(e.EventType) != typ {
			continue
		}
		if !from.IsZero() && e.SourceTimestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.SourceTimestamp.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memEvents) ofType(typ models.EventType) []models.PumpEvent {
	var out []models.PumpEvent
	for _, e := range m.events {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

type memSink struct{ msgs []string }

func (s *memSink) Append(message, source string, ts time.Time) error {
	s.msgs = append(s.msgs, message)
	return nil
}

func (s *memSink) contains(substr string) bool {
	for _, m := range s.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type memRunner struct{ modes []string }

func (r *memRunner) Run(mode string) { r.modes = append(r.modes, mode) }

func testConfig() *config.Config {
	return &config.Config{
		ErrorThreshold: 30 * time.Second,
		ADCStaleFatal:  10 * time.Second,
		ControlHold:    5 * time.Second,
		LoopDelay:      time.Millisecond,
	}
}

func newTestController() (*Controller, *memEvents, *memSink, *memRunner, *fakeClock) {
	events := &memEvents{}
	sink := &memSink{}
	runner := &memRunner{}
	clk := newFakeClock()
	c := NewController(nil, events, sink, runner, testConfig(), logger.Nop())
	c.now = clk.Now
	return c, events, sink, runner, clk
}

func snap(p1, p2, p3 bool) models.SignalSnapshot {
	return models.SignalSnapshot{TankFull: p1, ManualStart: p2, TankEmpty: p3}
}

func apply(c *Controller, s models.SignalSnapshot) {
	c.mu.Lock()
	c.applySignals(s)
	c.mu.Unlock()
}

func TestApplySignalsTruthTable(t *testing.T) {
	tests := []struct {
		name          string
		p1, p2, p3    bool
		start         models.PumpStateName
		want          models.PumpStateName
		wantEvent     models.EventType
		wantErrTimer  bool
		wantMsgSubstr string
	}{
		{name: "all low keeps not pumping", start: models.NotPumping, want: models.NotPumping},
		{name: "all low keeps pumping", start: models.Pumping, want: models.Pumping},
		{name: "all low keeps manual", start: models.ManualPumping, want: models.ManualPumping},

		{name: "all high forces pumping from idle", p1: true, p2: true, p3: true,
			start: models.NotPumping, want: models.Pumping, wantErrTimer: true,
			wantMsgSubstr: "simultaneous tank empty, manual start, and tank full signals while not pumping"},
		{name: "all high holds auto pumping", p1: true, p2: true, p3: true,
			start: models.Pumping, want: models.Pumping, wantErrTimer: true,
			wantMsgSubstr: "while auto pumping"},
		{name: "all high holds manual pumping", p1: true, p2: true, p3: true,
			start: models.ManualPumping, want: models.ManualPumping, wantErrTimer: true,
			wantMsgSubstr: "while manual pumping"},

		{name: "full and empty forces pumping from idle", p1: true, p3: true,
			start: models.NotPumping, want: models.Pumping, wantErrTimer: true,
			wantMsgSubstr: "simultaneous tank empty and tank full signals while not pumping"},
		{name: "full and empty holds auto pumping", p1: true, p3: true,
			start: models.Pumping, want: models.Pumping, wantErrTimer: true,
			wantMsgSubstr: "while auto pumping"},
		{name: "full and empty holds manual pumping", p1: true, p3: true,
			start: models.ManualPumping, want: models.ManualPumping, wantErrTimer: true,
			wantMsgSubstr: "while manual pumping"},

		{name: "empty and manual stops auto pumping", p2: true, p3: true,
			start: models.Pumping, want: models.NotPumping, wantEvent: models.EventPumpStop,
			wantMsgSubstr: "simultaneous tank empty and manual pump start signals while auto pumping"},
		{name: "empty and manual stops manual pumping", p2: true, p3: true,
			start: models.ManualPumping, want: models.NotPumping, wantEvent: models.EventPumpStop,
			wantMsgSubstr: "while manual pumping"},
		{name: "empty and manual noop while idle", p2: true, p3: true,
			start: models.NotPumping, want: models.NotPumping,
			wantMsgSubstr: "while not pumping"},

		{name: "full and manual starts auto from idle", p1: true, p2: true,
			start: models.NotPumping, want: models.Pumping, wantEvent: models.EventAutoPumpStart,
			wantErrTimer: true, wantMsgSubstr: "simultaneous tank full and manual start signals while not pumping"},
		{name: "full and manual holds auto pumping", p1: true, p2: true,
			start: models.Pumping, want: models.Pumping, wantErrTimer: true,
			wantMsgSubstr: "while auto pumping"},
		{name: "full and manual promotes manual to auto", p1: true, p2: true,
			start: models.ManualPumping, want: models.Pumping, wantEvent: models.EventAutoPumpStart,
			wantErrTimer: true, wantMsgSubstr: "while manually pumping"},

		{name: "tank full starts auto from idle", p1: true,
			start: models.NotPumping, want: models.Pumping, wantEvent: models.EventAutoPumpStart},
		{name: "tank full while auto pumping warns", p1: true,
			start: models.Pumping, want: models.Pumping, wantErrTimer: true,
			wantMsgSubstr: "received tank full signal while auto pumping"},
		{name: "tank full promotes manual to auto", p1: true,
			start: models.ManualPumping, want: models.Pumping, wantEvent: models.EventAutoPumpStart,
			wantErrTimer: true, wantMsgSubstr: "received tank full signal while manual pumping"},

		{name: "manual start from idle", p2: true,
			start: models.NotPumping, want: models.ManualPumping, wantEvent: models.EventManualPumpStart},
		{name: "manual signal while auto pumping warns", p2: true,
			start: models.Pumping, want: models.Pumping,
			wantMsgSubstr: "received manual pump signal while auto pumping"},
		{name: "manual signal holds manual pumping", p2: true,
			start: models.ManualPumping, want: models.ManualPumping},

		{name: "tank empty stops auto pumping", p3: true,
			start: models.Pumping, want: models.NotPumping, wantEvent: models.EventPumpStop},
		{name: "tank empty stops manual pumping", p3: true,
			start: models.ManualPumping, want: models.NotPumping, wantEvent: models.EventPumpStop},
		{name: "tank empty noop while idle", p3: true,
			start: models.NotPumping, want: models.NotPumping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, events, sink, _, _ := newTestController()
			c.state.CurrentState = tt.start
			if tt.start.Active() {
				c.state.PumpStartTime = c.now().Add(-time.Minute)
			}

			apply(c, snap(tt.p1, tt.p2, tt.p3))

			if got := c.state.CurrentState; got != tt.want {
				t.Fatalf("state = %s, want %s", got, tt.want)
			}
			if tt.wantEvent != "" {
				if got := events.ofType(tt.wantEvent); len(got) != 1 {
					t.Fatalf("events of type %q = %d, want 1 (all: %+v)", tt.wantEvent, len(got), events.events)
				}
			} else if len(events.events) != 0 {
				t.Fatalf("unexpected events: %+v", events.events)
			}
			if tt.wantErrTimer != !c.state.ErrorStartedAt.IsZero() {
				t.Fatalf("error timer set = %v, want %v", !c.state.ErrorStartedAt.IsZero(), tt.wantErrTimer)
			}
			if tt.wantMsgSubstr != "" && !sink.contains(tt.wantMsgSubstr) {
				t.Fatalf("error sink missing %q, got %v", tt.wantMsgSubstr, sink.msgs)
			}
		})
	}
}

func TestErrorEscalationLatchesFatalOnce(t *testing.T) {
	c, events, sink, _, clk := newTestController()

	for i := 0; i < 31; i++ {
		apply(c, snap(true, false, true))
		clk.Advance(time.Second)
	}

	if !c.state.FatalError {
		t.Fatal("fatal error not latched after threshold")
	}
	if c.state.CurrentState != models.NotPumping {
		t.Fatalf("state = %s, want not_pumping", c.state.CurrentState)
	}
	if !sink.contains("FATAL ERROR: STOPPING") {
		t.Fatalf("missing fatal stop message, got %v", sink.msgs)
	}
	if got := events.ofType(models.EventFatalError); len(got) != 1 {
		t.Fatalf("fatal events = %d, want 1", len(got))
	}

	// Fatal is sticky: further polls emit no additional terminal events.
	for i := 0; i < 10; i++ {
		apply(c, snap(false, false, false))
		clk.Advance(time.Second)
	}
	if got := events.ofType(models.EventFatalError); len(got) != 1 {
		t.Fatalf("fatal events after extra polls = %d, want 1", len(got))
	}
	if c.state.CurrentState != models.NotPumping {
		t.Fatal("fatal state must force not_pumping")
	}
}

func TestValidComboResetsErrorTimer(t *testing.T) {
	c, _, _, _, clk := newTestController()

	apply(c, snap(true, false, true))
	if c.state.ErrorStartedAt.IsZero() {
		t.Fatal("error timer not started")
	}
	clk.Advance(10 * time.Second)

	apply(c, snap(false, false, false))
	if !c.state.ErrorStartedAt.IsZero() {
		t.Fatal("all-low combo must reset the error timer")
	}

	// The streak restarts from scratch, so fatal needs another full window.
	for i := 0; i < 29; i++ {
		apply(c, snap(true, false, true))
		clk.Advance(time.Second)
	}
	if c.state.FatalError {
		t.Fatal("fatal latched before a full continuous window")
	}
}

func TestStaleReadForcesStopThenFatal(t *testing.T) {
	c, events, _, _, clk := newTestController()
	c.source = signal.NewFakeSource(signal.FakeStep{Err: signal.ErrStale})

	c.state.CurrentState = models.Pumping
	c.state.PumpStartTime = clk.Now().Add(-time.Minute)

	c.poll()
	if c.state.CurrentState != models.NotPumping {
		t.Fatalf("state = %s, want not_pumping after stale read", c.state.CurrentState)
	}
	if got := events.ofType(models.EventPumpStop); len(got) != 1 {
		t.Fatalf("pump stop events = %d, want 1", len(got))
	}
	if c.state.FatalError {
		t.Fatal("fatal latched on first stale read")
	}

	for i := 0; i < 11; i++ {
		clk.Advance(time.Second)
		c.poll()
	}
	if !c.state.FatalError {
		t.Fatal("continuous staleness must escalate to fatal")
	}
	if got := events.ofType(models.EventFatalError); len(got) != 1 {
		t.Fatalf("fatal events = %d, want 1", len(got))
	}
}

func TestSuccessfulReadClearsOnlyStaleTimer(t *testing.T) {
	c, _, _, _, clk := newTestController()
	c.source = signal.NewFakeSource(
		signal.FakeStep{Err: signal.ErrStale},
		signal.FakeStep{Snap: snap(true, false, true)},
	)

	c.poll()
	if c.state.ADCStaleStartedAt.IsZero() {
		t.Fatal("stale timer not started")
	}

	clk.Advance(time.Second)
	apply(c, snap(true, false, true)) // start a general error streak
	errStarted := c.state.ErrorStartedAt
	if errStarted.IsZero() {
		t.Fatal("error timer not started")
	}

	clk.Advance(time.Second)
	c.poll()
	if !c.state.ADCStaleStartedAt.IsZero() {
		t.Fatal("good read must clear the stale timer")
	}
	if c.state.ErrorStartedAt != errStarted {
		t.Fatal("good read must not touch the general error timer")
	}
}

func TestClearFatal(t *testing.T) {
	c, _, sink, _, _ := newTestController()

	// No-op when nothing is latched, and quiet about it.
	c.ClearFatal()
	if len(sink.msgs) != 0 {
		t.Fatalf("clear on non-fatal state logged %v", sink.msgs)
	}

	c.mu.Lock()
	c.handleFatal()
	c.mu.Unlock()

	c.ClearFatal()
	if c.state.FatalError || c.state.FatalSent {
		t.Fatal("fatal latch not cleared")
	}
	if !c.state.ErrorStartedAt.IsZero() || !c.state.ADCStaleStartedAt.IsZero() {
		t.Fatal("escalation timers not cleared")
	}
	if !sink.contains("Cleared fatal error state") {
		t.Fatalf("missing clear message, got %v", sink.msgs)
	}
}

func TestControlHoldFiresOnceAfterHold(t *testing.T) {
	c, _, _, runner, clk := newTestController()

	high := models.SignalSnapshot{ServiceOn: true}
	c.handleControlHolds(high)
	clk.Advance(4 * time.Second)
	c.handleControlHolds(high)
	if len(runner.modes) != 0 {
		t.Fatalf("hold fired early: %v", runner.modes)
	}

	clk.Advance(time.Second)
	c.handleControlHolds(high)
	if len(runner.modes) != 1 || runner.modes[0] != "on" {
		t.Fatalf("runner modes = %v, want [on]", runner.modes)
	}

	// Held past the threshold: must not fire again.
	clk.Advance(10 * time.Second)
	c.handleControlHolds(high)
	if len(runner.modes) != 1 {
		t.Fatalf("hold fired twice: %v", runner.modes)
	}

	// Release re-arms immediately; a fresh hold fires again.
	c.handleControlHolds(models.SignalSnapshot{})
	c.handleControlHolds(high)
	clk.Advance(5 * time.Second)
	c.handleControlHolds(high)
	if len(runner.modes) != 2 {
		t.Fatalf("runner modes = %v, want two firings", runner.modes)
	}
}

func TestControlHoldClearFatal(t *testing.T) {
	c, _, _, _, clk := newTestController()
	c.mu.Lock()
	c.handleFatal()
	c.mu.Unlock()

	high := models.SignalSnapshot{ClearFatal: true}
	c.handleControlHolds(high)
	clk.Advance(5 * time.Second)
	c.handleControlHolds(high)

	if c.state.FatalError {
		t.Fatal("clear_fatal hold did not clear the latch")
	}
}

func TestRecordErrorDedup(t *testing.T) {
	c, _, sink, _, clk := newTestController()

	c.mu.Lock()
	c.recordError("WARNING: repeated")
	c.recordError("WARNING: repeated")
	c.mu.Unlock()
	if len(sink.msgs) != 1 {
		t.Fatalf("dedup window let %d messages through", len(sink.msgs))
	}

	clk.Advance(time.Second)
	c.mu.Lock()
	c.recordError("WARNING: repeated")
	c.mu.Unlock()
	if len(sink.msgs) != 2 {
		t.Fatalf("message not re-emitted after the window, got %v", sink.msgs)
	}

	c.mu.Lock()
	c.recordError("WARNING: different")
	c.mu.Unlock()
	if len(sink.msgs) != 3 {
		t.Fatalf("distinct message suppressed, got %v", sink.msgs)
	}
}

func TestRecordErrorFatalPrefix(t *testing.T) {
	c, _, sink, _, _ := newTestController()
	c.mu.Lock()
	c.state.FatalError = true
	c.recordError("WARNING: while latched")
	c.mu.Unlock()

	if len(sink.msgs) != 1 || !strings.HasPrefix(sink.msgs[0], "[FATAL ERROR] ") {
		t.Fatalf("messages while fatal must carry the prefix, got %v", sink.msgs)
	}
}

func TestTankFullStartDerivesFlowRate(t *testing.T) {
	c, events, _, _, clk := newTestController()
	c.state.PumpEndTime = clk.Now().Add(-time.Hour)

	apply(c, snap(true, false, false))

	starts := events.ofType(models.EventAutoPumpStart)
	if len(starts) != 1 {
		t.Fatalf("auto start events = %d, want 1", len(starts))
	}
	e := starts[0]
	if e.PumpIntervalS == nil || *e.PumpIntervalS != 3600 {
		t.Fatalf("pump_interval_s = %v, want 3600", e.PumpIntervalS)
	}
	if e.GallonsPerHour == nil || *e.GallonsPerHour != 12.18 {
		t.Fatalf("gallons_per_hour = %v, want 12.18", e.GallonsPerHour)
	}
	if !c.state.PumpEndTime.IsZero() {
		t.Fatal("pump_end_time not consumed by the start")
	}
}

func TestTankFullStartWithoutEndTimeWarns(t *testing.T) {
	c, events, sink, _, _ := newTestController()

	apply(c, snap(true, false, false))

	starts := events.ofType(models.EventAutoPumpStart)
	if len(starts) != 1 {
		t.Fatalf("auto start events = %d, want 1", len(starts))
	}
	if starts[0].PumpIntervalS != nil || starts[0].GallonsPerHour != nil {
		t.Fatal("fill metrics must be absent without a prior pump_end_time")
	}
	if !sink.contains("no pump_end_time") {
		t.Fatalf("missing warning, got %v", sink.msgs)
	}
}

func TestPumpStopRecordsRunTimeAndInterval(t *testing.T) {
	c, events, _, _, clk := newTestController()
	c.state.CurrentState = models.Pumping
	c.state.PumpStartTime = clk.Now().Add(-90 * time.Second)
	c.state.LastStopTime = clk.Now().Add(-10 * time.Minute)
	fr := 42.0
	c.state.LastFlowRate = &fr

	apply(c, snap(false, false, true))

	stops := events.ofType(models.EventPumpStop)
	if len(stops) != 1 {
		t.Fatalf("stop events = %d, want 1", len(stops))
	}
	e := stops[0]
	if e.PumpRunTimeS == nil || *e.PumpRunTimeS != 90 {
		t.Fatalf("pump_run_time_s = %v, want 90", e.PumpRunTimeS)
	}
	if e.PumpIntervalS == nil || *e.PumpIntervalS != 600 {
		t.Fatalf("pump_interval_s = %v, want 600", e.PumpIntervalS)
	}
	if e.GallonsPerHour == nil || *e.GallonsPerHour != 42 {
		t.Fatalf("gallons_per_hour = %v, want 42", e.GallonsPerHour)
	}
	if c.state.PumpEndTime.IsZero() || c.state.LastStopTime != c.now() || !c.state.PumpStartTime.IsZero() {
		t.Fatal("stop bookkeeping incomplete")
	}
}

func TestPumpStopWithoutStartTimeWarns(t *testing.T) {
	c, events, sink, _, _ := newTestController()
	c.state.CurrentState = models.ManualPumping

	apply(c, snap(false, false, true))

	stops := events.ofType(models.EventPumpStop)
	if len(stops) != 1 {
		t.Fatalf("stop events = %d, want 1", len(stops))
	}
	if stops[0].PumpRunTimeS != nil {
		t.Fatal("run time must be absent without a start time")
	}
	if !sink.contains("Missing valid start time") {
		t.Fatalf("missing warning, got %v", sink.msgs)
	}
}

func TestTankEmptyWhileIdleStampsEndTimeOnce(t *testing.T) {
	c, _, _, _, clk := newTestController()

	apply(c, snap(false, false, true))
	first := c.state.PumpEndTime
	if first.IsZero() {
		t.Fatal("pump_end_time not stamped")
	}

	clk.Advance(time.Minute)
	apply(c, snap(false, false, true))
	if c.state.PumpEndTime != first {
		t.Fatal("held tank_empty must not move pump_end_time")
	}
}

func TestSnapshotCopiesPointerMetrics(t *testing.T) {
	c, _, _, _, _ := newTestController()
	v := 10.0
	c.state.LastFlowRate = &v

	got := c.Snapshot()
	if got.LastFlowRate == c.state.LastFlowRate {
		t.Fatal("snapshot aliases controller memory")
	}
	if *got.LastFlowRate != 10 {
		t.Fatalf("flow rate = %v, want 10", *got.LastFlowRate)
	}
}
