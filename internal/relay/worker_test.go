package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"sappump/internal/logger"
	"sappump/internal/models"
)

type fakeState struct {
	mu sync.Mutex
	st models.PumpState
}

func (f *fakeState) Snapshot() models.PumpState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeState) set(name models.PumpStateName, fatal bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.CurrentState = name
	f.st.FatalError = fatal
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestWorkerCommandsOnWhilePumping(t *testing.T) {
	act := &FakeActuator{}
	st := &fakeState{}
	st.set(models.Pumping, false)

	w := NewWorker(act, st, time.Millisecond, logger.Nop())
	w.Start()
	defer w.Stop()

	waitFor(t, act.On)

	st.set(models.NotPumping, false)
	waitFor(t, func() bool { return !act.On() })
}

func TestWorkerFatalForcesOff(t *testing.T) {
	act := &FakeActuator{}
	st := &fakeState{}
	st.set(models.ManualPumping, true)

	w := NewWorker(act, st, time.Millisecond, logger.Nop())
	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(act.History()) >= 3 })
	for _, on := range act.History() {
		if on {
			t.Fatal("relay commanded on while fatal error latched")
		}
	}
}

func TestWorkerStopForcesOff(t *testing.T) {
	act := &FakeActuator{}
	st := &fakeState{}
	st.set(models.Pumping, false)

	w := NewWorker(act, st, time.Millisecond, logger.Nop())
	w.Start()
	waitFor(t, act.On)

	w.Stop()
	if act.On() {
		t.Fatal("relay left on after stop")
	}
	if w.Alive() {
		t.Fatal("worker still alive after stop")
	}

	hist := act.History()
	if len(hist) == 0 || hist[len(hist)-1] {
		t.Fatal("final commanded value was not off")
	}
}

func TestWorkerSurvivesWriteFailures(t *testing.T) {
	act := &FakeActuator{SetErr: errors.New("write failed")}
	st := &fakeState{}
	st.set(models.Pumping, false)

	w := NewWorker(act, st, time.Millisecond, logger.Nop())
	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(act.History()) >= 5 })
	if !w.Alive() {
		t.Fatal("worker died on write failure")
	}
}

func TestWorkerRestartable(t *testing.T) {
	act := &FakeActuator{}
	st := &fakeState{}
	st.set(models.Pumping, false)

	w := NewWorker(act, st, time.Millisecond, logger.Nop())
	w.Start()
	waitFor(t, act.On)
	w.Stop()

	if act.Closed() {
		t.Fatal("stop must not release the actuator")
	}

	w.Start()
	waitFor(t, act.On)
	w.Stop()
}
