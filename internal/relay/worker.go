package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"sappump/internal/logger"
	"sappump/internal/models"
)

// StateSource exposes a read-only snapshot of the controller's state.
type StateSource interface {
	Snapshot() models.PumpState
}

// Worker polls the controller snapshot on a fixed cadence and drives the
// actuator: ON iff the state is actively pumping and no fatal error is
// latched, OFF otherwise. A failed hardware write is logged and the actuator
// keeps its last commanded value; because the worker re-commands the desired
// state every tick there is no explicit retry. Whether the relay should
// instead be forced OFF on a write failure is a known safety ambiguity,
// preserved deliberately.
type Worker struct {
	actuator Actuator
	state    StateSource
	interval time.Duration
	log      *logger.Logger

	mu    sync.Mutex
	stop  chan struct{}
	done  chan struct{}
	alive atomic.Bool
}

func NewWorker(actuator Actuator, state StateSource, interval time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		actuator: actuator,
		state:    state,
		interval: interval,
		log:      log,
	}
}

// Start launches the polling loop. Starting a running worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.alive.Load() {
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.alive.Store(true)
	go w.run(w.stop, w.done)
}

// Stop halts the loop and forces the actuator OFF. It does not release the
// hardware handle, so a watchdog restart can reuse the actuator.
func (w *Worker) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.mu.Unlock()
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
		w.log.Warnw("relay loop did not stop in time")
	}
	if err := w.actuator.Set(false); err != nil {
		w.log.Warnw("failed to force relay off on stop", "err", err)
	}
}

// Alive reports whether the polling loop is running.
func (w *Worker) Alive() bool { return w.alive.Load() }

func (w *Worker) run(stop, done chan struct{}) {
	defer close(done)
	defer w.alive.Store(false)
	for {
		select {
		case <-stop:
			return
		default:
		}

		w.tick()

		select {
		case <-stop:
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *Worker) tick() {
	st := w.state.Snapshot()
	on := st.CurrentState.Active() && !st.FatalError
	if err := w.actuator.Set(on); err != nil {
		w.log.Warnw("relay write failed", "want_on", on, "err", err)
	}
}
