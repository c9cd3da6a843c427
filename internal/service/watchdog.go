package service

import (
	"time"

	"sappump/internal/errlog"
	"sappump/internal/logger"
	"sappump/internal/metrics"
)

const watchdogInterval = 5 * time.Second

// Watchdog supervises the background loops and restarts any that died,
// regardless of cause. A restart is recorded to the error sink so an
// unattended station leaves a trace.
type Watchdog struct {
	loops  map[string]Loop
	errors errlog.Sink
	log    *logger.Logger

	stop chan struct{}
	done chan struct{}
}

func NewWatchdog(loops map[string]Loop, errSink errlog.Sink, log *logger.Logger) *Watchdog {
	return &Watchdog{
		loops:  loops,
		errors: errSink,
		log:    log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

func (w *Watchdog) run() {
	defer close(w.done)
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	for name, loop := range w.loops {
		if loop.Alive() {
			continue
		}
		w.log.Warnw("restarting dead loop", "loop", name)
		if err := w.errors.Append("Restarting "+name+" loop", "pump", time.Now()); err != nil {
			w.log.Warnw("failed to persist error log", "err", err)
		}
		metrics.LoopRestarts.Inc()
		loop.Stop()
		loop.Start()
	}
}
