// Package relay drives the transfer-pump relay output. The actuator is
// fail-safe: it starts OFF and every shutdown path forces it OFF before the
// line is released.
package relay

import "sync"

// Actuator is a single boolean hardware output.
type Actuator interface {
	// Set commands the output. Implementations must not block indefinitely.
	Set(on bool) error

	// Close forces the output OFF and releases the hardware handle.
	Close() error
}

// Noop returns an actuator that discards commands. Used when the GPIO line
// is unavailable so the rest of the station keeps running.
func Noop() Actuator { return noopActuator{} }

type noopActuator struct{}

func (noopActuator) Set(bool) error { return nil }
func (noopActuator) Close() error   { return nil }

// FakeActuator records commanded values for tests.
type FakeActuator struct {
	mu      sync.Mutex
	history []bool
	current bool
	closed  bool

	// SetErr, if set, is returned by Set while still recording the command.
	SetErr error
}

func (f *FakeActuator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, on)
	if f.SetErr != nil {
		return f.SetErr
	}
	f.current = on
	return nil
}

func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = false
	f.closed = true
	return nil
}

func (f *FakeActuator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *FakeActuator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeActuator) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.history))
	copy(out, f.history)
	return out
}
