package signal

import (
	"sync"

	"sappump/internal/models"
)

// FakeSource is a test double returning scripted snapshots. Each ReadSignals
// call consumes the next step; when steps are exhausted the last one repeats.
type FakeSource struct {
	mu    sync.Mutex
	steps []FakeStep
	index int
	reads int
}

// FakeStep is one scripted read result: either a snapshot or an error.
type FakeStep struct {
	Snap models.SignalSnapshot
	Err  error
}

func NewFakeSource(steps ...FakeStep) *FakeSource {
	return &FakeSource{steps: steps}
}

func (f *FakeSource) ReadSignals() (models.SignalSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.steps) == 0 {
		return models.SignalSnapshot{}, nil
	}
	step := f.steps[f.index]
	if f.index < len(f.steps)-1 {
		f.index++
	}
	return step.Snap, step.Err
}

// Set replaces the script with a single repeating step.
func (f *FakeSource) Set(snap models.SignalSnapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = []FakeStep{{Snap: snap, Err: err}}
	f.index = 0
}

// Reads reports how many times ReadSignals has been called.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
