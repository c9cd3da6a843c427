package signal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sappump/internal/models"
)

// snapshotPayload is the wire form shared with the sampler process. The
// sampler stamps Timestamp (unix seconds, wall clock) when it writes; readers
// derive age from it.
type snapshotPayload struct {
	Timestamp float64        `json:"timestamp"`
	Signals   payloadSignals `json:"signals"`
	Volts     payloadVolts   `json:"volts"`
	Vacuum    *payloadVacuum `json:"vacuum,omitempty"`
}

type payloadSignals struct {
	TankFull    bool `json:"tank_full"`
	ManualStart bool `json:"manual_start"`
	TankEmpty   bool `json:"tank_empty"`
	ServiceOn   bool `json:"service_on"`
	ServiceOff  bool `json:"service_off"`
	ClearFatal  bool `json:"clear_fatal"`
}

type payloadVolts struct {
	TankFull    float64 `json:"tank_full"`
	ManualStart float64 `json:"manual_start"`
	TankEmpty   float64 `json:"tank_empty"`
	ServiceOn   float64 `json:"service_on"`
	ServiceOff  float64 `json:"service_off"`
	ClearFatal  float64 `json:"clear_fatal"`
}

type payloadVacuum struct {
	Volts *float64 `json:"volts"`
}

func payloadFromSnapshot(snap models.SignalSnapshot, ts time.Time) snapshotPayload {
	p := snapshotPayload{
		Timestamp: float64(ts.UnixNano()) / float64(time.Second),
		Signals: payloadSignals{
			TankFull:    snap.TankFull,
			ManualStart: snap.ManualStart,
			TankEmpty:   snap.TankEmpty,
			ServiceOn:   snap.ServiceOn,
			ServiceOff:  snap.ServiceOff,
			ClearFatal:  snap.ClearFatal,
		},
		Volts: payloadVolts(snap.Volts),
	}
	if snap.VacuumVolts != nil {
		p.Vacuum = &payloadVacuum{Volts: snap.VacuumVolts}
	}
	return p
}

func (p snapshotPayload) snapshot() models.SignalSnapshot {
	snap := models.SignalSnapshot{
		TankFull:    p.Signals.TankFull,
		ManualStart: p.Signals.ManualStart,
		TankEmpty:   p.Signals.TankEmpty,
		ServiceOn:   p.Signals.ServiceOn,
		ServiceOff:  p.Signals.ServiceOff,
		ClearFatal:  p.Signals.ClearFatal,
		Volts:       models.ChannelVolts(p.Volts),
	}
	if p.Vacuum != nil && p.Vacuum.Volts != nil {
		v := *p.Vacuum.Volts
		snap.VacuumVolts = &v
	}
	return snap
}

func (p snapshotPayload) age(now time.Time) time.Duration {
	written := time.Unix(0, int64(p.Timestamp*float64(time.Second)))
	age := now.Sub(written)
	if age < 0 {
		return 0
	}
	return age
}

// CacheSource reads the sampler's atomically-replaced JSON snapshot file
// (typically under /dev/shm). Any read or decode failure, and any snapshot
// older than maxAge, is reported as stale: the controller must treat
// unknown input as unsafe.
type CacheSource struct {
	path   string
	maxAge time.Duration
	now    func() time.Time
}

func NewCacheSource(path string, maxAge time.Duration) *CacheSource {
	return &CacheSource{path: path, maxAge: maxAge, now: time.Now}
}

func (s *CacheSource) ReadSignals() (models.SignalSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return models.SignalSnapshot{}, fmt.Errorf("%w: cache read failed: %v", ErrStale, err)
	}
	var p snapshotPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.SignalSnapshot{}, fmt.Errorf("%w: cache decode failed: %v", ErrStale, err)
	}
	if p.Timestamp <= 0 {
		return models.SignalSnapshot{}, fmt.Errorf("%w: cache missing timestamp", ErrStale)
	}
	if age := p.age(s.now()); age > s.maxAge {
		return models.SignalSnapshot{}, fmt.Errorf("%w: cache age %.2fs exceeds %.2fs",
			ErrStale, age.Seconds(), s.maxAge.Seconds())
	}
	return p.snapshot(), nil
}

// WriteCache publishes a snapshot for CacheSource consumers. The write is
// atomic (temp file + rename) so readers never see a torn payload.
func WriteCache(path string, snap models.SignalSnapshot, ts time.Time) error {
	data, err := json.Marshal(payloadFromSnapshot(snap, ts))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}
