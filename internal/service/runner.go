package service

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"sappump/internal/errlog"
	"sappump/internal/logger"
)

// ServiceToggle runs the station's systemd toggle script in a transient
// scope, detached from this process. At most one invocation runs at a time;
// a request arriving while one is in flight is skipped, not queued. Script
// failures are reported to the error sink only, they never disturb the
// control loop.
type ServiceToggle struct {
	scriptPath string
	errors     errlog.Sink
	log        *logger.Logger

	mu sync.Mutex

	// runCmd is swappable in tests.
	runCmd func(name string, args ...string) ([]byte, int, error)
}

var timeNow = time.Now

func NewServiceToggle(scriptPath string, errSink errlog.Sink, log *logger.Logger) *ServiceToggle {
	return &ServiceToggle{
		scriptPath: scriptPath,
		errors:     errSink,
		log:        log,
		runCmd:     runCombined,
	}
}

func runCombined(name string, args ...string) ([]byte, int, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out, exitErr.ExitCode(), nil
		}
		return out, 0, err
	}
	return out, 0, nil
}

// Run launches the toggle script asynchronously. mode is "on" or "off".
func (s *ServiceToggle) Run(mode string) {
	go s.runOnce(mode)
}

func (s *ServiceToggle) runOnce(mode string) {
	if !s.mu.TryLock() {
		s.log.Infow("skipping service toggle; command already running", "mode", mode)
		return
	}
	defer s.mu.Unlock()

	if _, err := os.Stat(s.scriptPath); err != nil {
		s.report(fmt.Sprintf("service toggle script not found at %s", s.scriptPath))
		return
	}

	out, code, err := s.runCmd("sudo", "-n", "systemd-run", "--scope", "--quiet", s.scriptPath, "-"+mode)
	if err != nil {
		s.report(fmt.Sprintf("Failed to run service toggle -%s: %v", mode, err))
		return
	}
	if code != 0 {
		msg := fmt.Sprintf("service toggle -%s failed (code %d)", mode, code)
		if detail := strings.TrimSpace(string(out)); detail != "" {
			msg += ": " + detail
		}
		s.report(msg)
	}
}

func (s *ServiceToggle) report(message string) {
	if err := s.errors.Append(message, "pump", timeNow()); err != nil {
		s.log.Warnw("failed to persist error log", "err", err)
	}
}
