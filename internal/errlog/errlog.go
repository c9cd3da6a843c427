// Package errlog provides the error/log sink the controller reports through.
// Records fan out to the local error-log file and the SQLite error_logs
// table; the controller applies its own duplicate suppression before calling
// Append.
package errlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sappump/internal/models"
	"sappump/internal/repository"
)

// Sink accepts one error/warning record.
type Sink interface {
	Append(message, source string, ts time.Time) error
}

// FileSink appends human-readable lines to a local log file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error-log directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) Append(message, source string, ts time.Time) error {
	line := fmt.Sprintf("[%s] %s: %s\n", ts.UTC().Format(time.RFC3339), source, message)
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	return nil
}

// RepoSink records into the error_logs table.
type RepoSink struct {
	repo repository.ErrorLogRepo
}

func NewRepoSink(repo repository.ErrorLogRepo) *RepoSink {
	return &RepoSink{repo: repo}
}

func (s *RepoSink) Append(message, source string, ts time.Time) error {
	return s.repo.Insert(context.Background(), models.ErrorLog{
		Source:          source,
		Message:         message,
		SourceTimestamp: ts,
	})
}

// MultiSink writes to every sink, best-effort: one failing sink does not
// stop the others.
type MultiSink []Sink

func Multi(sinks ...Sink) MultiSink { return MultiSink(sinks) }

func (m MultiSink) Append(message, source string, ts time.Time) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(message, source, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
