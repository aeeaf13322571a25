// Package applog sets up structured logging for the process.
package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// keepDays is how many daily log files survive pruning.
const keepDays = 7

// Init configures slog for the process. With an empty dir, logs go to
// stderr. Otherwise they go to a daily-rotating file under dir, and the
// stdlib log package is redirected there too. The returned closer must be
// deferred by the caller.
func Init(dir, level string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if dir == "" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &dailyRotator{dir: dir, now: time.Now}
	logger := slog.New(slog.NewTextHandler(rotator, opts))
	slog.SetDefault(logger)
	log.SetOutput(rotator)
	log.SetFlags(0)
	return logger, rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel converts a level string to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dailyRotator writes to marigold-<date>.log, starting a new file each
// calendar day and pruning files older than keepDays.
type dailyRotator struct {
	mu   sync.Mutex
	dir  string
	date string
	file *os.File
	now  func() time.Time
}

func (r *dailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().Format("2006-01-02")
	if today != r.date {
		if r.file != nil {
			r.file.Close()
			r.file = nil
		}
		name := filepath.Join(r.dir, "marigold-"+today+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return 0, err
		}
		r.file = f
		r.date = today
		r.prune()
	}
	return r.file.Write(p)
}

func (r *dailyRotator) prune() {
	matches, err := filepath.Glob(filepath.Join(r.dir, "marigold-*.log"))
	if err != nil || len(matches) <= keepDays {
		return
	}
	sort.Strings(matches)
	for _, f := range matches[:len(matches)-keepDays] {
		os.Remove(f)
	}
}

func (r *dailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
