// Package broadcast fans periodic dashboard updates out to push listeners.
package broadcast

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the dashboard push period.
const DefaultInterval = 2000 * time.Millisecond

// Listener is one open push connection.
type Listener interface {
	// Push writes one update payload to the client.
	Push(payload []byte) error
}

// Server multiplexes one recomputed update per tick to every registered
// listener. The timer runs only while listeners exist: the first Add starts
// it and the Remove that empties the set stops it synchronously. The ticker
// itself is created at most once and reused across start/stop cycles.
type Server struct {
	update   func() []byte
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[Listener]struct{}
	ticker    *time.Ticker
	quit      chan struct{}
	running   bool
}

// New creates a broadcast server. update computes the payload for one tick;
// an empty result skips that tick's push entirely.
func New(update func() []byte, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		update:    update,
		interval:  interval,
		logger:    logger,
		listeners: make(map[Listener]struct{}),
	}
}

// Add registers a listener. Registering the first listener starts the
// timer; re-adding a known listener is a no-op.
func (s *Server) Add(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[l]; ok {
		return
	}
	s.listeners[l] = struct{}{}
	if len(s.listeners) == 1 {
		s.start()
	}
}

// Remove unregisters a listener; unknown listeners are a no-op. Removing
// the last listener stops the timer before returning.
func (s *Server) Remove(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[l]; !ok {
		return
	}
	delete(s.listeners, l)
	if len(s.listeners) == 0 {
		s.stop()
	}
}

// Len reports the number of registered listeners.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Running reports whether the tick timer is active.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// start requires s.mu held. Starting while running is a no-op.
func (s *Server) start() {
	if s.running {
		return
	}
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.interval)
	} else {
		s.ticker.Reset(s.interval)
	}
	// Drop any tick buffered while stopped: a listener connected mid-cycle
	// first receives data on the next tick, not retroactively.
	select {
	case <-s.ticker.C:
	default:
	}
	s.quit = make(chan struct{})
	s.running = true
	s.logger.Debug("starting dashboard update timer")
	go s.loop(s.ticker.C, s.quit)
}

// stop requires s.mu held. Stopping while stopped is a no-op.
func (s *Server) stop() {
	if !s.running {
		return
	}
	s.ticker.Stop()
	close(s.quit)
	s.running = false
	s.logger.Debug("stopping dashboard update timer")
}

func (s *Server) loop(tick <-chan time.Time, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-tick:
			s.tick()
		}
	}
}

// tick computes one update and pushes the identical payload to every
// listener. A failed push is logged and skipped; the connection's own close
// path is responsible for removal.
func (s *Server) tick() {
	payload := s.update()
	if len(payload) == 0 {
		return
	}
	s.mu.Lock()
	targets := make([]Listener, 0, len(s.listeners))
	for l := range s.listeners {
		targets = append(targets, l)
	}
	s.mu.Unlock()
	for _, l := range targets {
		if err := l.Push(payload); err != nil {
			s.logger.Debug("dashboard push failed", "error", err)
		}
	}
}
