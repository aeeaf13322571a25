// Package state holds the live view of the worker fleet: a per-worker event
// counter table and a worker registry, both maintained by the event-stream
// consumer and read by the dashboard.
package state

import (
	"sort"
	"sync"
)

// Event types reported by workers.
const (
	EventWorkerOnline    = "worker-online"
	EventWorkerHeartbeat = "worker-heartbeat"
	EventWorkerOffline   = "worker-offline"

	EventTaskReceived  = "task-received"
	EventTaskStarted   = "task-started"
	EventTaskSucceeded = "task-succeeded"
	EventTaskFailed    = "task-failed"
	EventTaskRetried   = "task-retried"
)

// maxHeartbeats bounds the per-worker heartbeat history.
const maxHeartbeats = 60

// Event is one decoded entry from the worker event stream.
type Event struct {
	Type      string    `json:"type"`
	Hostname  string    `json:"hostname"`
	Timestamp float64   `json:"timestamp"`
	Pid       int       `json:"pid,omitempty"`
	Freq      float64   `json:"freq,omitempty"`
	Clock     int64     `json:"clock,omitempty"`
	Active    int64     `json:"active,omitempty"`
	Processed int64     `json:"processed,omitempty"`
	Loadavg   []float64 `json:"loadavg,omitempty"`
	SwIdent   string    `json:"sw_ident,omitempty"`
	SwVer     string    `json:"sw_ver,omitempty"`
	SwSys     string    `json:"sw_sys,omitempty"`
}

// State is the shared fleet view. The events consumer is the only writer;
// readers take the read lock per call and may observe values one event
// behind, which is fine for display.
type State struct {
	mu       sync.RWMutex
	counters map[string]map[string]int64
	workers  map[string]WorkerRecord
}

func New() *State {
	return &State{
		counters: make(map[string]map[string]int64),
		workers:  make(map[string]WorkerRecord),
	}
}

// Apply folds one event into the state. Every event type is counted; the
// worker-* types additionally update the registry entry.
func (s *State) Apply(ev Event) {
	if ev.Type == "" || ev.Hostname == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[ev.Hostname]
	if c == nil {
		c = make(map[string]int64)
		s.counters[ev.Hostname] = c
	}
	c[ev.Type]++

	switch ev.Type {
	case EventWorkerOnline, EventWorkerHeartbeat:
		w := s.structured(ev.Hostname)
		w.Alive = true
		if ev.Pid != 0 {
			w.Pid = ev.Pid
		}
		if ev.Freq != 0 {
			w.Freq = ev.Freq
		}
		if ev.Clock != 0 {
			w.Clock = ev.Clock
		}
		w.Active = ev.Active
		w.Processed = ev.Processed
		if ev.Loadavg != nil {
			w.Loadavg = ev.Loadavg
		}
		if ev.SwIdent != "" {
			w.SwIdent = ev.SwIdent
		}
		if ev.SwVer != "" {
			w.SwVer = ev.SwVer
		}
		if ev.SwSys != "" {
			w.SwSys = ev.SwSys
		}
		if ev.Timestamp > 0 {
			w.Heartbeats = append(w.Heartbeats, ev.Timestamp)
			if len(w.Heartbeats) > maxHeartbeats {
				w.Heartbeats = w.Heartbeats[len(w.Heartbeats)-maxHeartbeats:]
			}
		}
	case EventWorkerOffline:
		w := s.structured(ev.Hostname)
		w.Alive = false
	}
}

// structured returns the named worker's record, replacing a loose or
// missing entry. The event feed is authoritative over refresh replies.
func (s *State) structured(name string) *Worker {
	if w, ok := s.workers[name].(*Worker); ok {
		return w
	}
	w := &Worker{Hostname: name}
	s.workers[name] = w
	return w
}

// UpsertLoose records a worker learned from a refresh reply. Workers the
// event feed already describes are left alone.
func (s *State) UpsertLoose(name string, attrs map[string]any) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[name].(*Worker); ok {
		return
	}
	s.workers[name] = LooseWorker(attrs).snapshot()
	if s.counters[name] == nil {
		s.counters[name] = make(map[string]int64)
	}
}

// CounterNames returns the worker names present in the counter table,
// sorted.
func (s *State) CounterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.counters))
	for name := range s.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WorkerNames returns the registered worker names, sorted.
func (s *State) WorkerNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Counters returns a copy of the named worker's event counters. Unknown
// workers yield an empty map.
func (s *State) Counters(name string) map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.counters[name]))
	for event, count := range s.counters[name] {
		out[event] = count
	}
	return out
}

// Worker returns a point-in-time copy of the named worker's record.
func (s *State) Worker(name string) (WorkerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch w := s.workers[name].(type) {
	case *Worker:
		return w.snapshot(), true
	case LooseWorker:
		return w.snapshot(), true
	}
	return nil, false
}
