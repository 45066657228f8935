package harvest

import (
	"sync"
	"time"
)

// State is the poller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateBackoff    State = "backing_off"
	StateWaiting    State = "waiting"
	StateTerminated State = "terminated"
)

// Snapshot is a copy of the poller's status at a point in time.
type Snapshot struct {
	State               State      `json:"state"`
	LastStart           *time.Time `json:"last_start,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastResult          *Result    `json:"last_result,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Cycles              int        `json:"cycles"`
}

// Status is shared between the poller and readers such as the HTTP API.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatus returns an idle Status.
func NewStatus() *Status {
	return &Status{snap: Snapshot{State: StateIdle}}
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	if s.snap.LastResult != nil {
		r := *s.snap.LastResult
		out.LastResult = &r
	}
	return out
}

func (s *Status) started(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = StateRunning
	s.snap.LastStart = &at
}

func (s *Status) succeeded(at time.Time, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = StateWaiting
	s.snap.LastSuccess = &at
	s.snap.LastResult = &res
	s.snap.LastError = ""
	s.snap.ConsecutiveFailures = 0
	s.snap.Cycles++
}

func (s *Status) failed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = StateBackoff
	s.snap.LastError = err.Error()
	s.snap.ConsecutiveFailures++
	s.snap.Cycles++
}

func (s *Status) terminated(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = StateTerminated
	s.snap.LastError = err.Error()
}
