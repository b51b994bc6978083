package transcription

import (
	"sync"
	"time"
)

// StateManager turns a stream of chunk arrivals into discrete window
// boundaries. It does no I/O; callers decide what to do with a completed
// window.
type StateManager struct {
	mu              sync.Mutex
	chunkDuration   time.Duration
	chunksPerWindow int
	count           int
}

func NewStateManager(chunkDuration time.Duration, chunksPerWindow int) *StateManager {
	return &StateManager{
		chunkDuration:   chunkDuration,
		chunksPerWindow: chunksPerWindow,
	}
}

// AddChunk records one chunk arrival. Every chunksPerWindow-th call returns
// the now-complete trailing window.
func (m *StateManager) AddChunk() (Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count++
	if m.count%m.chunksPerWindow != 0 {
		return Window{}, false
	}
	end := time.Duration(m.count) * m.chunkDuration
	start := end - time.Duration(m.chunksPerWindow)*m.chunkDuration
	return Window{Start: start, End: end}, true
}

// Finalize returns the incomplete trailing remainder, if any.
func (m *StateManager) Finalize() (Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rem := m.count % m.chunksPerWindow
	if rem == 0 {
		return Window{}, false
	}
	end := time.Duration(m.count) * m.chunkDuration
	start := end - time.Duration(rem)*m.chunkDuration
	return Window{Start: start, End: end}, true
}

// Reset zeroes the counter for a new session.
func (m *StateManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = 0
}
