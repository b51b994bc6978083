package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	indexes []int
	data    [][]byte
	delay   time.Duration
}

func (s *recordingSink) WriteChunk(ctx context.Context, meta ChunkMetadata, data []byte) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes = append(s.indexes, meta.Index)
	s.data = append(s.data, data)
	return nil
}

func (s *recordingSink) seen() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.indexes))
	copy(out, s.indexes)
	return out
}

func TestChunksDeliveredInArrivalOrder(t *testing.T) {
	sink := &recordingSink{}
	p := NewChunkProcessor(sink, 10*time.Second)
	defer p.Stop()

	for i := 0; i < 40; i++ {
		require.NoError(t, p.ProcessChunk([]byte{byte(i)}, false))
	}
	p.q.Drain()

	seen := sink.seen()
	require.Len(t, seen, 40)
	for i, idx := range seen {
		require.Equal(t, i, idx)
	}
}

func TestPauseWaitsForQueuedChunks(t *testing.T) {
	sink := &recordingSink{delay: 20 * time.Millisecond}
	p := NewChunkProcessor(sink, 10*time.Second)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		p.ProcessChunk([]byte{byte(i)}, false)
	}
	p.Pause()

	// All three must have been delivered by the time Pause returns
	require.Equal(t, []int{0, 1, 2}, sink.seen())
}

func TestChunksBufferedDuringPauseReplayInOrder(t *testing.T) {
	sink := &recordingSink{}
	p := NewChunkProcessor(sink, 10*time.Second)
	defer p.Stop()

	p.ProcessChunk([]byte("a"), false)
	p.Pause()

	// Submitted while paused: buffered, not delivered
	p.ProcessChunk([]byte("b"), false)
	p.ProcessChunk([]byte("c"), false)
	require.Equal(t, []int{0}, sink.seen())

	p.Resume()
	p.ProcessChunk([]byte("d"), true)
	p.q.Drain()

	require.Equal(t, []int{0, 1, 2, 3}, sink.seen())
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}, sink.data)
}

func TestIndexesStayMonotonicAcrossPauseCycles(t *testing.T) {
	sink := &recordingSink{}
	p := NewChunkProcessor(sink, 10*time.Second)
	defer p.Stop()

	next := 0
	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < 4; i++ {
			p.ProcessChunk(nil, false)
			next++
		}
		p.Pause()
		for i := 0; i < 2; i++ {
			p.ProcessChunk(nil, false)
			next++
		}
		p.Resume()
	}
	p.q.Drain()

	seen := sink.seen()
	require.Len(t, seen, next)
	for i, idx := range seen {
		require.Equal(t, i, idx)
	}
}
