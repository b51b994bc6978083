package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/cloudgroundcontrol/meetbot/pkg/queue"
)

// ChunkMetadata describes one arriving capture chunk. Created once per
// chunk and never mutated.
type ChunkMetadata struct {
	Index     int
	Timestamp time.Time
	Duration  time.Duration
	IsFinal   bool
}

// ChunkSink receives chunks in strict arrival order.
type ChunkSink interface {
	WriteChunk(ctx context.Context, meta ChunkMetadata, data []byte) error
}

type bufferedChunk struct {
	meta ChunkMetadata
	data []byte
}

// ChunkProcessor serializes arriving chunks onto a single-worker queue so
// the sink observes them in strict FIFO order, buffers them while paused,
// and replays the buffer in order on resume.
type ChunkProcessor struct {
	sink          ChunkSink
	chunkDuration time.Duration
	q             *queue.TaskQueue

	mu       sync.Mutex
	paused   bool
	index    int
	buffered []bufferedChunk
	err      error
}

func NewChunkProcessor(sink ChunkSink, chunkDuration time.Duration) *ChunkProcessor {
	return &ChunkProcessor{
		sink:          sink,
		chunkDuration: chunkDuration,
		q:             queue.NewTaskQueue(1),
	}
}

// ProcessChunk accepts one chunk. While paused, chunks are held aside
// instead of enqueued.
func (p *ChunkProcessor) ProcessChunk(data []byte, isFinal bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta := ChunkMetadata{
		Index:     p.index,
		Timestamp: time.Now(),
		Duration:  p.chunkDuration,
		IsFinal:   isFinal,
	}
	p.index++

	if p.paused {
		p.buffered = append(p.buffered, bufferedChunk{meta: meta, data: data})
		return nil
	}
	return p.enqueueLocked(bufferedChunk{meta: meta, data: data})
}

// Pause stops delivery and waits for the in-flight chunk to finish, so no
// chunk is half-written when Pause returns.
func (p *ChunkProcessor) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()

	p.q.Drain()
}

// Resume replays buffered chunks in original order before accepting new
// ones.
func (p *ChunkProcessor) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.buffered {
		if err := p.enqueueLocked(c); err != nil {
			break
		}
	}
	p.buffered = nil
	p.paused = false
}

// Stop drains outstanding chunks and shuts the queue down.
func (p *ChunkProcessor) Stop() {
	p.q.Stop()
}

// Err returns the first sink error observed, if any.
func (p *ChunkProcessor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *ChunkProcessor) enqueueLocked(c bufferedChunk) error {
	return p.q.Submit(func() {
		if err := p.sink.WriteChunk(context.Background(), c.meta, c.data); err != nil {
			logger.Warnw("cannot write chunk", err, "index", c.meta.Index)
			p.mu.Lock()
			if p.err == nil {
				p.err = err
			}
			p.mu.Unlock()
		}
	})
}
