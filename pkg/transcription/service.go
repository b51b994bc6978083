package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/queue"
)

// ServiceConfig tunes the transcription dispatcher.
type ServiceConfig struct {
	Concurrency    int
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	Vocabulary     []string
}

// CompleteFunc consumes one finished segment. It is called exactly once per
// segment, including skipped segments, which arrive with empty results.
type CompleteFunc func(words []Word, segment Segment)

// Service owns a bounded-concurrency queue of segment transcription jobs.
// Provider failures never fail a segment outright: attempts are retried
// with a fixed delay and, once the budget is exhausted, the segment is
// skipped and still emitted downstream so pipeline progress is never
// blocked by one bad window.
type Service struct {
	provider   Provider
	cfg        ServiceConfig
	queue      *queue.TaskQueue
	onComplete CompleteFunc

	mu       sync.Mutex
	segments map[string]*Segment
	timers   map[string]*time.Timer
	stopped  bool
}

func NewService(provider Provider, cfg ServiceConfig, onComplete CompleteFunc) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 2
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}
	return &Service{
		provider:   provider,
		cfg:        cfg,
		queue:      queue.NewTaskQueue(cfg.Concurrency),
		onComplete: onComplete,
		segments:   make(map[string]*Segment),
		timers:     make(map[string]*time.Timer),
	}
}

// TranscribeSegment requests transcription of [start, end). Requests are
// idempotent: a segment already queued, running, or finished is a no-op. A
// failed segment with retries remaining is re-enqueued.
func (s *Service) TranscribeSegment(start, end time.Duration, audioURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	id := SegmentID(start, end)
	seg, ok := s.segments[id]
	if !ok {
		seg = &Segment{
			ID:        id,
			StartTime: start,
			EndTime:   end,
			Status:    StatusPending,
			AudioURL:  audioURL,
		}
		s.segments[id] = seg
		s.enqueueLocked(id)
		return
	}

	if seg.Status == StatusFailed && seg.RetryCount < s.cfg.MaxRetries {
		seg.Status = StatusPending
		s.enqueueLocked(id)
	}
}

// Segment returns a copy of the tracked segment, if any.
func (s *Service) Segment(id string) (Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok {
		return Segment{}, false
	}
	return *seg, true
}

// Pause gates the workers without discarding queued work.
func (s *Service) Pause() {
	s.queue.Pause()
}

// Resume reopens the queue and re-submits any segment still failed with
// retries remaining.
func (s *Service) Resume() {
	s.queue.Resume()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, seg := range s.segments {
		if seg.Status != StatusFailed || seg.RetryCount >= s.cfg.MaxRetries {
			continue
		}
		if _, waiting := s.timers[id]; waiting {
			continue
		}
		seg.Status = StatusPending
		s.enqueueLocked(id)
	}
}

// Stop cancels pending retries and waits for the queue to fully drain.
// Segments still waiting on a retry are completed as skipped so that every
// created segment is emitted downstream exactly once.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	var orphaned []Segment
	for _, seg := range s.segments {
		if seg.Status == StatusFailed {
			seg.Status = StatusSkipped
			seg.Results = []Word{}
			orphaned = append(orphaned, *seg)
		}
	}
	s.mu.Unlock()

	for _, seg := range orphaned {
		s.emit(seg)
	}
	s.queue.Stop()
}

func (s *Service) enqueueLocked(id string) {
	if err := s.queue.Submit(func() { s.process(id) }); err != nil {
		log.Warnf("cannot enqueue segment | segment: %s, error: %v", id, err)
	}
}

func (s *Service) process(id string) {
	// Segments already queued keep processing through Stop's drain; the
	// stopped flag only gates new submissions and retries.
	s.mu.Lock()
	seg, ok := s.segments[id]
	if !ok || seg.Status == StatusCompleted || seg.Status == StatusSkipped {
		s.mu.Unlock()
		return
	}
	seg.Status = StatusProcessing
	audioURL := seg.AudioURL
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	words, err := s.provider.Recognize(ctx, audioURL, s.cfg.Vocabulary)
	cancel()

	s.mu.Lock()
	if err == nil {
		seg.Status = StatusCompleted
		seg.Results = words
		done := *seg
		s.mu.Unlock()
		s.emit(done)
		return
	}

	seg.RetryCount++
	log.Warnf("segment transcription failed | segment: %s, attempt: %d, error: %v", id, seg.RetryCount, err)

	if seg.RetryCount >= s.cfg.MaxRetries {
		// Out of retries: complete with empty results rather than
		// blocking the rest of the pipeline.
		seg.Status = StatusSkipped
		seg.Results = []Word{}
		done := *seg
		s.mu.Unlock()
		s.emit(done)
		return
	}

	if s.stopped {
		// Stop already swept the segment map; a retry timer would never
		// fire, so settle the segment now.
		seg.Status = StatusSkipped
		seg.Results = []Word{}
		done := *seg
		s.mu.Unlock()
		s.emit(done)
		return
	}

	seg.Status = StatusFailed
	s.timers[id] = time.AfterFunc(s.cfg.RetryDelay, func() { s.resubmit(id) })
	s.mu.Unlock()
}

func (s *Service) resubmit(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	if s.stopped {
		s.mu.Unlock()
		return
	}
	seg, ok := s.segments[id]
	if !ok || seg.Status != StatusFailed {
		s.mu.Unlock()
		return
	}
	seg.Status = StatusPending
	s.enqueueLocked(id)
	s.mu.Unlock()
}

func (s *Service) emit(seg Segment) {
	if s.onComplete == nil {
		return
	}
	s.onComplete(seg.Results, seg)
}
