package transcription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	// fail is how many calls should error before succeeding; negative
	// means fail forever
	fail  int
	words []Word
	block chan struct{}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Recognize(ctx context.Context, audioURL string, vocabulary []string) ([]Word, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail < 0 || f.calls <= f.fail {
		return nil, errors.New("provider down")
	}
	return f.words, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type completions struct {
	mu   sync.Mutex
	segs []Segment
	ch   chan Segment
}

func newCompletions() *completions {
	return &completions{ch: make(chan Segment, 16)}
}

func (c *completions) fn(words []Word, seg Segment) {
	c.mu.Lock()
	c.segs = append(c.segs, seg)
	c.mu.Unlock()
	c.ch <- seg
}

func (c *completions) wait(t *testing.T) Segment {
	t.Helper()
	select {
	case seg := <-c.ch:
		return seg
	case <-time.After(5 * time.Second):
		t.Fatal("no completion event")
		return Segment{}
	}
}

func (c *completions) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segs)
}

func testConfig() ServiceConfig {
	return ServiceConfig{
		Concurrency:    2,
		MaxRetries:     3,
		RetryDelay:     5 * time.Millisecond,
		RequestTimeout: time.Second,
	}
}

func TestSegmentCompletes(t *testing.T) {
	provider := &fakeProvider{words: []Word{{Text: "hello", StartTime: 0.1, EndTime: 0.4}}}
	done := newCompletions()
	svc := NewService(provider, testConfig(), done.fn)
	defer svc.Stop()

	svc.TranscribeSegment(0, 180*time.Second, "https://bucket/audio_0_180000.wav")

	seg := done.wait(t)
	require.Equal(t, StatusCompleted, seg.Status)
	require.Equal(t, []Word{{Text: "hello", StartTime: 0.1, EndTime: 0.4}}, seg.Results)
	require.Equal(t, SegmentID(0, 180*time.Second), seg.ID)
}

func TestRetriesExhaustedMarksSkipped(t *testing.T) {
	provider := &fakeProvider{fail: -1}
	done := newCompletions()
	svc := NewService(provider, testConfig(), done.fn)
	defer svc.Stop()

	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")

	seg := done.wait(t)
	require.Equal(t, StatusSkipped, seg.Status)
	require.Empty(t, seg.Results)
	require.NotNil(t, seg.Results)
	require.Equal(t, 3, seg.RetryCount)
	require.Equal(t, 3, provider.callCount())

	// Emitted exactly once
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, done.count())
}

func TestTransientFailureRecovers(t *testing.T) {
	provider := &fakeProvider{fail: 2, words: []Word{{Text: "ok"}}}
	done := newCompletions()
	svc := NewService(provider, testConfig(), done.fn)
	defer svc.Stop()

	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")

	seg := done.wait(t)
	require.Equal(t, StatusCompleted, seg.Status)
	require.Equal(t, 3, provider.callCount())
	require.Equal(t, 2, seg.RetryCount)
}

func TestCompletedSegmentIsNotRetranscribed(t *testing.T) {
	provider := &fakeProvider{words: []Word{{Text: "once"}}}
	done := newCompletions()
	svc := NewService(provider, testConfig(), done.fn)
	defer svc.Stop()

	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")
	done.wait(t)
	require.Equal(t, 1, provider.callCount())

	// Second identical request is a no-op
	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")
	svc.queue.Drain()
	require.Equal(t, 1, provider.callCount())
	require.Equal(t, 1, done.count())
}

func TestProviderTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	provider := &fakeProvider{fail: -1, block: make(chan struct{})}
	done := newCompletions()
	svc := NewService(provider, cfg, done.fn)
	defer svc.Stop()

	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")

	seg := done.wait(t)
	require.Equal(t, StatusSkipped, seg.Status)
}

func TestPauseHoldsQueuedSegments(t *testing.T) {
	provider := &fakeProvider{words: []Word{}}
	done := newCompletions()
	svc := NewService(provider, testConfig(), done.fn)
	defer svc.Stop()

	svc.Pause()
	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 0, provider.callCount())

	svc.Resume()
	seg := done.wait(t)
	require.Equal(t, StatusCompleted, seg.Status)
}

func TestStopDuringRetryDelayEmitsSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	provider := &fakeProvider{fail: -1}
	done := newCompletions()
	svc := NewService(provider, cfg, done.fn)

	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")
	require.Eventually(t, func() bool {
		return provider.callCount() == 1
	}, time.Second, time.Millisecond)

	// The segment is waiting out its retry delay; stopping must still
	// settle and emit it.
	svc.Stop()

	seg := done.wait(t)
	require.Equal(t, StatusSkipped, seg.Status)
	require.Empty(t, seg.Results)
	require.NotNil(t, seg.Results)
	require.Equal(t, 1, seg.RetryCount)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, done.count())
}

func TestStopDrains(t *testing.T) {
	provider := &fakeProvider{words: []Word{}}
	done := newCompletions()
	svc := NewService(provider, testConfig(), done.fn)

	svc.TranscribeSegment(0, time.Minute, "https://bucket/a.wav")
	svc.TranscribeSegment(time.Minute, 2*time.Minute, "https://bucket/b.wav")
	svc.Stop()

	require.Equal(t, 2, done.count())
}
