package bot

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
)

// runPaused snapshots the participant counters, pauses the pipeline, the
// transcription dispatcher and the external capture, then polls until the
// session is resumed or ended.
func (m *Machine) runPaused(ctx context.Context) (MeetingState, error) {
	m.mu.Lock()
	m.saved = &savedCounters{
		attendeesCount:  m.mctx.AttendeesCount,
		firstUserJoined: m.mctx.FirstUserJoined,
		lastSpeakerTime: m.mctx.LastSpeakerTime,
		noSpeakerSince:  m.mctx.NoSpeakerSince,
	}
	m.mctx.PauseStartTime = m.now()
	page := m.mctx.Page
	m.mu.Unlock()

	m.deps.Pipeline.Pause()
	m.deps.Transcription.Pause()
	if err := m.deps.Capture.PauseCapture(ctx, page); err != nil {
		log.Warnf("cannot pause capture | error: %v", err)
	}

	m.notifyAsync(notify.EventRecordingPaused)

	ticker := time.NewTicker(m.tun.pausePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.accumulatePause()
			return StateCleanup, nil
		case <-ticker.C:
		}

		if m.endReason() != "" {
			m.accumulatePause()
			return StateCleanup, nil
		}
		if !m.isPaused() {
			m.accumulatePause()
			return StateResuming, nil
		}
	}
}

func (m *Machine) accumulatePause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mctx.PauseStartTime.IsZero() {
		m.mctx.TotalPauseDuration += m.now().Sub(m.mctx.PauseStartTime)
		m.mctx.PauseStartTime = time.Time{}
	}
}
