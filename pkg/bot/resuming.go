package bot

import (
	"context"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
)

// runResuming restarts capture, pipeline and dispatcher, restores the
// counters saved at pause time, and always returns to Recording.
func (m *Machine) runResuming(ctx context.Context) (MeetingState, error) {
	m.mu.Lock()
	page := m.mctx.Page
	m.mu.Unlock()

	if err := m.deps.Capture.ResumeCapture(ctx, page); err != nil {
		log.Warnf("cannot resume capture | error: %v", err)
	}
	m.deps.Pipeline.Resume()
	m.deps.Transcription.Resume()

	m.mu.Lock()
	if m.saved != nil {
		m.mctx.AttendeesCount = m.saved.attendeesCount
		m.mctx.FirstUserJoined = m.saved.firstUserJoined
		m.mctx.LastSpeakerTime = m.saved.lastSpeakerTime
		m.mctx.NoSpeakerSince = m.saved.noSpeakerSince
		m.saved = nil
	}
	m.mu.Unlock()

	m.notifyAsync(notify.EventRecordingResumed)
	return StateRecording, nil
}
