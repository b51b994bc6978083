package bot

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
)

// runRecording polls the session every tick and evaluates the end
// conditions in a fixed order: explicit stop, meeting ended, no attendees,
// no speaker, duration ceiling. A pause flag takes the machine to Paused
// instead of ending.
func (m *Machine) runRecording(ctx context.Context) (MeetingState, error) {
	ticker := time.NewTicker(m.tun.recordPoll)
	defer ticker.Stop()

	m.mu.Lock()
	page := m.mctx.Page
	m.mu.Unlock()
	params := m.joinParams()

	for {
		select {
		case <-ctx.Done():
			m.setEndReason(EndReasonAPIRequest)
			m.endRecording(ctx)
			return StateCleanup, nil
		case <-ticker.C:
		}

		if m.isPaused() {
			return StatePaused, nil
		}

		if reason := m.endReason(); reason != "" {
			log.Infof("recording stopped on request | reason: %s", reason)
			m.endRecording(ctx)
			return StateCleanup, nil
		}

		if m.deps.Provider.FindEndMeeting(params, page) {
			m.setEndReason(EndReasonCallEnded)
			m.endRecording(ctx)
			return StateCleanup, nil
		}

		now := m.now()
		if m.noAttendeesExpired(now) {
			log.Infof("recording stopped | reason: no attendees")
			m.setEndReason(EndReasonNoAttendees)
			m.endRecording(ctx)
			return StateCleanup, nil
		}

		if m.noSpeakerExpired(now) {
			log.Infof("recording stopped | reason: no speaker")
			m.setEndReason(EndReasonNoSpeaker)
			m.endRecording(ctx)
			return StateCleanup, nil
		}

		if m.durationExceeded(now) {
			log.Infof("recording stopped | reason: duration ceiling")
			m.setEndReason(EndReasonRecordingTimeout)
			m.endRecording(ctx)
			return StateCleanup, nil
		}
	}
}

// noAttendeesExpired: the meeting is empty and either the initial grace
// window has elapsed or someone had already joined and left.
func (m *Machine) noAttendeesExpired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mctx.AttendeesCount > 0 {
		return false
	}
	if m.mctx.FirstUserJoined {
		return true
	}
	return now.Sub(m.mctx.StartTime) > m.cfg.InitialGrace
}

// noSpeakerExpired evaluates the three silence sub-cases. They are kept
// exactly as shipped, including the combination (attendees present, no
// last-speaker timestamp ever recorded) that can never trigger this rule.
// TODO(product): confirm whether that combination should eventually
// terminate too.
func (m *Machine) noSpeakerExpired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lastSpeaker := m.mctx.LastSpeakerTime
	silenceSince := m.mctx.NoSpeakerSince

	switch {
	case m.mctx.AttendeesCount > 0 && !lastSpeaker.IsZero():
		return now.Sub(lastSpeaker) > m.cfg.SilenceTimeout
	case !lastSpeaker.IsZero() && !m.mctx.FirstUserJoined:
		return now.Sub(m.mctx.StartTime) > m.cfg.InitialGrace &&
			now.Sub(lastSpeaker) > m.cfg.SilenceTimeout
	case lastSpeaker.IsZero() && !silenceSince.IsZero():
		return now.Sub(silenceSince) > m.cfg.SilenceTimeout
	}
	return false
}

func (m *Machine) durationExceeded(now time.Time) bool {
	if m.cfg.MaxDuration <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.mctx.StartTime)-m.mctx.TotalPauseDuration > m.cfg.MaxDuration
}

// endRecording stops the audio stream, flushes the pipeline, then shuts
// the transcription dispatcher down. The dispatcher must outlive Finalize:
// the final partial window is only submitted at the end of the flush, and
// a stopped dispatcher drops submissions.
func (m *Machine) endRecording(ctx context.Context) {
	m.mu.Lock()
	page := m.mctx.Page
	m.mu.Unlock()

	if err := m.deps.Capture.StopCapture(ctx, page); err != nil {
		log.Warnf("cannot stop capture | error: %v", err)
	}

	if err := m.deps.Pipeline.Finalize(ctx); err != nil {
		log.Warnf("cannot finalize pipeline | error: %v", err)
	}
	m.deps.Transcription.Stop()

	m.notifyAsync(notify.EventCallEnded)
}
