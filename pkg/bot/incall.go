package bot

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
)

// runInCall performs the one-time recording bootstrap. The recording clock
// only starts once the capture confirms it is running; any failure inside
// the setup window is fatal to the session.
func (m *Machine) runInCall(ctx context.Context) (MeetingState, error) {
	bctx, cancel := context.WithTimeout(ctx, m.tun.bootstrapTimeout)
	defer cancel()

	m.mu.Lock()
	page := m.mctx.Page
	m.mu.Unlock()

	steps := []struct {
		name string
		run  func() error
	}{
		{"pipeline", func() error { return m.deps.Pipeline.Start(bctx) }},
		{"artifacts", func() error {
			if m.deps.Janitor == nil {
				return nil
			}
			return m.deps.Janitor.CleanArtifacts(bctx, page)
		}},
		{"speaker observer", func() error {
			if m.deps.Speaker == nil {
				return nil
			}
			return m.deps.Speaker.Start(bctx)
		}},
		{"capture", func() error { return m.deps.Capture.StartCapture(bctx, page) }},
	}

	for _, step := range steps {
		if err := bctx.Err(); err != nil {
			return StateError, fmt.Errorf("recording bootstrap timed out before %s: %w", step.name, err)
		}
		if err := step.run(); err != nil {
			return StateError, fmt.Errorf("recording bootstrap failed at %s: %w", step.name, err)
		}
	}

	// Capture confirmed: the recording officially starts now
	m.mu.Lock()
	m.mctx.StartTime = m.now()
	m.mu.Unlock()

	log.Infof("recording started | meeting: %s", m.cfg.MeetingURL)
	m.notifyAsync(notify.EventInCallRecording)
	return StateRecording, nil
}
