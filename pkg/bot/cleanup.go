package bot

import (
	"context"
	"sync"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

// runCleanup releases every session resource. Each action runs in its own
// goroutine, recovers its own panics and logs its own failures, so one
// broken teardown cannot block another. Cleanup never raises: whatever
// happens here, the machine terminates.
func (m *Machine) runCleanup(ctx context.Context) MeetingState {
	m.mu.Lock()
	page := m.mctx.Page
	session := m.mctx.Session
	m.mu.Unlock()

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("cleanup panic | action: %s, error: %v", name, r)
				}
			}()
			if err := fn(); err != nil {
				log.Warnf("cleanup failed | action: %s, error: %v", name, err)
			}
		}()
	}

	if m.deps.Uploader != nil && m.deps.LogPath != "" {
		run("upload logs", func() error {
			_, err := upload.UploadFile(ctx, m.deps.Uploader, m.deps.Layout.Logs(), m.deps.LogPath)
			return err
		})
	}

	if page != nil {
		run("stop capture", func() error {
			return m.deps.Capture.StopCapture(ctx, page)
		})
	}

	run("close browser", func() error {
		if page != nil {
			if err := page.Close(); err != nil {
				log.Warnf("cleanup failed | action: close page, error: %v", err)
			}
		}
		if session != nil {
			return session.Close()
		}
		return nil
	})

	if m.deps.Pipeline != nil {
		run("stop pipeline", func() error {
			return m.deps.Pipeline.Stop(ctx)
		})
	}

	run("stop transcription", func() error {
		if m.deps.Speaker != nil {
			m.deps.Speaker.Flush()
			m.deps.Speaker.Stop()
		}
		if m.deps.Transcription != nil {
			m.deps.Transcription.Stop()
		}
		return nil
	})

	if m.deps.ReleaseSession != nil {
		run("release session", func() error {
			return m.deps.ReleaseSession(ctx)
		})
	}

	wg.Wait()
	return StateTerminated
}
