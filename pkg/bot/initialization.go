package bot

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
)

var errNoBrowser = errors.New("cannot acquire browser session")

// runInitialization validates the join parameters and acquires a browser
// session with bounded retries. Branding media is fetched concurrently and
// its failure is never fatal.
func (m *Machine) runInitialization(ctx context.Context) (MeetingState, error) {
	if m.cfg.MeetingURL == "" {
		return StateError, provider.NewJoinError(provider.CodeInvalidMeetingURL, errors.New("empty meeting url"))
	}

	creds, err := m.deps.Provider.ParseMeetingURL(m.cfg.MeetingURL)
	if err != nil {
		return StateError, provider.NewJoinError(provider.CodeInvalidMeetingURL, err)
	}
	m.mu.Lock()
	m.mctx.Credentials = creds
	m.mu.Unlock()

	if m.deps.FetchBranding != nil {
		go func() {
			if err := m.deps.FetchBranding(ctx); err != nil {
				log.Warnf("cannot fetch branding | error: %v", err)
			}
		}()
	}

	session, err := m.acquireBrowser(ctx)
	if err != nil {
		return StateError, err
	}
	m.mu.Lock()
	m.mctx.Session = session
	m.mu.Unlock()

	return StateWaitingRoom, nil
}

func (m *Machine) acquireBrowser(ctx context.Context) (provider.BrowserSession, error) {
	var lastErr error
	for attempt := 1; attempt <= m.tun.browserAttempts; attempt++ {
		if m.stopFlagged() {
			return nil, provider.NewJoinError(provider.CodeAPIRequest, errors.New("stop requested during initialization"))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, m.tun.browserAttemptTimeout)
		session, err := m.deps.Browser.Acquire(attemptCtx)
		cancel()
		if err == nil {
			return session, nil
		}
		lastErr = err
		log.Warnf("cannot acquire browser | attempt: %d, error: %v", attempt, err)

		if attempt < m.tun.browserAttempts {
			// Backoff grows linearly: 5s, 10s, 15s with the defaults
			m.sleep(ctx, time.Duration(attempt)*m.tun.browserBackoffStep)
		}
	}
	return nil, provider.NewJoinError(provider.CodeInternalError, errors.Join(errNoBrowser, lastErr))
}
