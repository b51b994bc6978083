package bot

import (
	"context"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
)

// joinCodeEvents maps each known join failure to its notification.
var joinCodeEvents = map[provider.JoinErrorCode]notify.Event{
	provider.CodeInvalidMeetingURL:     notify.EventInvalidMeetingURL,
	provider.CodeBotNotAccepted:        notify.EventBotRejected,
	provider.CodeTimeoutWaitingToStart: notify.EventWaitingRoomTimeout,
	provider.CodeBotRemoved:            notify.EventBotRemoved,
	provider.CodeAPIRequest:            notify.EventCallEnded,
	provider.CodeInternalError:         notify.EventInternalError,
}

// runError classifies the captured session error, fires exactly one
// best-effort notification for it, and always continues to Cleanup. The
// notification is bounded so it can never wedge termination.
func (m *Machine) runError(ctx context.Context) MeetingState {
	m.mu.Lock()
	err := m.mctx.Err
	m.mu.Unlock()

	if err == nil {
		return StateCleanup
	}

	code := provider.CodeOf(err)
	log.Errorf("session failed | code: %s, error: %v", code, err)

	event, known := joinCodeEvents[code]
	if !known {
		event = notify.EventInternalError
	}

	nctx, cancel := context.WithTimeout(context.Background(), m.tun.notifyTimeout)
	defer cancel()
	m.deps.Notifier.Send(nctx, event)

	return StateCleanup
}
