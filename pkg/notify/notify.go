package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/gommon/log"
)

// Event is a lifecycle notification code.
type Event string

const (
	EventJoiningCall        Event = "joining_call"
	EventInWaitingRoom      Event = "in_waiting_room"
	EventInCallRecording    Event = "in_call_recording"
	EventRecordingPaused    Event = "recording_paused"
	EventRecordingResumed   Event = "recording_resumed"
	EventCallEnded          Event = "call_ended"
	EventBotRejected        Event = "bot_rejected"
	EventBotRemoved         Event = "bot_removed"
	EventWaitingRoomTimeout Event = "waiting_room_timeout"
	EventInvalidMeetingURL  Event = "invalid_meeting_url"
	EventInternalError      Event = "internal_error"
)

// Notifier delivers lifecycle events to interested parties. Delivery is
// best-effort; a failed notification never affects the session.
type Notifier interface {
	Send(ctx context.Context, event Event)
}

type webhookNotifier struct {
	urls   []string
	botID  string
	client *http.Client
}

// NewWebhookNotifier fans each event out to every configured URL.
func NewWebhookNotifier(urls []string, botID string) Notifier {
	return &webhookNotifier{
		urls:  urls,
		botID: botID,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (n *webhookNotifier) Send(ctx context.Context, event Event) {
	body, err := json.Marshal(map[string]interface{}{
		"bot_id":    n.botID,
		"event":     string(event),
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		log.Errorf("error marshalling notification | error: %v, event: %s", err, event)
		return
	}

	for _, hook := range n.urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
		if err != nil {
			log.Errorf("error building notification | error: %v, url: %s", err, hook)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if _, err = n.client.Do(req); err != nil {
			log.Errorf("error reaching webhook | error: %v, url: %s", err, hook)
			continue
		}
		log.Infof("sent notification | url: %s, event: %s", hook, event)
	}
}

type nopNotifier struct{}

// NewNopNotifier is used when no webhook URLs are configured.
func NewNopNotifier() Notifier { return nopNotifier{} }

func (nopNotifier) Send(context.Context, Event) {}
