// Package api talks to the bot management backend. Every call here is
// best-effort from the session's point of view: failures are logged and
// swallowed at the call site unless a caller explicitly retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/transcription"
)

// Bot is the backend's record of this bot session.
type Bot struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Client struct {
	baseURL string
	token   string
	botID   string
	client  *http.Client

	mu     sync.Mutex
	openID string
	// Segment ids whose words were already posted; posting is idempotent.
	posted map[string]bool
}

func NewClient(baseURL, token, botID string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		botID:   botID,
		client:  &http.Client{Timeout: 10 * time.Second},
		posted:  make(map[string]bool),
	}
}

// GetBot fetches this bot's backend record.
func (c *Client) GetBot(ctx context.Context) (Bot, error) {
	var bot Bot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/bots/%s", c.botID), nil, &bot)
	return bot, err
}

// PostTranscript opens a new transcript turn and returns its id.
func (c *Client) PostTranscript(ctx context.Context, speaker string, startAt time.Time) (string, error) {
	payload := map[string]interface{}{
		"bot_id":     c.botID,
		"speaker":    speaker,
		"started_at": startAt.UTC(),
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/transcripts", payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// PatchTranscript sets the end timestamp of a turn.
func (c *Client) PatchTranscript(ctx context.Context, transcriptID string, endAt time.Time) error {
	payload := map[string]interface{}{"ended_at": endAt.UTC()}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/transcripts/%s", transcriptID), payload, nil)
}

// PostWords attaches recognized words to this bot's transcript. Words for a
// segment already posted are dropped, so duplicate completion events stay
// idempotent.
func (c *Client) PostWords(ctx context.Context, segmentID string, words []transcription.Word) error {
	c.mu.Lock()
	if c.posted[segmentID] {
		c.mu.Unlock()
		return nil
	}
	c.posted[segmentID] = true
	c.mu.Unlock()

	payload := map[string]interface{}{
		"bot_id":     c.botID,
		"segment_id": segmentID,
		"words":      words,
	}
	err := c.do(ctx, http.MethodPost, "/words", payload, nil)
	if err != nil {
		// Allow the caller to retry the segment later
		c.mu.Lock()
		delete(c.posted, segmentID)
		c.mu.Unlock()
	}
	return err
}

// StartTurn and CloseTurn implement the transcript-posting collaborator
// used by the speaker manager. Both are best-effort.

func (c *Client) StartTurn(name string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.mu.Lock()
	open := c.openID
	c.openID = ""
	c.mu.Unlock()

	if open != "" {
		if err := c.PatchTranscript(ctx, open, at); err != nil {
			log.Warnf("cannot close transcript turn | id: %s, error: %v", open, err)
		}
	}

	id, err := c.PostTranscript(ctx, name, at)
	if err != nil {
		log.Warnf("cannot open transcript turn | speaker: %s, error: %v", name, err)
		return
	}
	c.mu.Lock()
	c.openID = id
	c.mu.Unlock()
}

func (c *Client) CloseTurn(at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.mu.Lock()
	open := c.openID
	c.openID = ""
	c.mu.Unlock()

	if open == "" {
		return
	}
	if err := c.PatchTranscript(ctx, open, at); err != nil {
		log.Warnf("cannot close transcript turn | id: %s, error: %v", open, err)
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
