package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudgroundcontrol/meetbot/pkg/bot"
	"github.com/cloudgroundcontrol/meetbot/pkg/config"
	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
)

type stubSession struct{}

func (stubSession) Close() error { return nil }

type stubPage struct{}

func (stubPage) Close() error { return nil }

type stubBrowser struct{}

func (stubBrowser) Acquire(ctx context.Context) (provider.BrowserSession, error) {
	return stubSession{}, nil
}

// stubProvider joins by blocking until the session is stopped, so a test
// session parks in the waiting room instead of reaching the recording
// bootstrap.
type stubProvider struct{}

func (stubProvider) ParseMeetingURL(rawURL string) (provider.Credentials, error) {
	return provider.Credentials{ID: "42"}, nil
}

func (stubProvider) GetMeetingLink(id, password, role, botName string) string {
	return "https://meet.test/" + id
}

func (stubProvider) OpenMeetingPage(ctx context.Context, session provider.BrowserSession, link string) (provider.Page, error) {
	return stubPage{}, nil
}

func (stubProvider) JoinMeeting(ctx context.Context, page provider.Page, cancelled func() bool, params provider.JoinParams) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stubProvider) FindEndMeeting(params provider.JoinParams, page provider.Page) bool {
	return false
}

type stubCapture struct{}

func (stubCapture) StartCapture(context.Context, provider.Page) error  { return nil }
func (stubCapture) StopCapture(context.Context, provider.Page) error   { return nil }
func (stubCapture) PauseCapture(context.Context, provider.Page) error  { return nil }
func (stubCapture) ResumeCapture(context.Context, provider.Page) error { return nil }

func init() {
	provider.Register("stub", provider.Driver{
		Provider: stubProvider{},
		Browser:  stubBrowser{},
		Capture:  stubCapture{},
	})
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Recording: config.RecordingConfig{
			Dir:                t.TempDir(),
			ChunkDuration:      10 * time.Second,
			TranscribeDuration: 180 * time.Second,
			MaxDuration:        time.Hour,
		},
		AutomaticLeave: config.AutomaticLeaveConfig{
			WaitingRoomTimeout: time.Minute,
			InitialGrace:       time.Minute,
			SilenceTimeout:     time.Minute,
		},
		Transcription: config.TranscriptionConfig{
			Provider:    "deepgram",
			Concurrency: 1,
			MaxRetries:  1,
		},
	}
}

func TestServiceRejectsUnknownProvider(t *testing.T) {
	svc := NewService(testConfig(t), "")
	_, err := svc.StartSession(context.Background(), StartSessionRequest{
		MeetingURL: "https://meet.test/abc",
		Provider:   "no-such-product",
	})
	require.Error(t, err)
}

func TestServiceSingleSessionPerProcess(t *testing.T) {
	svc := NewService(testConfig(t), "")
	ctx := context.Background()

	id, err := svc.StartSession(ctx, StartSessionRequest{
		MeetingURL: "https://meet.test/abc",
		Provider:   "stub",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = svc.StartSession(ctx, StartSessionRequest{
		MeetingURL: "https://meet.test/other",
		Provider:   "stub",
	})
	require.ErrorIs(t, err, ErrSessionInProgress)

	require.NoError(t, svc.StopSession(ctx, ""))
	require.Eventually(t, func() bool {
		info, err := svc.State(ctx)
		return err == nil && info.State == bot.StateTerminated
	}, 10*time.Second, 10*time.Millisecond)

	// A terminated session may be replaced
	id2, err := svc.StartSession(ctx, StartSessionRequest{
		MeetingURL: "https://meet.test/abc",
		Provider:   "stub",
	})
	require.NoError(t, err)
	require.NotEqual(t, id, id2)
	require.NoError(t, svc.StopSession(ctx, ""))
}

func TestServiceWithoutActiveSession(t *testing.T) {
	svc := NewService(testConfig(t), "")
	ctx := context.Background()

	require.ErrorIs(t, svc.StopSession(ctx, ""), ErrNoActiveSession)
	require.ErrorIs(t, svc.PauseSession(ctx), ErrNoActiveSession)
	require.ErrorIs(t, svc.PushChunk(ctx, []byte("audio"), false), ErrNoActiveSession)
	_, err := svc.State(ctx)
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestServicePauseRequiresRecording(t *testing.T) {
	svc := NewService(testConfig(t), "")
	ctx := context.Background()

	_, err := svc.StartSession(ctx, StartSessionRequest{
		MeetingURL: "https://meet.test/abc",
		Provider:   "stub",
	})
	require.NoError(t, err)

	// The stub never admits the bot, so the session is not recording
	require.Error(t, svc.PauseSession(ctx))
	require.NoError(t, svc.StopSession(ctx, ""))
}
