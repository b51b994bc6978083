package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
	"github.com/cloudgroundcontrol/meetbot/pkg/speaker"
	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

// RecordingPipeline is the session's chunk pipeline as the state machine
// sees it. Pause, Resume, Finalize and Stop must be idempotent.
type RecordingPipeline interface {
	Start(ctx context.Context) error
	Pause()
	Resume()
	// Finalize is the ordered shutdown: wait for in-flight transcription
	// requests, flush the final partial window, then stop the transcoder.
	Finalize(ctx context.Context) error
	// Stop hard-stops the transcoder without flushing.
	Stop(ctx context.Context) error
}

// TranscriptionDispatcher is the segment transcription service surface the
// machine drives.
type TranscriptionDispatcher interface {
	Pause()
	Resume()
	Stop()
}

// SpeakerObserver starts and stops the speaker-activity feed.
type SpeakerObserver interface {
	Start(ctx context.Context) error
	Stop()
	// Flush closes the last open transcript turn.
	Flush()
}

// PageJanitor handles the provider-agnostic page hygiene around a join:
// dismissing pop-up dialogs and clearing transient UI artifacts.
type PageJanitor interface {
	// DismissDialogs blocks, watching the page until ctx is cancelled.
	DismissDialogs(ctx context.Context, page provider.Page)
	CleanArtifacts(ctx context.Context, page provider.Page) error
}

// Deps are the collaborators a session needs. Provider, Browser, Capture,
// Pipeline and Transcription are required; the rest degrade to no-ops when
// nil.
type Deps struct {
	Provider      provider.MeetingProvider
	Browser       provider.Browser
	Capture       provider.CaptureController
	Janitor       PageJanitor
	Pipeline      RecordingPipeline
	Transcription TranscriptionDispatcher
	Speaker       SpeakerObserver
	Notifier      notify.Notifier
	Uploader      upload.Uploader
	Layout        upload.Layout
	// FetchBranding optionally fetches branding media during
	// initialization; its failure is logged, never fatal.
	FetchBranding func(ctx context.Context) error
	// ReleaseSession optionally releases the reserved session record
	// during cleanup.
	ReleaseSession func(ctx context.Context) error
	// LogPath is the local session log uploaded during cleanup.
	LogPath string
}

// Config carries the per-session parameters and timeouts.
type Config struct {
	MeetingURL    string
	BotName       string
	Role          string
	RecordingMode string

	WaitingRoomTimeout time.Duration
	InitialGrace       time.Duration
	SilenceTimeout     time.Duration
	MaxDuration        time.Duration
}

// tunables are the machine's internal polling and retry knobs. Tests lower
// them to drive time quickly; production uses the defaults.
type tunables struct {
	recordPoll            time.Duration
	pausePoll             time.Duration
	stopPoll              time.Duration
	browserAttempts       int
	browserAttemptTimeout time.Duration
	browserBackoffStep    time.Duration
	bootstrapTimeout      time.Duration
	notifyTimeout         time.Duration
}

func defaultTunables() tunables {
	return tunables{
		recordPoll:            250 * time.Millisecond,
		pausePoll:             100 * time.Millisecond,
		stopPoll:              time.Second,
		browserAttempts:       3,
		browserAttemptTimeout: time.Minute,
		browserBackoffStep:    5 * time.Second,
		bootstrapTimeout:      30 * time.Second,
		notifyTimeout:         15 * time.Second,
	}
}

// Machine drives one meeting session from join to teardown. Exactly one
// machine exists per session; Start runs the state loop to completion and
// always funnels through Cleanup, no matter how earlier states fail.
type Machine struct {
	cfg  Config
	tun  tunables
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	state     MeetingState
	mctx      *MeetingContext
	forceStop bool
	saved     *savedCounters
}

func NewMachine(cfg Config, deps Deps) *Machine {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewNopNotifier()
	}
	return &Machine{
		cfg:   cfg,
		tun:   defaultTunables(),
		deps:  deps,
		now:   time.Now,
		state: StateInitialization,
		mctx:  &MeetingContext{MeetingURL: cfg.MeetingURL},
	}
}

// Start runs the state loop until the machine terminates. It blocks.
func (m *Machine) Start(ctx context.Context) {
	state := StateInitialization
	for {
		m.setState(state)
		if state == StateTerminated {
			return
		}

		next := m.execute(ctx, state)

		// A forced stop flag funnels any forward transition into cleanup.
		// Error still runs so the failure is classified and notified.
		if m.stopFlagged() && next != StateError && next != StateCleanup && next != StateTerminated {
			next = StateCleanup
		}
		state = next
	}
}

// RequestStop records the intent to stop. The currently running state
// observes the flag on its next poll tick; nothing is preempted.
func (m *Machine) RequestStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mctx.EndReason == "" {
		m.mctx.EndReason = reason
	}
	m.forceStop = true
}

// UpdateParticipantState merges live participant telemetry into the
// session context. Accepted only while recording, so a concurrent monitor
// cannot race a state transition.
func (m *Machine) UpdateParticipantState(st speaker.ParticipantState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return
	}
	m.mctx.AttendeesCount = st.AttendeesCount
	if st.FirstUserJoined {
		m.mctx.FirstUserJoined = true
	}
	if !st.LastSpeakerTime.IsZero() && st.LastSpeakerTime.After(m.mctx.LastSpeakerTime) {
		m.mctx.LastSpeakerTime = st.LastSpeakerTime
	}
	m.mctx.NoSpeakerSince = st.NoSpeakerSince
}

// SetPaused flips the pause flag; the recording state observes it.
func (m *Machine) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mctx.IsPaused = paused
}

// CurrentState returns the machine's current state.
func (m *Machine) CurrentState() MeetingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EndReason returns the recorded end reason, empty while the session is
// still live.
func (m *Machine) EndReason() string {
	return m.endReason()
}

// Err returns the session error, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mctx.Err
}

func (m *Machine) execute(ctx context.Context, state MeetingState) (next MeetingState) {
	// A state must never take the machine down: a panic is captured as the
	// session error and routed through the error state, and even a failing
	// error handler still reaches cleanup.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("state %s panicked: %v", state, r)
			log.Errorf("state panic | state: %s, error: %v", state, r)
			m.setError(err)
			if state == StateError || state == StateCleanup {
				next = StateCleanup
				if state == StateCleanup {
					next = StateTerminated
				}
				return
			}
			next = StateError
		}
	}()

	var err error
	switch state {
	case StateInitialization:
		next, err = m.runInitialization(ctx)
	case StateWaitingRoom:
		next, err = m.runWaitingRoom(ctx)
	case StateInCall:
		next, err = m.runInCall(ctx)
	case StateRecording:
		next, err = m.runRecording(ctx)
	case StatePaused:
		next, err = m.runPaused(ctx)
	case StateResuming:
		next, err = m.runResuming(ctx)
	case StateError:
		next = m.runError(ctx)
	case StateCleanup:
		next = m.runCleanup(ctx)
	default:
		next = StateTerminated
	}

	if err != nil {
		m.setError(err)
		next = StateError
	}
	return next
}

func (m *Machine) setState(state MeetingState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != state {
		log.Infof("state transition | from: %s, to: %s", m.state, state)
	}
	m.state = state
}

func (m *Machine) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mctx.Err == nil {
		m.mctx.Err = err
	}
}

func (m *Machine) stopFlagged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forceStop
}

func (m *Machine) endReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mctx.EndReason
}

func (m *Machine) setEndReason(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mctx.EndReason == "" {
		m.mctx.EndReason = reason
	}
}

func (m *Machine) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mctx.IsPaused
}

// sleep waits for d, the context, or a stop request, whichever first.
func (m *Machine) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(m.tun.stopPoll)
	defer ticker.Stop()
	for {
		select {
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.stopFlagged() {
				return
			}
		}
	}
}

func (m *Machine) notifyAsync(event notify.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.tun.notifyTimeout)
		defer cancel()
		m.deps.Notifier.Send(ctx, event)
	}()
}
