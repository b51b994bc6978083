// Package session assembles and owns the single meeting session of this
// process. The control API talks to the Service; the Service wires the
// state machine, the chunk pipeline, the transcription dispatcher and the
// speaker manager together per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"

	"github.com/cloudgroundcontrol/meetbot/pkg/api"
	"github.com/cloudgroundcontrol/meetbot/pkg/bot"
	"github.com/cloudgroundcontrol/meetbot/pkg/config"
	"github.com/cloudgroundcontrol/meetbot/pkg/notify"
	"github.com/cloudgroundcontrol/meetbot/pkg/pipeline"
	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
	"github.com/cloudgroundcontrol/meetbot/pkg/speaker"
	"github.com/cloudgroundcontrol/meetbot/pkg/transcription"
	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

var (
	ErrSessionInProgress = errors.New("a session is already in progress")
	ErrNoActiveSession   = errors.New("no active session")
)

type StartSessionRequest struct {
	MeetingURL    string
	BotID         string
	BotName       string
	Role          string
	RecordingMode string
	Provider      string
	Vocabulary    []string
}

// StateInfo is the control API's view of the session.
type StateInfo struct {
	SessionID string           `json:"session_id"`
	State     bot.MeetingState `json:"state"`
	EndReason string           `json:"end_reason,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type Service interface {
	StartSession(ctx context.Context, req StartSessionRequest) (string, error)
	StopSession(ctx context.Context, reason string) error
	PauseSession(ctx context.Context) error
	ResumeSession(ctx context.Context) error
	PushChunk(ctx context.Context, data []byte, isFinal bool) error
	PushSpeakers(ctx context.Context, snapshot []speaker.Data) error
	State(ctx context.Context) (StateInfo, error)
	SetUploader(uploader upload.Uploader)
}

type activeSession struct {
	id      string
	machine *bot.Machine
	chunks  *pipeline.ChunkProcessor
	speaker *speaker.Manager
	done    chan struct{}
}

type service struct {
	cfg     *config.Config
	logPath string

	lock     sync.Mutex
	active   *activeSession
	uploader upload.Uploader
}

// NewService creates the session service. logPath is the local process log
// uploaded when a session is cleaned up.
func NewService(cfg *config.Config, logPath string) Service {
	return &service{cfg: cfg, logPath: logPath}
}

func (s *service) SetUploader(uploader upload.Uploader) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.uploader = uploader
}

func (s *service) StartSession(ctx context.Context, req StartSessionRequest) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	// One bot per process. A terminated session may be replaced.
	if s.active != nil && s.active.machine.CurrentState() != bot.StateTerminated {
		return "", ErrSessionInProgress
	}

	drv, ok := provider.Lookup(req.Provider)
	if !ok {
		return "", fmt.Errorf("unknown provider %q, registered: %v", req.Provider, provider.Names())
	}

	id := shortuuid.New()
	workDir := filepath.Join(s.cfg.Recording.Dir, id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}

	layout := upload.Layout{SessionID: id}

	botID := req.BotID
	if botID == "" {
		botID = id
	}
	var notifier notify.Notifier
	if len(s.cfg.Webhooks.URLs) > 0 {
		notifier = notify.NewWebhookNotifier(s.cfg.Webhooks.URLs, botID)
	}

	var client *api.Client
	if s.cfg.API.BaseURL != "" {
		client = api.NewClient(s.cfg.API.BaseURL, s.cfg.API.Token, botID)
	}

	sttProvider, err := transcription.NewProvider(s.cfg.Transcription.Provider, s.cfg.Transcription.APIKey)
	if err != nil {
		return "", err
	}
	stt := transcription.NewService(sttProvider, transcription.ServiceConfig{
		Concurrency:    s.cfg.Transcription.Concurrency,
		MaxRetries:     s.cfg.Transcription.MaxRetries,
		RetryDelay:     s.cfg.Transcription.RetryDelay,
		RequestTimeout: s.cfg.Transcription.RequestTimeout,
		Vocabulary:     req.Vocabulary,
	}, func(words []transcription.Word, seg transcription.Segment) {
		if client == nil {
			return
		}
		pctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.PostWords(pctx, seg.ID, words); err != nil {
			log.Errorf("cannot post segment words | error: %v, segment: %s", err, seg.ID)
		}
	})

	extractor := pipeline.NewAudioExtractor(pipeline.RawCapturePath(workDir), workDir, s.uploader, layout)
	transcoder := pipeline.NewTranscoder(pipeline.TranscoderConfig{
		WorkDir:         workDir,
		ChunkDuration:   s.cfg.Recording.ChunkDuration,
		ChunksPerWindow: s.cfg.ChunksPerWindow(),
	}, stt, extractor)
	chunks := pipeline.NewChunkProcessor(transcoder, s.cfg.Recording.ChunkDuration)

	var poster speaker.TranscriptPoster = nopPoster{}
	if client != nil {
		poster = client
	}
	proxy := &participantProxy{}
	speakers := speaker.NewManager(poster, proxy)
	observer := newSpeakerObserver(speakers, filepath.Join(workDir, "speakers.jsonl"), s.uploader, layout)

	machine := bot.NewMachine(bot.Config{
		MeetingURL:         req.MeetingURL,
		BotName:            req.BotName,
		Role:               req.Role,
		RecordingMode:      req.RecordingMode,
		WaitingRoomTimeout: s.cfg.AutomaticLeave.WaitingRoomTimeout,
		InitialGrace:       s.cfg.AutomaticLeave.InitialGrace,
		SilenceTimeout:     s.cfg.AutomaticLeave.SilenceTimeout,
		MaxDuration:        s.cfg.Recording.MaxDuration,
	}, bot.Deps{
		Provider:      drv.Provider,
		Browser:       drv.Browser,
		Capture:       drv.Capture,
		Pipeline:      newSessionPipeline(chunks, transcoder, s.uploader, layout),
		Transcription: stt,
		Speaker:       observer,
		Notifier:      notifier,
		Uploader:      s.uploader,
		Layout:        layout,
		FetchBranding: fetchBotRecord(client),
		LogPath:       s.logPath,
	})
	proxy.set(machine)

	sess := &activeSession{
		id:      id,
		machine: machine,
		chunks:  chunks,
		speaker: speakers,
		done:    make(chan struct{}),
	}
	s.active = sess

	go func() {
		machine.Start(context.Background())
		close(sess.done)
		log.Infof("session terminated | session: %s, reason: %s", sess.id, stateInfo(sess).EndReason)
	}()

	log.Infof("session started | session: %s, meeting: %s, provider: %s", id, req.MeetingURL, req.Provider)
	return id, nil
}

func (s *service) StopSession(ctx context.Context, reason string) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	if reason == "" {
		reason = bot.EndReasonAPIRequest
	}
	sess.machine.RequestStop(reason)
	return nil
}

func (s *service) PauseSession(ctx context.Context) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	if sess.machine.CurrentState() != bot.StateRecording {
		return fmt.Errorf("cannot pause in state %s", sess.machine.CurrentState())
	}
	sess.machine.SetPaused(true)
	return nil
}

func (s *service) ResumeSession(ctx context.Context) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	sess.machine.SetPaused(false)
	return nil
}

func (s *service) PushChunk(ctx context.Context, data []byte, isFinal bool) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	if err := sess.chunks.Err(); err != nil {
		return err
	}
	return sess.chunks.ProcessChunk(data, isFinal)
}

func (s *service) PushSpeakers(ctx context.Context, snapshot []speaker.Data) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	sess.speaker.HandleSpeakerUpdate(snapshot)
	return nil
}

func (s *service) State(ctx context.Context) (StateInfo, error) {
	sess, err := s.session()
	if err != nil {
		return StateInfo{}, err
	}
	return stateInfo(sess), nil
}

func (s *service) session() (*activeSession, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.active == nil {
		return nil, ErrNoActiveSession
	}
	return s.active, nil
}

func stateInfo(sess *activeSession) StateInfo {
	info := StateInfo{
		SessionID: sess.id,
		State:     sess.machine.CurrentState(),
	}
	if err := sess.machine.Err(); err != nil {
		info.Error = err.Error()
	}
	info.EndReason = sess.machine.EndReason()
	return info
}

// fetchBotRecord warms the backend's bot record during initialization so a
// misconfigured token surfaces early in the session log.
func fetchBotRecord(client *api.Client) func(ctx context.Context) error {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		record, err := client.GetBot(ctx)
		if err != nil {
			return err
		}
		log.Debugf("bot record fetched | bot: %s, status: %s", record.ID, record.Status)
		return nil
	}
}

// participantProxy breaks the construction cycle between the speaker
// manager and the machine: the manager needs a sink before the machine
// exists. It is set exactly once, before the machine starts.
type participantProxy struct {
	mu      sync.Mutex
	machine *bot.Machine
}

func (p *participantProxy) set(m *bot.Machine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.machine = m
}

func (p *participantProxy) UpdateParticipantState(state speaker.ParticipantState) {
	p.mu.Lock()
	m := p.machine
	p.mu.Unlock()
	if m != nil {
		m.UpdateParticipantState(state)
	}
}

type nopPoster struct{}

func (nopPoster) StartTurn(string, time.Time) {}
func (nopPoster) CloseTurn(time.Time)         {}
