package speaker

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

// gapThreshold is how long a speaker must stay silent before their next
// utterance starts a new transcript turn instead of continuing the old one.
const gapThreshold = time.Second

// Data is one entry of a speaker-activity snapshot from the capture
// surface. There is no persistent identity beyond Name.
type Data struct {
	Name       string    `json:"name"`
	IsSpeaking bool      `json:"isSpeaking"`
	Timestamp  time.Time `json:"timestamp"`
}

// ParticipantState is the live telemetry merged into the session context.
// Zero time values mean "never observed".
type ParticipantState struct {
	AttendeesCount  int
	FirstUserJoined bool
	LastSpeakerTime time.Time
	NoSpeakerSince  time.Time
}

// ParticipantSink consumes telemetry updates; the state machine implements
// it with its merge-only entry point.
type ParticipantSink interface {
	UpdateParticipantState(state ParticipantState)
}

// TranscriptPoster receives turn boundary decisions. StartTurn implicitly
// closes any previous turn.
type TranscriptPoster interface {
	StartTurn(name string, at time.Time)
	CloseTurn(at time.Time)
}

// StreamSink receives every raw snapshot, e.g. a live websocket feed.
type StreamSink interface {
	SendSnapshot(snapshot []Data)
}

type currentSpeaker struct {
	name       string
	speaking   bool
	lastActive time.Time
}

// Manager consumes speaker-activity snapshots for one session: it keeps the
// participant telemetry current and decides transcript turn boundaries.
type Manager struct {
	poster TranscriptPoster
	sink   ParticipantSink
	stream StreamSink
	// Append-only local snapshot log, best-effort
	logw io.Writer
	now  func() time.Time

	mu             sync.Mutex
	current        *currentSpeaker
	everJoined     bool
	lastSpeakerAt  time.Time
	noSpeakerSince time.Time
}

func NewManager(poster TranscriptPoster, sink ParticipantSink) *Manager {
	return &Manager{
		poster: poster,
		sink:   sink,
		now:    time.Now,
	}
}

// SetStream attaches a live snapshot sink.
func (m *Manager) SetStream(stream StreamSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stream = stream
}

// SetLog attaches the append-only snapshot log.
func (m *Manager) SetLog(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logw = w
}

// HandleSpeakerUpdate processes one snapshot batch.
func (m *Manager) HandleSpeakerUpdate(snapshot []Data) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if m.stream != nil {
		m.stream.SendSnapshot(snapshot)
	}
	m.persistLocked(snapshot)

	active := make([]Data, 0, len(snapshot))
	for _, s := range snapshot {
		if s.IsSpeaking {
			active = append(active, s)
		}
	}

	if len(snapshot) > 0 {
		m.everJoined = true
	}
	if len(active) > 0 {
		m.lastSpeakerAt = now
		m.noSpeakerSince = time.Time{}
	} else if m.noSpeakerSince.IsZero() {
		m.noSpeakerSince = now
	}

	m.sink.UpdateParticipantState(ParticipantState{
		AttendeesCount:  len(snapshot),
		FirstUserJoined: m.everJoined,
		LastSpeakerTime: m.lastSpeakerAt,
		NoSpeakerSince:  m.noSpeakerSince,
	})

	switch len(active) {
	case 0:
		// Keep the turn open; just flag the current speaker silent so the
		// gap threshold decides what their next utterance is.
		if m.current != nil && m.current.speaking {
			m.current.speaking = false
			m.current.lastActive = now
		}
	case 1:
		m.advanceTurnLocked(active[0].Name, now)
	default:
		if m.current != nil && containsName(active, m.current.name) {
			m.current.speaking = true
			m.current.lastActive = now
			return
		}
		m.advanceTurnLocked(active[0].Name, now)
	}
}

// Flush closes the open transcript turn, if any.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.poster.CloseTurn(m.now())
	m.current = nil
}

func (m *Manager) advanceTurnLocked(name string, now time.Time) {
	if m.current != nil && m.current.name == name {
		silentFor := now.Sub(m.current.lastActive)
		if m.current.speaking || silentFor < gapThreshold {
			// Continuation of the existing turn
			m.current.speaking = true
			m.current.lastActive = now
			return
		}
	}

	m.poster.StartTurn(name, now)
	m.current = &currentSpeaker{name: name, speaking: true, lastActive: now}
}

func (m *Manager) persistLocked(snapshot []Data) {
	if m.logw == nil {
		return
	}
	line, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if _, err := m.logw.Write(append(line, '\n')); err != nil {
		log.Warnf("cannot persist speaker snapshot | error: %v", err)
	}
}

func containsName(snapshot []Data, name string) bool {
	for _, s := range snapshot {
		if s.Name == name {
			return true
		}
	}
	return false
}
