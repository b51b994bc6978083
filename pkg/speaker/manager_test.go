package speaker

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type turnEvent struct {
	kind string
	name string
	at   time.Time
}

type fakePoster struct {
	events []turnEvent
}

func (p *fakePoster) StartTurn(name string, at time.Time) {
	p.events = append(p.events, turnEvent{kind: "start", name: name, at: at})
}

func (p *fakePoster) CloseTurn(at time.Time) {
	p.events = append(p.events, turnEvent{kind: "close", at: at})
}

type fakeSink struct {
	states []ParticipantState
}

func (s *fakeSink) UpdateParticipantState(state ParticipantState) {
	s.states = append(s.states, state)
}

func (s *fakeSink) last() ParticipantState {
	return s.states[len(s.states)-1]
}

type fixture struct {
	poster  *fakePoster
	sink    *fakeSink
	manager *Manager
	clock   time.Time
}

func newFixture() *fixture {
	f := &fixture{
		poster: &fakePoster{},
		sink:   &fakeSink{},
		clock:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.manager = NewManager(f.poster, f.sink)
	f.manager.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) tick(d time.Duration) { f.clock = f.clock.Add(d) }

func speaking(name string) Data { return Data{Name: name, IsSpeaking: true} }
func silent(name string) Data   { return Data{Name: name, IsSpeaking: false} }

func TestFirstSpeakerOpensTurn(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice"), silent("bob")})

	require.Len(t, f.poster.events, 1)
	require.Equal(t, turnEvent{kind: "start", name: "alice", at: f.clock}, f.poster.events[0])
}

func TestSameSpeakerContinuesSilently(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.tick(500 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})

	require.Len(t, f.poster.events, 1)
}

func TestSpeakerChangeOpensNewTurn(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.tick(200 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{speaking("bob"), silent("alice")})

	require.Len(t, f.poster.events, 2)
	require.Equal(t, "bob", f.poster.events[1].name)
}

func TestShortGapContinuesTurn(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.tick(300 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{silent("alice")})
	f.tick(500 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})

	// Silence below the gap threshold: no new turn
	require.Len(t, f.poster.events, 1)
}

func TestLongGapStartsNewTurnForSameSpeaker(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.tick(300 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{silent("alice")})
	f.tick(1500 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})

	require.Len(t, f.poster.events, 2)
	require.Equal(t, "alice", f.poster.events[1].name)
}

func TestMultipleSpeakersPreferCurrent(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.tick(200 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{speaking("bob"), speaking("alice")})

	// alice is still active, no turn change
	require.Len(t, f.poster.events, 1)
}

func TestMultipleSpeakersWithoutCurrentOpensTurn(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.tick(200 * time.Millisecond)
	f.manager.HandleSpeakerUpdate([]Data{speaking("bob"), speaking("carol")})

	require.Len(t, f.poster.events, 2)
	require.Equal(t, "bob", f.poster.events[1].name)
}

func TestTelemetryTracksAttendeesAndSilence(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice"), silent("bob")})
	st := f.sink.last()
	require.Equal(t, 2, st.AttendeesCount)
	require.True(t, st.FirstUserJoined)
	require.Equal(t, f.clock, st.LastSpeakerTime)
	require.True(t, st.NoSpeakerSince.IsZero())

	silenceStart := f.clock.Add(10 * time.Second)
	f.tick(10 * time.Second)
	f.manager.HandleSpeakerUpdate([]Data{silent("alice"), silent("bob")})
	st = f.sink.last()
	require.Equal(t, silenceStart, st.NoSpeakerSince)

	// Silence start is sticky until someone speaks again
	f.tick(10 * time.Second)
	f.manager.HandleSpeakerUpdate([]Data{silent("alice")})
	require.Equal(t, silenceStart, f.sink.last().NoSpeakerSince)

	f.tick(time.Second)
	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	require.True(t, f.sink.last().NoSpeakerSince.IsZero())
}

func TestEmptyMeetingNeverSetsFirstJoined(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{})
	st := f.sink.last()
	require.Equal(t, 0, st.AttendeesCount)
	require.False(t, st.FirstUserJoined)
}

func TestFlushClosesOpenTurnOnce(t *testing.T) {
	f := newFixture()

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.manager.Flush()
	f.manager.Flush()

	require.Len(t, f.poster.events, 2)
	require.Equal(t, "close", f.poster.events[1].kind)
}

func TestSnapshotsPersistToLog(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	f.manager.SetLog(&buf)

	f.manager.HandleSpeakerUpdate([]Data{speaking("alice")})
	f.manager.HandleSpeakerUpdate([]Data{silent("alice")})

	require.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
	require.Contains(t, buf.String(), `"alice"`)
}
