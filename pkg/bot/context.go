package bot

import (
	"time"

	"github.com/cloudgroundcontrol/meetbot/pkg/provider"
)

// MeetingState identifies the state machine's current state.
type MeetingState string

const (
	StateInitialization MeetingState = "initialization"
	StateWaitingRoom    MeetingState = "waiting_room"
	StateInCall         MeetingState = "in_call"
	StateRecording      MeetingState = "recording"
	StatePaused         MeetingState = "paused"
	StateResuming       MeetingState = "resuming"
	StateError          MeetingState = "error"
	StateCleanup        MeetingState = "cleanup"
	StateTerminated     MeetingState = "terminated"
)

// End reasons recorded on the session context. RequestStop callers may pass
// arbitrary strings; these are the ones the core produces itself.
const (
	EndReasonAPIRequest       = "api_request"
	EndReasonCallEnded        = "call_ended"
	EndReasonNoAttendees      = "no_attendees"
	EndReasonNoSpeaker        = "no_speaker"
	EndReasonRecordingTimeout = "recording_timeout"
)

// MeetingContext is the single mutable record owned by the state machine.
// It is guarded by the machine's lock: states mutate it between ticks, and
// the two public entry points only set flags or merge counters.
type MeetingContext struct {
	MeetingURL  string
	Credentials provider.Credentials

	// Opaque handles owned by the provider collaborator
	Session provider.BrowserSession
	Page    provider.Page

	StartTime          time.Time
	PauseStartTime     time.Time
	TotalPauseDuration time.Duration

	AttendeesCount  int
	FirstUserJoined bool
	LastSpeakerTime time.Time
	NoSpeakerSince  time.Time

	IsPaused  bool
	EndReason string
	Err       error
}

// savedCounters are the participant counters snapshotted while paused and
// restored on resume.
type savedCounters struct {
	attendeesCount  int
	firstUserJoined bool
	lastSpeakerTime time.Time
	noSpeakerSince  time.Time
}
