package transcription

import (
	"fmt"
	"time"
)

// Status is a transcription segment's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusSkipped marks a segment that exhausted its retry budget and was
	// completed with empty results instead of failing the session.
	StatusSkipped Status = "skipped"
)

// Segment is one transcription window. Its ID is a deterministic function
// of the boundaries, so duplicate creation requests collapse onto the same
// segment.
type Segment struct {
	ID         string
	StartTime  time.Duration
	EndTime    time.Duration
	Status     Status
	Results    []Word
	RetryCount int
	AudioURL   string
}

// SegmentID derives the canonical segment id for a window.
func SegmentID(start, end time.Duration) string {
	return fmt.Sprintf("%d-%d", start.Milliseconds(), end.Milliseconds())
}

// Window is a half-open [Start, End) time range within the recording.
type Window struct {
	Start time.Duration
	End   time.Duration
}
