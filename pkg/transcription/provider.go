package transcription

import (
	"context"
	"fmt"
)

// Word is one recognized word with its offsets in seconds, relative to the
// start of the submitted audio.
type Word struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Provider is a pluggable speech-to-text backend.
type Provider interface {
	Name() string
	// Recognize transcribes the audio at audioURL, boosting the given
	// vocabulary. The context bounds the whole call, including any status
	// polling the backend requires.
	Recognize(ctx context.Context, audioURL string, vocabulary []string) ([]Word, error)
}

// NewProvider builds the provider selected by name.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "deepgram":
		return NewDeepgram(apiKey), nil
	case "assemblyai":
		return NewAssemblyAI(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", name)
	}
}
