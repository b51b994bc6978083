package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
)

type Uploader interface {
	// Upload stores the body under key and returns a public URL for it.
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
	GetDirectory() string
}

// UploadFile uploads a local file under key. The file is left in place;
// callers decide when to delete their temporaries.
func UploadFile(ctx context.Context, u Uploader, key string, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return u.Upload(ctx, key, file)
}

// Layout derives the object keys for one session's artifacts.
type Layout struct {
	SessionID string
}

func (l Layout) Recording() string {
	return path.Join(l.SessionID, "recording.mp4")
}

func (l Layout) AudioSegment(startMs, endMs int64) string {
	return path.Join(l.SessionID, fmt.Sprintf("audio_%d_%d.wav", startMs, endMs))
}

func (l Layout) Logs() string {
	return path.Join(l.SessionID, "session.log")
}

func (l Layout) SpeakerLog() string {
	return path.Join(l.SessionID, "speakers.log")
}
