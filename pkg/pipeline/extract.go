package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/livekit/protocol/logger"

	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

// Audio shorter than this is treated as a broken cut.
const minAudioBytes = 1024

// ExtractionError is a typed failure from one of the extraction stages.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("audio extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AudioExtractor cuts a time-bounded audio segment out of the accumulating
// raw capture and hands it to object storage. Extraction always works
// against a point-in-time snapshot so the pipeline's writer is never raced.
type AudioExtractor struct {
	rawPath  string
	workDir  string
	uploader upload.Uploader
	layout   upload.Layout
	runner   CommandRunner
	retries  int
	delay    time.Duration
}

func NewAudioExtractor(rawPath, workDir string, uploader upload.Uploader, layout upload.Layout) *AudioExtractor {
	return &AudioExtractor{
		rawPath:  rawPath,
		workDir:  workDir,
		uploader: uploader,
		layout:   layout,
		runner:   execRunner{},
		retries:  3,
		delay:    2 * time.Second,
	}
}

// Extract cuts [start, end) from the raw capture, uploads it, and returns
// the stored audio URL. Local temporaries are removed regardless of
// outcome. Without an uploader configured the local path is returned and
// kept.
func (e *AudioExtractor) Extract(ctx context.Context, start, end time.Duration) (string, error) {
	id := shortuuid.New()
	snapshot := filepath.Join(e.workDir, fmt.Sprintf("snapshot-%s.raw", id))
	out := filepath.Join(e.workDir, fmt.Sprintf("audio-%s.wav", id))

	keepAudio := false
	defer func() {
		if err := os.Remove(snapshot); err != nil && !os.IsNotExist(err) {
			logger.Warnw("cannot remove snapshot", err, "path", snapshot)
		}
		if keepAudio {
			return
		}
		if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
			logger.Warnw("cannot remove extracted audio", err, "path", out)
		}
	}()

	// Copy the raw capture so concurrent writes cannot corrupt the cut
	if err := e.withRetry(ctx, func() error { return copyFile(e.rawPath, snapshot) }); err != nil {
		return "", &ExtractionError{Stage: "snapshot", Err: err}
	}

	if err := e.withRetry(ctx, func() error {
		return e.runner.Run(ctx, "ffmpeg",
			"-hide_banner", "-loglevel", "error",
			"-ss", formatOffset(start),
			"-to", formatOffset(end),
			"-i", snapshot,
			"-vn", "-acodec", "pcm_s16le",
			"-y", out,
		)
	}); err != nil {
		return "", &ExtractionError{Stage: "trim", Err: err}
	}

	stat, err := os.Stat(out)
	if err != nil {
		return "", &ExtractionError{Stage: "validate", Err: err}
	}
	if stat.Size() < minAudioBytes {
		return "", &ExtractionError{Stage: "validate", Err: fmt.Errorf("extracted audio too small: %d bytes", stat.Size())}
	}

	if e.uploader == nil {
		keepAudio = true
		return out, nil
	}

	key := e.layout.AudioSegment(start.Milliseconds(), end.Milliseconds())
	var url string
	if err := e.withRetry(ctx, func() error {
		var uerr error
		url, uerr = upload.UploadFile(ctx, e.uploader, key, out)
		return uerr
	}); err != nil {
		return "", &ExtractionError{Stage: "upload", Err: err}
	}
	return url, nil
}

func (e *AudioExtractor) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// formatOffset renders a duration as an ffmpeg time offset in seconds.
func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
