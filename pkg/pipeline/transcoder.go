package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/cloudgroundcontrol/meetbot/pkg/transcription"
)

var ErrTranscoderNotStarted = errors.New("transcoder not started")

// RawCapturePath is the rolling raw capture location inside a session work
// directory. The audio extractor reads the same file the transcoder appends.
func RawCapturePath(workDir string) string {
	return filepath.Join(workDir, "capture.raw")
}

// TranscoderConfig tunes the session transcoder.
type TranscoderConfig struct {
	// WorkDir holds the raw capture and the muxed output.
	WorkDir string
	// ChunkDuration and ChunksPerWindow define the rolling transcription
	// window.
	ChunkDuration   time.Duration
	ChunksPerWindow int
	// StopTimeout bounds the wait for the subprocess to exit after its
	// input closes; the process is force-killed afterwards.
	StopTimeout time.Duration
	// RemuxTimeout bounds the post-stop faststart remux.
	RemuxTimeout time.Duration
}

// Transcoder owns the single external transcoding subprocess for a session.
// Chunks are appended to a private rolling raw capture (the audio
// extraction source) and piped into the subprocess; every complete window
// it fires a transcription request without blocking chunk ingestion.
type Transcoder struct {
	cfg       TranscoderConfig
	runner    CommandRunner
	state     *transcription.StateManager
	service   *transcription.Service
	extractor *AudioExtractor

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	raw     *os.File
	started bool
	stopped bool

	// In-flight transcription requests, waited on by Finalize
	requests sync.WaitGroup

	rawPath    string
	outputPath string
}

func NewTranscoder(cfg TranscoderConfig, service *transcription.Service, extractor *AudioExtractor) *Transcoder {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Minute
	}
	if cfg.RemuxTimeout <= 0 {
		cfg.RemuxTimeout = 30 * time.Second
	}
	return &Transcoder{
		cfg:        cfg,
		runner:     execRunner{},
		state:      transcription.NewStateManager(cfg.ChunkDuration, cfg.ChunksPerWindow),
		service:    service,
		extractor:  extractor,
		rawPath:    RawCapturePath(cfg.WorkDir),
		outputPath: filepath.Join(cfg.WorkDir, "recording.mp4"),
	}
}

// RawPath is the accumulating raw capture file.
func (t *Transcoder) RawPath() string { return t.rawPath }

// OutputPath is the muxed session recording.
func (t *Transcoder) OutputPath() string { return t.outputPath }

// Start spawns the transcoding subprocess once for the whole session.
func (t *Transcoder) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	raw, err := os.Create(t.rawPath)
	if err != nil {
		return fmt.Errorf("create raw capture: %w", err)
	}

	cmd := exec.Command("ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-c", "copy",
		"-y", t.outputPath,
	)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		raw.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		raw.Close()
		return fmt.Errorf("start transcoder: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.raw = raw
	t.started = true
	return nil
}

// WriteChunk appends the chunk to the raw capture and to the subprocess
// input. The pipe write blocks when the subprocess is behind, which is the
// backpressure signal. Every completed window kicks off an asynchronous
// extraction + transcription request.
func (t *Transcoder) WriteChunk(ctx context.Context, meta ChunkMetadata, data []byte) error {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return ErrTranscoderNotStarted
	}
	raw, stdin := t.raw, t.stdin
	t.mu.Unlock()

	if _, err := raw.Write(data); err != nil {
		return fmt.Errorf("append raw capture: %w", err)
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("write transcoder input: %w", err)
	}

	if window, ok := t.state.AddChunk(); ok {
		t.requests.Add(1)
		go t.requestTranscription(window)
	}
	return nil
}

// Stop closes the subprocess input, waits for it to exit (force-killing
// after the stop timeout), then remuxes the output for streaming-friendly
// playback. A remux failure propagates but the raw recording is preserved.
func (t *Transcoder) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	cmd, stdin, raw := t.cmd, t.stdin, t.raw
	t.mu.Unlock()

	if err := raw.Close(); err != nil {
		logger.Warnw("cannot close raw capture", err)
	}
	if err := stdin.Close(); err != nil {
		logger.Warnw("cannot close transcoder input", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	select {
	case err := <-exited:
		if err != nil {
			return fmt.Errorf("transcoder exited: %w", err)
		}
	case <-time.After(t.cfg.StopTimeout):
		logger.Warnw("transcoder did not exit, killing", nil)
		_ = cmd.Process.Kill()
		<-exited
	}

	return t.remux(ctx)
}

// Finalize is the ordered shutdown: wait for in-flight transcription
// requests, flush one final partial window, then stop the subprocess.
func (t *Transcoder) Finalize(ctx context.Context) error {
	t.requests.Wait()

	if window, ok := t.state.Finalize(); ok {
		t.requests.Add(1)
		t.requestTranscription(window)
	}

	return t.Stop(ctx)
}

func (t *Transcoder) requestTranscription(window transcription.Window) {
	defer t.requests.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	audioURL, err := t.extractor.Extract(ctx, window.Start, window.End)
	if err != nil {
		logger.Warnw("cannot extract window audio", err,
			"start", window.Start, "end", window.End)
		return
	}
	t.service.TranscribeSegment(window.Start, window.End, audioURL)
}

func (t *Transcoder) remux(ctx context.Context) error {
	remuxed := t.outputPath + ".remux.mp4"
	rctx, cancel := context.WithTimeout(ctx, t.cfg.RemuxTimeout)
	defer cancel()

	err := t.runner.Run(rctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", t.outputPath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", remuxed,
	)
	if err != nil {
		_ = os.Remove(remuxed)
		return fmt.Errorf("remux recording: %w", err)
	}
	return os.Rename(remuxed, t.outputPath)
}
