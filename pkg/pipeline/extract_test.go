package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

// fakeRunner simulates the trim step by writing a wav-sized file.
type fakeRunner struct {
	calls    int
	failures int
	outSize  int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("ffmpeg exploded")
	}
	// Last arg is the output path
	out := args[len(args)-1]
	return os.WriteFile(out, make([]byte, f.outSize), 0644)
}

func newTestExtractor(t *testing.T, runner CommandRunner) *AudioExtractor {
	t.Helper()
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "capture.raw")
	require.NoError(t, os.WriteFile(rawPath, make([]byte, 4096), 0644))

	e := NewAudioExtractor(rawPath, dir, nil, upload.Layout{SessionID: "test"})
	e.runner = runner
	e.delay = time.Millisecond
	return e
}

func TestExtractReturnsAudioPath(t *testing.T) {
	e := newTestExtractor(t, &fakeRunner{outSize: 4096})

	path, err := e.Extract(context.Background(), 0, 10*time.Second)
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestExtractRetriesTrimFailures(t *testing.T) {
	runner := &fakeRunner{failures: 2, outSize: 4096}
	e := newTestExtractor(t, runner)

	_, err := e.Extract(context.Background(), 0, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 3, runner.calls)
}

func TestExtractFailsAfterRetryBudget(t *testing.T) {
	runner := &fakeRunner{failures: 99}
	e := newTestExtractor(t, runner)

	_, err := e.Extract(context.Background(), 0, 10*time.Second)
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, "trim", exErr.Stage)
	require.Equal(t, 3, runner.calls)
}

func TestExtractRejectsTinyAudio(t *testing.T) {
	e := newTestExtractor(t, &fakeRunner{outSize: 16})

	_, err := e.Extract(context.Background(), 0, 10*time.Second)
	var exErr *ExtractionError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, "validate", exErr.Stage)
}

func TestExtractCleansUpSnapshot(t *testing.T) {
	e := newTestExtractor(t, &fakeRunner{outSize: 4096})

	_, err := e.Extract(context.Background(), 0, 10*time.Second)
	require.NoError(t, err)

	entries, err := os.ReadDir(e.workDir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), "snapshot-")
	}
}
