package session

import (
	"context"
	"os"
	"sync"

	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/pipeline"
	"github.com/cloudgroundcontrol/meetbot/pkg/speaker"
	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

// sessionPipeline presents the chunk processor and the transcoder to the
// state machine as one recording pipeline. Finalize additionally uploads
// the muxed recording once the transcoder has flushed.
type sessionPipeline struct {
	chunks     *pipeline.ChunkProcessor
	transcoder *pipeline.Transcoder
	uploader   upload.Uploader
	layout     upload.Layout
}

func newSessionPipeline(chunks *pipeline.ChunkProcessor, transcoder *pipeline.Transcoder, uploader upload.Uploader, layout upload.Layout) *sessionPipeline {
	return &sessionPipeline{
		chunks:     chunks,
		transcoder: transcoder,
		uploader:   uploader,
		layout:     layout,
	}
}

func (p *sessionPipeline) Start(ctx context.Context) error {
	return p.transcoder.Start(ctx)
}

func (p *sessionPipeline) Pause() {
	p.chunks.Pause()
}

func (p *sessionPipeline) Resume() {
	p.chunks.Resume()
}

func (p *sessionPipeline) Finalize(ctx context.Context) error {
	p.chunks.Stop()
	if err := p.transcoder.Finalize(ctx); err != nil {
		return err
	}
	p.uploadRecording(ctx)
	return nil
}

func (p *sessionPipeline) Stop(ctx context.Context) error {
	p.chunks.Stop()
	if err := p.transcoder.Stop(ctx); err != nil {
		return err
	}
	p.uploadRecording(ctx)
	return nil
}

func (p *sessionPipeline) uploadRecording(ctx context.Context) {
	if p.uploader == nil {
		return
	}
	if _, err := os.Stat(p.transcoder.OutputPath()); err != nil {
		return
	}
	url, err := upload.UploadFile(ctx, p.uploader, p.layout.Recording(), p.transcoder.OutputPath())
	if err != nil {
		log.Errorf("cannot upload recording | error: %v", err)
		return
	}
	log.Infof("recording uploaded | url: %s", url)
}

// speakerObserver owns the speaker manager's local snapshot log: it opens
// the log when the session starts recording, closes the final transcript
// turn on Flush, and uploads the log when the session stops.
type speakerObserver struct {
	manager  *speaker.Manager
	logPath  string
	uploader upload.Uploader
	layout   upload.Layout

	mu      sync.Mutex
	logFile *os.File
}

func newSpeakerObserver(manager *speaker.Manager, logPath string, uploader upload.Uploader, layout upload.Layout) *speakerObserver {
	return &speakerObserver{
		manager:  manager,
		logPath:  logPath,
		uploader: uploader,
		layout:   layout,
	}
}

func (o *speakerObserver) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.logFile != nil {
		return nil
	}
	f, err := os.Create(o.logPath)
	if err != nil {
		return err
	}
	o.logFile = f
	o.manager.SetLog(f)
	return nil
}

func (o *speakerObserver) Flush() {
	o.manager.Flush()
}

func (o *speakerObserver) Stop() {
	o.mu.Lock()
	f := o.logFile
	o.logFile = nil
	o.mu.Unlock()
	if f == nil {
		return
	}
	if err := f.Close(); err != nil {
		log.Warnf("cannot close speaker log | error: %v", err)
	}

	if o.uploader == nil {
		return
	}
	ctx := context.Background()
	if _, err := upload.UploadFile(ctx, o.uploader, o.layout.SpeakerLog(), o.logPath); err != nil {
		log.Warnf("cannot upload speaker log | error: %v", err)
	}
}
