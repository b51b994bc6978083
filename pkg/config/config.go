package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all session settings loaded from environment.
type Config struct {
	Server        ServerConfig
	Recording     RecordingConfig
	AutomaticLeave AutomaticLeaveConfig
	Transcription TranscriptionConfig
	S3            S3Config
	API           APIConfig
	Webhooks      WebhookConfig
}

// ServerConfig holds HTTP control server settings.
type ServerConfig struct {
	Port     string
	LogLevel string
}

// RecordingConfig holds capture and transcoding settings.
type RecordingConfig struct {
	// Dir is the local working directory for raw captures and artifacts.
	Dir string
	// ChunkDuration is the cadence at which the capture surface delivers chunks.
	ChunkDuration time.Duration
	// TranscribeDuration is the size of one transcription window. Must be a
	// multiple of ChunkDuration.
	TranscribeDuration time.Duration
	// MaxDuration is the absolute recording ceiling.
	MaxDuration time.Duration
}

// AutomaticLeaveConfig holds the timeouts that end a session without an
// explicit stop request.
type AutomaticLeaveConfig struct {
	// WaitingRoomTimeout bounds how long the bot waits to be admitted.
	WaitingRoomTimeout time.Duration
	// InitialGrace is how long an empty meeting is tolerated after the
	// recording starts, as long as nobody has joined yet.
	InitialGrace time.Duration
	// SilenceTimeout ends the session once nobody has spoken for this long.
	SilenceTimeout time.Duration
}

// TranscriptionConfig holds transcription dispatch settings.
type TranscriptionConfig struct {
	Provider    string
	APIKey      string
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration
}

// S3Config holds the object storage sink settings. Upload is disabled when
// Region or Bucket is empty.
type S3Config struct {
	Region    string
	Bucket    string
	Directory string
}

// APIConfig points at the bot management backend.
type APIConfig struct {
	BaseURL string
	Token   string
}

// WebhookConfig holds lifecycle notification targets.
type WebhookConfig struct {
	URLs []string
}

// Load reads configuration from environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("APP_PORT", "8080"),
			LogLevel: getEnv("LOG_LEVEL", "error"),
		},
		Recording: RecordingConfig{
			Dir:                getEnv("RECORDINGS_DIR", "recordings"),
			ChunkDuration:      getEnvDuration("CHUNK_DURATION_MS", 10_000),
			TranscribeDuration: getEnvDuration("TRANSCRIBE_DURATION_MS", 180_000),
			MaxDuration:        getEnvDuration("MAX_RECORDING_DURATION_MS", 4*60*60*1000),
		},
		AutomaticLeave: AutomaticLeaveConfig{
			WaitingRoomTimeout: getEnvDuration("WAITING_ROOM_TIMEOUT_MS", 600_000),
			InitialGrace:       getEnvDuration("NO_ATTENDEES_GRACE_MS", 300_000),
			SilenceTimeout:     getEnvDuration("NO_SPEAKER_TIMEOUT_MS", 600_000),
		},
		Transcription: TranscriptionConfig{
			Provider:       getEnv("TRANSCRIPTION_PROVIDER", "deepgram"),
			APIKey:         os.Getenv("TRANSCRIPTION_API_KEY"),
			Concurrency:    getEnvInt("TRANSCRIPTION_CONCURRENCY", 2),
			MaxRetries:     getEnvInt("TRANSCRIPTION_MAX_RETRIES", 3),
			RetryDelay:     getEnvDuration("TRANSCRIPTION_RETRY_DELAY_MS", 2_000),
			RequestTimeout: getEnvDuration("TRANSCRIPTION_REQUEST_TIMEOUT_MS", 60_000),
		},
		S3: S3Config{
			Region:    os.Getenv("S3_REGION"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Directory: os.Getenv("S3_DIRECTORY"),
		},
		API: APIConfig{
			BaseURL: os.Getenv("API_BASE_URL"),
			Token:   os.Getenv("API_TOKEN"),
		},
	}

	if urls := os.Getenv("WEBHOOK_URLS"); urls != "" {
		cfg.Webhooks.URLs = strings.Split(urls, ",")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Recording.ChunkDuration <= 0 {
		return fmt.Errorf("chunk duration must be positive")
	}
	if c.Recording.TranscribeDuration%c.Recording.ChunkDuration != 0 {
		return fmt.Errorf("transcribe duration %s is not a multiple of chunk duration %s",
			c.Recording.TranscribeDuration, c.Recording.ChunkDuration)
	}
	if c.Transcription.Concurrency < 1 {
		return fmt.Errorf("transcription concurrency must be at least 1")
	}
	return nil
}

// ChunksPerWindow is the number of chunks that make up one transcription window.
func (c *Config) ChunksPerWindow() int {
	return int(c.Recording.TranscribeDuration / c.Recording.ChunkDuration)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}
