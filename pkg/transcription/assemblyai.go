package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const assemblyBaseURL = "https://api.assemblyai.com/v2"

// AssemblyAI transcribes hosted audio via AssemblyAI's async API: submit a
// job, then poll its status until it settles. The caller's context bounds
// the whole exchange.
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{
		apiKey:       apiKey,
		baseURL:      assemblyBaseURL,
		client:       &http.Client{},
		pollInterval: 2 * time.Second,
	}
}

func (a *AssemblyAI) Name() string { return "assemblyai" }

type assemblyJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Words  []struct {
		Text  string `json:"text"`
		Start int64  `json:"start"`
		End   int64  `json:"end"`
	} `json:"words"`
}

func (a *AssemblyAI) Recognize(ctx context.Context, audioURL string, vocabulary []string) ([]Word, error) {
	job, err := a.submit(ctx, audioURL, vocabulary)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		job, err = a.poll(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case "completed":
			words := make([]Word, 0, len(job.Words))
			for _, w := range job.Words {
				words = append(words, Word{
					Text:      w.Text,
					StartTime: float64(w.Start) / 1000,
					EndTime:   float64(w.End) / 1000,
				})
			}
			return words, nil
		case "error":
			return nil, fmt.Errorf("assemblyai job %s failed: %s", job.ID, job.Error)
		}
	}
}

func (a *AssemblyAI) submit(ctx context.Context, audioURL string, vocabulary []string) (*assemblyJob, error) {
	payload := map[string]interface{}{"audio_url": audioURL}
	if len(vocabulary) > 0 {
		payload["word_boost"] = vocabulary
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *AssemblyAI) poll(ctx context.Context, id string) (*assemblyJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/transcript/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", a.apiKey)
	return a.do(req)
}

func (a *AssemblyAI) do(req *http.Request) (*assemblyJob, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("assemblyai returned %d: %s", resp.StatusCode, msg)
	}

	var job assemblyJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode assemblyai response: %w", err)
	}
	return &job, nil
}
