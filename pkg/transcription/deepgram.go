package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const deepgramBaseURL = "https://api.deepgram.com/v1/listen"

// Deepgram transcribes hosted audio via Deepgram's prerecorded API.
type Deepgram struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey:  apiKey,
		baseURL: deepgramBaseURL,
		client:  &http.Client{},
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Words []struct {
					Word  string  `json:"word"`
					Start float64 `json:"start"`
					End   float64 `json:"end"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Recognize(ctx context.Context, audioURL string, vocabulary []string) ([]Word, error) {
	q := url.Values{}
	q.Set("model", "nova-2")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	for _, kw := range vocabulary {
		q.Add("keywords", kw)
	}

	body, err := json.Marshal(map[string]string{"url": audioURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deepgram returned %d: %s", resp.StatusCode, msg)
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode deepgram response: %w", err)
	}

	var words []Word
	for _, ch := range parsed.Results.Channels {
		for _, alt := range ch.Alternatives {
			for _, w := range alt.Words {
				words = append(words, Word{Text: w.Word, StartTime: w.Start, EndTime: w.End})
			}
			// Only the top alternative is used
			break
		}
	}
	return words, nil
}
