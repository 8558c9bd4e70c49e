package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "https://api.deepgram.com/v1/speak"
	DefaultModel    = "aura-asteria-en"
	DefaultEncoding = "mp3"
)

// SpeakRequest is the body of a Deepgram Speak call
type SpeakRequest struct {
	Text string `json:"text"`
}

// SpeakClient converts text to audio using the Deepgram Speak API
type SpeakClient struct {
	baseURL  string
	apiKey   string
	model    string
	encoding string
	client   *http.Client
}

// NewSpeakClient creates a new Deepgram Speak client
func NewSpeakClient(apiKey, baseURL, model string) *SpeakClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &SpeakClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		encoding: DefaultEncoding,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled reports whether an API key is configured
func (c *SpeakClient) Enabled() bool {
	return c.apiKey != ""
}

// ContentType returns the MIME type of the produced audio
func (c *SpeakClient) ContentType() string {
	return "audio/mpeg"
}

// Synthesize returns encoded audio for text
func (c *SpeakClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("deepgram client not configured")
	}
	if text == "" {
		return nil, fmt.Errorf("cannot synthesize empty text")
	}

	payload, err := json.Marshal(SpeakRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}
	query := endpoint.Query()
	query.Set("model", c.model)
	query.Set("encoding", c.encoding)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call deepgram: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	logger.Base().Debug("synthesized speech",
		zap.Int("chars", len(text)),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)))
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
