package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"course-service/internal/util"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const breakerName = "transcription"

// ErrNotConfigured is returned when no transcription endpoint is set
var ErrNotConfigured = errors.New("transcription service not configured")

// Transcriber turns a stored video into text
type Transcriber interface {
	Transcribe(ctx context.Context, videoURL string) (string, error)
}

// Client calls the external transcription service. Requests are rate
// limited locally and pass through a circuit breaker.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// NewClient creates a transcription client allowing rps requests per second
func NewClient(url, apiKey string, rps float64) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		url:     url,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Minute},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cb:      util.NewCircuitBreaker[string](breakerName, time.Minute),
		logger:  util.GetLogger(),
	}
}

type transcribeRequest struct {
	VideoURL string `json:"video_url"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe requests a transcript for the video at videoURL
func (c *Client) Transcribe(ctx context.Context, videoURL string) (string, error) {
	if c.url == "" {
		return "", ErrNotConfigured
	}

	ctx, span := util.StartSpan(ctx, "Transcribe.Transcribe")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	transcript, err := c.cb.Execute(func() (string, error) {
		return c.do(ctx, videoURL)
	})
	util.ObserveBreakerResult(breakerName, err)
	if err != nil {
		c.logger.Warn("Transcription request failed", zap.String("video_url", videoURL), zap.Error(err))
		return "", err
	}
	return transcript, nil
}

func (c *Client) do(ctx context.Context, videoURL string) (string, error) {
	body, err := json.Marshal(transcribeRequest{VideoURL: videoURL})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("transcription service returned %d", resp.StatusCode)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode transcript: %w", err)
	}
	return out.Transcript, nil
}
