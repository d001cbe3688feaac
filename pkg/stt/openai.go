package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
)

// OpenAIProvider implements the Provider interface against the OpenAI
// Whisper transcription API.
type OpenAIProvider struct {
	logger *logrus.Logger
	config *config.OpenAISTTConfig
	client *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(logger *logrus.Logger, cfg *config.OpenAISTTConfig) *OpenAIProvider {
	return &OpenAIProvider{
		logger: logger,
		config: cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Initialize initializes the OpenAI provider
func (p *OpenAIProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("OpenAI STT configuration is required")
	}
	if p.config.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	p.logger.WithField("model", p.config.Model).Info("OpenAI provider initialized successfully")
	return nil
}

// whisperSegment is one timed span in a verbose_json response.
type whisperSegment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	AvgLogprob float64 `json:"avg_logprob"`
}

// whisperResponse is the verbose_json transcription response.
type whisperResponse struct {
	Text     string           `json:"text"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
}

// Transcribe uploads the recording to the Whisper API and converts the
// verbose_json response into timed segments.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	// The multipart body is built once so retries can replay it.
	body, contentType, err := p.buildRequestBody(audioPath)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(p.config.BaseURL, "/") + "/audio/transcriptions"

	var whisper whisperResponse
	var lastErr error

	operation := func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return backoff.Permanent(fmt.Errorf("failed to create OpenAI request: %w", reqErr))
		}
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		req.Header.Set("Content-Type", contentType)

		resp, doErr := p.client.Do(req)
		if doErr != nil {
			lastErr = doErr
			return doErr
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if decodeErr := json.NewDecoder(resp.Body).Decode(&whisper); decodeErr != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode OpenAI response: %w", decodeErr))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("OpenAI Whisper API returned status %d", resp.StatusCode)
			return lastErr
		default:
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("OpenAI Whisper API returned status %d: %s", resp.StatusCode, string(detail)))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = p.config.RequestTimeout

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			p.logger.WithError(lastErr).WithField("path", audioPath).Error("OpenAI transcription failed")
		}
		return nil, fmt.Errorf("openai: %w", err)
	}

	result := &Result{
		FullTranscript: strings.TrimSpace(whisper.Text),
		Segments:       make([]Segment, 0, len(whisper.Segments)),
		Duration:       whisper.Duration,
	}
	for _, seg := range whisper.Segments {
		result.Segments = append(result.Segments, Segment{
			Text:       strings.TrimSpace(seg.Text),
			StartTime:  seg.Start,
			EndTime:    seg.End,
			Confidence: logprobConfidence(seg.AvgLogprob),
		})
	}
	if result.Duration == 0 && len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].EndTime
	}

	p.logger.WithFields(logrus.Fields{
		"path":     audioPath,
		"segments": len(result.Segments),
		"duration": result.Duration,
	}).Debug("OpenAI transcription received")

	return result, nil
}

// buildRequestBody assembles the multipart upload for one recording.
func (p *OpenAIProvider) buildRequestBody(audioPath string) ([]byte, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart file field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	if err := writer.WriteField("model", p.config.Model); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if p.config.Language != "" {
		if err := writer.WriteField("language", p.config.Language); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// logprobConfidence maps a Whisper average log probability onto [0, 1].
func logprobConfidence(avgLogprob float64) float64 {
	confidence := math.Exp(avgLogprob)
	if confidence > 1 {
		return 1
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}
