package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// maxInputRunes bounds the text sent to the inference endpoint. Sentiment
// models truncate around this length anyway; sending more wastes quota.
const maxInputRunes = 512

// HuggingFaceScorer scores text through the HuggingFace inference API.
type HuggingFaceScorer struct {
	logger     *logrus.Logger
	apiKey     string
	model      string
	endpoint   string
	client     *http.Client
	maxElapsed time.Duration
}

// NewHuggingFaceScorer creates a scorer for the given model. An empty model
// selects the stock sentiment model.
func NewHuggingFaceScorer(logger *logrus.Logger, apiKey, model string) *HuggingFaceScorer {
	if model == "" {
		model = "cardiffnlp/twitter-roberta-base-sentiment-latest"
	}
	return &HuggingFaceScorer{
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		endpoint:   "https://api-inference.huggingface.co/models/" + model,
		client:     &http.Client{Timeout: 15 * time.Second},
		maxElapsed: 30 * time.Second,
	}
}

// Name returns the scorer name
func (s *HuggingFaceScorer) Name() string {
	return "huggingface"
}

// candidate is one label/score pair from the inference response.
type candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Score sends the text to the inference endpoint and converts the top
// candidate into a normalized result. Transient failures (5xx, 429, model
// still loading) are retried with exponential backoff.
func (s *HuggingFaceScorer) Score(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Neutral(), nil
	}

	input := []rune(text)
	if len(input) > maxInputRunes {
		input = input[:maxInputRunes]
	}

	payload, err := json.Marshal(map[string]string{"inputs": string(input)})
	if err != nil {
		return Neutral(), fmt.Errorf("failed to encode inference request: %w", err)
	}

	var candidates []candidate
	var lastErr error

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode == http.StatusOK:
			candidates, err = parseCandidates(body)
			if err != nil {
				lastErr = err
				return backoff.Permanent(err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode >= http.StatusInternalServerError:
			// 503 also covers "model is loading", which resolves on retry.
			lastErr = fmt.Errorf("inference API returned status %d: %s", resp.StatusCode, body)
			return lastErr
		default:
			lastErr = fmt.Errorf("inference API returned status %d: %s", resp.StatusCode, body)
			return backoff.Permanent(lastErr)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		s.logger.WithError(lastErr).WithField("model", s.model).Error("Sentiment inference failed")
		return Neutral(), lastErr
	}

	if len(candidates) == 0 {
		return Neutral(), fmt.Errorf("inference API returned no candidates")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}

	result := Result{
		Label:      NormalizeLabel(best.Label),
		Score:      signedScore(best.Label, best.Score),
		Confidence: best.Score,
	}

	s.logger.WithFields(logrus.Fields{
		"model": s.model,
		"label": result.Label,
		"score": result.Score,
	}).Debug("Sentiment scored")

	return result, nil
}

// parseCandidates handles both response shapes the inference API produces
// for classification pipelines: a flat candidate list and a list nested one
// level per input.
func parseCandidates(body []byte) ([]candidate, error) {
	var nested [][]candidate
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}

	var flat []candidate
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}

	return nil, fmt.Errorf("unrecognized inference response: %s", body)
}
