package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
)

const (
	// The translate endpoint rejects queries longer than 100 characters,
	// so longer texts are synthesized chunk by chunk and concatenated.
	googleMaxChunkRunes = 100

	googleRequestTimeout = 30 * time.Second
	googleMaxRetryTime   = time.Minute

	// The endpoint refuses requests without a browser user agent.
	googleUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// GoogleEngine synthesizes speech through the Google Translate TTS endpoint.
type GoogleEngine struct {
	logger *logrus.Logger
	config *config.TTSConfig
	client *http.Client
}

// NewGoogleEngine creates a new Google Translate TTS engine.
func NewGoogleEngine(logger *logrus.Logger, cfg *config.TTSConfig) *GoogleEngine {
	return &GoogleEngine{
		logger: logger,
		config: cfg,
		client: &http.Client{Timeout: googleRequestTimeout},
	}
}

// Name returns the engine name
func (e *GoogleEngine) Name() string {
	return "google"
}

// Initialize initializes the engine. The endpoint needs no credentials.
func (e *GoogleEngine) Initialize() error {
	e.logger.WithField("url", e.config.GoogleURL).Debug("Google TTS engine initialized")
	return nil
}

// Synthesize fetches MP3 audio for each text chunk and concatenates the
// results into a single file.
func (e *GoogleEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if req.Speed > 0 && req.Speed != 1.0 {
		e.logger.WithField("speed", req.Speed).Debug("Google engine does not support speed adjustment, ignoring")
	}

	chunks := splitText(req.Text, googleMaxChunkRunes)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("google: no synthesizable text")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		data, err := e.fetchChunk(ctx, chunk, req.Language, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		audio.Write(data)
	}

	filename := uuid.New().String() + ".mp3"
	path := filepath.Join(e.config.OutputDir, filename)
	if err := os.WriteFile(path, audio.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("google: failed to write audio file: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"path":   path,
		"chunks": len(chunks),
		"bytes":  audio.Len(),
	}).Debug("Google TTS synthesis complete")

	// MP3 duration is unknown without decoding the frames
	return &Result{
		AudioPath: path,
		Filename:  filename,
	}, nil
}

// fetchChunk requests the audio for one chunk, retrying transient failures.
func (e *GoogleEngine) fetchChunk(ctx context.Context, text, language string, idx, total int) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", language)
	params.Set("client", "tw-ob")
	params.Set("idx", strconv.Itoa(idx))
	params.Set("total", strconv.Itoa(total))
	params.Set("textlen", strconv.Itoa(utf8.RuneCountInString(text)))

	requestURL := e.config.GoogleURL + "?" + params.Encode()

	var audio []byte
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("User-Agent", googleUserAgent)

		resp, err := e.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			audio, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			return nil
		}

		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = googleMaxRetryTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return audio, nil
}

// splitText breaks text into chunks of at most maxRunes, preferring word
// boundaries. Words longer than maxRunes are split mid-word.
func splitText(text string, maxRunes int) []string {
	var chunks []string
	var current strings.Builder
	currentRunes := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentRunes = 0
		}
	}

	for _, word := range strings.Fields(text) {
		wordRunes := utf8.RuneCountInString(word)

		// Hard-split words that cannot fit in a chunk on their own
		for wordRunes > maxRunes {
			flush()
			runes := []rune(word)
			chunks = append(chunks, string(runes[:maxRunes]))
			word = string(runes[maxRunes:])
			wordRunes = utf8.RuneCountInString(word)
		}
		if wordRunes == 0 {
			continue
		}

		needed := wordRunes
		if currentRunes > 0 {
			needed++ // joining space
		}
		if currentRunes+needed > maxRunes {
			flush()
		}
		if currentRunes > 0 {
			current.WriteByte(' ')
			currentRunes++
		}
		current.WriteString(word)
		currentRunes += wordRunes
	}
	flush()

	return chunks
}
