package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/audio"
	"callcoach-server/pkg/config"
)

const (
	mockSampleRate = 8000

	// Seconds of audio generated per word at speed 1.0
	mockSecondsPerWord = 0.4
)

// MockEngine writes silent WAV files sized to the requested text. It lets
// the replay pipeline run end to end without network access or local
// speech binaries.
type MockEngine struct {
	logger *logrus.Logger
	config *config.TTSConfig
}

// NewMockEngine creates a new mock engine.
func NewMockEngine(logger *logrus.Logger, cfg *config.TTSConfig) *MockEngine {
	return &MockEngine{
		logger: logger,
		config: cfg,
	}
}

// Name returns the engine name
func (e *MockEngine) Name() string {
	return "mock"
}

// Initialize initializes the engine
func (e *MockEngine) Initialize() error {
	return nil
}

// Synthesize writes a silent WAV whose length tracks the word count.
func (e *MockEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := len(strings.Fields(req.Text))
	if words == 0 {
		words = 1
	}

	seconds := float64(words) * mockSecondsPerWord
	if req.Speed > 0 {
		seconds /= req.Speed
	}

	filename := uuid.New().String() + ".wav"
	path := filepath.Join(e.config.OutputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("mock: failed to create audio file: %w", err)
	}

	samples := make([]int16, int(seconds*mockSampleRate))
	err = audio.WriteWAV(file, mockSampleRate, 1, samples)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mock: failed to write audio file: %w", err)
	}

	return &Result{
		AudioPath: path,
		Filename:  filename,
		Duration:  float64(len(samples)) / mockSampleRate,
	}, nil
}
