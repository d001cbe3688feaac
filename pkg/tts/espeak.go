package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/audio"
	"callcoach-server/pkg/config"
)

// espeakBaseRate is the words-per-minute rate at speed 1.0.
const espeakBaseRate = 200

// ESpeakEngine synthesizes speech with a local espeak binary.
type ESpeakEngine struct {
	logger *logrus.Logger
	config *config.TTSConfig
	binary string
}

// NewESpeakEngine creates a new eSpeak engine.
func NewESpeakEngine(logger *logrus.Logger, cfg *config.TTSConfig) *ESpeakEngine {
	return &ESpeakEngine{
		logger: logger,
		config: cfg,
	}
}

// Name returns the engine name
func (e *ESpeakEngine) Name() string {
	return "espeak"
}

// Initialize locates the espeak binary on PATH.
func (e *ESpeakEngine) Initialize() error {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		path, err := exec.LookPath(candidate)
		if err == nil {
			e.binary = path
			e.logger.WithField("binary", path).Info("eSpeak TTS engine initialized")
			return nil
		}
	}
	return fmt.Errorf("espeak binary not found on PATH")
}

// Synthesize shells out to espeak to render the text into a WAV file.
func (e *ESpeakEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if e.binary == "" {
		return nil, fmt.Errorf("espeak: engine not initialized")
	}

	filename := uuid.New().String() + ".wav"
	path := filepath.Join(e.config.OutputDir, filename)

	cmd := exec.CommandContext(ctx, e.binary, e.buildArgs(req, path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(path)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("espeak: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("espeak: %w", err)
	}

	duration := 0.0
	if info, err := audio.ProbeWAV(path); err == nil {
		duration = info.Duration
	} else {
		e.logger.WithError(err).WithField("path", path).Warn("Failed to probe synthesized WAV")
	}

	return &Result{
		AudioPath: path,
		Filename:  filename,
		Duration:  duration,
	}, nil
}

// buildArgs assembles the espeak command line for a request.
func (e *ESpeakEngine) buildArgs(req Request, outputPath string) []string {
	rate := espeakBaseRate
	if req.Speed > 0 {
		rate = int(espeakBaseRate * req.Speed)
	}

	return []string{
		"-v", req.Language,
		"-s", strconv.Itoa(rate),
		"-w", outputPath,
		req.Text,
	}
}
