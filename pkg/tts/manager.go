package tts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/metrics"
)

// EngineManager manages all text-to-speech engines
type EngineManager struct {
	logger        *logrus.Logger
	config        *config.TTSConfig
	engines       map[string]Engine
	defaultEngine string
}

// NewEngineManager creates a new engine manager and ensures the output
// directory exists.
func NewEngineManager(logger *logrus.Logger, cfg *config.TTSConfig) (*EngineManager, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create TTS output directory")
	}

	return &EngineManager{
		logger:        logger,
		config:        cfg,
		engines:       make(map[string]Engine),
		defaultEngine: cfg.DefaultEngine,
	}, nil
}

// RegisterEngine registers a text-to-speech engine
func (m *EngineManager) RegisterEngine(engine Engine) error {
	// Try to initialize the engine
	if err := engine.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"engine": engine.Name(),
			"error":  err,
		}).Error("Failed to initialize text-to-speech engine")
		return err
	}

	// Add to available engines
	m.engines[engine.Name()] = engine
	m.logger.WithField("engine", engine.Name()).Info("Registered text-to-speech engine")

	return nil
}

// GetEngine returns an engine by name
func (m *EngineManager) GetEngine(name string) (Engine, bool) {
	engine, exists := m.engines[name]
	return engine, exists
}

// GetDefaultEngine returns the default engine
func (m *EngineManager) GetDefaultEngine() (Engine, bool) {
	return m.GetEngine(m.defaultEngine)
}

// Synthesize validates the request, applies configured defaults, and runs
// it through the named engine, falling back to the default engine when the
// requested one is not registered.
func (m *EngineManager) Synthesize(ctx context.Context, engineName string, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.NewEmptyText("text is required for speech synthesis")
	}

	if req.Language == "" {
		req.Language = m.config.Language
	}
	if req.Speed <= 0 {
		req.Speed = m.config.Speed
	}

	engine, exists := m.GetEngine(engineName)
	if !exists {
		if engineName != "" {
			m.logger.WithFields(logrus.Fields{
				"engine":         engineName,
				"default_engine": m.defaultEngine,
			}).Warn("Engine not found, falling back to default")
		}

		engine, exists = m.GetDefaultEngine()
		if !exists {
			return nil, errors.Wrap(errors.ErrProviderUnavailable, "no text-to-speech engine available")
		}
	}

	startTime := time.Now()
	stopTimer := metrics.ObserveTTSSynthesis(engine.Name())
	result, err := engine.Synthesize(ctx, req)
	stopTimer()

	if err != nil {
		metrics.RecordTTSRequest(engine.Name(), "error")
		m.logger.WithFields(logrus.Fields{
			"engine": engine.Name(),
			"error":  err,
		}).Error("Speech synthesis failed")
		return nil, errors.Wrap(errors.ErrSynthesisFailed, err.Error())
	}
	metrics.RecordTTSRequest(engine.Name(), "success")

	result.Engine = engine.Name()
	result.TextLength = utf8.RuneCountInString(req.Text)

	m.logger.WithFields(logrus.Fields{
		"engine":      engine.Name(),
		"filename":    result.Filename,
		"text_length": result.TextLength,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Info("Speech synthesis completed")

	return result, nil
}

// StartJanitor begins periodic removal of expired synthesized files. It
// returns immediately; the sweep stops when ctx is cancelled.
func (m *EngineManager) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanupExpired()
			}
		}
	}()
}

// cleanupExpired removes synthesized files older than the configured max age.
func (m *EngineManager) cleanupExpired() {
	entries, err := os.ReadDir(m.config.OutputDir)
	if err != nil {
		m.logger.WithError(err).Warn("Failed to read TTS output directory during cleanup")
		return
	}

	cutoff := time.Now().Add(-m.config.FileMaxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.config.OutputDir, entry.Name())
		if err := os.Remove(path); err != nil {
			m.logger.WithError(err).WithField("path", path).Warn("Failed to remove expired TTS file")
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.RecordTTSFilesCleaned(removed)
		m.logger.WithField("removed", removed).Info("Removed expired TTS files")
	}
}
