package stt

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/metrics"
)

// Segment is one timed span of recognized speech within a recording.
type Segment struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}

// Result is a completed transcription of one recording.
type Result struct {
	FullTranscript string    `json:"full_transcript"`
	Segments       []Segment `json:"segments"`
	Duration       float64   `json:"duration"`
}

// Provider defines the interface for speech-to-text providers
type Provider interface {
	// Initialize initializes the provider with any required configuration
	Initialize() error

	// Name returns the provider name
	Name() string

	// Transcribe converts a recorded audio file into timed text segments
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// ProviderManager manages all speech-to-text providers
type ProviderManager struct {
	logger          *logrus.Logger
	providers       map[string]Provider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider registers a speech-to-text provider
func (m *ProviderManager) RegisterProvider(provider Provider) error {
	// Try to initialize the provider
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize speech-to-text provider")
		return err
	}

	// Add to available providers
	m.providers[provider.Name()] = provider
	m.logger.WithField("provider", provider.Name()).Info("Registered speech-to-text provider")

	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (Provider, bool) {
	provider, exists := m.providers[name]
	return provider, exists
}

// GetDefaultProvider returns the default provider
func (m *ProviderManager) GetDefaultProvider() (Provider, bool) {
	return m.GetProvider(m.defaultProvider)
}

// Transcribe runs a recording through the named provider, falling back to
// the default provider when the requested one is not registered.
func (m *ProviderManager) Transcribe(ctx context.Context, providerName, audioPath, callID string) (*Result, error) {
	// Get start time for latency tracking
	startTime := time.Now()

	// Log start of transcription
	m.logger.WithFields(logrus.Fields{
		"call_id":  callID,
		"provider": providerName,
		"path":     audioPath,
	}).Info("Starting transcription")

	// Get the provider
	provider, exists := m.GetProvider(providerName)
	if !exists {
		// Try default provider
		m.logger.WithFields(logrus.Fields{
			"call_id":          callID,
			"provider":         providerName,
			"default_provider": m.defaultProvider,
		}).Warn("Provider not found, falling back to default")

		provider, exists = m.GetDefaultProvider()
		if !exists {
			return nil, ErrNoProviderAvailable
		}
	}

	// Run the transcription
	stopTimer := metrics.ObserveSTTLatency(provider.Name())
	result, err := provider.Transcribe(ctx, audioPath)
	stopTimer()

	if err != nil {
		metrics.RecordSTTRequest(provider.Name(), "error")
		metrics.RecordSTTError(provider.Name(), "transcription_failed")
	} else {
		metrics.RecordSTTRequest(provider.Name(), "success")
	}

	// Log transcription completion and latency
	elapsed := time.Since(startTime)
	fields := logrus.Fields{
		"call_id":     callID,
		"provider":    provider.Name(),
		"duration_ms": elapsed.Milliseconds(),
		"error":       err != nil,
	}
	if result != nil {
		fields["segments"] = len(result.Segments)
		fields["audio_seconds"] = result.Duration
	}
	m.logger.WithFields(fields).Info("Transcription completed")

	return result, err
}
