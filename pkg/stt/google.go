package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"callcoach-server/pkg/config"
)

// GoogleProvider implements the Provider interface for Google Speech-to-Text
type GoogleProvider struct {
	logger *logrus.Logger
	client *speech.Client
	config *config.GoogleSTTConfig
}

// NewGoogleProvider creates a new Google Speech-to-Text provider
func NewGoogleProvider(logger *logrus.Logger, cfg *config.GoogleSTTConfig) *GoogleProvider {
	return &GoogleProvider{
		logger: logger,
		config: cfg,
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Initialize initializes the Google Speech-to-Text client
func (p *GoogleProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Google STT configuration is required")
	}

	if !p.config.Enabled {
		p.logger.Info("Google STT is disabled, skipping initialization")
		return nil
	}

	var clientOptions []option.ClientOption

	// Use API key if provided, otherwise use credentials file
	if p.config.APIKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(p.config.APIKey))
		p.logger.Debug("Using Google STT API key authentication")
	} else if p.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(p.config.CredentialsFile))
		p.logger.WithField("credentials_file", p.config.CredentialsFile).Debug("Using Google STT credentials file")
	} else {
		p.logger.Warn("No Google STT credentials provided (API key or credentials file)")
		return fmt.Errorf("Google STT requires either API key or credentials file")
	}

	var err error
	p.client, err = speech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		p.logger.WithError(err).Error("Failed to create Google Speech client")
		return fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"language":          p.config.Language,
		"sample_rate":       p.config.SampleRate,
		"model":             p.config.Model,
		"auto_punctuation":  p.config.EnableAutomaticPunctuation,
		"word_time_offsets": p.config.EnableWordTimeOffsets,
	}).Info("Google Speech-to-Text client initialized successfully")
	return nil
}

// Transcribe submits the recording for asynchronous recognition and folds
// the recognized results into timed segments.
func (p *GoogleProvider) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if p.client == nil {
		return nil, ErrInitializationFailed
	}

	recognitionConfig, err := p.recognitionConfig(audioPath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}

	op, err := p.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		p.logger.WithError(err).WithField("path", audioPath).Error("Failed to start Google Speech recognition")
		return nil, fmt.Errorf("failed to start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		p.logger.WithError(err).WithField("path", audioPath).Error("Google Speech recognition failed")
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	result := &Result{}
	var parts []string
	var cursor float64

	for _, recognized := range resp.Results {
		if len(recognized.Alternatives) == 0 {
			continue
		}
		alt := recognized.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}

		start := cursor
		end := cursor
		if len(alt.Words) > 0 && alt.Words[0].StartTime != nil {
			start = alt.Words[0].StartTime.AsDuration().Seconds()
		}
		if recognized.ResultEndTime != nil {
			end = recognized.ResultEndTime.AsDuration().Seconds()
		} else if len(alt.Words) > 0 && alt.Words[len(alt.Words)-1].EndTime != nil {
			end = alt.Words[len(alt.Words)-1].EndTime.AsDuration().Seconds()
		}

		result.Segments = append(result.Segments, Segment{
			Text:       text,
			StartTime:  start,
			EndTime:    end,
			Confidence: float64(alt.Confidence),
		})
		parts = append(parts, text)
		cursor = end
	}

	result.FullTranscript = strings.Join(parts, " ")
	result.Duration = cursor

	p.logger.WithFields(logrus.Fields{
		"path":     audioPath,
		"segments": len(result.Segments),
		"duration": result.Duration,
	}).Debug("Google transcription received")

	return result, nil
}

// recognitionConfig builds the recognition request for one recording. WAV
// and FLAC carry their encoding and sample rate in the container header,
// anything else is rejected rather than guessed at.
func (p *GoogleProvider) recognitionConfig(audioPath string) (*speechpb.RecognitionConfig, error) {
	recognitionConfig := &speechpb.RecognitionConfig{
		LanguageCode:               p.config.Language,
		EnableAutomaticPunctuation: p.config.EnableAutomaticPunctuation,
		EnableWordTimeOffsets:      p.config.EnableWordTimeOffsets,
	}

	if p.config.Model != "" {
		recognitionConfig.Model = p.config.Model
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	switch format {
	case "wav":
		recognitionConfig.Encoding = speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	case "flac":
		recognitionConfig.Encoding = speechpb.RecognitionConfig_FLAC
	default:
		return nil, fmt.Errorf("google speech cannot transcribe %q recordings: %w", format, ErrUnsupportedFormat)
	}

	return recognitionConfig, nil
}
