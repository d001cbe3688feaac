package stt

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
)

// AmazonProvider implements the Provider interface for Amazon Transcribe
type AmazonProvider struct {
	logger *logrus.Logger
	client *transcribestreaming.Client
	config *config.AmazonSTTConfig
}

// NewAmazonProvider creates a new Amazon Transcribe provider
func NewAmazonProvider(logger *logrus.Logger, cfg *config.AmazonSTTConfig) *AmazonProvider {
	return &AmazonProvider{
		logger: logger,
		config: cfg,
	}
}

// Name returns the provider name
func (p *AmazonProvider) Name() string {
	return "amazon"
}

// Initialize initializes the Amazon Transcribe client
func (p *AmazonProvider) Initialize() error {
	if p.config == nil {
		return fmt.Errorf("Amazon STT configuration is required")
	}

	if !p.config.Enabled {
		p.logger.Info("Amazon STT is disabled, skipping initialization")
		return nil
	}

	// Check for AWS credentials
	if p.config.AccessKeyID == "" || p.config.SecretAccessKey == "" {
		return fmt.Errorf("Amazon STT requires AWS access key ID and secret access key")
	}

	region := p.config.Region
	if region == "" {
		region = "us-east-1"
	}

	// Load AWS configuration
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(3),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     p.config.AccessKeyID,
				SecretAccessKey: p.config.SecretAccessKey,
			}, nil
		})),
	)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load AWS configuration")
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	// Create Transcribe Streaming client
	p.client = transcribestreaming.NewFromConfig(cfg)

	p.logger.WithFields(logrus.Fields{
		"region":       region,
		"language":     p.config.Language,
		"media_format": p.config.MediaFormat,
		"sample_rate":  p.config.SampleRate,
	}).Info("Amazon Transcribe provider initialized successfully")

	return nil
}

// Transcribe streams the recording through Amazon Transcribe and collects
// the final (non-partial) results into timed segments.
func (p *AmazonProvider) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if p.client == nil {
		return nil, ErrInitializationFailed
	}

	encoding, err := p.mediaEncoding(audioPath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	logger := p.logger.WithField("path", audioPath)
	logger.Info("Starting Amazon Transcribe streaming transcription")

	input := &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(p.config.Language),
		MediaSampleRateHertz: aws.Int32(int32(p.config.SampleRate)),
		MediaEncoding:        encoding,
	}

	resp, err := p.client.StartStreamTranscription(ctx, input)
	if err != nil {
		logger.WithError(err).Error("Failed to start Amazon Transcribe stream")
		return nil, fmt.Errorf("failed to start transcription stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Channels for coordination
	errChan := make(chan error, 2)
	doneChan := make(chan struct{})
	var segments []Segment

	// Audio sender goroutine
	go func() {
		defer func() {
			if closeErr := resp.GetStream().Close(); closeErr != nil {
				logger.WithError(closeErr).Debug("Failed to close stream")
			}
		}()

		buffer := make([]byte, 8*1024)
		for {
			select {
			case <-streamCtx.Done():
				return
			default:
				n, readErr := file.Read(buffer)
				if readErr == io.EOF {
					logger.Debug("Audio file fully streamed")
					return
				}
				if readErr != nil {
					logger.WithError(readErr).Error("Failed to read audio file")
					errChan <- readErr
					return
				}

				if n > 0 {
					audioEvent := &types.AudioStreamMemberAudioEvent{
						Value: types.AudioEvent{
							AudioChunk: buffer[:n],
						},
					}

					if sendErr := resp.GetStream().Send(streamCtx, audioEvent); sendErr != nil {
						logger.WithError(sendErr).Error("Failed to send audio to Amazon Transcribe")
						errChan <- sendErr
						return
					}
				}
			}
		}
	}()

	// Response receiver goroutine
	go func() {
		defer close(doneChan)

		for event := range resp.GetStream().Events() {
			transcriptEvent, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
			if !ok {
				logger.WithField("event_type", fmt.Sprintf("%T", event)).Debug("Unknown transcription event type")
				continue
			}
			segments = append(segments, finalSegments(transcriptEvent.Value)...)
		}

		if streamErr := resp.GetStream().Err(); streamErr != nil {
			logger.WithError(streamErr).Error("Amazon Transcribe stream error")
			errChan <- streamErr
		}
	}()

	// Wait for completion or errors
	select {
	case err := <-errChan:
		cancel()
		return nil, err
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-doneChan:
	}

	result := &Result{Segments: segments}
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	result.FullTranscript = strings.Join(parts, " ")
	if len(segments) > 0 {
		result.Duration = segments[len(segments)-1].EndTime
	}

	logger.WithFields(logrus.Fields{
		"segments": len(result.Segments),
		"duration": result.Duration,
	}).Debug("Amazon transcription received")

	return result, nil
}

// finalSegments extracts completed results from one transcript event.
func finalSegments(event types.TranscriptEvent) []Segment {
	if event.Transcript == nil {
		return nil
	}

	var segments []Segment
	for _, result := range event.Transcript.Results {
		if result.IsPartial || len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if alt.Transcript == nil {
			continue
		}
		text := strings.TrimSpace(*alt.Transcript)
		if text == "" {
			continue
		}

		segments = append(segments, Segment{
			Text:       text,
			StartTime:  result.StartTime,
			EndTime:    result.EndTime,
			Confidence: itemConfidence(alt.Items),
		})
	}
	return segments
}

// itemConfidence averages the word-level confidences of one alternative.
// Punctuation items carry no confidence and are skipped.
func itemConfidence(items []types.Item) float64 {
	var total float64
	var counted int
	for _, item := range items {
		if item.Confidence == nil {
			continue
		}
		total += *item.Confidence
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// mediaEncoding maps the recording's extension onto a streaming encoding.
func (p *AmazonProvider) mediaEncoding(audioPath string) (types.MediaEncoding, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	if format == "" {
		format = p.config.MediaFormat
	}

	switch format {
	case "wav", "pcm":
		return types.MediaEncodingPcm, nil
	case "flac":
		return types.MediaEncodingFlac, nil
	case "ogg":
		return types.MediaEncodingOggOpus, nil
	default:
		return "", fmt.Errorf("amazon transcribe cannot stream %q recordings: %w", format, ErrUnsupportedFormat)
	}
}
