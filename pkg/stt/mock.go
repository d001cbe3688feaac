package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// MockProvider implements a deterministic speech-to-text provider for
// development and tests. Every recording yields the same short sales
// conversation.
type MockProvider struct {
	logger *logrus.Logger
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// mockConversation is a canned two-party sales call. The lines are chosen
// so downstream analysis has objections, buying signals, and questions to
// find.
var mockConversation = []Segment{
	{Text: "Thanks for taking the time to talk with me today.", StartTime: 0.0, EndTime: 2.8, Confidence: 0.96},
	{Text: "Happy to be here, we have been evaluating options for a while.", StartTime: 3.0, EndTime: 6.1, Confidence: 0.94},
	{Text: "Our platform handles onboarding and training for your whole team.", StartTime: 6.4, EndTime: 9.8, Confidence: 0.95},
	{Text: "That sounds expensive, what does the pricing look like?", StartTime: 10.1, EndTime: 13.0, Confidence: 0.93},
	{Text: "There are flexible tiers and most teams start small.", StartTime: 13.4, EndTime: 16.2, Confidence: 0.95},
	{Text: "Interested, when can we start a trial?", StartTime: 16.5, EndTime: 18.9, Confidence: 0.92},
	{Text: "I can set that up today and send the contract details right after.", StartTime: 19.2, EndTime: 22.6, Confidence: 0.96},
	{Text: "Great, that works.", StartTime: 22.9, EndTime: 24.0, Confidence: 0.97},
}

// Transcribe returns the canned conversation. The recording must exist so
// mock runs still exercise the upload path honestly.
func (p *MockProvider) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not readable: %w", err)
	}

	segments := make([]Segment, len(mockConversation))
	copy(segments, mockConversation)

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}

	result := &Result{
		FullTranscript: strings.Join(parts, " "),
		Segments:       segments,
		Duration:       segments[len(segments)-1].EndTime,
	}

	p.logger.WithFields(logrus.Fields{
		"path":     audioPath,
		"segments": len(result.Segments),
	}).Info("Mock transcription generated")

	return result, nil
}
