package stt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server/pkg/sentiment"
)

type stubScorer struct {
	results map[string]sentiment.Result
	err     error
}

func (s *stubScorer) Name() string { return "stub" }

func (s *stubScorer) Score(ctx context.Context, text string) (sentiment.Result, error) {
	if s.err != nil {
		return sentiment.Result{}, s.err
	}
	if result, ok := s.results[text]; ok {
		return result, nil
	}
	return sentiment.Neutral(), nil
}

func TestEnrichAssignsAlternatingSpeakers(t *testing.T) {
	scorer := &stubScorer{results: map[string]sentiment.Result{
		"Great product!":       {Label: sentiment.LabelPositive, Score: 0.8, Confidence: 0.8},
		"Too expensive for us": {Label: sentiment.LabelNegative, Score: -0.7, Confidence: 0.7},
	}}

	raw := &Result{
		FullTranscript: "Great product! Too expensive for us Okay",
		Segments: []Segment{
			{Text: " Great product! ", StartTime: 0, EndTime: 2, Confidence: 0.9},
			{Text: "   ", StartTime: 2, EndTime: 3, Confidence: 0.5},
			{Text: "Too expensive for us", StartTime: 3, EndTime: 5, Confidence: 0.85},
			{Text: "Okay", StartTime: 5, EndTime: 6, Confidence: 0.8},
		},
		Duration: 6.5,
	}

	enriched, err := Enrich(context.Background(), newTestLogger(), scorer, raw)
	require.NoError(t, err)

	require.Len(t, enriched.Data.Segments, 3, "blank utterances are dropped")

	first := enriched.Data.Segments[0]
	assert.Equal(t, "speaker_1", first.SpeakerID)
	assert.Equal(t, "Great product!", first.Text, "utterance text is trimmed")
	assert.Equal(t, 0.8, first.SentimentScore)
	assert.Equal(t, sentiment.LabelPositive, first.SentimentLabel)
	assert.Equal(t, 0.9, first.Confidence)

	assert.Equal(t, "speaker_2", enriched.Data.Segments[1].SpeakerID)
	assert.Equal(t, "speaker_1", enriched.Data.Segments[2].SpeakerID, "labels alternate over kept utterances")

	assert.Equal(t, 6.5, enriched.Data.Duration, "engine-reported duration wins when present")
	assert.Equal(t, raw.FullTranscript, enriched.Data.FullTranscript)

	assert.Equal(t, 3, enriched.Sentiment.Total)
	assert.Equal(t, 1, enriched.Sentiment.Positive)
	assert.Equal(t, 1, enriched.Sentiment.Negative)
	assert.Equal(t, 1, enriched.Sentiment.Neutral)
	assert.Equal(t, sentiment.LabelNeutral, enriched.Sentiment.OverallLabel)
	assert.InDelta(t, (0.8-0.7)/3.0, enriched.Sentiment.AverageScore, 1e-9)
}

func TestEnrichScorerFailureDowngradesToNeutral(t *testing.T) {
	scorer := &stubScorer{err: errors.New("model unavailable")}

	raw := &Result{
		Segments: []Segment{
			{Text: "I love this", StartTime: 0, EndTime: 1.5, Confidence: 0.9},
		},
		Duration: 1.5,
	}

	enriched, err := Enrich(context.Background(), newTestLogger(), scorer, raw)
	require.NoError(t, err, "a scorer outage must not fail the call")

	require.Len(t, enriched.Data.Segments, 1)
	assert.Equal(t, sentiment.LabelNeutral, enriched.Data.Segments[0].SentimentLabel)
	assert.Equal(t, 0.0, enriched.Data.Segments[0].SentimentScore)
	assert.Equal(t, 1, enriched.Sentiment.Neutral)
}

func TestEnrichDurationFallsBackToLastUtterance(t *testing.T) {
	raw := &Result{
		Segments: []Segment{
			{Text: "hello", StartTime: 0, EndTime: 1.2, Confidence: 0.9},
			{Text: "goodbye", StartTime: 1.4, EndTime: 2.8, Confidence: 0.9},
		},
	}

	enriched, err := Enrich(context.Background(), newTestLogger(), &stubScorer{}, raw)
	require.NoError(t, err)
	assert.Equal(t, 2.8, enriched.Data.Duration)
}

func TestEnrichEmptyTranscription(t *testing.T) {
	enriched, err := Enrich(context.Background(), newTestLogger(), &stubScorer{}, &Result{})
	require.NoError(t, err)
	assert.Empty(t, enriched.Data.Segments)
	assert.Equal(t, 0.0, enriched.Data.Duration)
	assert.Equal(t, 0, enriched.Sentiment.Total)

	_, err = Enrich(context.Background(), newTestLogger(), &stubScorer{}, nil)
	assert.Error(t, err)
}
