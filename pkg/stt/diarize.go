package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/sentiment"
)

// EnrichedTranscript is a transcription after speaker attribution and
// per-utterance sentiment scoring.
type EnrichedTranscript struct {
	Data      analysis.TranscriptData
	Sentiment sentiment.Summary
}

// Enrich turns a raw transcription into analyzable utterances: blank
// segments are dropped, the rest get alternating opaque speaker labels and
// a sentiment score. A scorer failure downgrades that utterance to neutral
// instead of failing the call.
func Enrich(ctx context.Context, logger *logrus.Logger, scorer sentiment.Scorer, result *Result) (*EnrichedTranscript, error) {
	if result == nil {
		return nil, fmt.Errorf("no transcription result to enrich")
	}

	segments := make([]analysis.Segment, 0, len(result.Segments))
	scores := make([]sentiment.Result, 0, len(result.Segments))

	for _, seg := range result.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		score, err := scorer.Score(ctx, text)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"scorer": scorer.Name(),
				"text":   text,
			}).Warn("Sentiment scoring failed, treating utterance as neutral")
			score = sentiment.Neutral()
		}

		segments = append(segments, analysis.Segment{
			SpeakerID:      fmt.Sprintf("speaker_%d", len(segments)%2+1),
			Text:           text,
			StartTime:      seg.StartTime,
			EndTime:        seg.EndTime,
			Confidence:     seg.Confidence,
			SentimentScore: score.Score,
			SentimentLabel: score.Label,
		})
		scores = append(scores, score)
	}

	duration := result.Duration
	if duration == 0 && len(segments) > 0 {
		duration = segments[len(segments)-1].EndTime
	}

	enriched := &EnrichedTranscript{
		Data: analysis.TranscriptData{
			FullTranscript: result.FullTranscript,
			Segments:       segments,
			Duration:       duration,
		},
		Sentiment: sentiment.Summarize(scores),
	}

	logger.WithFields(logrus.Fields{
		"utterances":    len(segments),
		"duration":      duration,
		"overall_label": enriched.Sentiment.OverallLabel,
	}).Debug("Transcription enriched")

	return enriched, nil
}
