package analysis

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ExecutiveSummary is the synthesized output of one analysis run. A
// regeneration fully replaces the prior summary; there is no merging.
type ExecutiveSummary struct {
	Summary           string          `json:"summary"`
	KeyPoints         []string        `json:"key_points"`
	ActionItems       []string        `json:"action_items"`
	SentimentOverview string          `json:"sentiment_overview"`
	CallOutcome       string          `json:"call_outcome"`
	Analysis          ContentAnalysis `json:"call_analysis"`
}

// Synthesizer combines transcript data, detected moments, and aggregate
// sentiment into an executive summary.
type Synthesizer struct {
	analyzer *ContentAnalyzer
	logger   *logrus.Logger
}

// NewSynthesizer builds a synthesizer using the topic table from cfg.
func NewSynthesizer(cfg DetectionConfig, logger *logrus.Logger) *Synthesizer {
	return &Synthesizer{
		analyzer: NewContentAnalyzer(cfg.TopicKeywords),
		logger:   logger,
	}
}

// Synthesize runs content analysis and outcome classification, then builds
// the key points, action items, narrative, and sentiment overview. It is
// total over its inputs: an empty call yields a minimal but valid summary.
func (s *Synthesizer) Synthesize(data TranscriptData, moments []CoachableMoment, sentiment *SentimentAggregate) ExecutiveSummary {
	s.logger.Debug("Generating executive summary")

	analysis := s.analyzer.Analyze(data, moments)
	outcome := ClassifyOutcome(analysis, sentiment)

	summary := ExecutiveSummary{
		Summary:           buildSummaryText(analysis, outcome, sentiment),
		KeyPoints:         buildKeyPoints(data, moments, sentiment),
		ActionItems:       buildActionItems(analysis, outcome),
		SentimentOverview: SentimentOverview(sentiment),
		CallOutcome:       outcome,
		Analysis:          analysis,
	}

	s.logger.WithFields(logrus.Fields{
		"call_outcome":  outcome,
		"key_points":    len(summary.KeyPoints),
		"action_items":  len(summary.ActionItems),
		"moment_count":  len(moments),
		"segment_count": analysis.TotalSegments,
	}).Info("Executive summary generated")

	return summary
}

// buildKeyPoints lists call structure, per-type moment counts in first
// appearance order, and the overall sentiment label when available.
func buildKeyPoints(data TranscriptData, moments []CoachableMoment, sentiment *SentimentAggregate) []string {
	keyPoints := []string{}

	if data.Duration > 0 {
		keyPoints = append(keyPoints, fmt.Sprintf("Call duration: %.1f seconds", data.Duration))
	}

	if len(moments) > 0 {
		keyPoints = append(keyPoints, fmt.Sprintf("Identified %d coachable moments", len(moments)))

		counts := make(map[string]int)
		order := make([]string, 0, len(moments))
		for _, moment := range moments {
			if _, seen := counts[moment.MomentType]; !seen {
				order = append(order, moment.MomentType)
			}
			counts[moment.MomentType]++
		}

		for _, momentType := range order {
			keyPoints = append(keyPoints, fmt.Sprintf("%d %s moments",
				counts[momentType], strings.ReplaceAll(momentType, "_", " ")))
		}
	}

	if sentiment != nil {
		keyPoints = append(keyPoints, fmt.Sprintf("Overall sentiment: %s", sentiment.Label()))
	}

	return keyPoints
}

// buildActionItems selects the outcome-specific suggestions, then appends
// conditional items driven by the moment counts.
func buildActionItems(analysis ContentAnalysis, outcome string) []string {
	var actionItems []string

	switch outcome {
	case OutcomeSuccess:
		actionItems = append(actionItems,
			"Prepare contract and closing documents",
			"Schedule follow-up implementation meeting",
			"Send welcome package and onboarding materials",
		)
	case OutcomeFollowUp:
		actionItems = append(actionItems,
			"Address identified objections in follow-up",
			"Provide additional information requested",
			"Schedule follow-up call within 48 hours",
		)
	default:
		actionItems = append(actionItems,
			"Add to re-engagement campaign",
			"Analyze objections for product improvement",
			"Schedule follow-up in 30 days",
		)
	}

	if analysis.ObjectionCount > 0 {
		actionItems = append(actionItems, "Develop objection handling strategies")
	}
	if analysis.QuestionCount > 0 {
		actionItems = append(actionItems, "Prepare detailed responses to questions asked")
	}

	return actionItems
}

// buildSummaryText concatenates the narrative sentences with single spaces.
func buildSummaryText(analysis ContentAnalysis, outcome string, sentiment *SentimentAggregate) string {
	parts := []string{
		fmt.Sprintf("This %.1f-second sales call", analysis.TotalDuration),
	}

	switch outcome {
	case OutcomeSuccess:
		parts = append(parts, "resulted in a successful outcome with clear buying signals.")
	case OutcomeFollowUp:
		parts = append(parts, "shows potential but requires follow-up to move toward closure.")
	default:
		parts = append(parts, "indicates the customer is not currently interested.")
	}

	parts = append(parts, fmt.Sprintf("The call included %d conversation segments", analysis.TotalSegments))
	parts = append(parts, fmt.Sprintf("with %d objections and %d buying signals identified.",
		analysis.ObjectionCount, analysis.BuyingSignalCount))

	if sentiment != nil {
		parts = append(parts, fmt.Sprintf("Overall customer sentiment was %s.", sentiment.Label()))
	}

	if len(analysis.TopicAreas) > 0 {
		parts = append(parts, fmt.Sprintf("Key topics discussed included: %s.",
			strings.Join(analysis.TopicAreas, ", ")))
	}

	switch outcome {
	case OutcomeSuccess:
		parts = append(parts, "Immediate next steps should focus on closing the deal and onboarding.")
	case OutcomeFollowUp:
		parts = append(parts, "Focus follow-up efforts on addressing objections and providing requested information.")
	default:
		parts = append(parts, "Consider re-engagement strategies and product improvements based on feedback.")
	}

	return strings.Join(parts, " ")
}

// SentimentOverview maps the aggregate onto a coarse descriptive label. The
// check order is load-bearing: the strongly-positive and strongly-negative
// tests run before the mixed test, so a lopsided call that misses the 2x
// bar can still land on "mixed".
func SentimentOverview(sentiment *SentimentAggregate) string {
	if sentiment == nil {
		return "neutral"
	}

	label := sentiment.Label()
	positive := sentiment.Positive
	negative := sentiment.Negative

	diff := positive - negative
	if diff < 0 {
		diff = -diff
	}

	switch {
	case label == "positive" && positive > negative*2:
		return "strongly positive"
	case label == "negative" && negative > positive*2:
		return "strongly negative"
	case diff <= 1:
		return "mixed"
	default:
		return label
	}
}
