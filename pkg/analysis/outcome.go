package analysis

// Call outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFollowUp = "follow_up"
	OutcomeLost     = "lost"
)

// ClassifyOutcome converts call-level statistics and aggregate sentiment
// into a discrete outcome label via a fixed weighted scoring rule. The
// weights and thresholds are a behavioral contract; changing them changes
// which calls count as won.
func ClassifyOutcome(analysis ContentAnalysis, sentiment *SentimentAggregate) string {
	score := 0.0

	// Positive factors
	score += float64(analysis.BuyingSignalCount) * 2
	if sentiment != nil {
		score += float64(sentiment.Positive) * 0.5
	}

	// Negative factors
	score -= float64(analysis.ObjectionCount) * 1.5
	if sentiment != nil {
		score -= float64(sentiment.Negative) * 0.5
	}

	// Neutral factors
	score += float64(analysis.QuestionCount) * 0.5

	switch {
	case score >= 3:
		return OutcomeSuccess
	case score >= 0:
		return OutcomeFollowUp
	default:
		return OutcomeLost
	}
}
