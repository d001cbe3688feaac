package sentiment

import (
	"callcoach-server/pkg/analysis"
)

// Summary is the call-level sentiment rollup persisted with a transcript
// and returned by the API.
type Summary struct {
	Total              int     `json:"total"`
	Positive           int     `json:"positive"`
	Negative           int     `json:"negative"`
	Neutral            int     `json:"neutral"`
	AverageScore       float64 `json:"average_score"`
	OverallLabel       string  `json:"overall_label"`
	PositivePercentage float64 `json:"positive_percentage"`
	NegativePercentage float64 `json:"negative_percentage"`
	NeutralPercentage  float64 `json:"neutral_percentage"`
}

// Summarize folds per-utterance results into the call-level summary. The
// overall label needs the mean score to clear 0.1 in either direction;
// anything closer to zero reads as neutral.
func Summarize(results []Result) Summary {
	summary := Summary{Total: len(results), OverallLabel: LabelNeutral}
	if len(results) == 0 {
		return summary
	}

	var totalScore float64
	for _, r := range results {
		totalScore += r.Score

		switch NormalizeLabel(r.Label) {
		case LabelPositive:
			summary.Positive++
		case LabelNegative:
			summary.Negative++
		default:
			summary.Neutral++
		}
	}

	summary.AverageScore = totalScore / float64(len(results))

	switch {
	case summary.AverageScore > 0.1:
		summary.OverallLabel = LabelPositive
	case summary.AverageScore < -0.1:
		summary.OverallLabel = LabelNegative
	}

	total := float64(summary.Total)
	summary.PositivePercentage = float64(summary.Positive) / total * 100
	summary.NegativePercentage = float64(summary.Negative) / total * 100
	summary.NeutralPercentage = float64(summary.Neutral) / total * 100

	return summary
}

// Aggregate projects the summary onto the shape the analysis pipeline
// consumes.
func (s Summary) Aggregate() *analysis.SentimentAggregate {
	return &analysis.SentimentAggregate{
		Positive:     s.Positive,
		Negative:     s.Negative,
		Neutral:      s.Neutral,
		AverageScore: s.AverageScore,
		OverallLabel: s.OverallLabel,
	}
}
