// Package sentiment scores utterance text and rolls per-utterance results
// up into call-level summaries. Scorers are interchangeable behind the
// Scorer interface; the pipeline treats scoring failures as neutral rather
// than failing the call.
package sentiment

import (
	"context"
	"strings"
)

// Normalized sentiment labels. Every scorer maps its model-specific labels
// onto these three before returning.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Result is one sentiment observation. Score is signed in [-1, 1] and
// consistent with Label; Confidence is the scorer's own certainty in [0, 1].
type Result struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Scorer scores the sentiment of a single text fragment.
type Scorer interface {
	// Name returns the scorer name
	Name() string

	// Score analyzes one text fragment
	Score(ctx context.Context, text string) (Result, error)
}

// Neutral is the zero-signal result used for blank input and as the
// fallback when a scorer fails.
func Neutral() Result {
	return Result{Label: LabelNeutral}
}

// Known label vocabularies across sentiment models. Matching is substring
// based so variants like "LABEL_POSITIVE" or "very positive" still map.
var (
	positiveLabels = []string{"positive", "pos", "good", "great", "excellent", "happy"}
	negativeLabels = []string{"negative", "neg", "bad", "terrible", "awful", "sad"}
)

// NormalizeLabel maps a model-specific label onto the standard three.
// Unknown labels normalize to neutral.
func NormalizeLabel(label string) string {
	label = strings.ToLower(label)

	for _, l := range positiveLabels {
		if strings.Contains(label, l) {
			return LabelPositive
		}
	}
	for _, l := range negativeLabels {
		if strings.Contains(label, l) {
			return LabelNegative
		}
	}
	return LabelNeutral
}

// signedScore converts a label and confidence into a signed score. Neutral
// text scores zero regardless of confidence.
func signedScore(label string, confidence float64) float64 {
	switch NormalizeLabel(label) {
	case LabelPositive:
		return confidence
	case LabelNegative:
		return -confidence
	default:
		return 0.0
	}
}
