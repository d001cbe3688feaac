package sentiment

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexiconScorerInterface(t *testing.T) {
	var _ Scorer = (*LexiconScorer)(nil)
	var _ Scorer = (*HuggingFaceScorer)(nil)
}

func TestLexiconScorerName(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())
	assert.Equal(t, "lexicon", scorer.Name())
}

func TestLexiconScorerPositive(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	result, err := scorer.Score(context.Background(), "This is great, I love it")
	require.NoError(t, err)

	assert.Equal(t, LabelPositive, result.Label)
	assert.Equal(t, 1.0, result.Score, "two positive hits and no negatives should saturate")
	assert.InDelta(t, 0.7, result.Confidence, 1e-9, "confidence should grow with evidence")
}

func TestLexiconScorerNegative(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	result, err := scorer.Score(context.Background(), "That sounds terrible and expensive")
	require.NoError(t, err)

	assert.Equal(t, LabelNegative, result.Label)
	assert.Equal(t, -1.0, result.Score)
}

func TestLexiconScorerNegationFlips(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	result, err := scorer.Score(context.Background(), "this is not good")
	require.NoError(t, err)
	assert.Equal(t, LabelNegative, result.Label, "negated positive word should read negative")

	result, err = scorer.Score(context.Background(), "that isn't bad at all")
	require.NoError(t, err)
	assert.Equal(t, LabelPositive, result.Label, "negated negative word should read positive")
}

func TestLexiconScorerBalancedIsNeutral(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	result, err := scorer.Score(context.Background(), "the good parts and the bad parts")
	require.NoError(t, err)

	assert.Equal(t, LabelNeutral, result.Label)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, 0.5, result.Confidence, "balanced evidence keeps middling confidence")
}

func TestLexiconScorerNoSignal(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	for _, text := range []string{"", "   ", "the quarterly report arrived"} {
		result, err := scorer.Score(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, Neutral(), result, "text without polarity words should be the neutral zero result")
	}
}

func TestLexiconScorerCaseAndPunctuation(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	result, err := scorer.Score(context.Background(), "GREAT!!! Absolutely PERFECT.")
	require.NoError(t, err)

	assert.Equal(t, LabelPositive, result.Label)
	assert.Equal(t, 1.0, result.Score, "three positive tokens should all be counted")
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestLexiconScorerDeterministic(t *testing.T) {
	scorer := NewLexiconScorer(logrus.New())

	first, err := scorer.Score(context.Background(), "I'm worried this is a problem but the support is helpful")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := scorer.Score(context.Background(), "I'm worried this is a problem but the support is helpful")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"POSITIVE":      LabelPositive,
		"LABEL_pos":     LabelPositive,
		"very positive": LabelPositive,
		"NEGATIVE":      LabelNegative,
		"neg":           LabelNegative,
		"NEUTRAL":       LabelNeutral,
		"LABEL_1":       LabelNeutral,
		"":              LabelNeutral,
	}

	for raw, expected := range cases {
		assert.Equal(t, expected, NormalizeLabel(raw), "label %q", raw)
	}
}
