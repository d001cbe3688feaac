package sentiment

import (
	"context"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// LexiconScorer is a deterministic word-list scorer. It needs no network or
// model weights, so it serves as the default for development and as the
// fallback when no inference credentials are configured.
type LexiconScorer struct {
	logger   *logrus.Logger
	positive map[string]struct{}
	negative map[string]struct{}
	negators map[string]struct{}
}

// Sales-conversation polarity vocabulary. A negator immediately before a
// polarity word flips it, so "not good" reads negative.
var (
	lexiconPositive = []string{
		"good", "great", "excellent", "happy", "love", "amazing", "fantastic",
		"wonderful", "excited", "thrilled", "perfect", "interested", "yes",
		"definitely", "absolutely", "helpful", "impressive", "valuable", "like",
	}
	lexiconNegative = []string{
		"bad", "terrible", "awful", "sad", "hate", "upset", "angry",
		"frustrated", "disappointed", "expensive", "concerned", "worried",
		"problem", "issue", "difficult", "confusing", "no", "never", "cancel",
	}
	lexiconNegators = []string{
		"not", "don't", "doesn't", "didn't", "won't", "can't", "isn't",
		"aren't", "wasn't", "couldn't", "wouldn't", "shouldn't",
	}
)

// NewLexiconScorer creates a scorer over the stock vocabulary.
func NewLexiconScorer(logger *logrus.Logger) *LexiconScorer {
	s := &LexiconScorer{
		logger:   logger,
		positive: make(map[string]struct{}, len(lexiconPositive)),
		negative: make(map[string]struct{}, len(lexiconNegative)),
		negators: make(map[string]struct{}, len(lexiconNegators)),
	}
	for _, w := range lexiconPositive {
		s.positive[w] = struct{}{}
	}
	for _, w := range lexiconNegative {
		s.negative[w] = struct{}{}
	}
	for _, w := range lexiconNegators {
		s.negators[w] = struct{}{}
	}
	return s
}

// Name returns the scorer name
func (s *LexiconScorer) Name() string {
	return "lexicon"
}

// Score counts polarity words, flips any that follow a negator, and maps
// the balance onto [-1, 1]. Confidence grows with the amount of evidence.
func (s *LexiconScorer) Score(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Neutral(), nil
	}

	tokens := tokenize(text)

	var pos, neg int
	for i, token := range tokens {
		negated := i > 0 && s.isNegator(tokens[i-1])

		switch {
		case s.isPositive(token):
			if negated {
				neg++
			} else {
				pos++
			}
		case s.isNegative(token):
			if negated {
				pos++
			} else {
				neg++
			}
		}
	}

	hits := pos + neg
	if hits == 0 {
		return Neutral(), nil
	}

	score := float64(pos-neg) / float64(hits)

	label := LabelNeutral
	switch {
	case score > 0:
		label = LabelPositive
	case score < 0:
		label = LabelNegative
	}

	confidence := 0.5 + 0.1*float64(hits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	if label == LabelNeutral {
		// Balanced evidence, not absence of evidence.
		confidence = 0.5
	}

	return Result{Label: label, Score: score, Confidence: confidence}, nil
}

func (s *LexiconScorer) isPositive(token string) bool {
	_, ok := s.positive[token]
	return ok
}

func (s *LexiconScorer) isNegative(token string) bool {
	_, ok := s.negative[token]
	return ok
}

func (s *LexiconScorer) isNegator(token string) bool {
	_, ok := s.negators[token]
	return ok
}

// tokenize lowercases and splits on anything that is not a letter or an
// apostrophe, so contractions survive as single tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
