package analysis

// TopicCategory names one subject-matter area and the keywords whose
// presence in the full transcript marks the topic as discussed. Categories
// are evaluated and reported in slice order.
type TopicCategory struct {
	Name     string
	Keywords []string
}

// DetectionConfig carries every keyword and pattern table the pipeline
// matches against. Keyword entries are matched on word boundaries,
// case-insensitively; pattern entries are regular expressions compiled
// case-insensitively as given.
type DetectionConfig struct {
	// ObjectionKeywords fire the objection detector.
	ObjectionKeywords []string

	// BuyingSignalKeywords fire the buying-signal detector.
	BuyingSignalKeywords []string

	// TopicKeywords drive call-level topic identification, in declaration
	// order.
	TopicKeywords []TopicCategory

	// HesitationPatterns match filler words, hedging, and uncertainty
	// phrases. Every match counts toward the hesitation score.
	HesitationPatterns []string

	// EmotionalPatterns are the indicator groups for emotionally charged
	// language. Each matching group contributes one point to the
	// emotional score.
	EmotionalPatterns []string

	// QuestionPatterns match information-request intents. The first
	// matching pattern wins; at most one moment per segment.
	QuestionPatterns []string
}

// DefaultDetectionConfig returns the stock keyword and pattern tables.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		ObjectionKeywords: []string{
			"no", "not interested", "expensive", "think about it",
		},
		BuyingSignalKeywords: []string{
			"yes", "interested", "when can we start", "what's next",
		},
		TopicKeywords: []TopicCategory{
			{Name: "pricing", Keywords: []string{"price", "cost", "budget", "investment", "value", "roi"}},
			{Name: "features", Keywords: []string{"feature", "functionality", "capability", "benefit", "advantage"}},
			{Name: "timeline", Keywords: []string{"timeline", "deadline", "schedule", "when", "timing"}},
			{Name: "competition", Keywords: []string{"competitor", "alternative", "compare", "vs", "versus"}},
			{Name: "implementation", Keywords: []string{"implementation", "setup", "onboarding", "training", "support"}},
			{Name: "objections", Keywords: []string{"concern", "worry", "issue", "problem", "challenge"}},
		},
		HesitationPatterns: []string{
			`\b(um|uh|er|ah)\b`,
			`\b(well|you know|like|sort of|kind of)\b`,
			`\b(i think|maybe|probably|possibly)\b`,
		},
		EmotionalPatterns: []string{
			`\b(very|extremely|really|so)\b`,
			`\b(love|hate|terrible|amazing|awful|fantastic)\b`,
			`\b(upset|angry|frustrated|excited|thrilled)\b`,
			`\b(never|always|everyone|nobody)\b`,
		},
		QuestionPatterns: []string{
			`\b(how much|what does it cost|pricing)\b`,
			`\b(when can|timeline|deadline)\b`,
			`\b(what if|what happens if|guarantee)\b`,
			`\b(how does|how do you|process)\b`,
		},
	}
}
