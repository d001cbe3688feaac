package analysis

import "strings"

// ContentAnalysis is the call-level aggregate derived from segments and
// detected moments. It is computed fresh on every analysis run and never
// cached or persisted standalone.
type ContentAnalysis struct {
	TotalDuration       float64        `json:"total_duration"`
	TotalSegments       int            `json:"total_segments"`
	SpeakerDistribution map[string]int `json:"speaker_distribution"`
	TopicAreas          []string       `json:"topic_areas"`
	ObjectionCount      int            `json:"objection_count"`
	BuyingSignalCount   int            `json:"buying_signal_count"`
	QuestionCount       int            `json:"question_count"`
	EmotionalMoments    int            `json:"emotional_moments"`
}

// ContentAnalyzer folds segments and moments into a ContentAnalysis. The
// topic table is fixed at construction.
type ContentAnalyzer struct {
	topics []TopicCategory
}

// NewContentAnalyzer returns an analyzer over the given topic table.
func NewContentAnalyzer(topics []TopicCategory) *ContentAnalyzer {
	return &ContentAnalyzer{topics: topics}
}

// Analyze aggregates the transcript and moment set. Moment category counts
// use substring matching on the moment type, so emotional_positive and
// emotional_negative both count toward EmotionalMoments. TotalDuration is
// taken from the transcription engine, not recomputed from timestamps.
func (a *ContentAnalyzer) Analyze(data TranscriptData, moments []CoachableMoment) ContentAnalysis {
	analysis := ContentAnalysis{
		TotalDuration:       data.Duration,
		TotalSegments:       len(data.Segments),
		SpeakerDistribution: make(map[string]int),
		TopicAreas:          []string{},
	}

	for _, seg := range data.Segments {
		speaker := seg.SpeakerID
		if speaker == "" {
			speaker = "unknown"
		}
		analysis.SpeakerDistribution[speaker]++
	}

	for _, moment := range moments {
		switch {
		case strings.Contains(moment.MomentType, "objection"):
			analysis.ObjectionCount++
		case strings.Contains(moment.MomentType, "buying_signal"):
			analysis.BuyingSignalCount++
		case strings.Contains(moment.MomentType, "question"):
			analysis.QuestionCount++
		case strings.Contains(moment.MomentType, "emotional"):
			analysis.EmotionalMoments++
		}
	}

	analysis.TopicAreas = a.identifyTopicAreas(data.FullTranscript)

	return analysis
}

// identifyTopicAreas reports every topic whose keyword set intersects the
// transcript, in topic table order. Matching is plain case-insensitive
// substring containment.
func (a *ContentAnalyzer) identifyTopicAreas(transcript string) []string {
	identified := []string{}
	lower := strings.ToLower(transcript)

	for _, topic := range a.topics {
		for _, keyword := range topic.Keywords {
			if strings.Contains(lower, keyword) {
				identified = append(identified, topic.Name)
				break
			}
		}
	}

	return identified
}
