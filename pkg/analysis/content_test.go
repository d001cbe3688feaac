package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestContentAnalyzer() *ContentAnalyzer {
	return NewContentAnalyzer(DefaultDetectionConfig().TopicKeywords)
}

func TestAnalyzeSpeakerDistribution(t *testing.T) {
	analyzer := newTestContentAnalyzer()

	data := TranscriptData{
		Duration: 42.5,
		Segments: []Segment{
			{SpeakerID: "speaker_1", Text: "hello there"},
			{SpeakerID: "speaker_2", Text: "hi"},
			{SpeakerID: "speaker_1", Text: "thanks for taking the time"},
			{SpeakerID: "", Text: "inaudible crosstalk"},
		},
	}

	analysis := analyzer.Analyze(data, nil)

	assert.Equal(t, 42.5, analysis.TotalDuration, "duration comes from the transcription engine")
	assert.Equal(t, 4, analysis.TotalSegments, "every segment counts, attributed or not")
	expected := map[string]int{"speaker_1": 2, "speaker_2": 1, "unknown": 1}
	assert.Equal(t, expected, analysis.SpeakerDistribution,
		"unattributed segments should be bucketed under unknown")
}

func TestAnalyzeMomentCategoryCounts(t *testing.T) {
	analyzer := newTestContentAnalyzer()

	moments := []CoachableMoment{
		{MomentType: MomentObjection},
		{MomentType: MomentBuyingSignal},
		{MomentType: MomentEmotionalPositive},
		{MomentType: MomentEmotionalNegative},
		{MomentType: MomentInformationRequest},
		{MomentType: MomentHesitation},
	}

	analysis := analyzer.Analyze(TranscriptData{}, moments)

	assert.Equal(t, 1, analysis.ObjectionCount)
	assert.Equal(t, 1, analysis.BuyingSignalCount)
	assert.Equal(t, 2, analysis.EmotionalMoments,
		"positive and negative emotional moments both count via substring match")
	assert.Equal(t, 0, analysis.QuestionCount,
		"information_request does not contain the question substring")
}

func TestAnalyzeQuestionCountMatchesSubstring(t *testing.T) {
	analyzer := newTestContentAnalyzer()

	// The category buckets match on substrings of the moment type, so a
	// hypothetical question-flavored type feeds the question counter.
	moments := []CoachableMoment{
		{MomentType: "pricing_question"},
		{MomentType: "open_question"},
	}

	analysis := analyzer.Analyze(TranscriptData{}, moments)

	assert.Equal(t, 2, analysis.QuestionCount)
	assert.Equal(t, 0, analysis.ObjectionCount)
}

func TestIdentifyTopicAreasDeclarationOrder(t *testing.T) {
	analyzer := newTestContentAnalyzer()

	data := TranscriptData{
		FullTranscript: "The onboarding TIMELINE worries me, and the price is higher than your competitor",
	}

	analysis := analyzer.Analyze(data, nil)

	assert.Equal(t, []string{"pricing", "timeline", "competition", "implementation"},
		analysis.TopicAreas,
		"topics should be reported in table order regardless of transcript order")
}

func TestIdentifyTopicAreasCaseInsensitiveSubstring(t *testing.T) {
	analyzer := newTestContentAnalyzer()

	analysis := analyzer.Analyze(TranscriptData{FullTranscript: "PRICING was discussed"}, nil)
	assert.Equal(t, []string{"pricing"}, analysis.TopicAreas,
		"matching is case-insensitive substring containment")

	analysis = analyzer.Analyze(TranscriptData{FullTranscript: "we talked about many things"}, nil)
	assert.Equal(t, []string{}, analysis.TopicAreas,
		"no matching keywords should yield an empty, non-nil slice")
}

func TestAnalyzeEmptyCall(t *testing.T) {
	analyzer := newTestContentAnalyzer()

	analysis := analyzer.Analyze(TranscriptData{}, nil)

	assert.Equal(t, 0, analysis.TotalSegments)
	assert.Empty(t, analysis.SpeakerDistribution)
	assert.NotNil(t, analysis.TopicAreas, "topic areas must marshal as [] not null")
	assert.Zero(t, analysis.ObjectionCount)
	assert.Zero(t, analysis.BuyingSignalCount)
	assert.Zero(t, analysis.QuestionCount)
	assert.Zero(t, analysis.EmotionalMoments)
}
