package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server/pkg/errors"
)

func TestBuildReplayTextWithoutContext(t *testing.T) {
	moment := CoachableMoment{
		MomentType:        MomentObjection,
		TranscriptSegment: "too expensive",
	}

	text, err := BuildReplayText(moment, nil, false, 10)
	require.NoError(t, err)

	// The empty separator part leaves a trailing space. The output is fed
	// to speech synthesis, which does not care, so neither do we.
	assert.Equal(t, "Coachable moment - objection: too expensive ", text)
}

func TestBuildReplayTextWithContext(t *testing.T) {
	moment := CoachableMoment{
		MomentType:        MomentObjection,
		TranscriptSegment: "too expensive",
		StartTime:         10.0,
		EndTime:           12.0,
	}
	segments := []Segment{
		{SpeakerID: "speaker_1", Text: "how are you", StartTime: 1.0},
		{SpeakerID: "speaker_2", Text: "fine thanks", StartTime: 5.0},
		{SpeakerID: "speaker_1", Text: "too expensive", StartTime: 10.0},
		{SpeakerID: "speaker_2", Text: "let me explain", StartTime: 12.0},
		{SpeakerID: "speaker_1", Text: "ok", StartTime: 22.0},
	}

	text, err := BuildReplayText(moment, segments, true, 10)
	require.NoError(t, err)

	assert.Equal(t,
		"Context leading up to the moment: "+
			"speaker_1: how are you "+
			"speaker_2: fine thanks "+
			" Coachable moment - objection: too expensive "+
			" Context following the moment: "+
			"speaker_2: let me explain",
		text)
}

func TestBuildReplayTextWindowBoundaries(t *testing.T) {
	moment := CoachableMoment{
		MomentType:        MomentHesitation,
		TranscriptSegment: "um",
		StartTime:         10.0,
		EndTime:           12.0,
	}

	// The moment's own segment sits at the start time, which belongs to
	// neither window. A segment exactly at the trailing edge is out too.
	segments := []Segment{
		{SpeakerID: "speaker_1", Text: "um", StartTime: 10.0},
		{SpeakerID: "speaker_2", Text: "at the edge", StartTime: 22.0},
	}

	text, err := BuildReplayText(moment, segments, true, 10)
	require.NoError(t, err)

	assert.NotContains(t, text, "Context leading up to the moment:")
	assert.NotContains(t, text, "Context following the moment:")
	assert.Equal(t, "Coachable moment - hesitation: um ", text)
}

func TestBuildReplayTextClampsLeadingWindow(t *testing.T) {
	moment := CoachableMoment{
		MomentType:        MomentObjection,
		TranscriptSegment: "no",
		StartTime:         2.0,
		EndTime:           3.0,
	}
	segments := []Segment{
		{SpeakerID: "speaker_1", Text: "hello", StartTime: 0.0},
	}

	text, err := BuildReplayText(moment, segments, true, 30)
	require.NoError(t, err)

	assert.Contains(t, text, "Context leading up to the moment: speaker_1: hello",
		"a context window larger than the elapsed call should clamp at zero, not exclude")
}

func TestBuildReplayTextEmptySegment(t *testing.T) {
	for _, transcriptSegment := range []string{"", "   "} {
		_, err := BuildReplayText(CoachableMoment{TranscriptSegment: transcriptSegment}, nil, false, 10)
		assert.ErrorIs(t, err, errors.ErrEmptyText, "blank transcript segment must be rejected")
	}
}

func TestBuildReplayTextWithRecommendations(t *testing.T) {
	moment := CoachableMoment{
		MomentType:        MomentObjection,
		TranscriptSegment: "too expensive",
		StartTime:         5.2,
		EndTime:           7.8,
		Confidence:        0.69,
		Recommendations: []string{
			"Acknowledge the customer's concern",
			"Ask clarifying questions to understand the objection better",
		},
	}

	text, err := BuildReplayTextWithRecommendations(moment)
	require.NoError(t, err)

	assert.Equal(t,
		"Here's a objection moment from the sales call: "+
			"'too expensive' "+
			" Coaching recommendations: "+
			"1. Acknowledge the customer's concern "+
			"2. Ask clarifying questions to understand the objection better "+
			" This moment occurred at 5.2 to 7.8 seconds "+
			"Confidence level: 69.0%",
		text)
}

func TestBuildReplayTextWithRecommendationsNoneGiven(t *testing.T) {
	moment := CoachableMoment{
		MomentType:        MomentHesitation,
		TranscriptSegment: "um",
		StartTime:         1.0,
		EndTime:           1.5,
		Confidence:        0.7,
	}

	text, err := BuildReplayTextWithRecommendations(moment)
	require.NoError(t, err)

	assert.Equal(t,
		"Here's a hesitation moment from the sales call: "+
			"'um' "+
			" This moment occurred at 1.0 to 1.5 seconds "+
			"Confidence level: 70.0%",
		text)

	_, err = BuildReplayTextWithRecommendations(CoachableMoment{})
	assert.ErrorIs(t, err, errors.ErrEmptyText)
}

func TestPrepareSegments(t *testing.T) {
	segments := []Segment{
		{Text: "third", StartTime: 30},
		{Text: "   ", StartTime: 5},
		{Text: "first", StartTime: 10},
		{Text: "", StartTime: 15},
		{Text: "second", StartTime: 20},
		{Text: "also second", StartTime: 20},
	}

	prepared := PrepareSegments(segments)

	require.Len(t, prepared, 4, "blank utterances should be dropped")
	assert.Equal(t, "first", prepared[0].Text)
	assert.Equal(t, "second", prepared[1].Text)
	assert.Equal(t, "also second", prepared[2].Text, "equal start times keep input order")
	assert.Equal(t, "third", prepared[3].Text)
}
