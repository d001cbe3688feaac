package analysis

import (
	"fmt"
	"strings"

	"callcoach-server/pkg/errors"
)

// BuildReplayText formats a moment into speakable text, optionally framed
// by the utterances surrounding it. Leading context covers
// [start-contextSeconds, start), clamped at zero; trailing context covers
// [end, end+contextSeconds). A context block is omitted entirely when no
// utterance qualifies. All fragments are joined with single spaces, never
// newlines, because the output is fed straight to speech synthesis.
func BuildReplayText(moment CoachableMoment, segments []Segment, includeContext bool, contextSeconds float64) (string, error) {
	if strings.TrimSpace(moment.TranscriptSegment) == "" {
		return "", errors.NewEmptyText("replay moment has no transcript segment")
	}

	var parts []string

	if includeContext {
		contextStart := moment.StartTime - contextSeconds
		if contextStart < 0 {
			contextStart = 0
		}
		leading := segmentsInWindow(segments, contextStart, moment.StartTime)

		if len(leading) > 0 {
			parts = append(parts, "Context leading up to the moment:")
			for _, seg := range leading {
				parts = append(parts, fmt.Sprintf("%s: %s", seg.SpeakerID, seg.Text))
			}
			parts = append(parts, "")
		}
	}

	parts = append(parts, fmt.Sprintf("Coachable moment - %s:", moment.MomentType))
	parts = append(parts, moment.TranscriptSegment)
	parts = append(parts, "")

	if includeContext {
		trailing := segmentsInWindow(segments, moment.EndTime, moment.EndTime+contextSeconds)

		if len(trailing) > 0 {
			parts = append(parts, "Context following the moment:")
			for _, seg := range trailing {
				parts = append(parts, fmt.Sprintf("%s: %s", seg.SpeakerID, seg.Text))
			}
		}
	}

	return strings.Join(parts, " "), nil
}

// BuildReplayTextWithRecommendations formats a moment together with its
// numbered coaching recommendations, timing, and confidence for spoken
// coaching playback.
func BuildReplayTextWithRecommendations(moment CoachableMoment) (string, error) {
	if strings.TrimSpace(moment.TranscriptSegment) == "" {
		return "", errors.NewEmptyText("replay moment has no transcript segment")
	}

	var parts []string

	parts = append(parts, fmt.Sprintf("Here's a %s moment from the sales call:", moment.MomentType))
	parts = append(parts, fmt.Sprintf("'%s'", moment.TranscriptSegment))
	parts = append(parts, "")

	if len(moment.Recommendations) > 0 {
		parts = append(parts, "Coaching recommendations:")
		for i, recommendation := range moment.Recommendations {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, recommendation))
		}
		parts = append(parts, "")
	}

	parts = append(parts, fmt.Sprintf("This moment occurred at %.1f to %.1f seconds", moment.StartTime, moment.EndTime))
	parts = append(parts, fmt.Sprintf("Confidence level: %.1f%%", moment.Confidence*100))

	return strings.Join(parts, " "), nil
}

// segmentsInWindow returns the segments whose start time falls in
// [start, end).
func segmentsInWindow(segments []Segment, start, end float64) []Segment {
	var window []Segment
	for _, seg := range segments {
		if seg.StartTime >= start && seg.StartTime < end {
			window = append(window, seg)
		}
	}
	return window
}
