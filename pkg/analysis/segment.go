// Package analysis implements the rule-based coaching pipeline for recorded
// sales calls: coachable-moment detection over timed transcript segments,
// call-content aggregation, outcome classification, executive-summary
// synthesis, and replay text construction.
//
// Every stage is a pure function of its inputs. Configuration (keyword and
// pattern tables) is injected at construction and never mutated afterwards,
// so one detector or synthesizer instance is safe for concurrent use across
// calls.
package analysis

import (
	"sort"
	"strings"
)

// Segment is one utterance window of a transcribed call: timed,
// speaker-attributed, and sentiment-scored.
type Segment struct {
	SpeakerID      string  `json:"speaker_id"`
	Text           string  `json:"text"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Confidence     float64 `json:"confidence"`
	SentimentScore float64 `json:"sentiment_score"`
	SentimentLabel string  `json:"sentiment_label"`
}

// TranscriptData is the transcription collaborator's output consumed by the
// pipeline: the full transcript string, the segment sequence, and the call
// duration as reported by the transcription engine (not recomputed here).
type TranscriptData struct {
	FullTranscript string    `json:"full_transcript"`
	Segments       []Segment `json:"segments"`
	Duration       float64   `json:"duration"`
}

// SentimentAggregate is the call-level sentiment summary: per-label utterance
// counts, the mean signed score, and the derived overall label. A nil
// *SentimentAggregate means no sentiment data is available for the call.
type SentimentAggregate struct {
	Positive     int     `json:"positive"`
	Negative     int     `json:"negative"`
	Neutral      int     `json:"neutral"`
	AverageScore float64 `json:"average_score"`
	OverallLabel string  `json:"overall_label"`
}

// Label returns the overall label, defaulting to neutral when unset.
func (a *SentimentAggregate) Label() string {
	if a == nil || a.OverallLabel == "" {
		return "neutral"
	}
	return a.OverallLabel
}

// PrepareSegments returns a copy of segments ordered by start time with
// empty and all-whitespace utterances removed. Detection and synthesis
// assume this ordering; transcription engines mostly emit segments sorted
// already, but the pipeline must not rely on it.
func PrepareSegments(segments []Segment) []Segment {
	prepared := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		prepared = append(prepared, seg)
	}

	sort.SliceStable(prepared, func(i, j int) bool {
		return prepared[i].StartTime < prepared[j].StartTime
	})

	return prepared
}
