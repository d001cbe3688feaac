package database

import (
	"time"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/sentiment"
)

// Call status values tracked through the analysis pipeline.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// SalesCall is one uploaded call recording and its processing state.
type SalesCall struct {
	ID         int64     `json:"id"`
	CallID     string    `json:"call_id"`
	AgentID    string    `json:"agent_id"`
	CustomerID string    `json:"customer_id"`
	AudioPath  string    `json:"audio_file_path"`
	Duration   float64   `json:"duration"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Transcript is the stored transcription of one call with its call-level
// sentiment rollup.
type Transcript struct {
	ID        int64             `json:"id"`
	CallID    string            `json:"call_id"`
	FullText  string            `json:"full_text"`
	Duration  float64           `json:"duration"`
	Sentiment sentiment.Summary `json:"sentiment"`
	CreatedAt time.Time         `json:"created_at"`
}

// Utterance is one stored transcript segment.
type Utterance struct {
	ID             int64   `json:"id"`
	CallID         string  `json:"call_id"`
	Position       int     `json:"position"`
	SpeakerID      string  `json:"speaker_id"`
	Text           string  `json:"text"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Confidence     float64 `json:"confidence"`
	SentimentScore float64 `json:"sentiment_score"`
	SentimentLabel string  `json:"sentiment_label"`
}

// NewUtterances converts analyzed segments into rows for one call,
// numbering them by transcript order.
func NewUtterances(callID string, segments []analysis.Segment) []Utterance {
	utterances := make([]Utterance, 0, len(segments))
	for i, segment := range segments {
		utterances = append(utterances, Utterance{
			CallID:         callID,
			Position:       i,
			SpeakerID:      segment.SpeakerID,
			Text:           segment.Text,
			StartTime:      segment.StartTime,
			EndTime:        segment.EndTime,
			Confidence:     segment.Confidence,
			SentimentScore: segment.SentimentScore,
			SentimentLabel: segment.SentimentLabel,
		})
	}
	return utterances
}

// Segment converts the stored row back into the analysis segment shape.
func (u *Utterance) Segment() analysis.Segment {
	return analysis.Segment{
		SpeakerID:      u.SpeakerID,
		Text:           u.Text,
		StartTime:      u.StartTime,
		EndTime:        u.EndTime,
		Confidence:     u.Confidence,
		SentimentScore: u.SentimentScore,
		SentimentLabel: u.SentimentLabel,
	}
}

// ToSegments converts stored utterances back into analysis segments.
func ToSegments(utterances []Utterance) []analysis.Segment {
	segments := make([]analysis.Segment, 0, len(utterances))
	for i := range utterances {
		segments = append(segments, utterances[i].Segment())
	}
	return segments
}

// CoachableMoment is one stored detector finding.
type CoachableMoment struct {
	ID                int64     `json:"id"`
	CallID            string    `json:"call_id"`
	MomentType        string    `json:"moment_type"`
	Confidence        float64   `json:"confidence"`
	StartTime         float64   `json:"start_time"`
	EndTime           float64   `json:"end_time"`
	Description       string    `json:"description"`
	TranscriptSegment string    `json:"transcript_segment"`
	Recommendations   []string  `json:"recommendations"`
	SpeakerID         string    `json:"speaker_id"`
	SentimentScore    float64   `json:"sentiment_score"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewMoments converts detector findings into rows for one call.
func NewMoments(callID string, findings []analysis.CoachableMoment) []CoachableMoment {
	moments := make([]CoachableMoment, 0, len(findings))
	for _, finding := range findings {
		moments = append(moments, CoachableMoment{
			CallID:            callID,
			MomentType:        finding.MomentType,
			Confidence:        finding.Confidence,
			StartTime:         finding.StartTime,
			EndTime:           finding.EndTime,
			Description:       finding.Description,
			TranscriptSegment: finding.TranscriptSegment,
			Recommendations:   finding.Recommendations,
			SpeakerID:         finding.SpeakerID,
			SentimentScore:    finding.SentimentScore,
		})
	}
	return moments
}

// Moment converts the stored row back into the analysis moment shape.
func (m *CoachableMoment) Moment() analysis.CoachableMoment {
	return analysis.CoachableMoment{
		MomentType:        m.MomentType,
		Confidence:        m.Confidence,
		StartTime:         m.StartTime,
		EndTime:           m.EndTime,
		Description:       m.Description,
		TranscriptSegment: m.TranscriptSegment,
		Recommendations:   m.Recommendations,
		SpeakerID:         m.SpeakerID,
		SentimentScore:    m.SentimentScore,
	}
}

// ToMoments converts stored rows back into analysis moments.
func ToMoments(rows []CoachableMoment) []analysis.CoachableMoment {
	moments := make([]analysis.CoachableMoment, 0, len(rows))
	for i := range rows {
		moments = append(moments, rows[i].Moment())
	}
	return moments
}

// ExecutiveSummary is the stored synthesis of one analysis run.
type ExecutiveSummary struct {
	ID                int64                    `json:"id"`
	CallID            string                   `json:"call_id"`
	Summary           string                   `json:"summary"`
	KeyPoints         []string                 `json:"key_points"`
	ActionItems       []string                 `json:"action_items"`
	SentimentOverview string                   `json:"sentiment_overview"`
	CallOutcome       string                   `json:"call_outcome"`
	Analysis          analysis.ContentAnalysis `json:"call_analysis"`
	CreatedAt         time.Time                `json:"created_at"`
}

// NewSummary converts a synthesized summary into a row for one call.
func NewSummary(callID string, s analysis.ExecutiveSummary) *ExecutiveSummary {
	return &ExecutiveSummary{
		CallID:            callID,
		Summary:           s.Summary,
		KeyPoints:         s.KeyPoints,
		ActionItems:       s.ActionItems,
		SentimentOverview: s.SentimentOverview,
		CallOutcome:       s.CallOutcome,
		Analysis:          s.Analysis,
	}
}
