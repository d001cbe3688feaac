//go:build integration

package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/config"
	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/sentiment"
)

// Run with: DATABASE_URL=postgres://... go test -tags integration ./pkg/database

func setupIntegrationRepo(t *testing.T) *Repository {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := Connect(context.Background(), logger, &config.DatabaseConfig{
		URL:            url,
		MaxConns:       4,
		MinConns:       1,
		ConnectTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(context.Background()))
	return NewRepository(db, logger)
}

func insertTestCall(t *testing.T, repo *Repository) *SalesCall {
	t.Helper()

	call := &SalesCall{
		CallID:     "it-" + uuid.New().String(),
		AgentID:    "agent-1",
		CustomerID: "customer-1",
		AudioPath:  "/tmp/recording.wav",
		Status:     StatusProcessing,
	}
	require.NoError(t, repo.CreateCall(context.Background(), call))
	return call
}

func TestCreateCallDuplicateCallID(t *testing.T) {
	repo := setupIntegrationRepo(t)
	ctx := context.Background()

	call := insertTestCall(t, repo)
	assert.NotZero(t, call.ID)

	dup := &SalesCall{CallID: call.CallID, AgentID: "a", CustomerID: "c", AudioPath: "/x", Status: StatusProcessing}
	err := repo.CreateCall(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCallAlreadyExists)
}

func TestCallStatusLifecycle(t *testing.T) {
	repo := setupIntegrationRepo(t)
	ctx := context.Background()

	call := insertTestCall(t, repo)

	require.NoError(t, repo.UpdateCallStatus(ctx, call.CallID, StatusCompleted))
	require.NoError(t, repo.SetCallDuration(ctx, call.CallID, 42.5))

	fetched, err := repo.GetCall(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, fetched.Status)
	assert.Equal(t, 42.5, fetched.Duration)

	err = repo.UpdateCallStatus(ctx, "missing-call", StatusFailed)
	assert.ErrorIs(t, err, errors.ErrCallNotFound)

	_, err = repo.GetCall(ctx, "missing-call")
	assert.ErrorIs(t, err, errors.ErrCallNotFound)
}

func TestTranscriptReplaceSemantics(t *testing.T) {
	repo := setupIntegrationRepo(t)
	ctx := context.Background()

	call := insertTestCall(t, repo)

	segments := []analysis.Segment{
		{SpeakerID: "speaker_1", Text: "Hello", StartTime: 0, EndTime: 1, Confidence: 0.9, SentimentLabel: "neutral"},
		{SpeakerID: "speaker_2", Text: "Hi there", StartTime: 1, EndTime: 2, Confidence: 0.9, SentimentScore: 0.4, SentimentLabel: "positive"},
	}
	transcript := &Transcript{
		CallID:   call.CallID,
		FullText: "Hello Hi there",
		Duration: 2,
		Sentiment: sentiment.Summary{
			Total: 2, Positive: 1, Neutral: 1,
			AverageScore: 0.2, OverallLabel: "positive",
			PositivePercentage: 50, NeutralPercentage: 50,
		},
	}
	require.NoError(t, repo.SaveTranscript(ctx, transcript, NewUtterances(call.CallID, segments)))
	assert.NotZero(t, transcript.ID)

	fetched, err := repo.GetTranscript(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, "Hello Hi there", fetched.FullText)
	assert.Equal(t, "positive", fetched.Sentiment.OverallLabel)

	utterances, err := repo.GetUtterances(ctx, call.CallID)
	require.NoError(t, err)
	require.Len(t, utterances, 2)
	assert.Equal(t, segments, ToSegments(utterances))

	// Saving again replaces rather than appends
	shorter := &Transcript{CallID: call.CallID, FullText: "Hello", Duration: 1, Sentiment: sentiment.Summary{Total: 1, Neutral: 1, OverallLabel: "neutral", NeutralPercentage: 100}}
	require.NoError(t, repo.SaveTranscript(ctx, shorter, NewUtterances(call.CallID, segments[:1])))

	utterances, err = repo.GetUtterances(ctx, call.CallID)
	require.NoError(t, err)
	assert.Len(t, utterances, 1)
}

func TestSentimentRescoreUpdatesRows(t *testing.T) {
	repo := setupIntegrationRepo(t)
	ctx := context.Background()

	call := insertTestCall(t, repo)
	segments := []analysis.Segment{
		{SpeakerID: "speaker_1", Text: "fine", StartTime: 0, EndTime: 1, Confidence: 0.9, SentimentLabel: "neutral"},
	}
	transcript := &Transcript{CallID: call.CallID, FullText: "fine", Duration: 1, Sentiment: sentiment.Summary{Total: 1, Neutral: 1, OverallLabel: "neutral", NeutralPercentage: 100}}
	require.NoError(t, repo.SaveTranscript(ctx, transcript, NewUtterances(call.CallID, segments)))

	utterances, err := repo.GetUtterances(ctx, call.CallID)
	require.NoError(t, err)
	utterances[0].SentimentScore = 0.8
	utterances[0].SentimentLabel = "positive"

	rescored := sentiment.Summary{Total: 1, Positive: 1, AverageScore: 0.8, OverallLabel: "positive", PositivePercentage: 100}
	require.NoError(t, repo.UpdateSentiment(ctx, call.CallID, utterances, rescored))

	utterances, err = repo.GetUtterances(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, "positive", utterances[0].SentimentLabel)

	fetched, err := repo.GetTranscript(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, "positive", fetched.Sentiment.OverallLabel)
}

func TestMomentReplaceAndFilters(t *testing.T) {
	repo := setupIntegrationRepo(t)
	ctx := context.Background()

	call := insertTestCall(t, repo)

	moments := NewMoments(call.CallID, []analysis.CoachableMoment{
		{MomentType: "objection_handling", Confidence: 0.72, StartTime: 5, EndTime: 8, Description: "d1", TranscriptSegment: "t1", Recommendations: []string{"r1"}, SpeakerID: "speaker_2"},
		{MomentType: "buying_signal", Confidence: 0.9, StartTime: 10, EndTime: 12, Description: "d2", TranscriptSegment: "t2", Recommendations: []string{"r2"}, SpeakerID: "speaker_2"},
		{MomentType: "objection_handling", Confidence: 0.9, StartTime: 2, EndTime: 4, Description: "d3", TranscriptSegment: "t3", Recommendations: []string{"r3"}, SpeakerID: "speaker_2"},
	})
	require.NoError(t, repo.ReplaceMoments(ctx, call.CallID, moments))
	assert.NotZero(t, moments[0].ID)

	// Highest confidence first, start time breaks ties
	all, err := repo.GetMoments(ctx, call.CallID, MomentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "d3", all[0].Description)
	assert.Equal(t, "d2", all[1].Description)
	assert.Equal(t, "d1", all[2].Description)

	objections, err := repo.GetMoments(ctx, call.CallID, MomentFilter{MomentType: "objection_handling"})
	require.NoError(t, err)
	assert.Len(t, objections, 2)

	confident, err := repo.GetMoments(ctx, call.CallID, MomentFilter{MinConfidence: 0.8})
	require.NoError(t, err)
	assert.Len(t, confident, 2)

	counts, err := repo.CountMomentsByType(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"objection_handling": 2, "buying_signal": 1}, counts)

	fetched, err := repo.GetMoment(ctx, moments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, moments[0].Description, fetched.Description)

	_, err = repo.GetMoment(ctx, -1)
	assert.ErrorIs(t, err, errors.ErrMomentNotFound)

	// Replace drops the old set
	require.NoError(t, repo.ReplaceMoments(ctx, call.CallID, nil))
	all, err = repo.GetMoments(ctx, call.CallID, MomentFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSummaryReplaceSemantics(t *testing.T) {
	repo := setupIntegrationRepo(t)
	ctx := context.Background()

	call := insertTestCall(t, repo)

	first := NewSummary(call.CallID, analysis.ExecutiveSummary{Summary: "first", CallOutcome: "lost", KeyPoints: []string{"a"}})
	require.NoError(t, repo.SaveSummary(ctx, first))
	assert.NotZero(t, first.ID)

	second := NewSummary(call.CallID, analysis.ExecutiveSummary{Summary: "second", CallOutcome: "success", KeyPoints: []string{"b"}})
	require.NoError(t, repo.SaveSummary(ctx, second))

	fetched, err := repo.GetSummary(ctx, call.CallID)
	require.NoError(t, err)
	assert.Equal(t, "second", fetched.Summary)
	assert.Equal(t, "success", fetched.CallOutcome)
	assert.Equal(t, []string{"b"}, fetched.KeyPoints)

	_, err = repo.GetSummary(ctx, "missing-call")
	assert.ErrorIs(t, err, errors.ErrSummaryNotFound)
}
