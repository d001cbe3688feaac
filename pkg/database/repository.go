package database

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/sentiment"
)

// PostgreSQL error code for unique constraint violations
const uniqueViolationCode = "23505"

// Repository provides persistence for calls and their analysis artifacts.
type Repository struct {
	db     *Database
	logger *logrus.Logger
}

// NewRepository creates a new repository
func NewRepository(db *Database, logger *logrus.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateCall inserts a new sales call record.
func (r *Repository) CreateCall(ctx context.Context, call *SalesCall) error {
	query := `
		INSERT INTO sales_calls (call_id, agent_id, customer_id, audio_file_path, duration, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.pool.QueryRow(ctx, query,
		call.CallID,
		call.AgentID,
		call.CustomerID,
		call.AudioPath,
		call.Duration,
		call.Status,
	).Scan(&call.ID, &call.CreatedAt, &call.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return errors.Wrap(errors.ErrCallAlreadyExists,
				fmt.Sprintf("call %s already exists", call.CallID))
		}
		return errors.Wrap(err, "failed to create sales call")
	}

	return nil
}

// GetCall retrieves a sales call by its call ID.
func (r *Repository) GetCall(ctx context.Context, callID string) (*SalesCall, error) {
	query := `
		SELECT id, call_id, agent_id, customer_id, audio_file_path, duration, status, created_at, updated_at
		FROM sales_calls
		WHERE call_id = $1
	`

	var call SalesCall
	err := r.db.pool.QueryRow(ctx, query, callID).Scan(
		&call.ID,
		&call.CallID,
		&call.AgentID,
		&call.CustomerID,
		&call.AudioPath,
		&call.Duration,
		&call.Status,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NewCallNotFound(callID)
		}
		return nil, errors.Wrap(err, "failed to get sales call")
	}

	return &call, nil
}

// UpdateCallStatus moves a call to a new pipeline status.
func (r *Repository) UpdateCallStatus(ctx context.Context, callID, status string) error {
	query := `UPDATE sales_calls SET status = $2, updated_at = now() WHERE call_id = $1`

	tag, err := r.db.pool.Exec(ctx, query, callID, status)
	if err != nil {
		return errors.Wrap(err, "failed to update call status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NewCallNotFound(callID)
	}

	return nil
}

// SetCallDuration records the call length once transcription reports it.
func (r *Repository) SetCallDuration(ctx context.Context, callID string, duration float64) error {
	query := `UPDATE sales_calls SET duration = $2, updated_at = now() WHERE call_id = $1`

	tag, err := r.db.pool.Exec(ctx, query, callID, duration)
	if err != nil {
		return errors.Wrap(err, "failed to set call duration")
	}
	if tag.RowsAffected() == 0 {
		return errors.NewCallNotFound(callID)
	}

	return nil
}

// SaveTranscript stores a transcript and its utterances, replacing any
// earlier transcription of the same call.
func (r *Repository) SaveTranscript(ctx context.Context, transcript *Transcript, utterances []Utterance) error {
	sentimentJSON, err := json.Marshal(transcript.Sentiment)
	if err != nil {
		return errors.Wrap(err, "failed to encode sentiment summary")
	}

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM utterances WHERE call_id = $1`, transcript.CallID); err != nil {
		return errors.Wrap(err, "failed to clear old utterances")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM transcripts WHERE call_id = $1`, transcript.CallID); err != nil {
		return errors.Wrap(err, "failed to clear old transcript")
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transcripts (call_id, full_text, duration, sentiment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, transcript.CallID, transcript.FullText, transcript.Duration, sentimentJSON).
		Scan(&transcript.ID, &transcript.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert transcript")
	}

	for i := range utterances {
		u := &utterances[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO utterances (call_id, position, speaker_id, text, start_time, end_time, confidence, sentiment_score, sentiment_label)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, u.CallID, u.Position, u.SpeakerID, u.Text, u.StartTime, u.EndTime, u.Confidence, u.SentimentScore, u.SentimentLabel).
			Scan(&u.ID)
		if err != nil {
			return errors.Wrap(err, "failed to insert utterance")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transcript")
	}

	return nil
}

// GetTranscript retrieves the stored transcript for a call.
func (r *Repository) GetTranscript(ctx context.Context, callID string) (*Transcript, error) {
	query := `
		SELECT id, call_id, full_text, duration, sentiment, created_at
		FROM transcripts
		WHERE call_id = $1
	`

	var transcript Transcript
	var sentimentJSON []byte
	err := r.db.pool.QueryRow(ctx, query, callID).Scan(
		&transcript.ID,
		&transcript.CallID,
		&transcript.FullText,
		&transcript.Duration,
		&sentimentJSON,
		&transcript.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.Wrap(errors.ErrTranscriptNotFound,
				fmt.Sprintf("no transcript for call %s", callID))
		}
		return nil, errors.Wrap(err, "failed to get transcript")
	}

	if len(sentimentJSON) > 0 {
		if err := json.Unmarshal(sentimentJSON, &transcript.Sentiment); err != nil {
			return nil, errors.Wrap(err, "failed to decode sentiment summary")
		}
	}

	return &transcript, nil
}

// GetUtterances retrieves a call's utterances in transcript order.
func (r *Repository) GetUtterances(ctx context.Context, callID string) ([]Utterance, error) {
	query := `
		SELECT id, call_id, position, speaker_id, text, start_time, end_time, confidence, sentiment_score, sentiment_label
		FROM utterances
		WHERE call_id = $1
		ORDER BY position
	`

	rows, err := r.db.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query utterances")
	}
	defer rows.Close()

	var utterances []Utterance
	for rows.Next() {
		var u Utterance
		if err := rows.Scan(
			&u.ID,
			&u.CallID,
			&u.Position,
			&u.SpeakerID,
			&u.Text,
			&u.StartTime,
			&u.EndTime,
			&u.Confidence,
			&u.SentimentScore,
			&u.SentimentLabel,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan utterance")
		}
		utterances = append(utterances, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate utterances")
	}

	return utterances, nil
}

// UpdateSentiment rewrites per-utterance sentiment columns and the stored
// call-level rollup after a rescore.
func (r *Repository) UpdateSentiment(ctx context.Context, callID string, utterances []Utterance, summary sentiment.Summary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to encode sentiment summary")
	}

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	for i := range utterances {
		u := &utterances[i]
		_, err := tx.Exec(ctx, `
			UPDATE utterances SET sentiment_score = $3, sentiment_label = $4
			WHERE call_id = $1 AND position = $2
		`, callID, u.Position, u.SentimentScore, u.SentimentLabel)
		if err != nil {
			return errors.Wrap(err, "failed to update utterance sentiment")
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE transcripts SET sentiment = $2 WHERE call_id = $1`, callID, summaryJSON)
	if err != nil {
		return errors.Wrap(err, "failed to update transcript sentiment")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(errors.ErrTranscriptNotFound,
			fmt.Sprintf("no transcript for call %s", callID))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit sentiment update")
	}

	return nil
}

// MomentFilter narrows moment queries.
type MomentFilter struct {
	MomentType    string
	MinConfidence float64
}

// ReplaceMoments deletes a call's stored moments and inserts the fresh set
// in a single transaction. Row IDs and timestamps are filled in place.
func (r *Repository) ReplaceMoments(ctx context.Context, callID string, moments []CoachableMoment) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM coachable_moments WHERE call_id = $1`, callID); err != nil {
		return errors.Wrap(err, "failed to clear old moments")
	}

	for i := range moments {
		m := &moments[i]
		recommendationsJSON, err := json.Marshal(m.Recommendations)
		if err != nil {
			return errors.Wrap(err, "failed to encode recommendations")
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO coachable_moments (call_id, moment_type, confidence, start_time, end_time, description, transcript_segment, recommendations, speaker_id, sentiment_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id, created_at
		`, m.CallID, m.MomentType, m.Confidence, m.StartTime, m.EndTime, m.Description, m.TranscriptSegment, recommendationsJSON, m.SpeakerID, m.SentimentScore).
			Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "failed to insert moment")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit moments")
	}

	return nil
}

// GetMoments retrieves a call's moments, most confident first.
func (r *Repository) GetMoments(ctx context.Context, callID string, filter MomentFilter) ([]CoachableMoment, error) {
	query := `
		SELECT id, call_id, moment_type, confidence, start_time, end_time, description, transcript_segment, recommendations, speaker_id, sentiment_score, created_at
		FROM coachable_moments
		WHERE call_id = $1
	`
	args := []interface{}{callID}
	argNum := 2

	if filter.MomentType != "" {
		query += fmt.Sprintf(" AND moment_type = $%d", argNum)
		args = append(args, filter.MomentType)
		argNum++
	}
	if filter.MinConfidence > 0 {
		query += fmt.Sprintf(" AND confidence >= $%d", argNum)
		args = append(args, filter.MinConfidence)
		argNum++
	}

	query += " ORDER BY confidence DESC, start_time ASC"

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query moments")
	}
	defer rows.Close()

	var moments []CoachableMoment
	for rows.Next() {
		m, err := scanMomentRow(rows)
		if err != nil {
			return nil, err
		}
		moments = append(moments, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate moments")
	}

	return moments, nil
}

// GetMoment retrieves one stored moment by its row ID.
func (r *Repository) GetMoment(ctx context.Context, id int64) (*CoachableMoment, error) {
	query := `
		SELECT id, call_id, moment_type, confidence, start_time, end_time, description, transcript_segment, recommendations, speaker_id, sentiment_score, created_at
		FROM coachable_moments
		WHERE id = $1
	`

	rows, err := r.db.pool.Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query moment")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to query moment")
		}
		return nil, errors.NewMomentNotFound(id)
	}

	return scanMomentRow(rows)
}

// CountMomentsByType returns per-type moment counts for a call.
func (r *Repository) CountMomentsByType(ctx context.Context, callID string) (map[string]int, error) {
	query := `
		SELECT moment_type, COUNT(*)
		FROM coachable_moments
		WHERE call_id = $1
		GROUP BY moment_type
	`

	rows, err := r.db.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count moments")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var momentType string
		var count int
		if err := rows.Scan(&momentType, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan moment count")
		}
		counts[momentType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate moment counts")
	}

	return counts, nil
}

func scanMomentRow(rows pgx.Rows) (*CoachableMoment, error) {
	var m CoachableMoment
	var recommendationsJSON []byte

	err := rows.Scan(
		&m.ID,
		&m.CallID,
		&m.MomentType,
		&m.Confidence,
		&m.StartTime,
		&m.EndTime,
		&m.Description,
		&m.TranscriptSegment,
		&recommendationsJSON,
		&m.SpeakerID,
		&m.SentimentScore,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan moment")
	}

	if len(recommendationsJSON) > 0 {
		if err := json.Unmarshal(recommendationsJSON, &m.Recommendations); err != nil {
			return nil, errors.Wrap(err, "failed to decode recommendations")
		}
	}

	return &m, nil
}

// SaveSummary deletes a call's stored summary and inserts the fresh one in
// a single transaction. Row ID and timestamp are filled in place.
func (r *Repository) SaveSummary(ctx context.Context, summary *ExecutiveSummary) error {
	keyPointsJSON, err := json.Marshal(summary.KeyPoints)
	if err != nil {
		return errors.Wrap(err, "failed to encode key points")
	}
	actionItemsJSON, err := json.Marshal(summary.ActionItems)
	if err != nil {
		return errors.Wrap(err, "failed to encode action items")
	}
	analysisJSON, err := json.Marshal(summary.Analysis)
	if err != nil {
		return errors.Wrap(err, "failed to encode call analysis")
	}

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM executive_summaries WHERE call_id = $1`, summary.CallID); err != nil {
		return errors.Wrap(err, "failed to clear old summary")
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO executive_summaries (call_id, summary, key_points, action_items, sentiment_overview, call_outcome, call_analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, summary.CallID, summary.Summary, keyPointsJSON, actionItemsJSON, summary.SentimentOverview, summary.CallOutcome, analysisJSON).
		Scan(&summary.ID, &summary.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert summary")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit summary")
	}

	return nil
}

// GetSummary retrieves the stored executive summary for a call.
func (r *Repository) GetSummary(ctx context.Context, callID string) (*ExecutiveSummary, error) {
	query := `
		SELECT id, call_id, summary, key_points, action_items, sentiment_overview, call_outcome, call_analysis, created_at
		FROM executive_summaries
		WHERE call_id = $1
	`

	var s ExecutiveSummary
	var keyPointsJSON, actionItemsJSON, analysisJSON []byte
	err := r.db.pool.QueryRow(ctx, query, callID).Scan(
		&s.ID,
		&s.CallID,
		&s.Summary,
		&keyPointsJSON,
		&actionItemsJSON,
		&s.SentimentOverview,
		&s.CallOutcome,
		&analysisJSON,
		&s.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.Wrap(errors.ErrSummaryNotFound,
				fmt.Sprintf("no executive summary for call %s", callID))
		}
		return nil, errors.Wrap(err, "failed to get summary")
	}

	if len(keyPointsJSON) > 0 {
		if err := json.Unmarshal(keyPointsJSON, &s.KeyPoints); err != nil {
			return nil, errors.Wrap(err, "failed to decode key points")
		}
	}
	if len(actionItemsJSON) > 0 {
		if err := json.Unmarshal(actionItemsJSON, &s.ActionItems); err != nil {
			return nil, errors.Wrap(err, "failed to decode action items")
		}
	}
	if len(analysisJSON) > 0 {
		if err := json.Unmarshal(analysisJSON, &s.Analysis); err != nil {
			return nil, errors.Wrap(err, "failed to decode call analysis")
		}
	}

	return &s, nil
}
