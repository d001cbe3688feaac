package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/config"
)

// Database wraps the PostgreSQL connection pool.
type Database struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// Connect opens a connection pool and verifies the database is reachable.
func Connect(ctx context.Context, logger *logrus.Logger, cfg *config.DatabaseConfig) (*Database, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"max_conns": cfg.MaxConns,
		"min_conns": cfg.MinConns,
	}).Info("Connected to PostgreSQL")

	return &Database{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the connection pool.
func (d *Database) Close() {
	d.pool.Close()
}

// Ping verifies the database is still reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Migrate creates the schema if it does not exist yet.
func (d *Database) Migrate(ctx context.Context) error {
	migrations := []string{
		createSalesCallsTable,
		createTranscriptsTable,
		createUtterancesTable,
		createCoachableMomentsTable,
		createExecutiveSummariesTable,
		createIndexes,
	}

	for i, migration := range migrations {
		d.logger.WithField("migration", i+1).Debug("Running migration")

		if _, err := d.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

// Database schema definitions
const createSalesCallsTable = `
CREATE TABLE IF NOT EXISTS sales_calls (
    id BIGSERIAL PRIMARY KEY,
    call_id VARCHAR(255) NOT NULL UNIQUE,
    agent_id VARCHAR(255) NOT NULL,
    customer_id VARCHAR(255) NOT NULL,
    audio_file_path VARCHAR(512) NOT NULL,
    duration DOUBLE PRECISION NOT NULL DEFAULT 0,
    status VARCHAR(32) NOT NULL DEFAULT 'processing',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const createTranscriptsTable = `
CREATE TABLE IF NOT EXISTS transcripts (
    id BIGSERIAL PRIMARY KEY,
    call_id VARCHAR(255) NOT NULL UNIQUE REFERENCES sales_calls(call_id) ON DELETE CASCADE,
    full_text TEXT NOT NULL,
    duration DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const createUtterancesTable = `
CREATE TABLE IF NOT EXISTS utterances (
    id BIGSERIAL PRIMARY KEY,
    call_id VARCHAR(255) NOT NULL REFERENCES sales_calls(call_id) ON DELETE CASCADE,
    position INT NOT NULL,
    speaker_id VARCHAR(64) NOT NULL,
    text TEXT NOT NULL,
    start_time DOUBLE PRECISION NOT NULL,
    end_time DOUBLE PRECISION NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment_label VARCHAR(16) NOT NULL DEFAULT 'neutral'
);
`

const createCoachableMomentsTable = `
CREATE TABLE IF NOT EXISTS coachable_moments (
    id BIGSERIAL PRIMARY KEY,
    call_id VARCHAR(255) NOT NULL REFERENCES sales_calls(call_id) ON DELETE CASCADE,
    moment_type VARCHAR(64) NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    start_time DOUBLE PRECISION NOT NULL,
    end_time DOUBLE PRECISION NOT NULL,
    description TEXT NOT NULL,
    transcript_segment TEXT NOT NULL,
    recommendations JSONB,
    speaker_id VARCHAR(64) NOT NULL DEFAULT '',
    sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const createExecutiveSummariesTable = `
CREATE TABLE IF NOT EXISTS executive_summaries (
    id BIGSERIAL PRIMARY KEY,
    call_id VARCHAR(255) NOT NULL UNIQUE REFERENCES sales_calls(call_id) ON DELETE CASCADE,
    summary TEXT NOT NULL,
    key_points JSONB,
    action_items JSONB,
    sentiment_overview TEXT NOT NULL DEFAULT '',
    call_outcome VARCHAR(32) NOT NULL DEFAULT '',
    call_analysis JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_sales_calls_status ON sales_calls (status);
CREATE INDEX IF NOT EXISTS idx_sales_calls_agent ON sales_calls (agent_id);
CREATE INDEX IF NOT EXISTS idx_utterances_call ON utterances (call_id, position);
CREATE INDEX IF NOT EXISTS idx_moments_call ON coachable_moments (call_id);
CREATE INDEX IF NOT EXISTS idx_moments_type ON coachable_moments (call_id, moment_type);
`
