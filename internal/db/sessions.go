package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/negotiation"
)

// NegotiationSession is one persisted negotiation session record
type NegotiationSession struct {
	ID                uuid.UUID  `json:"id"`
	Status            string     `json:"status"`
	Rounds            int        `json:"rounds"`
	CounterpartyCount int        `json:"counterparty_count"`
	Note              string     `json:"note,omitempty"`
	Error             *string    `json:"error,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Ensure DB satisfies the orchestrator's outcome recording seam
var _ negotiation.OutcomeRecorder = (*DB)(nil)

// RecordStarted inserts the session row when a negotiation begins
func (db *DB) RecordStarted(ctx context.Context, sessionID uuid.UUID, rounds, counterparties int, note string) error {
	query := `
		INSERT INTO negotiation_sessions (
			id, status, rounds, counterparty_count, note, started_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
	`

	_, err := db.pool.Exec(ctx, query,
		sessionID,
		string(negotiation.StatusNegotiating),
		rounds,
		counterparties,
		note,
		time.Now(),
	)
	if err != nil {
		db.log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Msg("Failed to record session start")
		return fmt.Errorf("failed to record session start: %w", err)
	}

	db.log.Info().
		Str("session_id", sessionID.String()).
		Int("rounds", rounds).
		Int("counterparties", counterparties).
		Msg("Negotiation session recorded")

	return nil
}

// RecordOutcome upserts the session's terminal state and, for decided
// sessions, stores the decision. The upsert covers sessions rejected before
// RecordStarted ever ran.
func (db *DB) RecordOutcome(ctx context.Context, outcome negotiation.Outcome) error {
	query := `
		INSERT INTO negotiation_sessions (
			id, status, rounds, counterparty_count, note, error,
			started_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`

	_, err := db.pool.Exec(ctx, query,
		outcome.SessionID,
		string(outcome.Status),
		outcome.Rounds,
		outcome.CounterpartyCount,
		outcome.Note,
		outcome.Error,
		outcome.StartedAt,
		outcome.CompletedAt,
	)
	if err != nil {
		db.log.Error().
			Err(err).
			Str("session_id", outcome.SessionID.String()).
			Msg("Failed to record session outcome")
		return fmt.Errorf("failed to record session outcome: %w", err)
	}

	if outcome.Decision != nil {
		if err := db.InsertDecision(ctx, outcome.SessionID, outcome.Decision); err != nil {
			return err
		}
	}

	db.log.Info().
		Str("session_id", outcome.SessionID.String()).
		Str("status", string(outcome.Status)).
		Msg("Negotiation outcome recorded")

	return nil
}

// GetNegotiationSession retrieves one session record by id
func (db *DB) GetNegotiationSession(ctx context.Context, sessionID uuid.UUID) (*NegotiationSession, error) {
	query := `
		SELECT id, status, rounds, counterparty_count, note, error,
		       started_at, completed_at, created_at, updated_at
		FROM negotiation_sessions
		WHERE id = $1
	`

	var s NegotiationSession
	err := db.pool.QueryRow(ctx, query, sessionID).Scan(
		&s.ID,
		&s.Status,
		&s.Rounds,
		&s.CounterpartyCount,
		&s.Note,
		&s.Error,
		&s.StartedAt,
		&s.CompletedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get negotiation session: %w", err)
	}

	return &s, nil
}

// ListRecentSessions returns the most recently started sessions
func (db *DB) ListRecentSessions(ctx context.Context, limit int) ([]*NegotiationSession, error) {
	query := `
		SELECT id, status, rounds, counterparty_count, note, error,
		       started_at, completed_at, created_at, updated_at
		FROM negotiation_sessions
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list negotiation sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*NegotiationSession
	for rows.Next() {
		var s NegotiationSession
		err := rows.Scan(
			&s.ID,
			&s.Status,
			&s.Rounds,
			&s.CounterpartyCount,
			&s.Note,
			&s.Error,
			&s.StartedAt,
			&s.CompletedAt,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}
