package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/dealdesk/internal/negotiation"
)

// NegotiationDecision is one persisted decision record. Comparison is stored
// as JSONB keyed by counterparty id.
type NegotiationDecision struct {
	ID         uuid.UUID       `json:"id"`
	SessionID  uuid.UUID       `json:"session_id"`
	WinnerID   string          `json:"winner_id"`
	WinnerName string          `json:"winner_name"`
	Reasoning  string          `json:"reasoning"`
	Comparison json.RawMessage `json:"comparison"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Decision converts the stored record back into the domain decision
func (d *NegotiationDecision) Decision() (*negotiation.Decision, error) {
	var comparison map[string]negotiation.ComparisonEntry
	if err := json.Unmarshal(d.Comparison, &comparison); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision comparison: %w", err)
	}
	return &negotiation.Decision{
		WinnerID:   d.WinnerID,
		WinnerName: d.WinnerName,
		Reasoning:  d.Reasoning,
		Comparison: comparison,
	}, nil
}

// InsertDecision stores the final decision of a decided session
func (db *DB) InsertDecision(ctx context.Context, sessionID uuid.UUID, decision *negotiation.Decision) error {
	comparison, err := json.Marshal(decision.Comparison)
	if err != nil {
		return fmt.Errorf("failed to marshal decision comparison: %w", err)
	}

	query := `
		INSERT INTO negotiation_decisions (
			id, session_id, winner_id, winner_name, reasoning, comparison, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
		ON CONFLICT (session_id) DO NOTHING
	`

	_, err = db.pool.Exec(ctx, query,
		uuid.New(),
		sessionID,
		decision.WinnerID,
		decision.WinnerName,
		decision.Reasoning,
		comparison,
	)
	if err != nil {
		db.log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Msg("Failed to insert decision")
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	db.log.Info().
		Str("session_id", sessionID.String()).
		Str("winner_id", decision.WinnerID).
		Msg("Decision stored")

	return nil
}

// GetDecision retrieves the decision of one session
func (db *DB) GetDecision(ctx context.Context, sessionID uuid.UUID) (*NegotiationDecision, error) {
	query := `
		SELECT id, session_id, winner_id, winner_name, reasoning, comparison, created_at
		FROM negotiation_decisions
		WHERE session_id = $1
	`

	var d NegotiationDecision
	err := db.pool.QueryRow(ctx, query, sessionID).Scan(
		&d.ID,
		&d.SessionID,
		&d.WinnerID,
		&d.WinnerName,
		&d.Reasoning,
		&d.Comparison,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	return &d, nil
}

// ListDecisionsByWinner returns recent decisions won by one counterparty
func (db *DB) ListDecisionsByWinner(ctx context.Context, winnerID string, limit int) ([]*NegotiationDecision, error) {
	query := `
		SELECT id, session_id, winner_id, winner_name, reasoning, comparison, created_at
		FROM negotiation_decisions
		WHERE winner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, winnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*NegotiationDecision
	for rows.Next() {
		var d NegotiationDecision
		err := rows.Scan(
			&d.ID,
			&d.SessionID,
			&d.WinnerID,
			&d.WinnerName,
			&d.Reasoning,
			&d.Comparison,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, &d)
	}

	return decisions, rows.Err()
}
