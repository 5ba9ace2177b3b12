package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/dealdesk/internal/negotiation"
)

func setupMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewWithPool(mock), mock
}

func TestRecordStarted(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()

	mock.ExpectExec("INSERT INTO negotiation_sessions").
		WithArgs(sessionID, "negotiating", 3, 3, "prioritize lead time", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.RecordStarted(context.Background(), sessionID, 3, 3, "prioritize lead time")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStartedFailure(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()

	mock.ExpectExec("INSERT INTO negotiation_sessions").
		WithArgs(sessionID, "negotiating", 3, 2, "", pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	err := store.RecordStarted(context.Background(), sessionID, 3, 2, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record session start")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeDecided(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()
	started := time.Now().Add(-time.Minute)
	completed := time.Now()

	decision := &negotiation.Decision{
		WinnerID:   "supplier-b",
		WinnerName: "Supplier B",
		Reasoning:  "best overall balance",
		Comparison: map[string]negotiation.ComparisonEntry{
			"supplier-a": {CostAssessment: "low", OverallScore: "7"},
			"supplier-b": {CostAssessment: "mid", OverallScore: "9"},
		},
	}

	mock.ExpectExec("INSERT INTO negotiation_sessions").
		WithArgs(sessionID, "decided", 3, 2, "", "", started, completed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO negotiation_decisions").
		WithArgs(pgxmock.AnyArg(), sessionID, "supplier-b", "Supplier B", "best overall balance", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.RecordOutcome(context.Background(), negotiation.Outcome{
		SessionID:         sessionID,
		Status:            negotiation.StatusDecided,
		Rounds:            3,
		CounterpartyCount: 2,
		Decision:          decision,
		StartedAt:         started,
		CompletedAt:       completed,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeFailedSession(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()
	started := time.Now().Add(-time.Second)
	completed := time.Now()

	// A failed session stores its error and no decision row
	mock.ExpectExec("INSERT INTO negotiation_sessions").
		WithArgs(sessionID, "failed", 3, 3, "", "generation failed for buyer during opening: model unavailable", started, completed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.RecordOutcome(context.Background(), negotiation.Outcome{
		SessionID:         sessionID,
		Status:            negotiation.StatusFailed,
		Rounds:            3,
		CounterpartyCount: 3,
		Error:             "generation failed for buyer during opening: model unavailable",
		StartedAt:         started,
		CompletedAt:       completed,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNegotiationSession(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()
	started := time.Now().Add(-time.Minute)
	completed := time.Now()
	now := time.Now()

	rows := pgxmock.NewRows([]string{
		"id", "status", "rounds", "counterparty_count", "note", "error",
		"started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(sessionID, "decided", 3, 3, "rush order", (*string)(nil), started, &completed, now, now)

	mock.ExpectQuery("SELECT (.+) FROM negotiation_sessions").
		WithArgs(sessionID).
		WillReturnRows(rows)

	session, err := store.GetNegotiationSession(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, sessionID, session.ID)
	assert.Equal(t, "decided", session.Status)
	assert.Equal(t, 3, session.Rounds)
	assert.Equal(t, 3, session.CounterpartyCount)
	assert.Equal(t, "rush order", session.Note)
	assert.Nil(t, session.Error)
	require.NotNil(t, session.CompletedAt)
	assert.WithinDuration(t, completed, *session.CompletedAt, time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNegotiationSessionNotFound(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM negotiation_sessions").
		WithArgs(sessionID).
		WillReturnError(pgx.ErrNoRows)

	session, err := store.GetNegotiationSession(context.Background(), sessionID)
	require.Error(t, err)
	assert.Nil(t, session)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentSessions(t *testing.T) {
	store, mock := setupMockDB(t)
	now := time.Now()

	first, second := uuid.New(), uuid.New()
	rows := pgxmock.NewRows([]string{
		"id", "status", "rounds", "counterparty_count", "note", "error",
		"started_at", "completed_at", "created_at", "updated_at",
	}).
		AddRow(first, "decided", 3, 3, "", (*string)(nil), now, &now, now, now).
		AddRow(second, "failed", 2, 2, "", strPtr("model unavailable"), now.Add(-time.Hour), &now, now, now)

	mock.ExpectQuery("SELECT (.+) FROM negotiation_sessions").
		WithArgs(10).
		WillReturnRows(rows)

	sessions, err := store.ListRecentSessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, "failed", sessions[1].Status)
	require.NotNil(t, sessions[1].Error)
	assert.Equal(t, "model unavailable", *sessions[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDecision(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()

	mock.ExpectExec("INSERT INTO negotiation_decisions").
		WithArgs(pgxmock.AnyArg(), sessionID, "supplier-a", "Supplier A", "cheapest viable offer", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.InsertDecision(context.Background(), sessionID, &negotiation.Decision{
		WinnerID:   "supplier-a",
		WinnerName: "Supplier A",
		Reasoning:  "cheapest viable offer",
		Comparison: map[string]negotiation.ComparisonEntry{
			"supplier-a": {CostAssessment: "low", OverallScore: "8"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecisionRoundtrip(t *testing.T) {
	store, mock := setupMockDB(t)
	sessionID := uuid.New()
	decisionID := uuid.New()
	now := time.Now()

	comparison := []byte(`{
		"supplier-a": {"cost_assessment": "low", "quality_assessment": "ok", "lead_time_assessment": "slow", "payment_terms_assessment": "good", "overall_score": "7"},
		"supplier-b": {"cost_assessment": "mid", "quality_assessment": "best", "lead_time_assessment": "fast", "payment_terms_assessment": "ok", "overall_score": "9"}
	}`)

	rows := pgxmock.NewRows([]string{
		"id", "session_id", "winner_id", "winner_name", "reasoning", "comparison", "created_at",
	}).AddRow(decisionID, sessionID, "supplier-b", "Supplier B", "best balance", comparison, now)

	mock.ExpectQuery("SELECT (.+) FROM negotiation_decisions").
		WithArgs(sessionID).
		WillReturnRows(rows)

	record, err := store.GetDecision(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "supplier-b", record.WinnerID)

	decision, err := record.Decision()
	require.NoError(t, err)
	require.Len(t, decision.Comparison, 2)
	assert.Equal(t, "best", decision.Comparison["supplier-b"].QualityAssessment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDecisionsByWinner(t *testing.T) {
	store, mock := setupMockDB(t)
	now := time.Now()

	rows := pgxmock.NewRows([]string{
		"id", "session_id", "winner_id", "winner_name", "reasoning", "comparison", "created_at",
	}).
		AddRow(uuid.New(), uuid.New(), "supplier-b", "Supplier B", "quality", []byte(`{}`), now).
		AddRow(uuid.New(), uuid.New(), "supplier-b", "Supplier B", "terms", []byte(`{}`), now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM negotiation_decisions").
		WithArgs("supplier-b", 5).
		WillReturnRows(rows)

	decisions, err := store.ListDecisionsByWinner(context.Background(), "supplier-b", 5)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	for _, d := range decisions {
		assert.Equal(t, "supplier-b", d.WinnerID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string {
	return &s
}
