package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/reasoning"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	products := []catalog.Product{
		{
			Code: "SNK-URB-001", Name: "Urban Runner Sneaker", TargetFOB: 24.50,
			Components: []catalog.ProductComponent{
				{Type: "material", Name: "Engineered mesh upper", Composition: "92% polyester, 8% elastane"},
				{Type: "component", Name: "EVA midsole"},
			},
		},
		{Code: "BOT-CHS-002", Name: "Chelsea Boot", TargetFOB: 41.00},
	}
	counterparties := []catalog.CounterpartyProfile{
		{ID: "supplier-a", Name: "Supplier A", QualityRating: 4.0, CostTier: "cheapest", LeadTimeDays: 45, PaymentTerms: "33/33/33 (order/shipment/delivery)", PriceMultiplier: 0.85},
		{ID: "supplier-b", Name: "Supplier B", QualityRating: 4.7, CostTier: "moderate", LeadTimeDays: 25, PaymentTerms: "30/70 (order/delivery)", PriceMultiplier: 1.05},
		{ID: "supplier-c", Name: "Supplier C", QualityRating: 4.0, CostTier: "expensive", LeadTimeDays: 15, PaymentTerms: "30/70 (order/delivery)", PriceMultiplier: 1.20},
	}
	cat, err := catalog.New(products, counterparties)
	require.NoError(t, err)
	return cat
}

const scriptedDecision = `{
  "winner_id": "supplier-b",
  "winner_name": "Supplier B",
  "reasoning": "Best balance of quality, lead time and terms.",
  "comparison": [
    {"counterparty_id": "supplier-a", "cost_assessment": "lowest quotes", "quality_assessment": "solid", "lead_time_assessment": "slowest", "payment_terms_assessment": "most flexible", "overall_score": "7 of 10"},
    {"counterparty_id": "supplier-b", "cost_assessment": "mid-range", "quality_assessment": "highest rated", "lead_time_assessment": "fast", "payment_terms_assessment": "workable", "overall_score": "9 of 10"},
    {"counterparty_id": "supplier-c", "cost_assessment": "premium", "quality_assessment": "solid", "lead_time_assessment": "fastest", "payment_terms_assessment": "workable", "overall_score": "6 of 10"}
  ]
}`

// decidingMock is a scripted reasoning fake that answers every generation
// deterministically and returns a valid decision for the structured call
func decidingMock() *reasoning.MockService {
	mock := reasoning.NewMockService()
	mock.StructuredFunc = func(call int, messages []reasoning.ChatMessage, schema reasoning.ResponseSchema) (string, error) {
		return scriptedDecision, nil
	}
	return mock
}

func newTestOrchestrator(t *testing.T, svc reasoning.Service, store OutcomeRecorder) *Orchestrator {
	t.Helper()
	return New(Config{}, testCatalog(t), svc, nil, store, zerolog.Nop())
}

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(events))
		}
	}
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type recordingStore struct {
	mu       sync.Mutex
	started  []uuid.UUID
	outcomes []Outcome
}

func (r *recordingStore) RecordStarted(ctx context.Context, sessionID uuid.UUID, rounds, counterparties int, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, sessionID)
	return nil
}

func (r *recordingStore) RecordOutcome(ctx context.Context, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *recordingStore) lastOutcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return Outcome{}, false
	}
	return r.outcomes[len(r.outcomes)-1], true
}

func TestSuccessfulSession(t *testing.T) {
	o := newTestOrchestrator(t, decidingMock(), nil)

	ch, err := o.Start(context.Background(), StartRequest{
		Quantities: map[string]int{"SNK-URB-001": 1000},
	})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.NotEmpty(t, events)

	// Sequence numbers are assigned by one writer: strictly increasing from 1
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}

	// done is last and exactly once; one decision; no errors
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Len(t, eventsOfType(events, EventDone), 1)
	assert.Len(t, eventsOfType(events, EventError), 0)

	decisions := eventsOfType(events, EventDecision)
	require.Len(t, decisions, 1)
	assert.Equal(t, "supplier-b", decisions[0].WinnerID)
	assert.Equal(t, "Supplier B", decisions[0].WinnerName)
	assert.Len(t, decisions[0].Comparison, 3)

	// 3 rounds x 3 counterparties x 2 turns
	msgs := eventsOfType(events, EventMessage)
	require.Len(t, msgs, 18)

	perCounterparty := make(map[string]int)
	for _, m := range msgs {
		perCounterparty[m.CounterpartyID]++
		assert.NotEmpty(t, m.Content)
		assert.Contains(t, []Role{RoleBuyer, RoleCounterparty}, m.Role)
	}
	assert.Equal(t, map[string]int{"supplier-a": 6, "supplier-b": 6, "supplier-c": 6}, perCounterparty)

	// Message pairs stay adjacent: buyer turn immediately followed by the
	// same counterparty's reply for the same round
	for i := 0; i < len(msgs); i += 2 {
		buyerMsg, reply := msgs[i], msgs[i+1]
		assert.Equal(t, RoleBuyer, buyerMsg.Role)
		assert.Equal(t, RoleCounterparty, reply.Role)
		assert.Equal(t, buyerMsg.CounterpartyID, reply.CounterpartyID)
		assert.Equal(t, buyerMsg.Round, reply.Round)
	}

	// No round n+1 message before every round n message
	firstOfRound := make(map[int]int)
	lastOfRound := make(map[int]int)
	for i, m := range msgs {
		if _, ok := firstOfRound[m.Round]; !ok {
			firstOfRound[m.Round] = i
		}
		lastOfRound[m.Round] = i
	}
	for round := 1; round < 3; round++ {
		assert.Less(t, lastOfRound[round], firstOfRound[round+1],
			"round %d must fully resolve before round %d starts", round, round+1)
	}
}

func TestPrivatePricingNeverInEvents(t *testing.T) {
	o := newTestOrchestrator(t, decidingMock(), nil)

	ch, err := o.Start(context.Background(), StartRequest{
		Quantities: map[string]int{"SNK-URB-001": 500, "BOT-CHS-002": 200},
	})
	require.NoError(t, err)

	for _, e := range collectEvents(t, ch) {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "multiplier")
		assert.NotContains(t, string(data), "0.85")
		assert.NotContains(t, string(data), "1.05")
	}
}

func TestInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     StartRequest
		wantMsg string
	}{
		{
			name:    "zero quantity",
			req:     StartRequest{Quantities: map[string]int{"SNK-URB-001": 0}},
			wantMsg: "invalid quantity",
		},
		{
			name:    "negative quantity",
			req:     StartRequest{Quantities: map[string]int{"SNK-URB-001": -5}},
			wantMsg: "invalid quantity",
		},
		{
			name:    "no products",
			req:     StartRequest{Quantities: map[string]int{}},
			wantMsg: "at least one product",
		},
		{
			name:    "unknown product code",
			req:     StartRequest{Quantities: map[string]int{"NOPE-000": 10}},
			wantMsg: "unknown product code",
		},
		{
			name: "unknown counterparty",
			req: StartRequest{
				Quantities:      map[string]int{"SNK-URB-001": 10},
				CounterpartyIDs: []string{"supplier-a", "supplier-z"},
			},
			wantMsg: "not found",
		},
		{
			name: "too few counterparties",
			req: StartRequest{
				Quantities:      map[string]int{"SNK-URB-001": 10},
				CounterpartyIDs: []string{"supplier-a"},
			},
			wantMsg: "at least two counterparties",
		},
		{
			name: "negative rounds",
			req: StartRequest{
				Quantities: map[string]int{"SNK-URB-001": 10},
				Rounds:     -1,
			},
			wantMsg: "invalid round count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := decidingMock()
			o := newTestOrchestrator(t, mock, nil)

			ch, err := o.Start(context.Background(), tt.req)
			require.NoError(t, err)

			events := collectEvents(t, ch)
			require.Len(t, events, 2, "a rejected request yields exactly error then done")
			assert.Equal(t, EventError, events[0].Type)
			assert.Contains(t, events[0].Message, tt.wantMsg)
			assert.Equal(t, EventDone, events[1].Type)

			// No party was instantiated, so no reasoning call happened
			assert.Zero(t, mock.Calls())
		})
	}
}

func TestOpeningFailureAbortsSession(t *testing.T) {
	mock := decidingMock()
	mock.GenerateFunc = func(call int, messages []reasoning.ChatMessage) (string, error) {
		last := messages[len(messages)-1].Content
		if strings.Contains(last, "RFQ") && strings.Contains(last, "Supplier B") {
			return "", errors.New("model unavailable")
		}
		return fmt.Sprintf("reply %d", call), nil
	}
	store := &recordingStore{}
	o := newTestOrchestrator(t, mock, store)

	ch, err := o.Start(context.Background(), StartRequest{
		Quantities: map[string]int{"SNK-URB-001": 1000},
	})
	require.NoError(t, err)

	events := collectEvents(t, ch)

	// The surviving chains finished and published their pairs
	msgs := eventsOfType(events, EventMessage)
	require.Len(t, msgs, 4)
	seen := make(map[string]int)
	for _, m := range msgs {
		seen[m.CounterpartyID]++
		assert.Equal(t, 1, m.Round)
	}
	assert.Equal(t, map[string]int{"supplier-a": 2, "supplier-c": 2}, seen)

	// One error, no decision, done last
	errs := eventsOfType(events, EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "generation failed")
	assert.Empty(t, eventsOfType(events, EventDecision))
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	// Sibling pairs were published before the failure surfaced
	var errIdx int
	for i, e := range events {
		if e.Type == EventError {
			errIdx = i
		}
	}
	for i, e := range events {
		if e.Type == EventMessage {
			assert.Less(t, i, errIdx)
		}
	}

	require.Eventually(t, func() bool {
		outcome, ok := store.lastOutcome()
		return ok && outcome.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	outcome, _ := store.lastOutcome()
	assert.Contains(t, outcome.Error, "generation failed")
	assert.Nil(t, outcome.Decision)
}

func TestMalformedDecisionFailsSession(t *testing.T) {
	tests := []struct {
		name     string
		decision string
		wantMsg  string
	}{
		{
			name: "missing comparison entry",
			decision: `{
				"winner_id": "supplier-a",
				"winner_name": "Supplier A",
				"reasoning": "cheapest",
				"comparison": [
					{"counterparty_id": "supplier-a", "cost_assessment": "low", "quality_assessment": "ok", "lead_time_assessment": "slow", "payment_terms_assessment": "good", "overall_score": "7"},
					{"counterparty_id": "supplier-b", "cost_assessment": "mid", "quality_assessment": "best", "lead_time_assessment": "fast", "payment_terms_assessment": "ok", "overall_score": "8"}
				]
			}`,
			wantMsg: "missing entry",
		},
		{
			name: "winner outside participating set",
			decision: `{
				"winner_id": "supplier-z",
				"winner_name": "Supplier Z",
				"reasoning": "made up",
				"comparison": []
			}`,
			wantMsg: "not a participating counterparty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := reasoning.NewMockService()
			mock.StructuredFunc = func(call int, messages []reasoning.ChatMessage, schema reasoning.ResponseSchema) (string, error) {
				return tt.decision, nil
			}
			o := newTestOrchestrator(t, mock, nil)

			ch, err := o.Start(context.Background(), StartRequest{
				Quantities: map[string]int{"SNK-URB-001": 100},
			})
			require.NoError(t, err)

			events := collectEvents(t, ch)

			// All rounds completed before the decision failed
			assert.Len(t, eventsOfType(events, EventMessage), 18)
			assert.Empty(t, eventsOfType(events, EventDecision))

			errs := eventsOfType(events, EventError)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Message, "malformed decision")
			assert.Contains(t, errs[0].Message, tt.wantMsg)
			assert.Equal(t, EventDone, events[len(events)-1].Type)
		})
	}
}

func TestOutcomeRecordedOnSuccess(t *testing.T) {
	store := &recordingStore{}
	o := newTestOrchestrator(t, decidingMock(), store)

	ch, err := o.Start(context.Background(), StartRequest{
		Quantities: map[string]int{"SNK-URB-001": 1000},
		Note:       "prioritize lead time",
	})
	require.NoError(t, err)
	collectEvents(t, ch)

	require.Eventually(t, func() bool {
		outcome, ok := store.lastOutcome()
		return ok && outcome.Status == StatusDecided
	}, 2*time.Second, 10*time.Millisecond)

	outcome, _ := store.lastOutcome()
	assert.Equal(t, 3, outcome.Rounds)
	assert.Equal(t, 3, outcome.CounterpartyCount)
	assert.Equal(t, "prioritize lead time", outcome.Note)
	assert.Empty(t, outcome.Error)
	require.NotNil(t, outcome.Decision)
	assert.Equal(t, "supplier-b", outcome.Decision.WinnerID)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.started, 1)
	assert.Equal(t, outcome.SessionID, store.started[0])
}

func TestConfigurableRoundsAndSubset(t *testing.T) {
	mock := reasoning.NewMockService()
	mock.StructuredFunc = func(call int, messages []reasoning.ChatMessage, schema reasoning.ResponseSchema) (string, error) {
		return `{
			"winner_id": "supplier-a",
			"winner_name": "Supplier A",
			"reasoning": "cheapest of the two",
			"comparison": [
				{"counterparty_id": "supplier-a", "cost_assessment": "low", "quality_assessment": "ok", "lead_time_assessment": "slow", "payment_terms_assessment": "good", "overall_score": "8"},
				{"counterparty_id": "supplier-c", "cost_assessment": "high", "quality_assessment": "ok", "lead_time_assessment": "fast", "payment_terms_assessment": "ok", "overall_score": "6"}
			]
		}`, nil
	}
	o := newTestOrchestrator(t, mock, nil)

	ch, err := o.Start(context.Background(), StartRequest{
		Quantities:      map[string]int{"BOT-CHS-002": 300},
		CounterpartyIDs: []string{"supplier-a", "supplier-c"},
		Rounds:          2,
	})
	require.NoError(t, err)

	events := collectEvents(t, ch)

	msgs := eventsOfType(events, EventMessage)
	assert.Len(t, msgs, 2*2*2)
	for _, m := range msgs {
		assert.NotEqual(t, "supplier-b", m.CounterpartyID)
	}

	decisions := eventsOfType(events, EventDecision)
	require.Len(t, decisions, 1)
	assert.Equal(t, "supplier-a", decisions[0].WinnerID)
	assert.Len(t, decisions[0].Comparison, 2)
}

func TestParallelSessionsAreIndependent(t *testing.T) {
	o := newTestOrchestrator(t, decidingMock(), nil)

	first, err := o.Start(context.Background(), StartRequest{
		Quantities: map[string]int{"SNK-URB-001": 100},
	})
	require.NoError(t, err)
	second, err := o.Start(context.Background(), StartRequest{
		Quantities: map[string]int{"BOT-CHS-002": 50},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]Event, 2)
	for i, ch := range []<-chan Event{first, second} {
		wg.Add(1)
		go func(idx int, events <-chan Event) {
			defer wg.Done()
			var got []Event
			for e := range events {
				got = append(got, e)
			}
			results[idx] = got
		}(i, ch)
	}
	wg.Wait()

	for _, events := range results {
		require.NotEmpty(t, events)
		assert.Len(t, eventsOfType(events, EventMessage), 18)
		assert.Len(t, eventsOfType(events, EventDecision), 1)
		assert.Equal(t, EventDone, events[len(events)-1].Type)
	}
}

func TestStartRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, nil, decidingMock(), nil, nil, zerolog.Nop()).
		Start(context.Background(), StartRequest{Quantities: map[string]int{"SNK-URB-001": 1}})
	require.Error(t, err)

	_, err = New(Config{}, testCatalog(t), nil, nil, nil, zerolog.Nop()).
		Start(context.Background(), StartRequest{Quantities: map[string]int{"SNK-URB-001": 1}})
	require.Error(t, err)
}
