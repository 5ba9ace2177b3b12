package negotiation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/reasoning"
)

// ComparisonEntry is the buyer's assessment of one counterparty across the
// fixed comparison dimensions
type ComparisonEntry struct {
	CostAssessment         string `json:"cost_assessment"`
	QualityAssessment      string `json:"quality_assessment"`
	LeadTimeAssessment     string `json:"lead_time_assessment"`
	PaymentTermsAssessment string `json:"payment_terms_assessment"`
	OverallScore           string `json:"overall_score"`
}

// Decision is the buyer's final ranked outcome: exactly one winner and one
// comparison entry per participating counterparty. Immutable once created.
type Decision struct {
	WinnerID   string                     `json:"winner_id"`
	WinnerName string                     `json:"winner_name"`
	Reasoning  string                     `json:"reasoning"`
	Comparison map[string]ComparisonEntry `json:"comparison"`
}

// decisionPayload is the structured-output wire shape. Strict response
// schemas forbid dynamic object keys, so the comparison travels as an array
// of per-counterparty objects and is converted to a map after validation.
type decisionPayload struct {
	WinnerID   string           `json:"winner_id"`
	WinnerName string           `json:"winner_name"`
	Reasoning  string           `json:"reasoning"`
	Comparison []comparisonItem `json:"comparison"`
}

type comparisonItem struct {
	CounterpartyID string `json:"counterparty_id"`
	ComparisonEntry
}

const decisionSchema = `{
  "type": "object",
  "properties": {
    "winner_id": {"type": "string"},
    "winner_name": {"type": "string"},
    "reasoning": {"type": "string"},
    "comparison": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "counterparty_id": {"type": "string"},
          "cost_assessment": {"type": "string"},
          "quality_assessment": {"type": "string"},
          "lead_time_assessment": {"type": "string"},
          "payment_terms_assessment": {"type": "string"},
          "overall_score": {"type": "string"}
        },
        "required": [
          "counterparty_id",
          "cost_assessment",
          "quality_assessment",
          "lead_time_assessment",
          "payment_terms_assessment",
          "overall_score"
        ],
        "additionalProperties": false
      }
    }
  },
  "required": ["winner_id", "winner_name", "reasoning", "comparison"],
  "additionalProperties": false
}`

// Decide runs the single structured reasoning call that ends a negotiation.
// positions maps counterparty id to that counterparty's final reply text.
// The returned decision is fully validated: a winner outside the
// participating set, or a comparison that does not cover it exactly, is a
// DecisionFormatError, never coerced.
func (b *Buyer) Decide(ctx context.Context, positions map[string]string) (*Decision, error) {
	msgs := []reasoning.ChatMessage{
		{Role: "system", Content: b.system},
		{Role: "user", Content: decisionInstruction(b.profiles, positions)},
	}

	var payload decisionPayload
	err := b.svc.GenerateStructured(ctx, msgs, reasoning.ResponseSchema{
		Name:   "negotiation_decision",
		Schema: json.RawMessage(decisionSchema),
	}, &payload)
	if err != nil {
		return nil, &GenerationError{Party: "buyer", Op: "decision", Err: err}
	}

	decision, err := payload.toDecision(b.profiles)
	if err != nil {
		return nil, err
	}

	b.log.Info().
		Str("winner_id", decision.WinnerID).
		Str("winner_name", decision.WinnerName).
		Msg("Decision made")
	return decision, nil
}

func (p *decisionPayload) toDecision(profiles []catalog.CounterpartyProfile) (*Decision, error) {
	ids := make(map[string]bool, len(profiles))
	for _, profile := range profiles {
		ids[profile.ID] = true
	}

	if !ids[p.WinnerID] {
		return nil, &DecisionFormatError{
			Reason: fmt.Sprintf("winner %q is not a participating counterparty", p.WinnerID),
		}
	}

	comparison := make(map[string]ComparisonEntry, len(p.Comparison))
	for _, item := range p.Comparison {
		if !ids[item.CounterpartyID] {
			return nil, &DecisionFormatError{
				Reason: fmt.Sprintf("comparison entry for unknown counterparty %q", item.CounterpartyID),
			}
		}
		if _, dup := comparison[item.CounterpartyID]; dup {
			return nil, &DecisionFormatError{
				Reason: fmt.Sprintf("duplicate comparison entry for counterparty %q", item.CounterpartyID),
			}
		}
		comparison[item.CounterpartyID] = item.ComparisonEntry
	}
	for _, profile := range profiles {
		if _, ok := comparison[profile.ID]; !ok {
			return nil, &DecisionFormatError{
				Reason: fmt.Sprintf("comparison missing entry for counterparty %q", profile.ID),
			}
		}
	}

	return &Decision{
		WinnerID:   p.WinnerID,
		WinnerName: p.WinnerName,
		Reasoning:  p.Reasoning,
		Comparison: comparison,
	}, nil
}
