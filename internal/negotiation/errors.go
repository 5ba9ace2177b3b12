package negotiation

import (
	"fmt"

	"github.com/dealdesk/dealdesk/internal/catalog"
)

// InvalidRequestError reports a malformed start request. It is surfaced to the
// observer as a single error event before any party is created.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// GenerationError reports a failed reasoning call for one party's turn
type GenerationError struct {
	Party string
	Op    string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %s during %s: %v", e.Party, e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// DecisionFormatError reports a structured decision that failed validation:
// the winner is not a participating counterparty, or the comparison does not
// cover exactly the participating set.
type DecisionFormatError struct {
	Reason string
}

func (e *DecisionFormatError) Error() string {
	return fmt.Sprintf("malformed decision: %s", e.Reason)
}

// NotFoundError identifies lookups of unknown catalog records. Lookups are
// owned by the catalog package; the alias keeps errors.As working against
// either name.
type NotFoundError = catalog.NotFoundError

// TransportError reports a broken observer channel. It is logged and
// swallowed by the publisher; it never fails a session.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
