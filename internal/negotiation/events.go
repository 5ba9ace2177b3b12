package negotiation

// EventType identifies one kind of observer event
type EventType string

const (
	EventStatus   EventType = "status"
	EventMessage  EventType = "message"
	EventDecision EventType = "decision"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Role identifies which side of a bilateral exchange authored a message
type Role string

const (
	RoleBuyer        Role = "buyer"
	RoleCounterparty Role = "counterparty"
)

// Event is the envelope streamed to the observer. One flat shape covers the
// whole union; unused fields are omitted on the wire. Seq is assigned by the
// session's publisher goroutine and is strictly increasing per session.
type Event struct {
	Seq  uint64    `json:"seq"`
	Type EventType `json:"type"`

	// status and error
	Message string `json:"message,omitempty"`

	// message
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Role           Role   `json:"role,omitempty"`
	Content        string `json:"content,omitempty"`
	Round          int    `json:"round,omitempty"`

	// decision
	WinnerID   string                     `json:"winner_id,omitempty"`
	WinnerName string                     `json:"winner_name,omitempty"`
	Reasoning  string                     `json:"reasoning,omitempty"`
	Comparison map[string]ComparisonEntry `json:"comparison,omitempty"`
}

// NewStatusEvent reports human-readable negotiation progress
func NewStatusEvent(message string) Event {
	return Event{Type: EventStatus, Message: message}
}

// NewMessageEvent carries one party's turn in one bilateral exchange
func NewMessageEvent(counterpartyID string, role Role, content string, round int) Event {
	return Event{
		Type:           EventMessage,
		CounterpartyID: counterpartyID,
		Role:           role,
		Content:        content,
		Round:          round,
	}
}

// NewDecisionEvent carries the final ranked decision
func NewDecisionEvent(d *Decision) Event {
	return Event{
		Type:       EventDecision,
		WinnerID:   d.WinnerID,
		WinnerName: d.WinnerName,
		Reasoning:  d.Reasoning,
		Comparison: d.Comparison,
	}
}

// NewErrorEvent reports the session-terminal failure
func NewErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// NewDoneEvent is the terminal event of every session, emitted exactly once
func NewDoneEvent() Event {
	return Event{Type: EventDone}
}
