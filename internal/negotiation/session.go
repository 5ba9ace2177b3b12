package negotiation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is a session's lifecycle state. Transitions are one-way:
// Created -> Negotiating -> {Decided | Failed} -> Closed.
type Status string

const (
	StatusCreated     Status = "created"
	StatusNegotiating Status = "negotiating"
	StatusDecided     Status = "decided"
	StatusFailed      Status = "failed"
	StatusClosed      Status = "closed"
)

func validTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusNegotiating || to == StatusFailed
	case StatusNegotiating:
		return to == StatusDecided || to == StatusFailed
	case StatusDecided, StatusFailed:
		return to == StatusClosed
	default:
		return false
	}
}

// Session is one negotiation instance. It is owned exclusively by the
// orchestrator that created it; everything mutable behind the mutex is
// written by the session's own goroutines only.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu             sync.RWMutex
	status         Status
	round          int
	buyer          *Buyer
	counterparties []*Counterparty
	decision       *Decision
	events         []Event
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		status:    StatusCreated,
	}
}

// Status returns the current lifecycle state
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// setStatus applies a lifecycle transition. Illegal transitions are refused
// and logged; the state machine never moves backwards.
func (s *Session) setStatus(to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validTransition(s.status, to) {
		log.Error().
			Str("session_id", s.ID.String()).
			Str("from", string(s.status)).
			Str("to", string(to)).
			Msg("Illegal session status transition refused")
		return false
	}
	s.status = to
	return true
}

// Round returns the most recently started round number
func (s *Session) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

func (s *Session) setRound(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.round = n
}

func (s *Session) setParties(buyer *Buyer, counterparties []*Counterparty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyer = buyer
	s.counterparties = counterparties
}

// Buyer returns the session's buyer party, nil until negotiation started
func (s *Session) Buyer() *Buyer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buyer
}

// Counterparties returns the session's counterparty parties in request order
func (s *Session) Counterparties() []*Counterparty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Counterparty, len(s.counterparties))
	copy(out, s.counterparties)
	return out
}

// Decision returns the final decision, nil until the session is Decided
func (s *Session) Decision() *Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decision
}

func (s *Session) setDecision(d *Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decision = d
}

// appendEvent records one sequenced event in the session's event log. Only
// the publisher's writer goroutine calls this.
func (s *Session) appendEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the event log accumulated so far
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
