package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusNegotiating, true},
		{StatusCreated, StatusFailed, true},
		{StatusCreated, StatusDecided, false},
		{StatusCreated, StatusClosed, false},
		{StatusNegotiating, StatusDecided, true},
		{StatusNegotiating, StatusFailed, true},
		{StatusNegotiating, StatusClosed, false},
		{StatusNegotiating, StatusCreated, false},
		{StatusDecided, StatusClosed, true},
		{StatusDecided, StatusFailed, false},
		{StatusDecided, StatusNegotiating, false},
		{StatusFailed, StatusClosed, true},
		{StatusFailed, StatusDecided, false},
		{StatusClosed, StatusCreated, false},
		{StatusClosed, StatusFailed, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, validTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSessionStatusIsOneWay(t *testing.T) {
	s := newSession()
	assert.Equal(t, StatusCreated, s.Status())
	assert.NotEqual(t, s.ID.String(), "")

	// Illegal jumps are refused without changing the recorded status
	assert.False(t, s.setStatus(StatusDecided))
	assert.Equal(t, StatusCreated, s.Status())

	assert.True(t, s.setStatus(StatusNegotiating))
	assert.True(t, s.setStatus(StatusDecided))
	assert.False(t, s.setStatus(StatusFailed), "a decided session cannot fail afterwards")
	assert.True(t, s.setStatus(StatusClosed))
	assert.False(t, s.setStatus(StatusNegotiating))
	assert.Equal(t, StatusClosed, s.Status())
}

func TestSessionEventLogCopies(t *testing.T) {
	s := newSession()
	s.appendEvent(Event{Seq: 1, Type: EventStatus, Message: "one"})
	s.appendEvent(Event{Seq: 2, Type: EventDone})

	events := s.Events()
	require.Len(t, events, 2)

	events[0].Message = "tampered"
	assert.Equal(t, "one", s.Events()[0].Message)
}

func TestSessionRoundAndDecision(t *testing.T) {
	s := newSession()
	assert.Zero(t, s.Round())
	s.setRound(2)
	assert.Equal(t, 2, s.Round())

	assert.Nil(t, s.Decision())
	d := &Decision{WinnerID: "supplier-b", WinnerName: "Supplier B"}
	s.setDecision(d)
	require.NotNil(t, s.Decision())
	assert.Equal(t, "supplier-b", s.Decision().WinnerID)
}
