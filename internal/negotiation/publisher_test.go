package negotiation

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	err    error
	ids    []uuid.UUID
	events []Event
}

func (s *recordingSink) Deliver(sessionID uuid.UUID, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, sessionID)
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) delivered() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestPublisherSequencesAndFansOut(t *testing.T) {
	sess := newSession()
	sink := &recordingSink{}
	p := newPublisher(sess, 8, sink)
	p.start()

	p.publish(NewStatusEvent("starting"))
	p.publishPair(
		NewMessageEvent("supplier-a", RoleBuyer, "rfq", 1),
		NewMessageEvent("supplier-a", RoleCounterparty, "quote", 1),
	)
	p.publishTerminal(NewDoneEvent())
	p.close()

	observed := drain(p.events())
	require.Len(t, observed, 4)
	for i, e := range observed {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
	assert.Equal(t, EventDone, observed[3].Type)

	// The session log and the sink saw the same sequenced stream
	assert.Equal(t, observed, sess.Events())
	assert.Equal(t, observed, sink.delivered())
	for _, id := range sink.ids {
		assert.Equal(t, sess.ID, id)
	}
}

func TestPublisherNeverBlocksWithoutObserver(t *testing.T) {
	sess := newSession()
	p := newPublisher(sess, 2, nil)
	p.start()

	// Nobody reads the observer channel; intake and delivery must still finish
	for i := 0; i < 50; i++ {
		p.publish(NewStatusEvent("tick"))
	}
	p.close()

	logged := sess.Events()
	require.NotEmpty(t, logged)
	assert.LessOrEqual(t, len(logged), 50)
	for i, e := range logged {
		assert.Equal(t, uint64(i+1), e.Seq, "logged events keep gapless sequence numbers")
	}

	// At most the channel capacity reached the absent observer
	assert.LessOrEqual(t, len(drain(p.events())), 2)
}

func TestPublisherSinkFailureIsNonFatal(t *testing.T) {
	sess := newSession()
	sink := &recordingSink{err: errors.New("broker down")}
	p := newPublisher(sess, 8, sink)
	p.start()

	p.publish(NewStatusEvent("starting"))
	p.publishTerminal(NewDoneEvent())
	p.close()

	observed := drain(p.events())
	require.Len(t, observed, 2)
	assert.Len(t, sess.Events(), 2)
}

func TestPublishedPairsNeverInterleave(t *testing.T) {
	sess := newSession()
	p := newPublisher(sess, 256, nil)
	p.start()

	received := make(chan []Event, 1)
	go func() {
		received <- drain(p.events())
	}()

	var wg sync.WaitGroup
	for _, id := range []string{"supplier-a", "supplier-b"} {
		wg.Add(1)
		go func(cpID string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				p.publishPair(
					NewMessageEvent(cpID, RoleBuyer, "ask", i+1),
					NewMessageEvent(cpID, RoleCounterparty, "answer", i+1),
				)
			}
		}(id)
	}
	wg.Wait()
	p.publishTerminal(NewDoneEvent())
	p.close()

	events := <-received
	require.Len(t, events, 81)

	msgs := eventsOfType(events, EventMessage)
	require.Len(t, msgs, 80)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, RoleBuyer, msgs[i].Role)
		assert.Equal(t, RoleCounterparty, msgs[i+1].Role)
		assert.Equal(t, msgs[i].CounterpartyID, msgs[i+1].CounterpartyID,
			"pair at %d split by another chain's pair", i)
		assert.Equal(t, msgs[i].Round, msgs[i+1].Round)
	}
}
