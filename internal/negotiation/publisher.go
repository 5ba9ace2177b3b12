package negotiation

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealdesk/dealdesk/internal/metrics"
)

const defaultPublisherBuffer = 64

// Sink receives every sequenced event of a session in order, alongside the
// observer channel. The event bus adapter implements it. Delivery failures
// are logged as transport errors and never fail the session.
type Sink interface {
	Deliver(sessionID uuid.UUID, e Event) error
}

// publisher serializes a session's event emission. Generation fans out, but
// every event funnels through the one writer goroutine started here: it alone
// assigns sequence numbers, appends to the session event log, forwards to the
// sink, and feeds the observer channel. Negotiation never blocks on a slow or
// absent observer; the observer's copy is dropped with a log line instead.
type publisher struct {
	sessionID uuid.UUID
	session   *Session
	sink      Sink

	in     chan Event
	out    chan Event
	pairMu sync.Mutex
	done   chan struct{}

	log zerolog.Logger
}

func newPublisher(session *Session, buffer int, sink Sink) *publisher {
	if buffer <= 0 {
		buffer = defaultPublisherBuffer
	}
	return &publisher{
		sessionID: session.ID,
		session:   session,
		sink:      sink,
		in:        make(chan Event, buffer),
		out:       make(chan Event, buffer),
		done:      make(chan struct{}),
		log: log.With().
			Str("component", "publisher").
			Str("session_id", session.ID.String()).
			Logger(),
	}
}

// events returns the observer channel. It is closed after the terminal event
// has been delivered.
func (p *publisher) events() <-chan Event {
	return p.out
}

// start launches the writer goroutine
func (p *publisher) start() {
	go func() {
		defer close(p.done)

		var seq uint64
		for e := range p.in {
			seq++
			e.Seq = seq

			p.session.appendEvent(e)
			metrics.RecordEventPublished(string(e.Type))

			if p.sink != nil {
				if err := p.sink.Deliver(p.sessionID, e); err != nil {
					terr := &TransportError{Err: err}
					p.log.Warn().Err(terr).Uint64("seq", seq).Msg("Sink delivery failed")
				}
			}

			select {
			case p.out <- e:
			default:
				metrics.RecordEventDropped()
				p.log.Warn().
					Uint64("seq", seq).
					Str("type", string(e.Type)).
					Msg("Observer channel full, dropping event")
			}
		}
		close(p.out)
	}()
}

// publish enqueues one in-round event without ever blocking negotiation
func (p *publisher) publish(e Event) {
	select {
	case p.in <- e:
	default:
		metrics.RecordEventDropped()
		p.log.Warn().Str("type", string(e.Type)).Msg("Publisher buffer full, dropping event")
	}
}

// publishPair enqueues one chain's buyer and counterparty turns as a unit so
// pairs from concurrent chains never interleave
func (p *publisher) publishPair(a, b Event) {
	p.pairMu.Lock()
	defer p.pairMu.Unlock()
	p.publish(a)
	p.publish(b)
}

// publishTerminal enqueues a terminal-phase event (decision, error, done)
// with a blocking send. The rounds are over by then, so there is nothing left
// to stall, and the writer is always draining.
func (p *publisher) publishTerminal(e Event) {
	p.in <- e
}

// close stops intake and waits for the writer to drain everything enqueued.
// The observer channel is closed after the last delivery.
func (p *publisher) close() {
	close(p.in)
	<-p.done
}
