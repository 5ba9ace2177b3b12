package negotiation

import (
	"context"
	"fmt"
	"sync"

	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/metrics"
)

// runner drives one session through its rounds and the decision step. Round
// n+1 never starts before round n fully resolved: each round is one fan-out
// batch joined before the next begins. Within a round the per-counterparty
// chains run concurrently; within a chain the counterparty's reply is
// requested only after the buyer's message to it completed.
type runner struct {
	session        *Session
	buyer          *Buyer
	counterparties []*Counterparty
	profiles       []catalog.CounterpartyProfile
	pub            *publisher
	rounds         int
	disclosureFrom int

	mu      sync.Mutex
	replies map[string]string
}

func newRunner(session *Session, buyer *Buyer, counterparties []*Counterparty, pub *publisher, rounds, disclosureFrom int) *runner {
	profiles := make([]catalog.CounterpartyProfile, len(counterparties))
	for i, cp := range counterparties {
		profiles[i] = cp.Profile()
	}
	return &runner{
		session:        session,
		buyer:          buyer,
		counterparties: counterparties,
		profiles:       profiles,
		pub:            pub,
		rounds:         rounds,
		disclosureFrom: disclosureFrom,
		replies:        make(map[string]string, len(counterparties)),
	}
}

func (r *runner) setReply(id, reply string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[id] = reply
}

// snapshot copies the latest reply per counterparty. Taken once per round
// before fanning out, so every chain of a round discloses the same completed
// state.
func (r *runner) snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.replies))
	for id, reply := range r.replies {
		out[id] = reply
	}
	return out
}

// run executes the opening round, all counter rounds, and the decision step
func (r *runner) run(ctx context.Context) (*Decision, error) {
	r.session.setRound(1)
	r.pub.publish(NewStatusEvent("Round 1 - sending RFQs to all counterparties..."))
	if err := r.openingRound(ctx); err != nil {
		return nil, err
	}
	metrics.RecordRoundCompleted()

	for round := 2; round <= r.rounds; round++ {
		r.session.setRound(round)
		r.pub.publish(NewStatusEvent(fmt.Sprintf("Round %d - generating counter-proposals...", round)))
		if err := r.counterRound(ctx, round); err != nil {
			return nil, err
		}
		metrics.RecordRoundCompleted()
	}

	r.pub.publish(NewStatusEvent("All rounds complete. Making final decision..."))
	return r.buyer.Decide(ctx, r.snapshot())
}

// openingRound fans out the personalized RFQ chains. Every successful chain
// publishes its message pair as it completes; a failed chain publishes
// nothing. The first failure by chain position surfaces only after all
// siblings finished.
func (r *runner) openingRound(ctx context.Context) error {
	tasks := make([]func(context.Context) error, len(r.counterparties))
	for i, cp := range r.counterparties {
		party := cp
		tasks[i] = func(ctx context.Context) error {
			rfq, err := r.buyer.Open(ctx, party.Profile())
			if err != nil {
				return err
			}
			reply, err := party.Respond(ctx, rfq)
			if err != nil {
				return err
			}
			r.setReply(party.ID(), reply)
			r.pub.publishPair(
				NewMessageEvent(party.ID(), RoleBuyer, rfq, 1),
				NewMessageEvent(party.ID(), RoleCounterparty, reply, 1),
			)
			return nil
		}
	}
	return firstError(runAll(ctx, tasks))
}

// counterRound fans out the counter-proposal chains for one round. Cross-party
// disclosure is available from the first counter round onward and always
// reflects the previous round's completed state.
func (r *runner) counterRound(ctx context.Context, round int) error {
	prior := r.snapshot()
	disclose := round >= r.disclosureFrom

	tasks := make([]func(context.Context) error, len(r.counterparties))
	for i, cp := range r.counterparties {
		party := cp
		tasks[i] = func(ctx context.Context) error {
			disclosure := ""
			if disclose {
				disclosure = peerDisclosure(party.ID(), r.profiles, prior)
			}

			counter, err := r.buyer.Counter(ctx, party.ID(), prior[party.ID()], disclosure)
			if err != nil {
				return err
			}
			reply, err := party.Respond(ctx, counter)
			if err != nil {
				return err
			}
			r.setReply(party.ID(), reply)
			r.pub.publishPair(
				NewMessageEvent(party.ID(), RoleBuyer, counter, round),
				NewMessageEvent(party.ID(), RoleCounterparty, reply, round),
			)
			return nil
		}
	}
	return firstError(runAll(ctx, tasks))
}
