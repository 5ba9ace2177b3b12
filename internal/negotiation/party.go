package negotiation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/reasoning"
)

// Speaker tags one turn of a conversation context from the owning party's
// point of view
type Speaker string

const (
	SpeakerSelf Speaker = "self"
	SpeakerPeer Speaker = "peer"
)

// Turn is one utterance in a bilateral conversation context
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Content string  `json:"content"`
}

// conversation is one party's first-person record of a bilateral exchange.
// Turns are appended only through appendSelf and appendExchange, which fix
// the speaker tags so a caller cannot mislabel a turn.
type conversation struct {
	mu     sync.RWMutex
	system string
	turns  []Turn
}

func newConversation(system string) *conversation {
	return &conversation{system: system}
}

// appendSelf records output the owning party generated unprompted. Only the
// opening move uses this; every later turn arrives as part of an exchange.
func (c *conversation) appendSelf(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{Speaker: SpeakerSelf, Content: content})
}

// appendExchange records one completed exchange as a unit: the peer's
// incoming content, then the owning party's generated reply
func (c *conversation) appendExchange(peer, self string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns,
		Turn{Speaker: SpeakerPeer, Content: peer},
		Turn{Speaker: SpeakerSelf, Content: self},
	)
}

// history returns a copy of the recorded turns
func (c *conversation) history() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// latestSelf returns the owning party's most recent turn
func (c *conversation) latestSelf() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Speaker == SpeakerSelf {
			return c.turns[i].Content, true
		}
	}
	return "", false
}

// messages renders the context for a reasoning call: the system prompt, the
// recorded turns (self as assistant, peer as user), then any extra user
// content that is part of the call but not yet part of the record.
func (c *conversation) messages(extra ...string) []reasoning.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := make([]reasoning.ChatMessage, 0, len(c.turns)+len(extra)+1)
	msgs = append(msgs, reasoning.ChatMessage{Role: "system", Content: c.system})
	for _, t := range c.turns {
		role := "user"
		if t.Speaker == SpeakerSelf {
			role = "assistant"
		}
		msgs = append(msgs, reasoning.ChatMessage{Role: role, Content: t.Content})
	}
	for _, content := range extra {
		msgs = append(msgs, reasoning.ChatMessage{Role: "user", Content: content})
	}
	return msgs
}

// Counterparty is one negotiating supplier side. Its context holds only its
// own bilateral exchange with the buyer. The profile's private price
// multiplier is consumed once here, to derive the opening price table for the
// counterparty's own system prompt; it reaches nothing else.
type Counterparty struct {
	profile catalog.CounterpartyProfile
	svc     reasoning.Service
	conv    *conversation
	log     zerolog.Logger
}

// NewCounterparty builds the party with its system prompt and precomputed
// opening prices
func NewCounterparty(profile catalog.CounterpartyProfile, products []catalog.Product, svc reasoning.Service) *Counterparty {
	quoted := openingPrices(profile, products)
	return &Counterparty{
		profile: profile,
		svc:     svc,
		conv:    newConversation(counterpartySystemPrompt(profile, products, quoted)),
		log: log.With().
			Str("component", "counterparty").
			Str("counterparty_id", profile.ID).
			Logger(),
	}
}

// openingPrices derives the per-product opening quote once, with a small
// random variation, so repeated prompt renders stay consistent
func openingPrices(profile catalog.CounterpartyProfile, products []catalog.Product) map[string]float64 {
	prices := make(map[string]float64, len(products))
	for _, p := range products {
		variation := 0.97 + rand.Float64()*0.06
		prices[p.Code] = math.Round(p.TargetFOB*profile.PriceMultiplier*variation*100) / 100
	}
	return prices
}

// ID returns the counterparty's stable catalog id
func (cp *Counterparty) ID() string {
	return cp.profile.ID
}

// Profile returns the counterparty's catalog profile
func (cp *Counterparty) Profile() catalog.CounterpartyProfile {
	return cp.profile
}

// History returns a copy of the counterparty's conversation context
func (cp *Counterparty) History() []Turn {
	return cp.conv.history()
}

// Respond issues one reasoning call for an incoming buyer message. On success
// exactly two turns are appended as a unit: the incoming message as peer, the
// generated reply as self. On failure the context is untouched.
func (cp *Counterparty) Respond(ctx context.Context, incoming string) (string, error) {
	reply, err := cp.svc.Generate(ctx, cp.conv.messages(incoming))
	if err != nil {
		return "", &GenerationError{Party: cp.profile.ID, Op: "respond", Err: err}
	}

	cp.conv.appendExchange(incoming, reply)
	cp.log.Debug().
		Int("turns", len(cp.conv.history())).
		Msg("Counterparty replied")
	return reply, nil
}

// Buyer is the single procurement side. It holds one independent conversation
// context per counterparty, all sharing the buyer's system prompt.
type Buyer struct {
	svc      reasoning.Service
	system   string
	profiles []catalog.CounterpartyProfile
	convs    map[string]*conversation
	log      zerolog.Logger
}

// NewBuyer builds the buyer with one context per counterparty
func NewBuyer(products []catalog.Product, quantities map[string]int, note string, profiles []catalog.CounterpartyProfile, svc reasoning.Service) *Buyer {
	system := buyerSystemPrompt(products, quantities, profiles, note)
	convs := make(map[string]*conversation, len(profiles))
	for _, p := range profiles {
		convs[p.ID] = newConversation(system)
	}
	return &Buyer{
		svc:      svc,
		system:   system,
		profiles: profiles,
		convs:    convs,
		log:      log.With().Str("component", "buyer").Logger(),
	}
}

// History returns a copy of the buyer's context for one counterparty
func (b *Buyer) History(counterpartyID string) []Turn {
	conv, ok := b.convs[counterpartyID]
	if !ok {
		return nil
	}
	return conv.history()
}

// Open generates the personalized opening request-for-quote for one
// counterparty. The RFQ is appended as a self turn on success.
func (b *Buyer) Open(ctx context.Context, profile catalog.CounterpartyProfile) (string, error) {
	conv, ok := b.convs[profile.ID]
	if !ok {
		return "", &GenerationError{Party: "buyer", Op: "opening",
			Err: fmt.Errorf("no conversation for counterparty %q", profile.ID)}
	}

	rfq, err := b.svc.Generate(ctx, conv.messages(openingInstruction(profile.Name)))
	if err != nil {
		return "", &GenerationError{Party: "buyer", Op: "opening", Err: err}
	}

	conv.appendSelf(rfq)
	b.log.Debug().Str("counterparty_id", profile.ID).Msg("Opening RFQ generated")
	return rfq, nil
}

// Counter generates the buyer's next message to one counterparty, conditioned
// on that counterparty's latest reply and an optional cross-party disclosure
// summary. On success the reply and the counter are appended as one exchange;
// on failure the context is untouched. The disclosure reaches only the
// reasoning call, never the stored context.
func (b *Buyer) Counter(ctx context.Context, counterpartyID, reply, disclosure string) (string, error) {
	conv, ok := b.convs[counterpartyID]
	if !ok {
		return "", &GenerationError{Party: "buyer", Op: "counter",
			Err: fmt.Errorf("no conversation for counterparty %q", counterpartyID)}
	}

	name := counterpartyID
	for _, p := range b.profiles {
		if p.ID == counterpartyID {
			name = p.Name
			break
		}
	}

	counter, err := b.svc.Generate(ctx, conv.messages(counterInstruction(name, reply, disclosure)))
	if err != nil {
		return "", &GenerationError{Party: "buyer", Op: "counter", Err: err}
	}

	conv.appendExchange(reply, counter)
	b.log.Debug().Str("counterparty_id", counterpartyID).Msg("Counter-proposal generated")
	return counter, nil
}
