// Package negotiation runs multi-party procurement negotiations: one buyer
// negotiating concurrently with N counterparties over a fixed number of
// rounds, streaming ordered events to an observer and ending with a ranked
// structured decision.
package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/metrics"
	"github.com/dealdesk/dealdesk/internal/reasoning"
	"github.com/dealdesk/dealdesk/internal/validation"
)

// Config holds the orchestrator's negotiation parameters
type Config struct {
	Rounds              int `mapstructure:"rounds"`
	DisclosureFromRound int `mapstructure:"disclosure_from_round"`
	PublisherBuffer     int `mapstructure:"publisher_buffer"`
}

func (c Config) withDefaults() Config {
	if c.Rounds <= 0 {
		c.Rounds = 3
	}
	if c.DisclosureFromRound <= 0 {
		c.DisclosureFromRound = 2
	}
	if c.PublisherBuffer <= 0 {
		c.PublisherBuffer = defaultPublisherBuffer
	}
	return c
}

// StartRequest describes one negotiation to run. CounterpartyIDs empty means
// the full catalog; Rounds zero means the configured default.
type StartRequest struct {
	Quantities      map[string]int `json:"quantities"`
	Note            string         `json:"note,omitempty"`
	CounterpartyIDs []string       `json:"counterparty_ids,omitempty"`
	Rounds          int            `json:"rounds,omitempty"`
}

// Outcome is the terminal record of one session, handed to the outcome store
type Outcome struct {
	SessionID         uuid.UUID
	Status            Status
	Rounds            int
	CounterpartyCount int
	Note              string
	Error             string
	Decision          *Decision
	StartedAt         time.Time
	CompletedAt       time.Time
}

// OutcomeRecorder persists session lifecycle records. Both calls are
// fire-and-forget from the orchestrator's point of view: failures are logged,
// never propagated into the session.
type OutcomeRecorder interface {
	RecordStarted(ctx context.Context, sessionID uuid.UUID, rounds, counterparties int, note string) error
	RecordOutcome(ctx context.Context, outcome Outcome) error
}

// Orchestrator creates and drives negotiation sessions. Sessions share
// nothing mutable; any number can run in parallel.
type Orchestrator struct {
	cfg     Config
	catalog *catalog.Catalog
	svc     reasoning.Service
	sink    Sink
	store   OutcomeRecorder
	log     zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// New creates an orchestrator. sink and store may be nil: without a sink
// events reach only the observer channel, without a store outcomes are not
// persisted.
func New(cfg Config, cat *catalog.Catalog, svc reasoning.Service, sink Sink, store OutcomeRecorder, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		catalog:  cat,
		svc:      svc,
		sink:     sink,
		store:    store,
		log:      logger.With().Str("component", "orchestrator").Logger(),
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Session returns a live session by id
func (o *Orchestrator) Session(id uuid.UUID) (*Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[id]
	return s, ok
}

// ActiveSessions returns the number of sessions currently running
func (o *Orchestrator) ActiveSessions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

func (o *Orchestrator) register(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[s.ID] = s
}

func (o *Orchestrator) unregister(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, id)
}

// Start creates a session and drives it to a terminal status in the
// background. The returned channel delivers the session's events in order
// and is closed after the terminal done event; every session ends with
// exactly one done on every path, with either one decision or one error
// before it, never both. A malformed request still yields a channel: the
// validation failure arrives as an error event followed by done.
//
// ctx bounds the negotiation itself, not the observer: callers that must
// survive observer disconnects pass a longer-lived context than the
// connection's.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (<-chan Event, error) {
	if o.catalog == nil {
		return nil, fmt.Errorf("catalog not configured")
	}
	if o.svc == nil {
		return nil, fmt.Errorf("reasoning service not configured")
	}

	sess := newSession()
	pub := newPublisher(sess, o.cfg.PublisherBuffer, o.sink)
	o.register(sess)
	pub.start()

	go o.run(ctx, sess, pub, req)

	return pub.events(), nil
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, pub *publisher, req StartRequest) {
	start := time.Now()
	metrics.RecordSessionStarted()
	o.log.Info().
		Str("session_id", sess.ID.String()).
		Int("products", len(req.Quantities)).
		Msg("Session started")

	resolved, err := o.resolve(req)
	if err == nil {
		o.recordStarted(sess, resolved, req.Note)
		err = o.negotiate(ctx, sess, pub, resolved)
	}

	if err != nil {
		sess.setStatus(StatusFailed)
		pub.publishTerminal(NewErrorEvent(err.Error()))
		o.log.Error().Err(err).
			Str("session_id", sess.ID.String()).
			Int("round", sess.Round()).
			Msg("Negotiation failed")
	}

	pub.publishTerminal(NewDoneEvent())
	pub.close()

	status := sess.Status()
	duration := time.Since(start)
	metrics.RecordSessionCompleted(string(status), duration)
	o.recordOutcome(sess, resolved, req, err, start)

	sess.setStatus(StatusClosed)
	o.unregister(sess.ID)
	o.log.Info().
		Str("session_id", sess.ID.String()).
		Str("status", string(status)).
		Dur("duration", duration).
		Msg("Session closed")
}

// negotiate builds the parties and runs rounds plus the decision step. Any
// returned error is the session-terminal failure.
func (o *Orchestrator) negotiate(ctx context.Context, sess *Session, pub *publisher, resolved *resolvedRequest) error {
	buyer := NewBuyer(resolved.products, resolved.quantities, resolved.note, resolved.profiles, o.svc)

	allProducts := o.catalog.LoadProducts()
	counterparties := make([]*Counterparty, len(resolved.profiles))
	for i, profile := range resolved.profiles {
		counterparties[i] = NewCounterparty(profile, allProducts, o.svc)
	}

	sess.setParties(buyer, counterparties)
	sess.setStatus(StatusNegotiating)
	pub.publish(NewStatusEvent(fmt.Sprintf(
		"Session initialised with %d counterparties. Starting negotiation...", len(counterparties))))

	r := newRunner(sess, buyer, counterparties, pub, resolved.rounds, o.cfg.DisclosureFromRound)
	decision, err := r.run(ctx)
	if err != nil {
		return err
	}

	sess.setDecision(decision)
	sess.setStatus(StatusDecided)
	pub.publishTerminal(NewDecisionEvent(decision))
	return nil
}

type resolvedRequest struct {
	products   []catalog.Product
	quantities map[string]int
	note       string
	profiles   []catalog.CounterpartyProfile
	rounds     int
}

// resolve validates the request against the catalog and fills defaults.
// Nothing is instantiated for a request that fails here.
func (o *Orchestrator) resolve(req StartRequest) (*resolvedRequest, error) {
	v := validation.NewStartRequestValidator()
	v.ValidateQuantities(req.Quantities, o.catalog.ProductCodes())
	v.ValidateNote(req.Note)
	if req.Rounds != 0 {
		v.ValidateRounds(req.Rounds)
	}
	if err := firstInvalid(v); err != nil {
		return nil, err
	}

	products := make([]catalog.Product, 0, len(req.Quantities))
	for _, p := range o.catalog.LoadProducts() {
		if _, ok := req.Quantities[p.Code]; ok {
			products = append(products, p)
		}
	}

	var profiles []catalog.CounterpartyProfile
	if len(req.CounterpartyIDs) == 0 {
		profiles = o.catalog.Counterparties()
	} else {
		seen := make(map[string]bool, len(req.CounterpartyIDs))
		for _, id := range req.CounterpartyIDs {
			if seen[id] {
				return nil, &InvalidRequestError{Field: "counterparty_ids", Reason: fmt.Sprintf("duplicate counterparty id %q", id)}
			}
			seen[id] = true
			profile, err := o.catalog.Counterparty(id)
			if err != nil {
				return nil, err
			}
			profiles = append(profiles, profile)
		}
	}
	v.ValidateCounterparties(len(profiles))
	if err := firstInvalid(v); err != nil {
		return nil, err
	}

	rounds := req.Rounds
	if rounds == 0 {
		rounds = o.cfg.Rounds
	}

	return &resolvedRequest{
		products:   products,
		quantities: req.Quantities,
		note:       validation.SanitizeInput(req.Note),
		profiles:   profiles,
		rounds:     rounds,
	}, nil
}

// firstInvalid converts the validator's first finding into the typed request
// error the observer contract surfaces
func firstInvalid(v *validation.StartRequestValidator) error {
	if !v.HasErrors() {
		return nil
	}
	first := v.Errors()[0]
	return &InvalidRequestError{Field: first.Field, Reason: first.Message}
}

func (o *Orchestrator) recordStarted(sess *Session, resolved *resolvedRequest, note string) {
	if o.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.RecordStarted(ctx, sess.ID, resolved.rounds, len(resolved.profiles), note); err != nil {
			o.log.Error().Err(err).
				Str("session_id", sess.ID.String()).
				Msg("Failed to record session start")
		}
	}()
}

func (o *Orchestrator) recordOutcome(sess *Session, resolved *resolvedRequest, req StartRequest, runErr error, start time.Time) {
	if o.store == nil {
		return
	}

	outcome := Outcome{
		SessionID:   sess.ID,
		Status:      sess.Status(),
		Rounds:      req.Rounds,
		Note:        req.Note,
		Decision:    sess.Decision(),
		StartedAt:   start,
		CompletedAt: time.Now(),
	}
	if resolved != nil {
		outcome.Rounds = resolved.rounds
		outcome.CounterpartyCount = len(resolved.profiles)
	}
	if runErr != nil {
		outcome.Error = runErr.Error()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.RecordOutcome(ctx, outcome); err != nil {
			o.log.Error().Err(err).
				Str("session_id", sess.ID.String()).
				Msg("Failed to record session outcome")
		}
	}()
}
