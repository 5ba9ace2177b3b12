// Package bus fans negotiation session events out over NATS. Every sequenced
// event a session publishes is mirrored to a per-session subject, so observers
// beyond the originating websocket (dashboards, recorders, other processes)
// can follow a negotiation without touching the orchestrator.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dealdesk/dealdesk/internal/negotiation"
)

// Config configures the event bus connection
type Config struct {
	URL    string
	Prefix string // Subject prefix for namespacing
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		URL:    nats.DefaultURL,
		Prefix: "dealdesk.",
	}
}

// SessionEvent is the wire envelope for one session event
type SessionEvent struct {
	SessionID uuid.UUID         `json:"session_id"`
	Event     negotiation.Event `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler is a callback for received session events
type Handler func(evt SessionEvent) error

// Bus is the NATS-backed event fan-out. It implements negotiation.Sink, so
// the orchestrator's publisher can hand it every event in sequence order.
type Bus struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

var _ negotiation.Sink = (*Bus)(nil)

// Connect establishes the NATS connection with infinite reconnects
func Connect(cfg Config) (*Bus, error) {
	logger := log.With().Str("component", "bus").Logger()

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("dealdesk-server"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = "dealdesk."
	}

	logger.Info().
		Str("url", cfg.URL).
		Str("prefix", cfg.Prefix).
		Msg("Event bus connected")

	return &Bus{
		nc:     nc,
		prefix: cfg.Prefix,
		log:    logger,
	}, nil
}

// sessionSubject returns the subject one session's events travel on.
// Pattern: dealdesk.session.{id}.events
func (b *Bus) sessionSubject(sessionID uuid.UUID) string {
	return fmt.Sprintf("%ssession.%s.events", b.prefix, sessionID)
}

// Deliver publishes one sequenced session event. It satisfies
// negotiation.Sink; the caller treats failures as transport errors, so
// delivery problems never fail a negotiation.
func (b *Bus) Deliver(sessionID uuid.UUID, e negotiation.Event) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	data, err := json.Marshal(SessionEvent{
		SessionID: sessionID,
		Event:     e,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	subject := b.sessionSubject(sessionID)
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	b.log.Debug().
		Str("session_id", sessionID.String()).
		Uint64("seq", e.Seq).
		Str("type", string(e.Type)).
		Str("subject", subject).
		Msg("Published session event")

	return nil
}

// SubscribeSession subscribes to one session's event stream
func (b *Bus) SubscribeSession(sessionID uuid.UUID, handler Handler) (*Subscription, error) {
	return b.subscribe(b.sessionSubject(sessionID), handler)
}

// SubscribeAllSessions subscribes to every session's event stream.
// Pattern: dealdesk.session.*.events
func (b *Bus) SubscribeAllSessions(handler Handler) (*Subscription, error) {
	return b.subscribe(fmt.Sprintf("%ssession.*.events", b.prefix), handler)
}

func (b *Bus) subscribe(subject string, handler Handler) (*Subscription, error) {
	sub, err := b.nc.Subscribe(subject, func(natsMsg *nats.Msg) {
		var evt SessionEvent
		if err := json.Unmarshal(natsMsg.Data, &evt); err != nil {
			b.log.Warn().Err(err).Str("subject", natsMsg.Subject).Msg("Failed to unmarshal session event")
			return
		}
		if err := handler(evt); err != nil {
			b.log.Error().
				Err(err).
				Str("session_id", evt.SessionID.String()).
				Uint64("seq", evt.Event.Seq).
				Msg("Session event handler error")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	b.log.Info().Str("subject", subject).Msg("Subscribed to session events")

	return &Subscription{sub: sub, subject: subject, log: b.log}, nil
}

// Stats returns connection statistics for health reporting
func (b *Bus) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	if b.nc != nil {
		stats["connected"] = b.nc.IsConnected()
		stats["status"] = b.nc.Status().String()
		stats["out_msgs"] = b.nc.Stats().OutMsgs
		stats["in_msgs"] = b.nc.Stats().InMsgs
		stats["reconnects"] = b.nc.Stats().Reconnects
	}
	return stats
}

// Connected reports whether the underlying connection is up
func (b *Bus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close closes the bus connection
func (b *Bus) Close() error {
	if b.nc != nil {
		b.nc.Close()
		b.log.Info().Msg("Event bus closed")
	}
	return nil
}

// Subscription represents an active subscription
type Subscription struct {
	sub     *nats.Subscription
	subject string
	log     zerolog.Logger
}

// Unsubscribe stops delivery for this subscription
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	s.log.Info().Str("subject", s.subject).Msg("Unsubscribed from session events")
	return nil
}

// IsValid returns whether the subscription is still active
func (s *Subscription) IsValid() bool {
	return s.sub.IsValid()
}
