package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dealdesk/dealdesk/internal/metrics"
	"github.com/dealdesk/dealdesk/internal/negotiation"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// The one frame type a client may open with
	startNegotiationType = "start_negotiation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is the client-to-server frame shape. Only the opening
// start_negotiation frame carries payload fields.
type clientMessage struct {
	Type            string         `json:"type"`
	Quantities      map[string]int `json:"quantities,omitempty"`
	Note            string         `json:"note,omitempty"`
	CounterpartyIDs []string       `json:"counterparty_ids,omitempty"`
	Rounds          int            `json:"rounds,omitempty"`
}

// errorFrame is the protocol-level error shape sent before a session exists.
// Session-level errors travel as ordinary sequenced events instead.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// handleNegotiate upgrades the connection, reads the opening
// start_negotiation frame, starts a session, and streams its events to the
// client until the terminal done event. A client that disconnects or stalls
// is detached; the negotiation itself always runs to completion.
func (s *Server) handleNegotiate(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	conn.SetReadLimit(maxMessageSize)

	req, err := readStartRequest(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("Rejecting websocket observer")
		writeErrorFrame(conn, "expected start_negotiation message")
		return
	}

	// The session must outlive this connection: an observer that goes away
	// never cancels the negotiation, so the session context is not the
	// request's.
	events, err := s.orchestrator.Start(context.Background(), req)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to start negotiation")
		writeErrorFrame(conn, err.Error())
		return
	}

	s.log.Info().
		Int("products", len(req.Quantities)).
		Int("rounds", req.Rounds).
		Msg("Negotiation observer connected")

	s.streamEvents(conn, events)
}

// readStartRequest reads and validates the opening frame
func readStartRequest(conn *websocket.Conn) (negotiation.StartRequest, error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return negotiation.StartRequest{}, fmt.Errorf("failed to read opening frame: %w", err)
	}

	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return negotiation.StartRequest{}, fmt.Errorf("malformed opening frame: %w", err)
	}
	if msg.Type != startNegotiationType {
		return negotiation.StartRequest{}, fmt.Errorf("unexpected opening frame type %q", msg.Type)
	}

	return negotiation.StartRequest{
		Quantities:      msg.Quantities,
		Note:            msg.Note,
		CounterpartyIDs: msg.CounterpartyIDs,
		Rounds:          msg.Rounds,
	}, nil
}

// streamEvents forwards session events to the client in order, closing the
// socket cleanly once the channel is closed after the terminal done event
func (s *Server) streamEvents(conn *websocket.Conn, events <-chan negotiation.Event) {
	gone := make(chan struct{})
	go watchClient(conn, gone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				// Terminal done delivered, close the socket cleanly
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				s.log.Warn().Err(err).Msg("Observer write failed, detaching")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-gone:
			s.log.Info().Msg("Observer disconnected, negotiation continues")
			return
		}
	}
}

// watchClient consumes frames from the peer so pong handling runs and closes
// gone when the peer disappears. Clients are not expected to send anything
// after the opening frame; whatever arrives is discarded.
func watchClient(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Observer read loop ended")
			}
			return
		}
	}
}

// writeErrorFrame sends a protocol-level error to the client. Best effort:
// the connection is about to close either way.
func writeErrorFrame(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(errorFrame{Type: "error", Message: message}); err != nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""))
}
