// Package server manages individual client sessions: the authentication
// handshake, read/write pumps, liveness deadlines, and lifecycle cleanup.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/privchat/privchat-server/internal/chat"
	"github.com/privchat/privchat-server/internal/models"
)

const (
	// authWait bounds how long a fresh connection may take to present its
	// auth frame before being dropped.
	authWait = 10 * time.Second

	// pongWait is the liveness timeout: a connection that produces neither
	// frames nor pongs for this long is considered gone, which is what
	// drives presence to offline on abrupt disconnects.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second

	writeWait = 10 * time.Second

	// replyQueueSize bounds command replies awaiting the write pump. A
	// client that stops reading overflows it and is dropped, same policy
	// as the router's event queues.
	replyQueueSize = 64
)

// session is one live, authenticated client connection.
type session struct {
	gateway  *Gateway
	conn     *websocket.Conn
	addr     string
	id       string
	identity models.Identity

	replies chan []byte
	events  <-chan models.Event

	rateLimiter  *rateLimiter
	rateLimit    RateLimitConfig
	historyLimit int
	searchLimit  int

	closeOnce sync.Once
}

// newSession runs the authentication handshake on a freshly upgraded
// connection. The first frame must be an auth command carrying a valid
// token; anything else closes the connection.
func newSession(g *Gateway, conn *websocket.Conn, addr string) (*session, error) {
	cfg := currentConfig()
	conn.SetReadLimit(cfg.MaxMessageSize)

	s := &session{
		gateway:      g,
		conn:         conn,
		addr:         addr,
		id:           uuid.NewString(),
		replies:      make(chan []byte, replyQueueSize),
		rateLimiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:    cfg.RateLimit,
		historyLimit: cfg.HistoryPageLimit,
		searchLimit:  cfg.SearchLimit,
	}

	if err := conn.SetReadDeadline(time.Now().Add(authWait)); err != nil {
		return nil, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != CmdAuth {
		s.writeDirect(envelopeError(env.RequestID, chat.ErrUnauthorized))
		return nil, chat.ErrUnauthorized
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.writeDirect(envelopeError(env.RequestID, chat.ErrValidation))
		return nil, chat.ErrValidation
	}

	identityID, err := g.verifier.Verify(payload.Token)
	if err != nil {
		s.writeDirect(envelopeError(env.RequestID, err))
		return nil, err
	}
	ident, err := g.directory.Get(identityID)
	if err != nil {
		s.writeDirect(envelopeError(env.RequestID, err))
		return nil, err
	}
	s.identity = ident

	s.events = g.router.Attach(s.id, cfg.SessionQueueSize, s.onOverflow)
	if g.presence.SetOnline(ident.ID, s.id) {
		g.publishPresence(ident.ID)
	}

	// The pumps are not running yet, so writing the ack directly is safe.
	s.writeDirect(Envelope{
		Type:      TypeAck,
		RequestID: env.RequestID,
		Payload:   mustMarshal(map[string]any{"identity": ident, "sessionId": s.id}),
	})
	return s, nil
}

// run registers the session and starts its pumps. It is called once per
// session by the WebSocket handler.
func (s *session) run() {
	s.gateway.register(s)

	s.gateway.wg.Add(2)
	go func() {
		defer s.gateway.wg.Done()
		s.writePump()
	}()
	go func() {
		defer s.gateway.wg.Done()
		s.readPump()
	}()
}

// close shuts the underlying connection down at most once. The read pump
// notices and performs the full cleanup.
func (s *session) close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection for session %s: %v", s.id, err)
		}
	})
}

// onOverflow is invoked by the router when this session's event queue
// overflows. The subscriptions are already gone; tell the client why and
// drop the connection so it reconnects and catches up via message.history.
func (s *session) onOverflow() {
	frame, err := json.Marshal(envelopeError("", chat.ErrBackpressure))
	if err == nil {
		select {
		case s.replies <- frame:
		default:
		}
	}
	s.close()
}

func (s *session) readPump() {
	defer func() {
		s.cleanup()
		s.close()
	}()

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting read deadline for %s: %v", s.addr, err)
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if s.rateLimiter != nil && !s.rateLimiter.allow() {
			log.Printf("Rate limit exceeded for session %s (%d commands per %s); discarding command",
				s.id, s.rateLimit.Burst, s.rateLimit.RefillInterval)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.reply(envelopeError("", chat.ErrValidation))
			continue
		}
		s.handleCommand(env)
	}
}

// cleanup tears down everything the handshake set up: subscriptions, the
// router attachment, presence, and gateway registration.
func (s *session) cleanup() {
	s.gateway.router.UnsubscribeAll(s.id)
	s.gateway.router.Detach(s.id)
	if s.gateway.presence.SetOffline(s.identity.ID, s.id) {
		s.gateway.publishPresence(s.identity.ID)
	}
	s.gateway.unregister(s)
}

func (s *session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from session %s exceeded maximum size", s.id)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Session %s disconnected: %v", s.id, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Session %s connection closed: %v", s.id, err)
	default:
		log.Printf("WebSocket read error from session %s: %v", s.id, err)
	}
}

// writePump is the single writer on the socket. It drains command replies
// and routed events, and keeps the connection alive with periodic pings.
// It exits when the router closes the event queue during cleanup.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case frame := <-s.replies:
			if !s.writeFrame(frame) {
				return
			}
		case event, ok := <-s.events:
			if !ok {
				return
			}
			frame, err := json.Marshal(Envelope{Type: event.Type, Payload: mustMarshal(event.Payload)})
			if err != nil {
				log.Printf("Error marshaling event for session %s: %v", s.id, err)
				continue
			}
			if !s.writeFrame(frame) {
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing ping to session %s: %v", s.id, err)
				}
				return
			}
		}
	}
}

func (s *session) writeFrame(frame []byte) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing to session %s: %v", s.id, err)
		}
		return false
	}
	return true
}

// reply queues a response frame for the write pump. A full reply queue means
// the client stopped reading; the session is dropped rather than letting the
// queue grow.
func (s *session) reply(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("Error marshaling reply for session %s: %v", s.id, err)
		return
	}
	select {
	case s.replies <- frame:
	default:
		log.Printf("Session %s dropped: reply queue full", s.id)
		s.close()
	}
}

// writeDirect writes a frame synchronously. Only used during the handshake,
// before the write pump exists.
func (s *session) writeDirect(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing handshake frame to %s: %v", s.addr, err)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

func envelopeError(requestID string, err error) Envelope {
	return Envelope{
		Type:      TypeError,
		RequestID: requestID,
		Payload: mustMarshal(ErrorPayload{
			Kind:    errorKind(err),
			Message: errorMessage(err),
		}),
	}
}
