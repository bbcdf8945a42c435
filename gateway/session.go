package gateway

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
	"chat-relay/sink"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is the ephemeral server-side state of one live connection:
// created at a successful handshake, destroyed exactly once at disconnect,
// never persisted. The gateway owns it; the registries only hold its id and
// sink.
//
// A single writer goroutine (writePump) serializes everything that leaves
// on the socket: direct replies from the read loop and fanned-out events
// from the sink.
type Session struct {
	ID       string
	Identity domain.Identity

	conn         *websocket.Conn
	events       *sink.Connection
	outbound     chan []byte
	log          *slog.Logger
	writeTimeout time.Duration
	pingInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(log *slog.Logger, conn *websocket.Conn, identity domain.Identity,
	bufferSize int, writeTimeout, pingInterval time.Duration) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Identity:     identity,
		conn:         conn,
		events:       sink.NewConnection(log, bufferSize),
		outbound:     make(chan []byte, bufferSize),
		log:          log,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		done:         make(chan struct{}),
	}
}

// Sink is what the router fans out into.
func (s *Session) Sink() contract.EventSink {
	return s.events
}

// SendDirect queues a direct reply (ack, sync batch, error) for this
// connection only. Blocking here only ever stalls this session's own read
// loop, never another connection.
func (s *Session) SendDirect(frameType string, payload any) error {
	data, err := EncodeFrame(frameType, payload)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- data:
		return nil
	case <-s.done:
		return chaterrors.ErrSessionClosed
	}
}

// Close is exactly-once: it unblocks the pumps and closes the socket.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// writePump is the session's single writer. It interleaves direct frames
// and translated domain events, and pings to keep the connection alive.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case data := <-s.outbound:
			if !s.write(websocket.TextMessage, data) {
				return
			}
		case evt := <-s.events.Events:
			data, ok := s.translate(evt)
			if !ok {
				continue
			}
			if !s.write(websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.log.Debug("socket write failed", "conn", s.ID, "error", err)
		return false
	}
	return true
}

// translate maps a domain event to its wire frame for this connection.
// Typing echoes from this very connection are suppressed here; message
// echoes are the client store's job (it dedups on id and dedup token).
func (s *Session) translate(e event.DomainEvent) ([]byte, bool) {
	switch evt := e.(type) {
	case event.MessageCreated:
		data, err := EncodeFrame(TypeMessageNew, ToNewMessage(evt.Message))
		return data, err == nil
	case event.TypingStarted:
		if evt.OriginConn == s.ID {
			return nil, false
		}
		data, err := EncodeFrame(TypeTypingStart, Typing{
			ConversationID: string(evt.ConversationID),
			UserID:         string(evt.User.ID),
			UserName:       evt.User.Name,
		})
		return data, err == nil
	case event.TypingStopped:
		if evt.OriginConn == s.ID {
			return nil, false
		}
		data, err := EncodeFrame(TypeTypingStop, Typing{
			ConversationID: string(evt.ConversationID),
			UserID:         string(evt.User.ID),
		})
		return data, err == nil
	case event.PresenceChanged:
		data, err := EncodeFrame(TypePresenceUpdate, PresenceUpdate{
			UserID: string(evt.UserID),
			Online: evt.Online,
		})
		return data, err == nil
	default:
		return nil, false
	}
}
