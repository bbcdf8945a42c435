package gateway

import (
	"chat-relay/contract"
	"chat-relay/domain"
	chaterrors "chat-relay/errors"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Gateway upgrades HTTP requests to WebSocket sessions. Authentication
// happens before the upgrade: a bad token is refused with 401 and no
// session state whatsoever is created.
type Gateway struct {
	log      *slog.Logger
	verifier contract.IIdentityVerifier
	chat     services.IChatService
	upgrader websocket.Upgrader

	connectionBufferSize int
	writeTimeout         time.Duration
	pingInterval         time.Duration
}

func NewGateway(log *slog.Logger, verifier contract.IIdentityVerifier,
	chat services.IChatService, connectionBufferSize int,
	writeTimeout, pingInterval time.Duration) *Gateway {
	return &Gateway{
		log:      log,
		verifier: verifier,
		chat:     chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients come from the separately-served web app.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connectionBufferSize: connectionBufferSize,
		writeTimeout:         writeTimeout,
		pingInterval:         pingInterval,
	}
}

func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(g.handle)
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request) {
	identity, err := g.verifier.Verify(bearerToken(r))
	if err != nil {
		g.log.Warn("handshake refused", "error", err)
		http.Error(w, chaterrors.ClientMessage(chaterrors.ErrAuthentication), http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", "user", identity.ID, "error", err)
		return
	}

	session := NewSession(g.log, conn, identity, g.connectionBufferSize,
		g.writeTimeout, g.pingInterval)
	defer session.Close()

	// Register with presence and subscribe to every membership room.
	if _, err := g.chat.Connect(identity, session.ID, session.Sink()); err != nil {
		g.log.Error("session registration failed", "user", identity.ID, "error", err)
		_ = session.SendDirect(TypeError, ErrorPayload{Message: chaterrors.ClientMessage(err)})
		return
	}
	// Teardown is deterministic and exactly-once, whatever ends the
	// connection: both registries forget this session on the way out.
	defer g.chat.Disconnect(identity, session.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go session.writePump(ctx)

	g.readLoop(ctx, session)
}

func (g *Gateway) readLoop(ctx context.Context, session *Session) {
	for {
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			g.log.Debug("read loop ended", "conn", session.ID, "error", err)
			return
		}
		g.dispatch(ctx, session, data)
	}
}

// dispatch routes one decoded frame. Per-request failures go only to the
// originating connection and never end the session; only transport failure
// is fatal.
func (g *Gateway) dispatch(ctx context.Context, session *Session, data []byte) {
	envelope, err := DecodeClientFrame(data)
	if err != nil {
		g.sendError(session, err)
		return
	}

	switch payload := envelope.Payload.(type) {
	case SendMessage:
		g.handleSend(ctx, session, payload)
	case SyncRequest:
		g.handleSync(ctx, session, payload)
	case RoomChange:
		g.handleRoomChange(session, envelope.Type, payload)
	case Typing:
		g.chat.Typing(domainConversation(payload.ConversationID), session.Identity,
			session.ID, envelope.Type == TypeTypingStart)
	}
}

func (g *Gateway) handleSend(ctx context.Context, session *Session, payload SendMessage) {
	ack, err := g.chat.SendMessage(ctx, domainConversation(payload.ConversationID),
		session.Identity, payload.ClientDedupToken, payload.Body)
	if err != nil {
		g.sendError(session, err)
		return
	}
	// Direct reply, not broadcast: the ack belongs to this connection only.
	_ = session.SendDirect(TypeMessageAck, Ack{
		ClientDedupToken: ack.DedupToken,
		MessageID:        ack.MessageID.String(),
		CreatedAt:        FormatTime(ack.CreatedAt),
	})
}

func (g *Gateway) handleSync(ctx context.Context, session *Session, payload SyncRequest) {
	var after *uuid.UUID
	if payload.AfterMessageID != "" {
		parsed, err := uuid.Parse(payload.AfterMessageID)
		if err != nil {
			g.sendError(session, chaterrors.ErrValidation)
			return
		}
		after = &parsed
	}

	messages, err := g.chat.Sync(ctx, session.Identity.ID,
		domainConversation(payload.ConversationID), after)
	if err != nil {
		g.sendError(session, err)
		return
	}
	_ = session.SendDirect(TypeSyncBatch,
		ToSyncBatch(domainConversation(payload.ConversationID), messages))
}

func (g *Gateway) handleRoomChange(session *Session, frameType string, payload RoomChange) {
	conversationID := domainConversation(payload.ConversationID)
	if frameType == TypeRoomLeave {
		g.chat.LeaveRoom(conversationID, session.ID)
		return
	}
	if err := g.chat.JoinRoom(session.Identity, conversationID, session.ID, session.Sink()); err != nil {
		g.sendError(session, err)
	}
}

func (g *Gateway) sendError(session *Session, err error) {
	_ = session.SendDirect(TypeError, ErrorPayload{Message: chaterrors.ClientMessage(err)})
}

func domainConversation(id string) domain.ConversationID {
	return domain.ConversationID(id)
}

// bearerToken extracts the credential from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, found := strings.CutPrefix(header, "Bearer "); found {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
