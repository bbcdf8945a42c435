package client

import (
	"chat-relay/gateway"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler receives decoded server frames after the store merged them.
// Applied reports whether the frame changed the local view.
type Handler func(envelope gateway.Envelope, applied bool)

// Client drives the reconciliation store against a live gateway over one
// persistent WebSocket.
type Client struct {
	URL   string
	Token string

	Store   *Store
	log     *slog.Logger
	handler Handler

	ackTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(url, token string, store *Store, log *slog.Logger, handler Handler) *Client {
	return &Client{
		URL:        url,
		Token:      token,
		Store:      store,
		log:        log,
		handler:    handler,
		ackTimeout: 10 * time.Second,
	}
}

// Connect dials the gateway with the bearer credential. On reconnect the
// caller follows up with Resync to close any gap.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("gateway refused credentials: %w", err)
		}
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close fails whatever is still in flight; those sends must not be retried
// with the same token.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.Store.MarkAllFailed()
}

// Send performs an optimistic submit: placeholder first, then the wire
// frame. If no ack lands within ackTimeout the placeholder goes Failed.
func (c *Client) Send(conversationID, senderID, senderName, body string) (LocalMessage, error) {
	placeholder := c.Store.Submit(conversationID, senderID, senderName, body)

	err := c.writeFrame(gateway.TypeMessageSend, gateway.SendMessage{
		ConversationID:   conversationID,
		ClientDedupToken: placeholder.DedupToken,
		Body:             body,
	})
	if err != nil {
		c.Store.MarkFailed(placeholder.DedupToken)
		return placeholder, err
	}

	token := placeholder.DedupToken
	time.AfterFunc(c.ackTimeout, func() {
		if c.Store.MarkFailed(token) {
			c.log.Warn("send timed out", "dedup_token", token)
		}
	})
	return placeholder, nil
}

// Resync requests a catch-up batch for every known conversation, using the
// last canonical id as watermark. Conversations never seen before sync from
// the start.
func (c *Client) Resync(conversations []string) error {
	for _, conversationID := range conversations {
		request := gateway.SyncRequest{ConversationID: conversationID}
		if watermark, ok := c.Store.LastCanonicalID(conversationID); ok {
			request.AfterMessageID = watermark
		}
		if err := c.writeFrame(gateway.TypeSyncRequest, request); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Typing(conversationID string, started bool) error {
	frameType := gateway.TypeTypingStart
	if !started {
		frameType = gateway.TypeTypingStop
	}
	return c.writeFrame(frameType, gateway.Typing{ConversationID: conversationID})
}

// Run reads frames until the connection dies, merging each into the store
// and notifying the handler. Returns the transport error that ended it.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("not connected")
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		envelope, err := gateway.DecodeServerFrame(data)
		if err != nil {
			c.log.Warn("undecodable server frame", "error", err)
			continue
		}
		applied := c.apply(envelope)
		if c.handler != nil {
			c.handler(envelope, applied)
		}
	}
}

func (c *Client) apply(envelope gateway.Envelope) bool {
	switch payload := envelope.Payload.(type) {
	case gateway.Ack:
		createdAt, err := gateway.ParseTime(payload.CreatedAt)
		if err != nil {
			return false
		}
		return c.Store.ApplyAck(payload.ClientDedupToken, payload.MessageID, createdAt)
	case gateway.NewMessage:
		return c.Store.ApplyNew(payload)
	case gateway.SyncBatch:
		return c.Store.ApplySyncBatch(payload) > 0
	default:
		return false
	}
}

func (c *Client) writeFrame(frameType string, payload any) error {
	data, err := gateway.EncodeFrame(frameType, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
