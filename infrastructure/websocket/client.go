package websocket

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/runtime"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ contract.Connection = (*Client)(nil)

// Client is one websocket connection. Outbound envelopes go through a
// bounded queue drained by writePump, so Send never blocks the caller.
type Client struct {
	id       domain.ConnectionID
	userID   domain.UserID
	conn     *websocket.Conn
	log      *slog.Logger
	settings Settings

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(id domain.ConnectionID, userID domain.UserID, conn *websocket.Conn,
	log *slog.Logger, settings Settings) *Client {
	conn.SetReadLimit(settings.MaxMessageSize)
	return &Client{
		id:       id,
		userID:   userID,
		conn:     conn,
		log:      log.With("connection_id", id, "user_id", userID),
		settings: settings,
		send:     make(chan []byte, settings.SendBufferSize),
	}
}

func (c *Client) ID() domain.ConnectionID {
	return c.id
}

// Send queues the envelope. A full queue means the peer does not keep up:
// the connection is closed rather than letting it fall further behind.
func (c *Client) Send(_ context.Context, envelope domain.Envelope) error {
	frame, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("Outbound queue full, closing slow connection", "queued", len(c.send))
		c.closeLocked()
		return errors.ErrBackpressure
	}
}

// Close stops accepting envelopes; writePump flushes what is queued then sends a close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump forwards every inbound frame to the dispatcher until the peer
// goes away, then disconnects the client.
func (c *Client) readPump(ctx context.Context, dispatcher Dispatcher) {
	defer func() {
		c.Close()
		dispatcher.Disconnect(ctx, c.id)
		_ = c.conn.Close()
	}()

	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	origin := runtime.Origin{UserID: c.userID, Conn: c}
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		dispatcher.Handle(ctx, origin, raw)
	}
}

func (c *Client) extendReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.settings.PongTimeout)); err != nil {
		c.log.Debug("Error setting read deadline", "error", err)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case stderrors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "max_message_size", c.settings.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Debug("Client disconnected")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn("Unexpected websocket close", "error", err)
	default:
		c.log.Debug("Connection closed", "error", err)
	}
}

// writePump is the only writer of the connection: one frame per envelope,
// pings in between.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.setWriteDeadline() {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Error writing frame", "error", err)
				return
			}
		case <-ticker.C:
			if !c.setWriteDeadline() {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Error writing ping", "error", err)
				return
			}
		}
	}
}

func (c *Client) setWriteDeadline() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	return true
}
