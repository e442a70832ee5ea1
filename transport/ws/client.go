// Package ws is the websocket edge of the relay. It upgrades HTTP
// connections, decodes inbound frames into core events, and implements the
// connection handle the routing engine pushes outbound events through.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/relay"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Envelope is the wire framing: a named event plus its payload, mirroring
// the socket.io-style protocol clients already speak.
type Envelope struct {
	Event event.Name      `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is what an "error" envelope carries.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Client is one websocket connection. It is the engine's opaque connection
// handle: Consume queues outbound events for the write pump. A client
// whose send queue is full is treated as dead and dropped.
type Client struct {
	log      *slog.Logger
	conn     *websocket.Conn
	validate *validator.Validate
	session  *relay.Session

	send      chan []byte
	closeOnce sync.Once
}

// Consume implements the engine's sink contract. It never blocks: a slow
// consumer gets disconnected rather than stalling the relay.
func (c *Client) Consume(ctx context.Context, e event.ServerEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: e.EventName(), Data: data})
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.close()
		return apperrors.ErrSlowConsumer
	}
}

// close shuts the underlying connection down once; the pumps unwind from
// the read/write errors that follow. The send channel is never closed:
// Consume may race the shutdown, and frames queued past this point are
// simply never flushed.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readPump decodes inbound frames and feeds the session, one event at a
// time, so a sender's own messages keep their submission order. It owns
// the session lifecycle: when the pump exits, the connection is Closed.
func (c *Client) readPump() {
	defer func() {
		c.session.Close(context.Background())
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Unexpected websocket close", "err", err)
			}
			return
		}
		c.handleFrame(context.Background(), raw)
	}
}

func (c *Client) handleFrame(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reportError("malformed frame")
		return
	}

	switch env.Event {
	case event.NameJoin:
		var ev event.Join
		if !c.decode(env.Data, &ev) {
			return
		}
		if err := c.session.HandleJoin(ctx, ev); err != nil {
			c.log.Error("Error handling user join", "err", err)
			c.reportError("join failed")
		}
	case event.NameMessage:
		var ev event.RoomMessage
		if !c.decode(env.Data, &ev) {
			return
		}
		if err := c.session.HandleRoomMessage(ctx, ev); err != nil {
			c.log.Error("Error saving message", "err", err)
			c.reportError("message not delivered")
		}
	case event.NamePrivateMessage:
		var ev event.Direct
		if !c.decode(env.Data, &ev) {
			return
		}
		if err := c.session.HandleDirect(ctx, ev); err != nil {
			c.log.Error("Error handling private message", "err", err)
			c.reportError("private message not delivered")
		}
	default:
		c.reportError("unknown event")
	}
}

// decode unmarshals and validates an inbound payload. A payload failing
// validation is answered with an error envelope and otherwise ignored.
func (c *Client) decode(data json.RawMessage, payload any) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		c.reportError("malformed payload")
		return false
	}
	if err := c.validate.Struct(payload); err != nil {
		c.reportError("invalid payload")
		return false
	}
	return true
}

// reportError surfaces a failure to this connection only, best effort.
func (c *Client) reportError(message string) {
	data, _ := json.Marshal(ErrorPayload{Message: message})
	frame, _ := json.Marshal(Envelope{Event: event.NameError, Data: data})
	select {
	case c.send <- frame:
	default:
	}
}

// writePump flushes queued frames to the peer and keeps the connection
// alive with pings. One writer per connection: gorilla/websocket allows a
// single concurrent writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
