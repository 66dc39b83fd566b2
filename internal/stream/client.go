package stream

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/aquintel/spillwatch/internal/commands"
	"github.com/aquintel/spillwatch/internal/dispatcher"
	"github.com/aquintel/spillwatch/pkg/streaming"
)

const (
	sendChSize     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var errBadPayload = errors.New("bad payload")

// client is one dashboard connection with a single write goroutine.
type client struct {
	hub  *Hub
	conn *ws.Conn
	role string

	send chan []byte
	done chan struct{} // closed when the client is removed
	once sync.Once
}

func newClient(h *Hub, conn *ws.Conn, role string) *client {
	return &client{
		hub:  h,
		conn: conn,
		role: role,
		send: make(chan []byte, sendChSize),
		done: make(chan struct{}),
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// enqueue pushes data to the write loop. Non-blocking; reports false when the
// buffer is full or the client is gone.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains send and pings the peer until the client is stopped.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.remove(c)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.hub.logger.Debug("WebSocket write error", "error", err)
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.remove(c)
				return
			}
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// readLoop decodes client envelopes and routes them to the dispatcher.
func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.hub.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.reply(streaming.ErrorMessage{Type: streaming.TypeError, Error: "invalid message"})
			continue
		}

		event, err := c.event(env)
		if err != nil {
			c.reply(streaming.ErrorMessage{Type: streaming.TypeError, For: env.Type, Error: err.Error()})
			continue
		}

		// model calls can outlive the pong deadline
		if event.Command == commands.ModelsAIS || event.Command == commands.VesselSAR {
			c.hub.wg.Add(1)
			go func() {
				defer c.hub.wg.Done()
				c.handle(env.Type, event)
			}()
			continue
		}
		c.handle(env.Type, event)
	}
}

// event maps a client envelope onto a dispatcher event.
func (c *client) event(env streaming.Envelope) (dispatcher.Event, error) {
	e := dispatcher.Event{Role: c.role}
	switch env.Type {
	case streaming.TypeStart:
		e.Command = commands.PlaybackStart
	case streaming.TypeStop:
		e.Command = commands.PlaybackStop
	case streaming.TypeSeek:
		var p struct {
			Progress *float64 `json:"progress"`
		}
		if len(env.Payload) == 0 || json.Unmarshal(env.Payload, &p) != nil || p.Progress == nil {
			return e, errBadPayload
		}
		e.Command = commands.PlaybackSeek
		e.Args = []string{strconv.FormatFloat(*p.Progress, 'f', -1, 64)}
	case streaming.TypeRunAIS:
		e.Command = commands.ModelsAIS
	case streaming.TypeRunSAR:
		var p streaming.VesselPayload
		if len(env.Payload) == 0 || json.Unmarshal(env.Payload, &p) != nil || p.MMSI == "" {
			return e, errBadPayload
		}
		e.Command = commands.VesselSAR
		e.Args = []string{p.MMSI}
	default:
		return e, dispatcher.ErrUnknownCommand
	}
	return e, nil
}

func (c *client) handle(msgType string, e dispatcher.Event) {
	result, err := c.hub.dispatcher.Dispatch(e)
	if err != nil {
		c.reply(streaming.ErrorMessage{Type: streaming.TypeError, For: msgType, Error: err.Error()})
		return
	}
	c.reply(streaming.AckMessage{Type: streaming.TypeAck, For: msgType, Result: result})
}

func (c *client) reply(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("Failed to marshal reply", "error", err)
		return
	}
	if !c.enqueue(data) {
		c.hub.logger.Warn("WebSocket send buffer full, dropping reply")
	}
}
