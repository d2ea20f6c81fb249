package ws

import (
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// Identity is the participant identity resolved once at connection
// time. Immutable for the connection's lifetime.
type Identity struct {
	ID          uint
	DisplayName string
	AvatarURL   string
}

func (i Identity) presenceEntry() PresenceEntry {
	return PresenceEntry{
		ParticipantID: i.ID,
		DisplayName:   i.DisplayName,
		AvatarURL:     i.AvatarURL,
	}
}

// SessionState is the connection session lifecycle state
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

// Client is one connection session: it binds a presence entry to one
// identity, routes inbound events to the orchestrator, and relays
// outbound events from the hub.
type Client struct {
	identity     Identity
	conn         *websocket.Conn
	hub          *Hub
	orchestrator *Orchestrator

	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
	log       *logger.Logger
}

// NewClient creates a session for an authenticated connection
func NewClient(identity Identity, conn *websocket.Conn, hub *Hub, orchestrator *Orchestrator, sendBuffer int, log *logger.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	c := &Client{
		identity:     identity,
		conn:         conn,
		hub:          hub,
		orchestrator: orchestrator,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		log:          log.WithComponent("session").WithUserID(identityLogID(identity)),
	}
	c.state.Store(int32(StateAuthenticated))
	return c
}

// Identity returns the participant identity bound to this session
func (c *Client) Identity() Identity {
	return c.identity
}

// State returns the current session state
func (c *Client) State() SessionState {
	return SessionState(c.state.Load())
}

func (c *Client) setState(s SessionState) {
	c.state.Store(int32(s))
}

// close marks the session terminal. The send channel is never closed;
// pending requester-scoped feedback is silently dropped instead.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.setState(StateDisconnected)
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// trySend queues an outbound frame without blocking. Returns false if
// the session is gone or its buffer is full.
func (c *Client) trySend(message []byte) bool {
	if c.State() == StateDisconnected {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// sendEvent marshals and queues a connection-scoped event
func (c *Client) sendEvent(event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		c.log.LogError(err, "failed to encode event", "event", event)
		return
	}
	c.trySend(data)
}

// ReadPump reads inbound frames until the connection drops. Events
// received while the session is not Joined are ignored; the transport
// is still negotiating.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.close()
	}()

	c.conn.SetReadLimit(c.orchestrator.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("unexpected close", "error", err.Error())
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("discarding malformed frame", "error", err.Error())
			continue
		}

		if c.State() != StateJoined {
			continue
		}

		c.dispatch(frame)
	}
}

// dispatch routes one inbound frame. Handlers run in their own
// goroutine so a slow persistence or provider call never blocks the
// read loop.
func (c *Client) dispatch(frame Frame) {
	switch frame.Event {
	case EventMessageSend:
		var payload SendMessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			c.sendEvent(EventAIStreamError, StreamErrorPayload{
				Code:   CodeValidationError,
				Reason: "malformed message:send payload",
			})
			return
		}
		go c.orchestrator.HandleSend(c, payload)

	case EventAIRequest:
		var payload AIRequestPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			c.sendEvent(EventAIStreamError, StreamErrorPayload{
				Code:   CodeValidationError,
				Reason: "malformed ai:request payload",
			})
			return
		}
		go c.orchestrator.HandleAIRequest(c, payload)

	default:
		c.log.Debug("ignoring unknown event", "event", frame.Event)
	}
}

// WritePump writes queued frames and keepalive pings to the peer
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain anything already queued as separate frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func identityLogID(identity Identity) string {
	return strconv.FormatUint(uint64(identity.ID), 10)
}
