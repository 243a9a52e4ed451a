// Package socket implements the persistent device connections and the
// per-connection message protocol of the sync relay.
package socket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrSendQueueFull is returned when a connection's outbound queue is full.
// The message is dropped; delivery is best effort.
var ErrSendQueueFull = errors.New("send queue full")

// ErrConnClosed is returned when sending on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// ErrInvalidTransition is returned for a state transition the protocol does
// not allow, e.g. a second register frame.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of a connection.
type State int

const (
	// StateConnecting means the transport is open but no register frame has
	// been accepted yet.
	StateConnecting State = iota
	// StateActive means the device has registered and frames are relayed.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one live device connection. It implements registry.Conn.
// A connection belongs to exactly one restaurant for its lifetime.
type Connection struct {
	id           string
	deviceID     string
	restaurantID string
	userID       string
	connectedAt  time.Time

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	logger    *zap.Logger
}

func newConnection(ws *websocket.Conn, deviceID, restaurantID, userID string, sendBuffer int, logger *zap.Logger) *Connection {
	return &Connection{
		id:           uuid.New().String(),
		deviceID:     deviceID,
		restaurantID: restaurantID,
		userID:       userID,
		connectedAt:  time.Now(),
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		state:        StateConnecting,
		logger:       logger,
	}
}

// ID returns the unique id of this connection instance.
func (c *Connection) ID() string { return c.id }

// DeviceID returns the device id supplied at connect time.
func (c *Connection) DeviceID() string { return c.deviceID }

// RestaurantID returns the restaurant this connection belongs to.
func (c *Connection) RestaurantID() string { return c.restaurantID }

// UserID returns the user id supplied at connect time.
func (c *Connection) UserID() string { return c.userID }

// ConnectedAt returns when the transport was opened.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition moves the connection from one state to another, rejecting
// anything the protocol does not allow.
func (c *Connection) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return ErrInvalidTransition
	}
	c.state = to
	return nil
}

// Send enqueues an already serialized message. It never blocks: a full queue
// drops the message and reports the failure to the caller.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close moves the connection to Closed and stops the write loop, which in
// turn closes the underlying transport. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// writeLoop is the only writer on the transport, so per-connection send
// order follows enqueue order. It also pings the peer so a silently dead
// connection trips the read deadline instead of leaking forever.
func (c *Connection) writeLoop(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("socket write failed",
					zap.String("device_id", c.deviceID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
