package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/metrics"
	"go.uber.org/zap"
)

// wsConnection defines the interface for WebSocket connection operations.
// In production it is satisfied by *websocket.Conn; tests use mocks that
// simulate disconnects, slow readers, and unanswered pings.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Client is one live connection of one user. It belongs to exactly one room
// for its lifetime and runs three goroutines: readPump (decode + route),
// writePump (serialized writes) and heartbeat (liveness monitor).
type Client struct {
	conn wsConnection
	hub  *Hub
	room *Room

	// connID distinguishes multiple connections of the same user.
	connID string

	// Verified identity from the token verifier. Inbound frames never
	// override these.
	UserID  string
	Name    string
	Picture string

	pingInterval    time.Duration
	activityTimeout time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	awaitingPong bool
	closed       bool

	send      chan []byte   // per-connection write queue; writePump drains it
	pingCh    chan struct{} // requests a protocol-level ping from writePump
	done      chan struct{}
	closeOnce sync.Once
}

// touch records inbound activity. Any frame, including protocol pongs and
// malformed JSON, counts as liveness.
func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.awaitingPong = false
	c.mu.Unlock()
}

// terminate force-closes the connection. It is idempotent and safe to call
// from any goroutine; cleanup (membership, presence, deletion timer) happens
// in readPump's defer once the read loop observes the closed socket.
func (c *Client) terminate() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump decodes inbound text frames and hands them to the router. Every
// read, successful or not, refreshes the activity clock. Malformed and binary
// frames are dropped silently.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.terminate()
		metrics.DecConnection()
	}()

	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.touch()
		if messageType != websocket.TextMessage {
			// Binary frames are not accepted.
			metrics.DroppedFrames.WithLabelValues("binary").Inc()
			continue
		}
		c.room.route(context.Background(), c, data)
	}
}

// writePump serializes all writes to the socket so concurrent senders to the
// same member never interleave frame bytes.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case <-c.pingCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logging.GetLogger().Debug("error writing ping", zap.String("connId", c.connID), zap.Error(err))
				return
			}
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.GetLogger().Debug("error writing message", zap.String("connId", c.connID), zap.Error(err))
				return
			}
		}
	}
}

// heartbeat evaluates liveness every pingInterval:
//  1. terminate when the activity window is exceeded,
//  2. terminate when the previous ping went unanswered for a full interval,
//  3. otherwise emit a protocol ping and a JSON ping frame; either reply
//     satisfies liveness.
func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastActivity)
			unanswered := c.awaitingPong
			if idle > c.activityTimeout {
				c.mu.Unlock()
				metrics.LivenessTerminations.WithLabelValues("activity_timeout").Inc()
				logging.Info(context.Background(), "Closing idle connection",
					zap.String("connId", c.connID), zap.String("userId", c.UserID), zap.Duration("idle", idle))
				c.terminate()
				return
			}
			if unanswered {
				c.mu.Unlock()
				metrics.LivenessTerminations.WithLabelValues("pong_timeout").Inc()
				logging.Info(context.Background(), "Closing unresponsive connection",
					zap.String("connId", c.connID), zap.String("userId", c.UserID))
				c.terminate()
				return
			}
			c.awaitingPong = true
			c.mu.Unlock()

			select {
			case c.pingCh <- struct{}{}:
			default:
			}
			c.sendJSON(pingEvent{Type: TypePing, TS: time.Now().UnixMilli()})
		}
	}
}

// sendRaw queues pre-serialized bytes for delivery. A full queue drops the
// frame instead of blocking the room; a hostile or slow member must not
// starve other members' fan-out.
func (c *Client) sendRaw(data []byte) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		logging.GetLogger().Debug("Skipping send to closed connection", zap.String("connId", c.connID))
		return
	}

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Connection send queue full, dropping frame",
			zap.String("connId", c.connID), zap.String("userId", c.UserID))
	}
}

func (c *Client) sendJSON(envelope any) {
	data, err := json.Marshal(envelope)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal envelope", zap.Error(err))
		return
	}
	c.sendRaw(data)
}
