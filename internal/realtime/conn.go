package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// ConnInfo carries per-connection identity and diagnostics.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Conn is one authenticated websocket connection attached to the broker.
type Conn struct {
	broker *Broker
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	info   ConnInfo

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newConn(broker *Broker, ws *websocket.Conn, info ConnInfo) *Conn {
	return &Conn{
		broker: broker,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		info:   info,
	}
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the send buffer is full. Frames for a closed connection are dropped
// silently.
func (c *Conn) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// mayAttach enforces the capability model: any room channel and the shared
// channels are open, a direct channel only to its owner.
func (c *Conn) mayAttach(channel string) bool {
	switch {
	case channel == models.ChannelPresence, channel == models.ChannelUsers:
		return true
	case channel == models.DirectChannel(c.info.UserID):
		return true
	case len(channel) > 5 && channel[:5] == "chat:":
		return true
	default:
		return false
	}
}

func (c *Conn) closeOnce() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

// readPump consumes control frames until the connection drops, then detaches
// the connection from the broker.
func (c *Conn) readPump() {
	defer func() {
		c.broker.unregister(c)
		c.closeOnce()
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read error conn_id=%s: %v", c.info.ConnID, err)
			}
			return
		}

		var cmd models.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("websocket bad command conn_id=%s: %v", c.info.ConnID, err)
			continue
		}
		c.broker.handleCommand(c, cmd)
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error conn_id=%s: %v", c.info.ConnID, err)
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
