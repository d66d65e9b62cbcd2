package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// WriteWait is the time allowed to write a message to the peer.
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong from the peer.
	PongWait = 60 * time.Second

	// PingPeriod must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	DefaultSendBuffer = 16
)

// Client is one realtime connection.
type Client struct {
	id   string
	conn *websocket.Conn

	// send is drained by WritePump. It is closed exactly once, by close.
	send   chan []byte
	closed bool
	mtx    sync.Mutex

	// room is the name of the room the client sits in; guarded by Hub.mtx.
	room string
}

// NewClient wraps conn with a fresh connection id. conn may be nil for
// clients that are only read through Messages.
func NewClient(conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues msg without blocking. A full queue or a closed client drops it.
func (c *Client) Send(msg []byte) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Messages exposes the outbound queue.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

func (c *Client) close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump writes queued messages to the connection and pings the peer.
// It is the only writer of the connection and returns once the client is
// closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
