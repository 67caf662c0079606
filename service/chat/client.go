package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PulseIM/logger"
)

// Client is one live transport session for an identity. A single user
// may hold several concurrently (multi-device); each keeps its own
// send queue drained by a single writer goroutine.
type Client struct {
	ConnID    string // unique within this gateway
	UserID    string // fixed at admission
	CreatedAt time.Time

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID:    connID,
		UserID:    userID,
		CreatedAt: time.Now(),
		ws:        ws,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Emit queues an event for this connection. A closed or saturated
// connection swallows the event: routing to a stale handle means
// "offline", never a caller-visible failure.
func (c *Client) Emit(event string, data any) {
	b, err := MarshalEvent(event, data)
	if err != nil {
		logger.Errorf("[client] marshal event=%s err=%v", event, err)
		return
	}
	c.enqueue(b)
}

func (c *Client) enqueue(b []byte) {
	select {
	case <-c.done:
	case c.send <- b:
	default:
		logger.Warnf("[client] send queue full, drop frame conn=%s user=%s", c.ConnID, c.UserID)
	}
}

// WritePump is the connection's only writer. Run it in its own
// goroutine; it exits when Close is called and closes the socket.
func (c *Client) WritePump(writeTimeout time.Duration) {
	defer func() {
		if c.ws != nil {
			_ = c.ws.Close()
		}
	}()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			if c.ws == nil {
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Infof("[client] write err conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
				return
			}
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
