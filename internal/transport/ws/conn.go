package ws

import (
	"sync"
	"time"

	"github.com/cwrk-planet/board-service/internal/event"

	"github.com/gorilla/websocket"
)

// wsConn owns one websocket. The write loop is the only goroutine that
// writes to the wire; Send just queues onto the outbox. A receiver that
// cannot drain its outbox is closed rather than allowed to stall senders.
type wsConn struct {
	conn *websocket.Conn

	out       chan event.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn) *wsConn {
	return &wsConn{
		conn:   c,
		out:    make(chan event.Message, 64),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg event.Message) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return websocket.ErrCloseSent
	default:
		// slow consumer
		_ = c.Close()
		return websocket.ErrCloseSent
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

func (c *wsConn) writeLoop(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}
