package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uminmay/collaborative-ai-editor/internal/loop"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer. Load responses carry whole files.
	maxMessageSize = 1 << 20

	sendBufferSize = 256
)

var errSendBufferFull = errors.New("send buffer full")
var errChannelClosed = errors.New("channel closed")

// WebSocketTransport dials a websocket endpoint and delivers events on Sched.
type WebSocketTransport struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Sched  loop.Scheduler

	WriteWait time.Duration
	PongWait  time.Duration

	Logger *slog.Logger
}

// Open dials in the background. Dial failures are reported as Closed.
func (t *WebSocketTransport) Open(ctx context.Context, events Events) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}
	writeWait := t.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	pongWait := t.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}

	go func() {
		conn, _, err := dialer.DialContext(ctx, t.URL, t.Header)
		if err != nil {
			t.Sched.Post(func() { events.Closed(err) })
			return
		}

		ch := &wsChannel{
			conn:      conn,
			send:      make(chan []byte, sendBufferSize),
			done:      make(chan struct{}),
			writeWait: writeWait,
			pongWait:  pongWait,
			log:       log,
		}
		t.Sched.Post(func() { events.Opened(ch) })

		go ch.writePump()
		go func() {
			err := ch.readPump(func(data []byte) {
				t.Sched.Post(func() { events.Received(data) })
			})
			ch.Close()
			t.Sched.Post(func() { events.Closed(err) })
		}()

		<-ctx.Done()
		ch.Close()
	}()
}

// wsChannel is an open websocket connection with a buffered writer.
type wsChannel struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	writeWait time.Duration
	pongWait  time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Send queues data for the write pump.
func (c *wsChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errChannelClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, close the channel
		c.closeLocked()
		return errSendBufferFull
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *wsChannel) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *wsChannel) readPump(deliver func(data []byte)) error {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "err", err)
			}
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		deliver(message)
	}
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
