package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var ErrOutboxFull = errors.New("client outbox full")
var ErrClosed = errors.New("client closed")

// Client adapts a websocket to session.Conn. Frames queue in a bounded
// outbox drained by a single writer goroutine, so Send never blocks on the
// network.
type Client struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration
	log          *zap.Logger

	mu     sync.Mutex
	out    chan []byte
	closed bool
	done   chan struct{}
}

func newClient(id string, conn *websocket.Conn, outbox int, writeTimeout time.Duration, log *zap.Logger) *Client {
	c := &Client{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		log:          log,
		out:          make(chan []byte, outbox),
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.out <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrOutboxFull
	}
}

// Close stops accepting frames. Queued frames are still written before the
// socket is closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.out)
	return nil
}

// Done is closed once the socket has been closed by the writer.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) writeLoop() {
	defer close(c.done)
	broken := false
	for payload := range c.out {
		if broken {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			// Keep draining; the reader notices the dead socket and disconnects.
			c.log.Warn("write failed", zap.Error(err))
			broken = true
		}
	}
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
