package server

import (
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spaceterm/muxd/internal/rpc"
)

// outputQueueHighWater bounds a connection's outbound frame backlog. A
// full queue makes Send block, which in turn makes a pane's I/O pump
// stall on its next read — backpressure propagating from socket to PTY.
const outputQueueHighWater = 256

// connection owns one upgraded WebSocket: a reader goroutine feeding the
// Dispatcher, a writer goroutine draining the output queue, and the
// queue's lifetime.
type connection struct {
	ws     *websocket.Conn
	queue  chan []byte
	closed chan struct{}
	logger *log.Logger
}

func newConnection(ws *websocket.Conn, logger *log.Logger) *connection {
	return &connection{
		ws:     ws,
		queue:  make(chan []byte, outputQueueHighWater),
		closed: make(chan struct{}),
		logger: logger,
	}
}

// Send implements rpc.Sender. It blocks while the queue is full rather
// than dropping frames, and fails fast once the connection is closing.
func (c *connection) Send(frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.queue <- frame:
		return nil
	case <-c.closed:
		return errConnClosed
	}
}

var errConnClosed = rpcConnClosedError{}

type rpcConnClosedError struct{}

func (rpcConnClosedError) Error() string { return "connection closed" }

// serve runs the reader loop until the socket errs or closes, dispatching
// every frame to dispatcher. Call in the connection's own goroutine.
func (c *connection) serve(dispatcher *rpc.Dispatcher) {
	go c.writeLoop()

	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		dispatcher.HandleFrame(data)
	}
	c.Close()
}

func (c *connection) writeLoop() {
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case frame, ok := <-c.queue:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-pingTicker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close signals both goroutines to stop and closes the socket. Safe to
// call more than once.
func (c *connection) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	c.ws.Close()
}

// drain waits up to deadline for the output queue to empty, then returns
// regardless.
func (c *connection) drain(deadline time.Duration) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return
		default:
		}
		if len(c.queue) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
