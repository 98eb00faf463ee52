package chat

import (
	"context"
	"github.com/coder/websocket"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	// defaultSendBufferSize controls the max number
	// of lines that can be queued for a client.
	defaultSendBufferSize = 16
	defaultWriteTimeout   = 10 * time.Second
	defaultPingPeriod     = (60 * 9 * time.Second) / 10
)

// Transport is the part of *websocket.Conn a Connection relies on.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type State int32

const (
	StateCreated State = iota
	StateAttached
	StateActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAttached:
		return "attached"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Connection is one client's chat session. It turns inbound text frames
// into MessageSent events and writes the lines the registry delivers.
type Connection struct {
	id        Identity
	transport Transport
	registry  Submitter
	logger    *slog.Logger

	send         chan string
	writeTimeout time.Duration
	pingPeriod   time.Duration

	state     atomic.Int32
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	// closeCode is only touched by the goroutine running Serve.
	closeCode websocket.StatusCode
}

type ConnectionOption func(*Connection)

func WithSendBufferSize(size int) ConnectionOption {
	return func(c *Connection) {
		if size > 0 {
			c.send = make(chan string, size)
		}
	}
}

func WithWriteTimeout(timeout time.Duration) ConnectionOption {
	return func(c *Connection) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

func WithPingPeriod(period time.Duration) ConnectionOption {
	return func(c *Connection) {
		if period > 0 {
			c.pingPeriod = period
		}
	}
}

func NewConnection(id Identity, transport Transport, registry Submitter, logger *slog.Logger, opts ...ConnectionOption) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		transport:    transport,
		registry:     registry,
		logger:       logger.With("clientID", id),
		send:         make(chan string, defaultSendBufferSize),
		writeTimeout: defaultWriteTimeout,
		pingPeriod:   defaultPingPeriod,
		closeCode:    websocket.StatusNormalClosure,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connection) Identity() Identity {
	return c.id
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// Serve runs the session until the client goes away, a read or write
// fails, Close is called or ctx is done. It always ends with exactly one
// Left event.
func (c *Connection) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()
	defer c.terminate()

	c.attach()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	c.setState(StateActive)
	c.readPump()

	c.setState(StateClosing)
	c.cancel()
	wg.Wait()
}

// Deliver queues line for the client. Lines delivered before the session is
// attached or after it is torn down are dropped. A client whose queue is
// full is disconnected rather than allowed to hold up the broadcaster.
func (c *Connection) Deliver(line string) {
	switch c.State() {
	case StateAttached, StateActive:
	default:
		return
	}

	select {
	case <-c.ctx.Done():
		return
	default:
	}

	select {
	case c.send <- line:
	default:
		c.logger.Warn("send queue full, disconnecting client")
		c.cancel()
	}
}

// Close asks the session to end. Safe to call from any goroutine, any
// number of times.
func (c *Connection) Close() {
	c.cancel()
}

func (c *Connection) attach() {
	c.setState(StateAttached)
	c.registry.Submit(Joined{Member: c})
}

func (c *Connection) terminate() {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.transport.Close(c.closeCode, "bye"); err != nil {
			c.logger.Debug("failed to close connection", "error", err)
		}
		c.setState(StateTerminated)
		c.registry.Submit(Left{ID: c.id})
	})
}

func (c *Connection) readPump() {
	for {
		typ, data, err := c.transport.Read(c.ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				c.logger.Debug("client closed connection", "status", websocket.CloseStatus(err))
			case c.ctx.Err() != nil:
				c.logger.Debug("connection cancelled")
			default:
				c.logger.Warn("failed to read message", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if !utf8.Valid(data) {
			c.logger.Warn("text frame is not valid UTF-8, closing connection")
			c.closeCode = websocket.StatusInvalidFramePayloadData
			return
		}
		c.registry.Submit(MessageSent{Author: c.id, Content: string(data)})
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
	}()

	for {
		select {
		case line := <-c.send:
			if err := c.write(line); err != nil {
				c.logger.Warn("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.logger.Debug("failed to ping client", "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(line string) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return c.transport.Write(ctx, websocket.MessageText, []byte(line))
}

func (c *Connection) ping() error {
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return c.transport.Ping(ctx)
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}
