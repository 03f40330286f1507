package livehub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is the framed, bidirectional connection a Conn runs on.
// WriteMessage and WritePing are only called from the connection's writer
// goroutine; Close may be called from any goroutine.
type Transport interface {
	WriteMessage(data []byte) error
	WritePing() error
	ReadMessage() ([]byte, error)
	Close(code int, reason string) error
}

type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one client connection registered with a Hub.
type Conn struct {
	id        string
	silo      string
	userID    string
	transport Transport
	hub       *Hub
	logger    *zap.Logger

	state atomic.Int32
	send  chan []byte
	done  chan struct{}
	once  sync.Once

	mu       sync.RWMutex
	watching map[string]struct{}
}

func newConn(h *Hub, transport Transport) *Conn {
	c := &Conn{
		id:        uuid.NewString(),
		transport: transport,
		hub:       h,
		send:      make(chan []byte, h.opts.SendBufferSize),
		done:      make(chan struct{}),
		watching:  make(map[string]struct{}),
	}
	c.logger = h.logger.With(zap.String("conn_id", c.id))
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) Silo() string   { return c.silo }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Done is closed once the connection reaches StateClosed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Watch adds an application to the connection's watch set.
func (c *Conn) Watch(applicationID string) {
	if applicationID == "" {
		return
	}
	c.mu.Lock()
	c.watching[applicationID] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) Watches(applicationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.watching[applicationID]
	return ok
}

// enqueue hands data to the writer without blocking. It reports false when
// the connection is not open or its buffer is full; the message is dropped.
func (c *Conn) enqueue(data []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close moves the connection to StateClosed exactly once.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		c.hub.unregister(c)
		if err := c.transport.Close(code, reason); err != nil {
			c.logger.Debug("close transport", zap.Error(err))
		}
	})
}

func (c *Conn) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.WriteMessage(data); err != nil {
				c.logger.Debug("write failed, closing connection", zap.Error(err))
				c.Close(CloseAbnormal, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.transport.WritePing(); err != nil {
				c.logger.Debug("ping failed, closing connection", zap.Error(err))
				c.Close(CloseAbnormal, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) readLoop() {
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			c.Close(CloseNormal, "client closed")
			return
		}

		var control controlMessage
		if err := json.Unmarshal(data, &control); err != nil {
			c.logger.Debug("ignoring malformed control message", zap.Error(err))
			continue
		}
		if control.Type == TypeWatch {
			c.Watch(control.ApplicationID)
		}
	}
}
