package livehub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/metrics"
)

// WebSocket close codes sent by the hub.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseAbnormal      = 1011
	CloseMissingToken  = 4001
	CloseInvalidToken  = 4002
	CloseMissingClaims = 4003
	CloseInitError     = 4500
)

var (
	ErrMissingToken  = errors.New("missing auth token")
	ErrInvalidToken  = errors.New("invalid auth token")
	ErrMissingClaims = errors.New("token is missing tenant or user claim")
	ErrHubStopped    = errors.New("live-update hub is not running")
)

// Identity is what an authenticated connection is bound to.
type Identity struct {
	UserID string
	Silo   string
}

type Authenticator interface {
	Authenticate(token string) (Identity, error)
}

// Emitter publishes typed updates for a tenant. Implementations never fail
// the caller; delivery is best-effort.
type Emitter interface {
	EmitPipelineUpdate(ctx context.Context, silo, applicationID string)
	EmitDocumentUpdate(ctx context.Context, silo, applicationID string)
	EmitChatMessage(ctx context.Context, silo, applicationID, msg string)
}

type Options struct {
	PingInterval   time.Duration
	SendBufferSize int
}

// Hub tracks open connections per silo and pushes messages to them.
type Hub struct {
	auth   Authenticator
	opts   Options
	logger *zap.Logger

	running atomic.Bool

	mu    sync.RWMutex
	silos map[string]map[*Conn]struct{}
}

func NewHub(auth Authenticator, opts Options, logger *zap.Logger) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 32
	}
	return &Hub{
		auth:   auth,
		opts:   opts,
		logger: logger.Named("livehub"),
		silos:  make(map[string]map[*Conn]struct{}),
	}
}

func (h *Hub) Start() {
	h.running.Store(true)
	h.logger.Info("live-update hub started", zap.Duration("ping_interval", h.opts.PingInterval))
}

// Stop refuses new connections and closes every open one.
func (h *Hub) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	for _, c := range h.snapshot("", nil) {
		c.Close(CloseGoingAway, "server shutting down")
	}
	h.logger.Info("live-update hub stopped")
}

// Connect authenticates a new transport and, on success, registers it and
// starts its reader and writer. On failure the transport is closed with a
// specific close code and never registered.
func (h *Hub) Connect(transport Transport, token, applicationID string) (*Conn, error) {
	c := newConn(h, transport)

	if !h.running.Load() {
		c.Close(CloseInitError, ErrHubStopped.Error())
		return nil, ErrHubStopped
	}
	if strings.TrimSpace(token) == "" {
		c.Close(CloseMissingToken, ErrMissingToken.Error())
		return nil, ErrMissingToken
	}
	identity, err := h.auth.Authenticate(token)
	if err != nil {
		c.logger.Debug("rejecting connection", zap.Error(err))
		c.Close(CloseInvalidToken, ErrInvalidToken.Error())
		return nil, ErrInvalidToken
	}
	if identity.Silo == "" || identity.UserID == "" {
		c.Close(CloseMissingClaims, ErrMissingClaims.Error())
		return nil, ErrMissingClaims
	}

	c.silo = identity.Silo
	c.userID = identity.UserID
	c.logger = c.logger.With(zap.String("silo", c.silo), zap.String("user_id", c.userID))
	c.Watch(applicationID)

	c.state.Store(int32(StateOpen))
	if !h.register(c) {
		c.Close(CloseInitError, ErrHubStopped.Error())
		return nil, ErrHubStopped
	}

	go c.writeLoop(h.opts.PingInterval)
	go c.readLoop()

	c.logger.Debug("connection opened")
	return c, nil
}

// register adds c unless the hub has stopped. The running check happens
// under mu so Stop's snapshot always sees a connection that got in.
func (h *Hub) register(c *Conn) bool {
	h.mu.Lock()
	if !h.running.Load() {
		h.mu.Unlock()
		return false
	}
	conns, ok := h.silos[c.silo]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.silos[c.silo] = conns
	}
	conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.LiveConnections.WithLabelValues(c.silo).Inc()
	return true
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	conns, ok := h.silos[c.silo]
	if ok {
		if _, registered := conns[c]; !registered {
			ok = false
		}
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.silos, c.silo)
		}
	}
	h.mu.Unlock()
	if ok {
		metrics.LiveConnections.WithLabelValues(c.silo).Dec()
	}
}

// ConnectionCount returns the number of open connections in silo, or in all
// silos when silo is empty.
func (h *Hub) ConnectionCount(silo string) int {
	return len(h.snapshot(silo, nil))
}

// snapshot copies the matching connections so sends happen outside the lock.
func (h *Hub) snapshot(silo string, match func(*Conn) bool) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Conn
	for s, conns := range h.silos {
		if silo != "" && s != silo {
			continue
		}
		for c := range conns {
			if match == nil || match(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

// BroadcastToApplication queues m for every open connection in silo watching
// applicationID and returns how many accepted it.
func (h *Hub) BroadcastToApplication(silo, applicationID string, m Message) int {
	if silo == "" || applicationID == "" {
		return 0
	}
	return h.broadcast(silo, m, func(c *Conn) bool { return c.Watches(applicationID) })
}

// BroadcastToTenant queues m for every open connection in silo.
func (h *Hub) BroadcastToTenant(silo string, m Message) int {
	if silo == "" {
		return 0
	}
	return h.broadcast(silo, m, nil)
}

func (h *Hub) broadcast(silo string, m Message, match func(*Conn) bool) int {
	data, err := Encode(m)
	if err != nil {
		h.logger.Error("failed to encode live message", zap.Error(err))
		return 0
	}

	messageType := string(m.Type())
	delivered := 0
	for _, c := range h.snapshot(silo, match) {
		if c.enqueue(data) {
			delivered++
			metrics.LiveMessages.WithLabelValues(messageType, "queued").Inc()
			continue
		}
		metrics.LiveMessages.WithLabelValues(messageType, "dropped").Inc()
		c.logger.Debug("dropped live message", zap.String("type", messageType))
	}
	return delivered
}

func (h *Hub) EmitPipelineUpdate(_ context.Context, silo, applicationID string) {
	h.BroadcastToApplication(silo, applicationID, PipelineUpdate{ApplicationID: applicationID})
}

func (h *Hub) EmitDocumentUpdate(_ context.Context, silo, applicationID string) {
	h.BroadcastToApplication(silo, applicationID, DocumentUpdate{ApplicationID: applicationID})
}

func (h *Hub) EmitChatMessage(_ context.Context, silo, applicationID, msg string) {
	h.BroadcastToApplication(silo, applicationID, ChatMessage{ApplicationID: applicationID, Msg: msg})
}

// Deliver pushes a message that arrived from another instance. An empty
// applicationID reaches the whole tenant.
func (h *Hub) Deliver(silo, applicationID string, m Message) int {
	if applicationID == "" {
		return h.BroadcastToTenant(silo, m)
	}
	return h.BroadcastToApplication(silo, applicationID, m)
}
