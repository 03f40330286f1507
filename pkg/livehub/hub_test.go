package livehub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	mu          sync.Mutex
	failWrites  bool
	closed      bool
	closeCode   int
	closeReason string
	pings       int

	received chan []byte
	incoming chan []byte
	shutdown chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		received: make(chan []byte, 16),
		incoming: make(chan []byte, 16),
		shutdown: make(chan struct{}),
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errors.New("broken pipe")
	}
	f.received <- data
	return nil
}

func (f *fakeTransport) WritePing() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.incoming:
		return data, nil
	case <-f.shutdown:
		return nil, errTransportClosed
	}
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.closeCode = code
	f.closeReason = reason
	close(f.shutdown)
	return nil
}

func (f *fakeTransport) closeInfo() (bool, int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode, f.closeReason
}

type staticAuth map[string]Identity

func (a staticAuth) Authenticate(token string) (Identity, error) {
	identity, ok := a[token]
	if !ok {
		return Identity{}, errors.New("unknown token")
	}
	return identity, nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(staticAuth{
		"alice":  {UserID: "alice", Silo: "BF"},
		"bob":    {UserID: "bob", Silo: "BF"},
		"carol":  {UserID: "carol", Silo: "BF"},
		"dave":   {UserID: "dave", Silo: "BI"},
		"nosilo": {UserID: "eve"},
	}, Options{PingInterval: time.Hour}, zap.NewNop())
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func expectMessage(t *testing.T, transport *fakeTransport) Message {
	t.Helper()
	select {
	case data := <-transport.received:
		msg, err := Decode(data)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message")
		return nil
	}
}

func expectNoMessage(t *testing.T, transport *fakeTransport) {
	t.Helper()
	select {
	case data := <-transport.received:
		t.Fatalf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitPipelineUpdateReachesWatchersOnly(t *testing.T) {
	hub := newTestHub(t)

	first, second, third := newFakeTransport(), newFakeTransport(), newFakeTransport()
	_, err := hub.Connect(first, "alice", "a1")
	require.NoError(t, err)
	_, err = hub.Connect(second, "bob", "a1")
	require.NoError(t, err)
	_, err = hub.Connect(third, "carol", "a2")
	require.NoError(t, err)

	hub.EmitPipelineUpdate(context.Background(), "BF", "a1")

	assert.Equal(t, PipelineUpdate{ApplicationID: "a1"}, expectMessage(t, first))
	assert.Equal(t, PipelineUpdate{ApplicationID: "a1"}, expectMessage(t, second))
	expectNoMessage(t, third)
}

func TestBroadcastIsTenantScoped(t *testing.T) {
	hub := newTestHub(t)

	bf, bi := newFakeTransport(), newFakeTransport()
	_, err := hub.Connect(bf, "alice", "a1")
	require.NoError(t, err)
	_, err = hub.Connect(bi, "dave", "a1")
	require.NoError(t, err)

	assert.Equal(t, 1, hub.BroadcastToTenant("BF", DocumentUpdate{ApplicationID: "a1"}))
	assert.Equal(t, DocumentUpdate{ApplicationID: "a1"}, expectMessage(t, bf))
	expectNoMessage(t, bi)
}

func TestMissingTokenClosesWithoutRegistering(t *testing.T) {
	hub := newTestHub(t)
	transport := newFakeTransport()

	conn, err := hub.Connect(transport, "", "a1")
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrMissingToken)

	closed, code, reason := transport.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, CloseMissingToken, code)
	assert.Equal(t, "missing auth token", reason)
	assert.Equal(t, 0, hub.ConnectionCount(""))
}

func TestRejectedConnectionsUseSpecificCloseCodes(t *testing.T) {
	hub := newTestHub(t)

	invalid := newFakeTransport()
	_, err := hub.Connect(invalid, "forged", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, code, _ := invalid.closeInfo()
	assert.Equal(t, CloseInvalidToken, code)

	noSilo := newFakeTransport()
	_, err = hub.Connect(noSilo, "nosilo", "")
	assert.ErrorIs(t, err, ErrMissingClaims)
	_, code, _ = noSilo.closeInfo()
	assert.Equal(t, CloseMissingClaims, code)

	hub.Stop()
	late := newFakeTransport()
	_, err = hub.Connect(late, "alice", "")
	assert.ErrorIs(t, err, ErrHubStopped)
	_, code, _ = late.closeInfo()
	assert.Equal(t, CloseInitError, code)

	assert.Equal(t, 0, hub.ConnectionCount(""))
}

func TestSendFailureIsIsolated(t *testing.T) {
	hub := newTestHub(t)

	broken, healthy := newFakeTransport(), newFakeTransport()
	broken.failWrites = true

	brokenConn, err := hub.Connect(broken, "alice", "a1")
	require.NoError(t, err)
	_, err = hub.Connect(healthy, "bob", "a1")
	require.NoError(t, err)

	hub.BroadcastToApplication("BF", "a1", ChatMessage{ApplicationID: "a1", Msg: "hello"})

	assert.Equal(t, ChatMessage{ApplicationID: "a1", Msg: "hello"}, expectMessage(t, healthy))

	select {
	case <-brokenConn.Done():
	case <-time.After(time.Second):
		t.Fatal("broken connection should have been closed")
	}
	assert.Equal(t, StateClosed, brokenConn.State())
	assert.Equal(t, 1, hub.ConnectionCount("BF"))

	hub.BroadcastToApplication("BF", "a1", PipelineUpdate{ApplicationID: "a1"})
	assert.Equal(t, PipelineUpdate{ApplicationID: "a1"}, expectMessage(t, healthy))
}

func TestWatchControlMessage(t *testing.T) {
	hub := newTestHub(t)

	transport := newFakeTransport()
	conn, err := hub.Connect(transport, "alice", "")
	require.NoError(t, err)

	transport.incoming <- []byte(`{"type":"watch","applicationId":"a9"}`)
	require.Eventually(t, func() bool { return conn.Watches("a9") }, time.Second, 5*time.Millisecond)

	hub.EmitDocumentUpdate(context.Background(), "BF", "a9")
	assert.Equal(t, DocumentUpdate{ApplicationID: "a9"}, expectMessage(t, transport))
}

func TestClientCloseUnregisters(t *testing.T) {
	hub := newTestHub(t)

	transport := newFakeTransport()
	conn, err := hub.Connect(transport, "alice", "a1")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, conn.State())
	assert.Equal(t, 1, hub.ConnectionCount("BF"))

	conn.Close(CloseNormal, "bye")

	assert.Equal(t, StateClosed, conn.State())
	assert.Equal(t, 0, hub.ConnectionCount("BF"))
	assert.Equal(t, 0, hub.BroadcastToApplication("BF", "a1", PipelineUpdate{ApplicationID: "a1"}))
}

func TestKeepalivePings(t *testing.T) {
	hub := NewHub(staticAuth{"alice": {UserID: "alice", Silo: "BF"}}, Options{PingInterval: 10 * time.Millisecond}, zap.NewNop())
	hub.Start()
	defer hub.Stop()

	transport := newFakeTransport()
	_, err := hub.Connect(transport, "alice", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return transport.pings >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestDeliverWithApplicationReachesWatchersOnly(t *testing.T) {
	hub := newTestHub(t)

	watcher, other, foreign := newFakeTransport(), newFakeTransport(), newFakeTransport()
	_, err := hub.Connect(watcher, "alice", "a1")
	require.NoError(t, err)
	_, err = hub.Connect(other, "bob", "a2")
	require.NoError(t, err)
	_, err = hub.Connect(foreign, "dave", "a1")
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Deliver("BF", "a1", PipelineUpdate{ApplicationID: "a1"}))
	assert.Equal(t, PipelineUpdate{ApplicationID: "a1"}, expectMessage(t, watcher))
	expectNoMessage(t, other)
	expectNoMessage(t, foreign)
}

func TestDeliverWithoutApplicationReachesTenant(t *testing.T) {
	hub := newTestHub(t)

	first, second, foreign := newFakeTransport(), newFakeTransport(), newFakeTransport()
	_, err := hub.Connect(first, "alice", "a1")
	require.NoError(t, err)
	_, err = hub.Connect(second, "bob", "")
	require.NoError(t, err)
	_, err = hub.Connect(foreign, "dave", "a1")
	require.NoError(t, err)

	assert.Equal(t, 2, hub.Deliver("BF", "", ChatMessage{Msg: "maintenance at noon"}))
	assert.Equal(t, ChatMessage{Msg: "maintenance at noon"}, expectMessage(t, first))
	assert.Equal(t, ChatMessage{Msg: "maintenance at noon"}, expectMessage(t, second))
	expectNoMessage(t, foreign)
}

func TestRegisterAfterStopIsRefused(t *testing.T) {
	hub := newTestHub(t)

	transport := newFakeTransport()
	c := newConn(hub, transport)
	c.silo = "BF"
	c.userID = "alice"

	hub.Stop()

	assert.False(t, hub.register(c))
	assert.Equal(t, 0, hub.ConnectionCount(""))
}

func TestStopClosesConnectionsRacingConnect(t *testing.T) {
	hub := newTestHub(t)

	const attempts = 20
	transports := make([]*fakeTransport, attempts)
	var wg sync.WaitGroup
	for i := range transports {
		transports[i] = newFakeTransport()
		wg.Add(1)
		go func(transport *fakeTransport) {
			defer wg.Done()
			_, _ = hub.Connect(transport, "alice", "a1")
		}(transports[i])
	}
	hub.Stop()
	wg.Wait()

	assert.Equal(t, 0, hub.ConnectionCount(""))
	for _, transport := range transports {
		closed, _, _ := transport.closeInfo()
		assert.True(t, closed)
	}
}
