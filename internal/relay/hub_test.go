package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// fakeConn records everything the hub writes to it.
type fakeConn struct {
	mu         sync.Mutex
	messages   []any
	pings      int
	terminated bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close(code int, reason string) error { return nil }

func (c *fakeConn) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
	return nil
}

func (c *fakeConn) outbound() []model.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.OutboundMessage
	for _, m := range c.messages {
		if msg, ok := m.(model.OutboundMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeConn) heartbeats() []model.HeartbeatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.HeartbeatMessage
	for _, m := range c.messages {
		if msg, ok := m.(model.HeartbeatMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

// fakeNodeStore tracks online flags; only SetOnline matters to the hub.
type fakeNodeStore struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakeNodeStore() *fakeNodeStore {
	return &fakeNodeStore{online: make(map[string]bool)}
}

func (f *fakeNodeStore) Register(ctx context.Context, name string) (model.Node, string, error) {
	return model.Node{}, "", nil
}

func (f *fakeNodeStore) Verify(ctx context.Context, uuid, rawToken string) (*model.Node, error) {
	return nil, nil
}

func (f *fakeNodeStore) SetOnline(ctx context.Context, uuid string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[uuid] = online
	return nil
}

func (f *fakeNodeStore) ListPublic(ctx context.Context) ([]model.NodePublicInfo, error) {
	return nil, nil
}

func (f *fakeNodeStore) DeleteByName(ctx context.Context, name string) (int64, error) {
	return 0, nil
}

func (f *fakeNodeStore) isOnline(uuid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[uuid]
}

func newTestHub(t *testing.T) (*Hub, *fakeNodeStore) {
	t.Helper()
	store := newFakeNodeStore()
	return NewHub(store, slog.New(slog.DiscardHandler)), store
}

func TestHub_Admit(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	err := hub.Admit(ctx, "u1", "Survival1", &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Count())
	assert.True(t, store.isOnline("u1"), "admission must flip the online flag")
}

func TestHub_Admit_Conflict(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	first := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u1", "Survival1", first))

	err := hub.Admit(ctx, "u1", "Survival1", &fakeConn{})
	assert.ErrorIs(t, err, driven.ErrAlreadyConnected)
	assert.Equal(t, 1, hub.Count(), "the existing session must win the tie")
	assert.False(t, first.terminated, "the existing session must stay open")
}

func TestHub_Remove(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u1", "Survival1", conn))

	hub.Remove("u1", conn)
	assert.Equal(t, 0, hub.Count())
	assert.False(t, store.isOnline("u1"))

	// Idempotent.
	hub.Remove("u1", conn)
	assert.Equal(t, 0, hub.Count())
}

func TestHub_Remove_StaleConnGuard(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	old := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u1", "Survival1", old))
	require.True(t, hub.KickByName("Survival1"))

	replacement := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u1", "Survival1", replacement))

	// The kicked connection's read loop winds down late; its removal must
	// not evict the replacement session.
	hub.Remove("u1", old)
	assert.Equal(t, 1, hub.Count())
	assert.True(t, store.isOnline("u1"))
}

func TestHub_KickByName(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u1", "Survival1", conn))

	assert.True(t, hub.KickByName("Survival1"))
	assert.True(t, conn.terminated)
	assert.Equal(t, 0, hub.Count())
	assert.False(t, store.isOnline("u1"))

	// Kicking an already-gone node is a reported no-op.
	assert.False(t, hub.KickByName("Survival1"))
	assert.False(t, hub.KickByName("never-existed"))
}

func TestHub_Kick_ReconnectFlagSurvives(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	// A reconnect racing an eviction must end up online: the flag writes
	// happen under the registry lock, so the eviction's offline write
	// cannot land after the replacement's online write.
	for i := 0; i < 200; i++ {
		require.NoError(t, hub.Admit(ctx, "u1", "Survival1", &fakeConn{}))

		done := make(chan struct{})
		go func() {
			hub.KickByName("Survival1")
			close(done)
		}()

		// Spin until the kick frees the slot, then reconnect.
		for hub.Admit(ctx, "u1", "Survival1", &fakeConn{}) != nil {
		}
		<-done

		require.True(t, store.isOnline("u1"), "iteration %d: stale offline write clobbered the reconnect", i)
		require.True(t, hub.KickByName("Survival1"))
	}
}

func TestHub_Route_Broadcast(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "ua", "A", a))
	require.NoError(t, hub.Admit(ctx, "ub", "B", b))
	require.NoError(t, hub.Admit(ctx, "uc", "C", c))

	hub.Route("ua", model.InboundMessage{
		Type:     model.EventPlayerChat,
		TargetID: model.TargetAll,
		Payload:  json.RawMessage(`{"text":"hi"}`),
	})

	assert.Empty(t, a.outbound(), "a broadcast must never echo to the sender")
	require.Len(t, b.outbound(), 1)
	require.Len(t, c.outbound(), 1)

	got := b.outbound()[0]
	assert.Equal(t, "ua", got.FromID)
	assert.Equal(t, "A", got.FromName)
	assert.Equal(t, model.EventPlayerChat, got.Type)
	assert.JSONEq(t, `{"text":"hi"}`, string(got.Payload))
	assert.NotZero(t, got.Time)
}

func TestHub_Route_PointToPoint(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "ua", "A", a))
	require.NoError(t, hub.Admit(ctx, "ub", "B", b))
	require.NoError(t, hub.Admit(ctx, "uc", "C", c))

	hub.Route("ua", model.InboundMessage{
		Type:     model.EventPlayerJoin,
		TargetID: "ub",
		Payload:  json.RawMessage(`{"player":"steve"}`),
	})

	require.Len(t, b.outbound(), 1)
	assert.Empty(t, a.outbound())
	assert.Empty(t, c.outbound())
}

func TestHub_Route_AbsentTargetDropped(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "ua", "A", a))

	// No error surfaces to the sender; the message simply vanishes.
	hub.Route("ua", model.InboundMessage{
		Type:     model.EventPlayerJoin,
		TargetID: "nobody",
		Payload:  json.RawMessage(`{}`),
	})

	assert.Empty(t, a.outbound())
}

func TestHub_Route_UnknownTypeDropped(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "ua", "A", a))
	require.NoError(t, hub.Admit(ctx, "ub", "B", b))

	hub.Route("ua", model.InboundMessage{
		Type:     "heartbeat",
		TargetID: model.TargetAll,
		Payload:  json.RawMessage(`{"status":"pong"}`),
	})
	hub.Route("ua", model.InboundMessage{
		Type:     "rcon_exec",
		TargetID: model.TargetAll,
		Payload:  json.RawMessage(`{}`),
	})

	assert.Empty(t, b.outbound(), "types outside the allow-list must be dropped")
}

func TestHub_Broadcast(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "ua", "A", a))
	require.NoError(t, hub.Admit(ctx, "ub", "B", b))

	n := hub.Broadcast(model.OutboundMessage{Type: model.EventPlayerChat, FromName: "panel"})
	assert.Equal(t, 2, n)
	assert.Len(t, a.outbound(), 1)
	assert.Len(t, b.outbound(), 1)
}

func TestHub_Sweep_EvictsUnresponsive(t *testing.T) {
	hub, store := newTestHub(t)
	ctx := context.Background()

	silent := &fakeConn{}
	chatty := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u-silent", "Silent", silent))
	require.NoError(t, hub.Admit(ctx, "u-chatty", "Chatty", chatty))

	// First tick: both were alive from admission, so both survive, get
	// probed, and are marked provisionally dead.
	hub.Sweep()
	assert.Equal(t, 2, hub.Count())
	assert.Equal(t, 1, silent.pings)
	require.Len(t, silent.heartbeats(), 1)
	assert.Equal(t, "heartbeat", silent.heartbeats()[0].Type)
	assert.Equal(t, "ping", silent.heartbeats()[0].Payload.Status)

	// Only the chatty node responds.
	hub.Touch("u-chatty")

	// Second tick: the silent node is evicted and flips offline.
	hub.Sweep()
	assert.Equal(t, 1, hub.Count())
	assert.True(t, silent.terminated)
	assert.False(t, store.isOnline("u-silent"))
	assert.True(t, store.isOnline("u-chatty"))
}

func TestHub_Sweep_ResponderSurvivesIndefinitely(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "u1", "Survival1", conn))

	for range 5 {
		hub.Sweep()
		hub.Touch("u1")
	}

	assert.Equal(t, 1, hub.Count())
	assert.False(t, conn.terminated)
}

func TestHub_InboundMessageCountsAsLiveness(t *testing.T) {
	hub, _ := newTestHub(t)
	ctx := context.Background()

	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, hub.Admit(ctx, "ua", "A", a))
	require.NoError(t, hub.Admit(ctx, "ub", "B", b))

	hub.Sweep()

	// A routes a message; the ws adapter touches the sender on any inbound
	// frame, which is what keeps it alive here.
	hub.Touch("ua")
	hub.Route("ua", model.InboundMessage{Type: model.EventPlayerChat, TargetID: model.TargetAll})

	hub.Sweep()
	assert.Equal(t, 1, hub.Count())
	assert.False(t, a.terminated)
	assert.True(t, b.terminated)
}
