package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/draft-relay/internal/broadcast"
	"github.com/DoyleJ11/draft-relay/internal/engine"
	"github.com/DoyleJ11/draft-relay/internal/hub"
	"github.com/DoyleJ11/draft-relay/internal/types"
)

type fakeConn struct {
	id     string
	onSend func() // runs before each delivery, on the sending goroutine

	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	severed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, payload []byte) error {
	if c.onSend != nil {
		c.onSend()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.severed || c.closed {
		return errors.New("connection severed")
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sever() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.severed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type harness struct {
	t   *testing.T
	ctx context.Context
	hub *hub.Hub
	m   *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := hub.NewHub(context.Background(), engine.DefaultCatalog(), nil)
	t.Cleanup(h.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewManager(h, broadcast.New(nil, broadcast.Options{}), nil,
		WithDefaultStyle(engine.StandardStyle.ID),
		WithClock(func() time.Time { return fixed }))
	return &harness{t: t, ctx: ctx, hub: h, m: m}
}

func (h *harness) connect(room, role string) (*Session, *fakeConn) {
	h.t.Helper()
	c := &fakeConn{id: room + "/" + role}
	s, err := h.m.OnConnect(h.ctx, c, Params{Room: room, Role: role, StyleID: "1"})
	require.NoError(h.t, err)
	require.Equal(h.t, StateJoined, s.State())
	return s, c
}

func (h *harness) submit(s *Session, hero string) {
	h.t.Helper()
	require.NoError(h.t, h.m.OnMessage(h.ctx, s, hero))
}

func decodeUpdate(t *testing.T, b []byte) types.UpdateMessage {
	t.Helper()
	var u types.UpdateMessage
	require.NoError(t, json.Unmarshal(b, &u))
	require.Equal(t, types.TypeUpdate, u.Type, string(b))
	return u
}

func decodeNotice(t *testing.T, b []byte) types.NoticeMessage {
	t.Helper()
	var n types.NoticeMessage
	require.NoError(t, json.Unmarshal(b, &n))
	require.Equal(t, types.TypeMessage, n.Type, string(b))
	return n
}

func TestOnConnect_NoRoom(t *testing.T) {
	h := newHarness(t)
	c := &fakeConn{id: "c"}

	s, err := h.m.OnConnect(h.ctx, c, Params{Role: "1"})
	require.ErrorIs(t, err, ErrNoRoom)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, c.isClosed())

	frames := c.take()
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"error":1,"textStatus":"No room specified"}`, string(frames[0]))
}

func TestOnConnect_UnknownStyle(t *testing.T) {
	h := newHarness(t)
	c := &fakeConn{id: "c"}

	_, err := h.m.OnConnect(h.ctx, c, Params{Room: "r", Role: "1", StyleID: "42"})
	require.ErrorIs(t, err, engine.ErrUnknownStyle)
	assert.True(t, c.isClosed())
	assert.JSONEq(t, `{"error":1,"textStatus":"Unknown draft style"}`, string(c.take()[0]))
}

func TestOnConnect_RoleTaken(t *testing.T) {
	h := newHarness(t)
	first, firstConn := h.connect("r", "1")

	dup := &fakeConn{id: "dup"}
	s, err := h.m.OnConnect(h.ctx, dup, Params{Room: "r", Role: "1"})
	require.ErrorIs(t, err, hub.ErrRoleTaken)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, dup.isClosed())
	assert.JSONEq(t, `{"error":1,"textStatus":"Role already specified"}`, string(dup.take()[0]))

	// The rejected connection's disconnect must not evict the holder.
	h.m.OnDisconnect(h.ctx, s)
	conns, err := h.hub.ConnectionsInRoom(h.ctx, "r")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, firstConn.ID(), conns[0].ID())
	assert.False(t, firstConn.isClosed())
	assert.Equal(t, StateJoined, first.State())
}

func TestOnMessage_FullDraftBroadcastsToEveryone(t *testing.T) {
	h := newHarness(t)
	a, ca := h.connect("r", "1")
	b, cb := h.connect("r", "2")
	require.Len(t, cb.take(), 1) // empty replay for the second joiner
	assert.Empty(t, ca.take())

	order := []*Session{a, b, b, a, a, b}
	for i, s := range order {
		h.submit(s, "hero")
		for _, c := range []*fakeConn{ca, cb} {
			frames := c.take()
			require.Len(t, frames, 1)
			u := decodeUpdate(t, frames[0])
			assert.Equal(t, i+1, u.Index)
			assert.Equal(t, "hero", u.Hero)
		}
	}
}

func TestOnMessage_NotYourTurnOnlyToSender(t *testing.T) {
	h := newHarness(t)
	_, ca := h.connect("r", "1")
	b, cb := h.connect("r", "2")
	cb.take()

	h.submit(b, "vox")

	assert.Empty(t, ca.take())
	frames := cb.take()
	require.Len(t, frames, 1)
	assert.Equal(t, types.NoticeNotYourTurn, decodeNotice(t, frames[0]).Message)

	lb, err := h.hub.Lookup(h.ctx, "r")
	require.NoError(t, err)
	v, err := lb.View(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Turn)
}

func TestOnMessage_AfterEndClosesOnlySender(t *testing.T) {
	h := newHarness(t)
	a, ca := h.connect("r", "1")
	b, cb := h.connect("r", "2")
	for _, s := range []*Session{a, b, b, a, a, b} {
		h.submit(s, "x")
	}
	ca.take()
	cb.take()

	h.submit(a, "late")

	for _, c := range []*fakeConn{ca, cb} {
		frames := c.take()
		require.Len(t, frames, 1)
		assert.Equal(t, types.NoticeDraftEnded, decodeNotice(t, frames[0]).Message)
	}
	assert.True(t, ca.isClosed())
	assert.False(t, cb.isClosed())
}

func TestOnMessage_IgnoredOnceSenderIsClosing(t *testing.T) {
	h := newHarness(t)
	a, ca := h.connect("r", "1")
	b, cb := h.connect("r", "2")
	for _, s := range []*Session{a, b, b, a, a, b} {
		h.submit(s, "x")
	}
	h.submit(a, "late")
	require.True(t, ca.isClosed())
	ca.take()
	cb.take()

	// Frames still queued from the closed client must not re-broadcast.
	require.ErrorIs(t, h.m.OnMessage(h.ctx, a, "again"), ErrClosing)
	assert.Empty(t, cb.take())

	h.m.OnDisconnect(h.ctx, a)
	conns, err := h.hub.ConnectionsInRoom(h.ctx, "r")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, cb.ID(), conns[0].ID())
}

func TestOnConnect_InterruptedJoinReleasesRole(t *testing.T) {
	h := newHarness(t)
	h.connect("r", "1")

	// Cancel the join while the lobby is still inside it, after the
	// connection has been registered but before the reply is read.
	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	late := &fakeConn{id: "late", onSend: func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
	}}

	s, err := h.m.OnConnect(ctx, late, Params{Room: "r", Role: "2"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, late.isClosed())

	conns, err := h.hub.ConnectionsInRoom(h.ctx, "r")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "r/1", conns[0].ID())

	// The role is free again.
	h.connect("r", "2")
}

func TestOnConnect_LateJoinerGetsReplay(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect("r", "1")
	b, _ := h.connect("r", "2")
	h.submit(a, "adagio")
	h.submit(b, "baron")
	h.submit(b, "celeste")

	_, obs := h.connect("r", "spectator")

	frames := obs.take()
	require.Len(t, frames, 1)
	var replay []types.UpdateMessage
	require.NoError(t, json.Unmarshal(frames[0], &replay))
	require.Len(t, replay, 3)
	for i, hero := range []string{"adagio", "baron", "celeste"} {
		assert.Equal(t, hero, replay[i].Hero)
		assert.Equal(t, i+1, replay[i].Index)
	}

	h.submit(a, "flicker")
	live := obs.take()
	require.Len(t, live, 1)
	assert.Equal(t, 4, decodeUpdate(t, live[0]).Index)
}

func TestBroadcast_SeveredPeerDoesNotAffectOthers(t *testing.T) {
	h := newHarness(t)
	a, ca := h.connect("r", "1")
	_, cb := h.connect("r", "2")
	cb.take()
	cb.sever()

	h.submit(a, "vox")

	frames := ca.take()
	require.Len(t, frames, 1)
	assert.Equal(t, 1, decodeUpdate(t, frames[0]).Index)

	// Delivery failures never unregister the peer.
	conns, err := h.hub.ConnectionsInRoom(h.ctx, "r")
	require.NoError(t, err)
	assert.Len(t, conns, 2)
}

func TestOnDisconnect_LastLeaveRetainsDraft(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect("r", "1")
	h.submit(a, "vox")

	h.m.OnDisconnect(h.ctx, a)
	assert.Equal(t, StateClosed, a.State())

	active, err := h.hub.ActiveRooms(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, again := h.connect("r", "1")
	frames := again.take()
	require.Len(t, frames, 1)
	var replay []types.UpdateMessage
	require.NoError(t, json.Unmarshal(frames[0], &replay))
	require.Len(t, replay, 1)
	assert.Equal(t, "vox", replay[0].Hero)
}

func TestOnMessage_RequiresJoin(t *testing.T) {
	h := newHarness(t)
	s, _ := h.m.OnConnect(h.ctx, &fakeConn{id: "c"}, Params{})

	require.ErrorIs(t, h.m.OnMessage(h.ctx, s, "vox"), ErrNotJoined)
	h.m.OnDisconnect(h.ctx, s)
}
