package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/proximity-voice/internal/domain"
)

func TestRequestLinkage_MutualScenario(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)
	opts := domain.DefaultPeerOptions()

	ok := a.RequestLinkage(b, true, opts)

	require.True(t, ok)
	assert.True(t, a.HasProximityPeer("b"))
	assert.True(t, b.HasProximityPeer("a"))

	entered := h.events.Of(EventPeerEnteredProximity)
	require.Len(t, entered, 2)
	assert.Equal(t, Event{Kind: EventPeerEnteredProximity, Source: "a", Target: "b", At: entered[0].At}, entered[0])
	assert.Equal(t, Event{Kind: EventPeerEnteredProximity, Source: "b", Target: "a", At: entered[1].At}, entered[1])

	bSubs := h.queue(b).Subscribes()
	require.Len(t, bSubs, 1)
	assert.Equal(t, a.Ref(), bSubs[0].Target)
	assert.Equal(t, b.Ref(), bSubs[0].Owner)
	assert.Equal(t, opts, bSubs[0].Opts)

	aSubs := h.queue(a).Subscribes()
	require.Len(t, aSubs, 1)
	assert.Equal(t, b.Ref(), aSubs[0].Target)

	assert.True(t, h.watcher.Following("a"))
	assert.True(t, h.watcher.Following("b"))
}

func TestRequestLinkage_Unilateral(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)

	require.True(t, a.RequestLinkage(b, false, domain.DefaultPeerOptions()))
	assert.True(t, a.HasProximityPeer("b"))
	assert.False(t, b.HasProximityPeer("a"))
	assert.Empty(t, h.queue(b).Subscribes())
	assert.False(t, h.watcher.Following("b"))
}

func TestRequestLinkage_ReadinessGate(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(h *harness, a, b *Session)
		reason LinkageReason
	}{
		{
			name:   "self not connected to rtc",
			setup:  func(h *harness, a, _ *Session) { h.backend.set(h.backend.rtc, a.ID(), false) },
			reason: ReasonSelfNotReady,
		},
		{
			name:   "peer voice blocked",
			setup:  func(h *harness, _, b *Session) { h.backend.set(h.backend.blocked, b.ID(), true) },
			reason: ReasonPeerNotReady,
		},
		{
			name:   "peer transport gone",
			setup:  func(h *harness, _, b *Session) { h.conns[b.ID()].connected.Store(false) },
			reason: ReasonPeerNotReady,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			a := h.add("a", true)
			b := h.add("b", true)
			tc.setup(h, a, b)

			ok, reason := a.RequestLinkageWithReason(b, true, domain.DefaultPeerOptions())
			assert.False(t, ok)
			assert.Equal(t, tc.reason, reason)
			assert.Empty(t, a.ProximityPeers())
			assert.Empty(t, b.ProximityPeers())
			assert.Empty(t, h.queue(a).Subscribes())
			assert.Empty(t, h.queue(b).Subscribes())
		})
	}
}

func TestRequestLinkage_Idempotent(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)

	require.True(t, a.RequestLinkage(b, false, domain.DefaultPeerOptions()))
	ok, reason := a.RequestLinkageWithReason(b, false, domain.DefaultPeerOptions())
	assert.False(t, ok)
	assert.Equal(t, ReasonAlreadyLinked, reason)
	assert.ElementsMatch(t, []domain.ClientID{"b"}, a.ProximityPeers())
	assert.Len(t, h.queue(a).Subscribes(), 1)
	assert.Equal(t, 1, h.watcher.Toggles("a"))
}

func TestRequestLinkage_MutualAddsReverseWhenForwardExists(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)

	require.True(t, a.RequestLinkage(b, false, domain.DefaultPeerOptions()))
	assert.False(t, a.RequestLinkage(b, true, domain.DefaultPeerOptions()))
	assert.True(t, b.HasProximityPeer("a"))
	assert.Len(t, h.queue(b).Subscribes(), 1)
}

func TestRequestLinkage_SelfLink(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	ok, reason := a.RequestLinkageWithReason(a, true, domain.DefaultPeerOptions())
	assert.False(t, ok)
	assert.Equal(t, ReasonSelfLink, reason)
	assert.Empty(t, a.ProximityPeers())
}

func TestRequestLinkage_ConcurrentMutualFromBothSides(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); a.RequestLinkage(b, true, domain.DefaultPeerOptions()) }()
		go func() { defer wg.Done(); b.RequestLinkage(a, true, domain.DefaultPeerOptions()) }()
	}
	wg.Wait()

	assert.Len(t, h.queue(a).Subscribes(), 1)
	assert.Len(t, h.queue(b).Subscribes(), 1)
	assert.Len(t, h.events.Of(EventPeerEnteredProximity), 2)
	assert.Equal(t, 1, h.watcher.Toggles("a"))
	assert.Equal(t, 1, h.watcher.Toggles("b"))
}

func TestDisconnect_ScrubsEveryListener(t *testing.T) {
	h := newHarness(t)
	s := h.add("s", true)
	listeners := make([]*Session, 0, 3)
	for i := 0; i < 3; i++ {
		p := h.add(fmt.Sprintf("p%d", i), true)
		require.True(t, p.RequestLinkage(s, false, domain.DefaultPeerOptions()))
		listeners = append(listeners, p)
	}
	bystander := h.add("x", true)
	require.True(t, s.RequestLinkage(bystander, false, domain.DefaultPeerOptions()))
	s.AddGlobalPeer("x")
	admin := h.add("g", true)
	require.True(t, admin.AddGlobalPeer("s"))
	s.SetMicrophoneEnabled(true)
	require.True(t, s.MicrophoneEnabled())

	h.disconnect(s)

	for _, p := range listeners {
		assert.False(t, p.HasProximityPeer("s"), "listener %s still references s", p.ID())
		assert.Equal(t, []string{s.StreamKey()}, h.queue(p).Drops())
		assert.False(t, h.watcher.Following(p.ID()))
	}
	assert.Empty(t, s.ProximityPeers())
	assert.Empty(t, s.GlobalPeers())
	assert.False(t, s.MicrophoneEnabled())
	assert.Empty(t, s.PendingLocationUpdates())
	assert.False(t, h.watcher.Following("s"))
	assert.Empty(t, h.queue(bystander).Drops())
	assert.Len(t, h.events.Of(EventPeerLeftProximity), 3)

	assert.NotContains(t, admin.GlobalPeers(), domain.ClientID("s"))
	assert.False(t, admin.IsPeer("s"))
	assert.Equal(t, []string{s.StreamKey()}, h.queue(admin).Drops())
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.add("s", true)
	p := h.add("p", true)
	require.True(t, p.RequestLinkage(s, false, domain.DefaultPeerOptions()))

	s.onDisconnect()
	s.onDisconnect()

	assert.Len(t, h.queue(p).Drops(), 1)
	assert.Len(t, h.events.Of(EventPeerLeftProximity), 1)
}

func TestUnlink(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)
	require.True(t, a.RequestLinkage(b, true, domain.DefaultPeerOptions()))

	assert.True(t, a.Unlink(b))
	assert.False(t, a.Unlink(b))
	assert.False(t, a.HasProximityPeer("b"))
	assert.True(t, b.HasProximityPeer("a"))
	assert.Equal(t, []string{b.StreamKey()}, h.queue(a).Drops())
	assert.False(t, h.watcher.Following("a"))
	assert.True(t, h.watcher.Following("b"))
}

func TestIsPeer(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)
	h.add("c", true)

	require.True(t, a.RequestLinkage(b, false, domain.DefaultPeerOptions()))
	assert.True(t, a.AddGlobalPeer("c"))
	assert.False(t, a.AddGlobalPeer("a"))

	assert.True(t, a.IsPeer("b"))
	assert.True(t, a.IsPeer("c"))
	assert.False(t, a.IsPeer("d"))

	assert.True(t, a.RemoveGlobalPeer("c"))
	assert.False(t, a.RemoveGlobalPeer("c"))
	assert.False(t, a.IsPeer("c"))
}

func TestLinkGlobal(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)
	c := h.add("c", true)
	require.True(t, a.RequestLinkage(c, false, domain.DefaultPeerOptions()))

	assert.True(t, a.LinkGlobal(b, domain.DefaultPeerOptions()))
	assert.False(t, a.LinkGlobal(b, domain.DefaultPeerOptions()))
	assert.False(t, a.LinkGlobal(a, domain.DefaultPeerOptions()))
	assert.True(t, a.LinkGlobal(c, domain.DefaultPeerOptions()))

	subs := h.queue(a).Subscribes()
	require.Len(t, subs, 2)
	assert.Equal(t, c.Ref(), subs[0].Target)
	assert.Equal(t, b.Ref(), subs[1].Target)
	assert.True(t, a.IsPeer("b"))
	assert.False(t, h.watcher.Following("b"))

	// the global link keeps c's stream after the proximity link ends
	require.True(t, a.Unlink(c))
	assert.Empty(t, h.queue(a).Drops())
	assert.True(t, a.IsPeer("c"))

	assert.True(t, a.UnlinkGlobal(b))
	assert.False(t, a.UnlinkGlobal(b))
	assert.True(t, a.UnlinkGlobal(c))
	assert.Equal(t, []string{b.StreamKey(), c.StreamKey()}, h.queue(a).Drops())
	assert.False(t, a.IsPeer("b"))
}

func TestWatcher_TogglesOncePerTransition(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)
	c := h.add("c", true)

	require.True(t, a.RequestLinkage(b, false, domain.DefaultPeerOptions()))
	require.True(t, a.RequestLinkage(c, false, domain.DefaultPeerOptions()))
	a.UpdateLocationWatcher()
	assert.Equal(t, 1, h.watcher.Toggles("a"))

	require.True(t, a.Unlink(b))
	assert.Equal(t, 1, h.watcher.Toggles("a"))
	require.True(t, a.Unlink(c))
	assert.Equal(t, 2, h.watcher.Toggles("a"))
	assert.False(t, h.watcher.Following("a"))

	a.UpdateLocationWatcher()
	assert.Equal(t, 2, h.watcher.Toggles("a"))
}

func TestWatcher_Optional(t *testing.T) {
	h := newHarness(t)
	h.deps.Watcher = nil
	a := h.add("a", true)
	b := h.add("b", true)
	assert.NotPanics(t, func() { a.RequestLinkage(b, true, domain.DefaultPeerOptions()) })
}

func TestStreamKey(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", true)
	b := h.add("b", true)

	assert.Len(t, a.StreamKey(), DefaultStreamKeyLength)
	assert.Regexp(t, `^[A-Za-z0-9]+$`, a.StreamKey())
	assert.NotEqual(t, a.StreamKey(), b.StreamKey())
	assert.Len(t, RandomKeys(8)(), 8)
	assert.Len(t, RandomKeys(0)(), DefaultStreamKeyLength)
}
