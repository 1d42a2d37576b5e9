package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/proximity-voice/internal/domain"
)

type subscribeCall struct {
	Target domain.PeerRef
	Owner  domain.PeerRef
	Opts   domain.PeerOptions
}

type fakeQueue struct {
	mu         sync.Mutex
	subscribes []subscribeCall
	drops      []string
}

func (q *fakeQueue) AddSubscribe(target, owner domain.PeerRef, opts domain.PeerOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribes = append(q.subscribes, subscribeCall{Target: target, Owner: owner, Opts: opts})
}

func (q *fakeQueue) Drop(streamKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drops = append(q.drops, streamKey)
}

func (q *fakeQueue) Subscribes() []subscribeCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]subscribeCall(nil), q.subscribes...)
}

func (q *fakeQueue) Drops() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.drops...)
}

type fakeConn struct {
	id        domain.ClientID
	connected atomic.Bool
	queue     *fakeQueue

	mu        sync.Mutex
	callbacks []func()
}

func (c *fakeConn) ID() domain.ClientID   { return c.id }
func (c *fakeConn) IsConnected() bool     { return c.connected.Load() }
func (c *fakeConn) PeerQueue() PeerQueue  { return c.queue }
func (c *fakeConn) OnDisconnect(f func()) { c.mu.Lock(); c.callbacks = append(c.callbacks, f); c.mu.Unlock() }

func (c *fakeConn) disconnect() {
	c.connected.Store(false)
	c.mu.Lock()
	cbs := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()
	for _, f := range cbs {
		f()
	}
}

type fakeBackend struct {
	mu      sync.Mutex
	rtc     map[domain.ClientID]bool
	blocked map[domain.ClientID]bool
	muted   map[domain.ClientID]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rtc:     map[domain.ClientID]bool{},
		blocked: map[domain.ClientID]bool{},
		muted:   map[domain.ClientID]bool{},
	}
}

func (b *fakeBackend) IsConnectedToRtc(id domain.ClientID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rtc[id]
}

func (b *fakeBackend) IsVoiceBlocked(id domain.ClientID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked[id]
}

func (b *fakeBackend) ForceMute(id domain.ClientID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.muted[id] = true
}

func (b *fakeBackend) ForceUnmute(id domain.ClientID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.muted[id] = false
}

func (b *fakeBackend) set(m map[domain.ClientID]bool, id domain.ClientID, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m[id] = v
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *fakeEmitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *fakeEmitter) Of(kind EventKind) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fakeWatcher struct {
	mu        sync.Mutex
	following map[domain.ClientID]bool
	toggles   map[domain.ClientID]int
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{following: map[domain.ClientID]bool{}, toggles: map[domain.ClientID]int{}}
}

func (w *fakeWatcher) Follow(id domain.ClientID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.following[id] = true
	w.toggles[id]++
}

func (w *fakeWatcher) Unfollow(id domain.ClientID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.following[id] = false
	w.toggles[id]++
}

func (w *fakeWatcher) Following(id domain.ClientID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.following[id]
}

func (w *fakeWatcher) Toggles(id domain.ClientID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.toggles[id]
}

type fakeDirectory struct {
	mu       sync.RWMutex
	sessions map[domain.ClientID]*Session
}

func (d *fakeDirectory) Sessions() []*Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}

func (d *fakeDirectory) Lookup(id domain.ClientID) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	return s, ok
}

func (d *fakeDirectory) remove(id domain.ClientID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, id)
}

type forwardCall struct {
	Owner   domain.ClientID
	Prevent bool
}

type fakeForwarder struct {
	mu    sync.Mutex
	calls []forwardCall
}

func (f *fakeForwarder) ForwardMute(owner domain.ClientID, prevent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, forwardCall{Owner: owner, Prevent: prevent})
}

type topologyFlag bool

func (t topologyFlag) IsForwarding() bool { return bool(t) }

type harness struct {
	t         *testing.T
	dir       *fakeDirectory
	backend   *fakeBackend
	events    *fakeEmitter
	watcher   *fakeWatcher
	forwarder *fakeForwarder
	deps      *Deps
	conns     map[domain.ClientID]*fakeConn
	keys      atomic.Int64
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:         t,
		dir:       &fakeDirectory{sessions: map[domain.ClientID]*Session{}},
		backend:   newFakeBackend(),
		events:    &fakeEmitter{},
		watcher:   newFakeWatcher(),
		forwarder: &fakeForwarder{},
		conns:     map[domain.ClientID]*fakeConn{},
	}
	h.deps = &Deps{
		Directory: h.dir,
		Backend:   h.backend,
		Events:    h.events,
		Watcher:   h.watcher,
		Forwarder: h.forwarder,
		NewKey:    RandomKeys(DefaultStreamKeyLength),
	}
	return h
}

// add registers a connected session that is ready unless ready is false.
func (h *harness) add(id string, ready bool) *Session {
	cid := domain.ClientID(id)
	conn := &fakeConn{id: cid, queue: &fakeQueue{}}
	conn.connected.Store(true)
	h.backend.set(h.backend.rtc, cid, ready)
	s := NewSession(conn, h.deps)
	h.dir.mu.Lock()
	h.dir.sessions[cid] = s
	h.dir.mu.Unlock()
	h.conns[cid] = conn
	return s
}

func (h *harness) queue(s *Session) *fakeQueue { return h.conns[s.ID()].queue }

func (h *harness) disconnect(s *Session) {
	h.conns[s.ID()].disconnect()
	h.dir.remove(s.ID())
}
