package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type stubQueue struct {
	mu         sync.Mutex
	subscribes int
	drops      []string
}

func (q *stubQueue) AddSubscribe(_, _ domain.PeerRef, _ domain.PeerOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribes++
}

func (q *stubQueue) Drop(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drops = append(q.drops, key)
}

type stubConn struct {
	id        domain.ClientID
	queue     *stubQueue
	connected atomic.Bool
	onClose   []func()
}

func (c *stubConn) ID() domain.ClientID        { return c.id }
func (c *stubConn) IsConnected() bool          { return c.connected.Load() }
func (c *stubConn) OnDisconnect(fn func())     { c.onClose = append(c.onClose, fn) }
func (c *stubConn) PeerQueue() core.PeerQueue  { return c.queue }

type readyBackend struct{}

func (readyBackend) IsConnectedToRtc(domain.ClientID) bool { return true }
func (readyBackend) IsVoiceBlocked(domain.ClientID) bool   { return false }
func (readyBackend) ForceMute(domain.ClientID)             {}
func (readyBackend) ForceUnmute(domain.ClientID)           {}

type env struct {
	reg     *Registry
	tracker *Tracker
	deps    *core.Deps
	conns   map[domain.ClientID]*stubConn
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg := NewRegistry()
	tracker := NewTracker()
	return &env{
		reg:     reg,
		tracker: tracker,
		deps: &core.Deps{
			Directory: reg,
			Backend:   readyBackend{},
			Watcher:   tracker,
			NewKey:    core.RandomKeys(core.DefaultStreamKeyLength),
		},
		conns: map[domain.ClientID]*stubConn{},
	}
}

func (e *env) add(id string) *core.Session {
	cid := domain.ClientID(id)
	conn := &stubConn{id: cid, queue: &stubQueue{}}
	conn.connected.Store(true)
	s := core.NewSession(conn, e.deps)
	e.reg.Bind(s, &domain.User{ID: cid, Username: id}, nil, func() {})
	e.conns[cid] = conn
	return s
}

type sinkCall struct {
	id      domain.ClientID
	updates []domain.LocationUpdate
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	fail  map[domain.ClientID]bool
}

var errSinkFull = errors.New("sink full")

func (r *recordingSink) SendLocations(id domain.ClientID, ups []domain.LocationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[id] {
		return errSinkFull
	}
	r.calls = append(r.calls, sinkCall{id: id, updates: ups})
	return nil
}

type recordingCanceler struct {
	mu       sync.Mutex
	canceled []domain.ClientID
}

func (c *recordingCanceler) Cancel(id domain.ClientID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = append(c.canceled, id)
	return true
}

type countingObserver struct {
	mu       sync.Mutex
	linkages map[core.LinkageReason]int
	unlinks  int
	flushed  int
	dropped  int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{linkages: map[core.LinkageReason]int{}}
}

func (o *countingObserver) ObserveLinkage(r core.LinkageReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.linkages[r]++
}

func (o *countingObserver) ObserveUnlink() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlinks++
}

func (o *countingObserver) ObserveFlushed(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushed += n
}

func (o *countingObserver) ObserveDropped(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped += n
}

