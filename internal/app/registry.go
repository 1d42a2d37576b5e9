package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type sessionEntry struct {
	Session *core.Session
	User    *domain.User
	Signal  core.SignalConnection
	Media   core.MediaConnection
	Cancel  context.CancelFunc
}

// Registry is the directory of live sessions. Only the connection
// lifecycle binds and unbinds; everything else reads snapshots.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ClientID]*sessionEntry
}

var _ core.Directory = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ClientID]*sessionEntry),
	}
}

func (r *Registry) Bind(
	sess *core.Session,
	user *domain.User,
	signal core.SignalConnection,
	cancel context.CancelFunc,
) {
	id := sess.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{
		Session: sess,
		User:    user,
		Signal:  signal,
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("bound session")
}

// Unbind removes id only while it still maps to sess, so a stale
// connection cannot evict its replacement.
func (r *Registry) Unbind(id domain.ClientID, sess *core.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unbind session")
	return true
}

func (r *Registry) Sessions() []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}

func (r *Registry) Lookup(id domain.ClientID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) LookupStreamKey(key string) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.sessions {
		if e.Session.StreamKey() == key {
			return e.Session, true
		}
	}
	return nil, false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) User(id domain.ClientID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok && e.User != nil {
		return e.User, true
	}
	return nil, false
}

func (r *Registry) UpdateUsername(id domain.ClientID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.User == nil {
		return ErrUnknownSession
	}
	if err := e.User.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("username", name).Msg("updated username")
	return nil
}

func (r *Registry) Signal(id domain.ClientID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok && e.Signal != nil {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) AttachMedia(id domain.ClientID, mc core.MediaConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.Media = mc
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("attached media")
	return true
}

func (r *Registry) DetachMedia(id domain.ClientID) core.MediaConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil
	}
	mc := e.Media
	e.Media = nil
	return mc
}

func (r *Registry) Media(id domain.ClientID) (core.MediaConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok && e.Media != nil {
		return e.Media, true
	}
	return nil, false
}

// Cancel ends the connection of id; the transport runs the disconnect path.
func (r *Registry) Cancel(id domain.ClientID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("canceled session")
	return true
}
