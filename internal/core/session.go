package core

import (
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/domain"
)

// Deps are the collaborators shared by every session of a node.
// Watcher, Forwarder and Topology may be nil.
type Deps struct {
	Directory Directory
	Backend   RtcBackend
	Events    Emitter
	Watcher   LocationWatcher
	Forwarder MuteForwarder
	Topology  Topology
	NewKey    KeyGenerator
}

// Session is the voice state of one connected client.
// It is referenced, never owned, by the core: the connection lifecycle
// creates it and discards it after the disconnect cleanup ran.
type Session struct {
	conn      Connection
	deps      *Deps
	streamKey string

	proximityPeers mapset.Set[domain.ClientID]
	globalPeers    mapset.Set[domain.ClientID]
	blockReasons   mapset.Set[domain.BlockReason]
	stateFlags     mapset.Set[domain.StateFlag]
	pending        mapset.Set[domain.LocationUpdate]

	// peersMu makes check-and-remove on the peer sets a single step.
	peersMu sync.Mutex
	// watchMu serializes watcher toggles.
	watchMu  sync.Mutex
	watching bool

	// mu guards flag transitions and lastKnown.
	mu         sync.Mutex
	micEnabled atomic.Bool
	deafened   atomic.Bool
	lastKnown  *domain.Position

	position atomic.Pointer[domain.Position]
}

// NewSession builds the voice state for conn and hooks it to the
// connection's termination.
func NewSession(conn Connection, deps *Deps) *Session {
	newKey := deps.NewKey
	if newKey == nil {
		newKey = RandomKeys(DefaultStreamKeyLength)
	}
	s := &Session{
		conn:           conn,
		deps:           deps,
		streamKey:      newKey(),
		proximityPeers: mapset.NewSet[domain.ClientID](),
		globalPeers:    mapset.NewSet[domain.ClientID](),
		blockReasons:   mapset.NewSet[domain.BlockReason](),
		stateFlags:     mapset.NewSet[domain.StateFlag](),
		pending:        mapset.NewSet[domain.LocationUpdate](),
	}
	conn.OnDisconnect(s.onDisconnect)
	return s
}

func (s *Session) ID() domain.ClientID { return s.conn.ID() }

func (s *Session) StreamKey() string { return s.streamKey }

func (s *Session) Ref() domain.PeerRef {
	return domain.PeerRef{ID: s.ID(), StreamKey: s.streamKey}
}

func (s *Session) MicrophoneEnabled() bool { return s.micEnabled.Load() }

func (s *Session) Deafened() bool { return s.deafened.Load() }

// Position returns the most recent position reported for this session.
func (s *Session) Position() (domain.Position, bool) {
	p := s.position.Load()
	if p == nil {
		return domain.Position{}, false
	}
	return *p, true
}

// LastKnownLocation is the position held back while broadcasting was not allowed.
func (s *Session) LastKnownLocation() (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKnown == nil {
		return domain.Position{}, false
	}
	return *s.lastKnown, true
}

func (s *Session) ProximityPeers() []domain.ClientID { return s.proximityPeers.ToSlice() }

func (s *Session) GlobalPeers() []domain.ClientID { return s.globalPeers.ToSlice() }

func (s *Session) HasProximityPeer(id domain.ClientID) bool {
	return s.proximityPeers.Contains(id)
}

func (s *Session) AddGlobalPeer(id domain.ClientID) bool {
	if id == s.ID() {
		return false
	}
	return s.globalPeers.Add(id)
}

func (s *Session) RemoveGlobalPeer(id domain.ClientID) bool {
	return s.removeGlobalPeer(id)
}

func (s *Session) BlockReasons() []domain.BlockReason { return s.blockReasons.ToSlice() }

func (s *Session) AddBlockReason(r domain.BlockReason) bool { return s.blockReasons.Add(r) }

func (s *Session) RemoveBlockReason(r domain.BlockReason) { s.blockReasons.Remove(r) }

func (s *Session) HasStateFlag(f domain.StateFlag) bool { return s.stateFlags.Contains(f) }

func (s *Session) SetStateFlag(f domain.StateFlag, on bool) {
	if on {
		s.stateFlags.Add(f)
		return
	}
	s.stateFlags.Remove(f)
}

// PendingLocationUpdates returns a copy of the queued deliveries.
func (s *Session) PendingLocationUpdates() []domain.LocationUpdate {
	return s.pending.ToSlice()
}

// DrainLocationUpdates takes every queued delivery out of the session.
func (s *Session) DrainLocationUpdates() []domain.LocationUpdate {
	out := make([]domain.LocationUpdate, 0, s.pending.Cardinality())
	for {
		u, ok := s.pending.Pop()
		if !ok {
			return out
		}
		out = append(out, u)
	}
}

// SessionSnapshot is a read-only view for APIs.
type SessionSnapshot struct {
	ID                domain.ClientID         `json:"id"`
	Ready             bool                    `json:"ready"`
	MicrophoneEnabled bool                    `json:"microphone_enabled"`
	Deafened          bool                    `json:"deafened"`
	ProximityPeers    []domain.ClientID       `json:"proximity_peers"`
	GlobalPeers       []domain.ClientID       `json:"global_peers"`
	BlockReasons      []domain.BlockReason    `json:"block_reasons"`
	HeldLocation      *domain.Position        `json:"held_location,omitempty"`
	PendingUpdates    []domain.LocationUpdate `json:"pending_updates"`
}

func (s *Session) Snapshot() SessionSnapshot {
	var held *domain.Position
	if p, ok := s.LastKnownLocation(); ok {
		held = &p
	}
	return SessionSnapshot{
		ID:                s.ID(),
		Ready:             s.IsReady(),
		MicrophoneEnabled: s.MicrophoneEnabled(),
		Deafened:          s.Deafened(),
		ProximityPeers:    s.ProximityPeers(),
		GlobalPeers:       s.GlobalPeers(),
		BlockReasons:      s.BlockReasons(),
		HeldLocation:      held,
		PendingUpdates:    s.PendingLocationUpdates(),
	}
}

// onDisconnect runs once when the connection ends. Local peer sets are
// cleared first; only remote sets reference this session's ID.
func (s *Session) onDisconnect() {
	s.proximityPeers.Clear()
	s.globalPeers.Clear()

	s.mu.Lock()
	s.micEnabled.Store(false)
	s.mu.Unlock()

	s.DropAllPeers()
	s.pending.Clear()
	s.UpdateLocationWatcher()

	log.Info().Str("module", "core.session").Str("sid", string(s.ID())).Msg("voice session torn down")
}
