package core

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/domain"
)

// LinkageReason explains a RequestLinkage result.
type LinkageReason string

const (
	ReasonLinked        LinkageReason = "linked"
	ReasonSelfNotReady  LinkageReason = "self_not_ready"
	ReasonPeerNotReady  LinkageReason = "peer_not_ready"
	ReasonAlreadyLinked LinkageReason = "already_linked"
	ReasonSelfLink      LinkageReason = "self_link"
)

// RequestLinkage makes s listen to peer and, when mutual, peer listen to s.
// The result is true only if the s->peer direction was created by this call.
func (s *Session) RequestLinkage(peer *Session, mutual bool, opts domain.PeerOptions) bool {
	ok, _ := s.RequestLinkageWithReason(peer, mutual, opts)
	return ok
}

func (s *Session) RequestLinkageWithReason(peer *Session, mutual bool, opts domain.PeerOptions) (bool, LinkageReason) {
	if peer == nil || peer.ID() == s.ID() {
		return false, ReasonSelfLink
	}
	if !s.IsReady() {
		return false, ReasonSelfNotReady
	}
	if !peer.IsReady() {
		return false, ReasonPeerNotReady
	}

	// The reverse direction is handled first so it is still created when
	// s already listens to peer.
	if mutual && peer.proximityPeers.Add(s.ID()) {
		peer.conn.PeerQueue().AddSubscribe(s.Ref(), peer.Ref(), opts)
		s.emit(EventPeerEnteredProximity, s.ID(), peer.ID())
		peer.UpdateLocationWatcher()
	}

	if !s.proximityPeers.Add(peer.ID()) {
		return false, ReasonAlreadyLinked
	}
	s.conn.PeerQueue().AddSubscribe(peer.Ref(), s.Ref(), opts)
	s.emit(EventPeerEnteredProximity, peer.ID(), s.ID())
	s.UpdateLocationWatcher()
	return true, ReasonLinked
}

// Unlink stops s from listening to peer. The reverse direction is untouched.
// The stream keeps flowing while peer is still a global peer of s.
func (s *Session) Unlink(peer *Session) bool {
	if !s.removeProximityPeer(peer.ID()) {
		return false
	}
	s.UpdateLocationWatcher()
	if !s.globalPeers.Contains(peer.ID()) {
		s.conn.PeerQueue().Drop(peer.StreamKey())
	}
	s.emit(EventPeerLeftProximity, peer.ID(), s.ID())
	return true
}

// LinkGlobal makes s hear peer regardless of distance. No subscribe is
// queued when a proximity link already carries the stream.
func (s *Session) LinkGlobal(peer *Session, opts domain.PeerOptions) bool {
	if peer == nil || !s.AddGlobalPeer(peer.ID()) {
		return false
	}
	if !s.proximityPeers.Contains(peer.ID()) {
		s.conn.PeerQueue().AddSubscribe(peer.Ref(), s.Ref(), opts)
	}
	return true
}

// UnlinkGlobal undoes LinkGlobal. A proximity link to peer stays intact.
func (s *Session) UnlinkGlobal(peer *Session) bool {
	if peer == nil || !s.RemoveGlobalPeer(peer.ID()) {
		return false
	}
	if !s.proximityPeers.Contains(peer.ID()) {
		s.conn.PeerQueue().Drop(peer.StreamKey())
	}
	return true
}

// ForgetPeer removes a proximity link to id when id has already left the
// directory. The departed stream was dropped by its own disconnect, so no
// drop is queued here.
func (s *Session) ForgetPeer(id domain.ClientID) bool {
	if !s.removeProximityPeer(id) {
		return false
	}
	s.UpdateLocationWatcher()
	s.emit(EventPeerLeftProximity, id, s.ID())
	return true
}

// DropAllPeers removes s from the proximity and global sets of every live
// session that listens to it. A failure on one peer does not stop the walk.
func (s *Session) DropAllPeers() {
	id := s.ID()
	for _, peer := range s.deps.Directory.Sessions() {
		if peer == nil || peer.ID() == id {
			continue
		}
		s.dropFrom(peer)
	}
}

func (s *Session) dropFrom(peer *Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "core.peering").
				Str("sid", string(s.ID())).
				Str("peer", string(peer.ID())).
				Interface("panic", r).
				Msg("peer cleanup failed, continuing")
		}
	}()
	global := peer.removeGlobalPeer(s.ID())
	proximity := peer.removeProximityPeer(s.ID())
	if !global && !proximity {
		return
	}
	peer.conn.PeerQueue().Drop(s.streamKey)
	if proximity {
		peer.UpdateLocationWatcher()
		s.emit(EventPeerLeftProximity, s.ID(), peer.ID())
	}
}

// IsPeer reports whether s hears id, by proximity or globally.
func (s *Session) IsPeer(id domain.ClientID) bool {
	return s.proximityPeers.Contains(id) || s.globalPeers.Contains(id)
}

func (s *Session) removeProximityPeer(id domain.ClientID) bool {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if !s.proximityPeers.Contains(id) {
		return false
	}
	s.proximityPeers.Remove(id)
	return true
}

func (s *Session) removeGlobalPeer(id domain.ClientID) bool {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if !s.globalPeers.Contains(id) {
		return false
	}
	s.globalPeers.Remove(id)
	return true
}
