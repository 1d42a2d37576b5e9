package core

import "github.com/dkeye/proximity-voice/internal/domain"

// Connection is the transport side of one client. The adapter owns it;
// the core only reads its state and registers for its termination.
type Connection interface {
	ID() domain.ClientID
	IsConnected() bool
	// OnDisconnect registers fn to run exactly once when the connection ends.
	OnDisconnect(fn func())
	PeerQueue() PeerQueue
}

// PeerQueue is the per-session outbound instruction queue.
type PeerQueue interface {
	// AddSubscribe tells owner to start receiving target's stream.
	AddSubscribe(target, owner domain.PeerRef, opts domain.PeerOptions)
	// Drop tells the queue owner to stop receiving the stream with streamKey.
	Drop(streamKey string)
}

// Directory is a read-only view of the live sessions.
// Registration belongs to the connection lifecycle.
type Directory interface {
	Sessions() []*Session
	Lookup(id domain.ClientID) (*Session, bool)
}

// RtcBackend is the audio backend as seen from the peering core.
// Both queries may be served from a cache.
type RtcBackend interface {
	IsConnectedToRtc(id domain.ClientID) bool
	IsVoiceBlocked(id domain.ClientID) bool
	ForceMute(id domain.ClientID)
	ForceUnmute(id domain.ClientID)
}

// Emitter delivers notifications; the core never waits on the result.
type Emitter interface {
	Emit(Event)
}

// LocationWatcher is the external location-tracking subscription.
type LocationWatcher interface {
	Follow(id domain.ClientID)
	Unfollow(id domain.ClientID)
}

// MuteForwarder sends a mute-control instruction to the node that hosts
// the backend connection of owner.
type MuteForwarder interface {
	ForwardMute(owner domain.ClientID, prevent bool)
}

// Topology reports whether this node forwards backend commands upstream.
type Topology interface {
	IsForwarding() bool
}

// KeyGenerator produces a fresh stream key.
type KeyGenerator func() string
