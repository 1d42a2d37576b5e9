package core

import (
	"time"

	"github.com/dkeye/proximity-voice/internal/domain"
)

type EventKind string

const (
	EventPeerEnteredProximity EventKind = "peer_entered_proximity"
	EventPeerLeftProximity    EventKind = "peer_left_proximity"
	EventMicrophoneMuted      EventKind = "microphone_muted"
	EventMicrophoneUnmuted    EventKind = "microphone_unmuted"
	EventDeafened             EventKind = "deafened"
	EventUndeafened           EventKind = "undeafened"
)

// Event is a notification about one session.
// For proximity events Source is the speaker and Target the listener that
// started or stopped hearing it. Single-session events leave Target empty.
type Event struct {
	Kind   EventKind
	Source domain.ClientID
	Target domain.ClientID
	At     time.Time
}

func (s *Session) emit(kind EventKind, source, target domain.ClientID) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Emit(Event{Kind: kind, Source: source, Target: target, At: time.Now()})
}
