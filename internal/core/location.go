package core

import "github.com/dkeye/proximity-voice/internal/domain"

// OnLocationTick broadcasts pos when the session may speak, otherwise it
// keeps pos so it can be replayed once the microphone comes back.
func (s *Session) OnLocationTick(pos domain.Position) {
	s.position.Store(&pos)
	if s.CanBroadcast() {
		s.ForceUpdateLocation(pos)
		return
	}
	s.mu.Lock()
	s.lastKnown = &pos
	s.mu.Unlock()
}

// ForceUpdateLocation queues pos on every live session listening to s and
// returns how many were reached. It scans the whole directory, which is
// the cost to watch as the node grows.
func (s *Session) ForceUpdateLocation(pos domain.Position) int {
	id := s.ID()
	n := 0
	for _, peer := range s.deps.Directory.Sessions() {
		if peer == nil || peer.ID() == id {
			continue
		}
		if !peer.proximityPeers.Contains(id) {
			continue
		}
		peer.pending.Add(domain.LocationUpdate{
			Source:     id,
			Position:   pos,
			RelativeTo: peer.vector(),
		})
		n++
	}
	return n
}

func (s *Session) vector() domain.Vector3 {
	if p := s.position.Load(); p != nil {
		return p.Vector()
	}
	return domain.Vector3{}
}
