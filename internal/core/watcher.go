package core

// UpdateLocationWatcher follows the session while it has proximity peers
// and unfollows it otherwise. The watcher only sees real transitions.
func (s *Session) UpdateLocationWatcher() {
	w := s.deps.Watcher
	if w == nil {
		return
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	want := s.proximityPeers.Cardinality() > 0
	if want == s.watching {
		return
	}
	s.watching = want
	if want {
		w.Follow(s.ID())
	} else {
		w.Unfollow(s.ID())
	}
}
