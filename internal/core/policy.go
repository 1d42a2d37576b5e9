package core

// IsReady reports whether transport and backend both consider the session
// connected and the backend has not voice-blocked it. Block reasons are not
// part of this predicate; see CanBroadcast.
func (s *Session) IsReady() bool {
	id := s.ID()
	if s.deps.Backend.IsVoiceBlocked(id) {
		return false
	}
	return s.conn.IsConnected() && s.deps.Backend.IsConnectedToRtc(id)
}

// CanBroadcast is the location broadcast gate: ready, microphone on and no
// block reason.
func (s *Session) CanBroadcast() bool {
	return s.IsReady() && s.MicrophoneEnabled() && s.blockReasons.Cardinality() == 0
}
