package core

import "github.com/rs/zerolog/log"

// SetMicrophoneEnabled flips the microphone. Turning it on replays the
// held-back position before the new state becomes visible.
func (s *Session) SetMicrophoneEnabled(state bool) {
	s.mu.Lock()
	if state == s.micEnabled.Load() {
		s.mu.Unlock()
		return
	}
	if state && s.lastKnown != nil {
		s.ForceUpdateLocation(*s.lastKnown)
	}
	s.micEnabled.Store(state)
	s.mu.Unlock()

	if !s.IsReady() {
		return
	}
	if state {
		s.emit(EventMicrophoneUnmuted, s.ID(), "")
	} else {
		s.emit(EventMicrophoneMuted, s.ID(), "")
	}
}

// SetVoicechatDeafened only changes what the session hears.
func (s *Session) SetVoicechatDeafened(state bool) {
	s.mu.Lock()
	if state == s.deafened.Load() {
		s.mu.Unlock()
		return
	}
	s.deafened.Store(state)
	s.mu.Unlock()

	if !s.IsReady() {
		return
	}
	if state {
		s.emit(EventDeafened, s.ID(), "")
	} else {
		s.emit(EventUndeafened, s.ID(), "")
	}
}

// PreventSpeaking force-mutes (prevent=true) or releases the session.
// On a forwarding node the command goes to the node hosting the backend.
func (s *Session) PreventSpeaking(prevent bool) {
	id := s.ID()
	if s.deps.Topology != nil && s.deps.Topology.IsForwarding() {
		if s.deps.Forwarder == nil {
			log.Warn().Str("module", "core.state").Str("sid", string(id)).Msg("forwarding topology without forwarder")
			return
		}
		s.deps.Forwarder.ForwardMute(id, prevent)
		return
	}
	if prevent {
		s.deps.Backend.ForceMute(id)
	} else {
		s.deps.Backend.ForceUnmute(id)
	}
}
