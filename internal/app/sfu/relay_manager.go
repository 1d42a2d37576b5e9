package sfu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

var ErrNoRelay = errors.New("no relay for speaker")

type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ClientID]*Relay
	// muted survives relay restarts and covers speakers without a track yet.
	muted mapset.Set[domain.ClientID]
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ClientID]*Relay),
		muted:  mapset.NewSet[domain.ClientID](),
	}
}

// StartRelay creates a new Relay for the given speaker and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, src domain.ClientID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu.relay").
		Str("sid", string(src)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, cancel)
	if m.install(src, relay) {
		logger.Info().Msg("replaced existing relay")
	}

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

// install registers relay for src with the current mute state. It reports
// whether an older relay was replaced.
func (m *RelayManager) install(src domain.ClientID, relay *Relay) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	relay.setMuted(m.muted.Contains(src))
	old, replaced := m.relays[src]
	if replaced {
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[src] = relay
	return replaced
}

// Subscribe adds a local track carrying src's audio to dst's connection.
// streamID lets the listener map the incoming stream to the speaker.
func (m *RelayManager) Subscribe(src, dst domain.ClientID, streamID string, mc core.MediaConnection) error {
	relay, ok := m.relay(src)
	if !ok {
		return ErrNoRelay
	}
	local, err := webrtc.NewTrackLocalStaticRTP(relay.Src.Codec().RTPCodecCapability, "audio-"+streamID, streamID)
	if err != nil {
		return fmt.Errorf("failed to create local track: %w", err)
	}
	sender, err := mc.AddLocalTrack(local)
	if err != nil {
		return fmt.Errorf("failed to add local track: %w", err)
	}
	go drainRTCP(sender)

	relay.AddOutTrack(dst, NewOutTrack(local, sender))
	log.Info().Str("module", "sfu.relay").Str("sid", string(src)).Str("dst_sid", string(dst)).Msg("subscribed listener")
	return nil
}

// Unsubscribe marks dst's out-track of src deleted and returns it so the
// caller can detach its sender.
func (m *RelayManager) Unsubscribe(src, dst domain.ClientID) (*OutTrack, bool) {
	relay, ok := m.relay(src)
	if !ok {
		return nil, false
	}
	ot, ok := relay.outTrack(dst)
	if !ok {
		return nil, false
	}
	ot.MarkDelete()
	return ot, true
}

// MuteSpeaker stops or resumes forwarding src's audio to every listener,
// including listeners subscribed afterwards.
func (m *RelayManager) MuteSpeaker(src domain.ClientID, muted bool) {
	m.mu.Lock()
	if muted {
		m.muted.Add(src)
	} else {
		m.muted.Remove(src)
	}
	if relay, ok := m.relays[src]; ok {
		relay.setMuted(muted)
	}
	m.mu.Unlock()
	log.Info().Str("module", "sfu.relay").Str("sid", string(src)).Bool("muted", muted).Msg("speaker mute changed")
}

func (m *RelayManager) IsMuted(src domain.ClientID) bool { return m.muted.Contains(src) }

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(src domain.ClientID) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

// DropListener marks every out-track delivered to dst deleted.
func (m *RelayManager) DropListener(dst domain.ClientID) {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()
	for _, r := range relays {
		if ot, ok := r.outTrack(dst); ok {
			ot.MarkDelete()
		}
	}
}

// Forget drops every trace of id: its relay, its mute state and its
// subscriptions to other speakers.
func (m *RelayManager) Forget(id domain.ClientID) {
	m.StopRelay(id)
	m.muted.Remove(id)
	m.DropListener(id)
}

// HasRelay reports whether a relay exists for src.
func (m *RelayManager) HasRelay(src domain.ClientID) bool {
	_, ok := m.relay(src)
	return ok
}

func (m *RelayManager) Subscribers(src domain.ClientID) []domain.ClientID {
	relay, ok := m.relay(src)
	if !ok {
		return nil
	}
	return relay.Subscribers()
}

func (m *RelayManager) relay(src domain.ClientID) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[src]
	return r, ok
}

// drainRTCP keeps interceptors running until the sender is removed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
