package sfu

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type fakeMedia struct {
	connected bool
	closed    bool
}

func (f *fakeMedia) Start(context.Context) error                { return nil }
func (f *fakeMedia) Close()                                     { f.closed = true }
func (f *fakeMedia) IsClosed() bool                             { return f.closed }
func (f *fakeMedia) Connected() bool                            { return f.connected }
func (f *fakeMedia) AddICECandidate(webrtc.ICECandidateInit) error { return nil }
func (f *fakeMedia) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{}, nil
}
func (f *fakeMedia) ApplyAnswer(webrtc.SessionDescription) error { return nil }
func (f *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{}, nil
}
func (f *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (f *fakeMedia) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {
}
func (f *fakeMedia) OnNegotiationNeeded(func()) {}
func (f *fakeMedia) AddLocalTrack(*webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return nil, nil
}
func (f *fakeMedia) RemoveLocalTrack(*webrtc.RTPSender) error { return nil }
func (f *fakeMedia) OnClosed(func())                         {}

type mediaMap map[domain.ClientID]core.MediaConnection

func (m mediaMap) Media(id domain.ClientID) (core.MediaConnection, bool) {
	mc, ok := m[id]
	return mc, ok
}

type blockSet map[domain.ClientID]bool

func (b blockSet) IsVoiceBlocked(id domain.ClientID) bool { return b[id] }

// installRelay registers a relay without a source track.
func installRelay(m *RelayManager, src domain.ClientID) *Relay {
	r := NewRelay(nil, func() {})
	m.install(src, r)
	return r
}

func TestOutTrack_StateTransitions(t *testing.T) {
	ot := NewOutTrack(nil, nil)
	assert.Equal(t, TrackStateOk, ot.GetState())

	assert.True(t, ot.MarkMuted())
	assert.False(t, ot.MarkMuted())
	assert.Equal(t, TrackStateMuted, ot.GetState())

	assert.True(t, ot.MarkOk())
	assert.Equal(t, TrackStateOk, ot.GetState())

	ot.MarkDelete()
	assert.False(t, ot.MarkOk())
	assert.False(t, ot.MarkMuted())
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelay_ReplacingOutTrackDeletesOld(t *testing.T) {
	r := NewRelay(nil, func() {})
	first := NewOutTrack(nil, nil)
	second := NewOutTrack(nil, nil)

	r.AddOutTrack("l", first)
	r.AddOutTrack("l", second)

	assert.Equal(t, TrackStateDelete, first.GetState())
	r.cleanupDeleted([]domain.ClientID{"l"})
	got, ok := r.outTrack("l")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, []domain.ClientID{"l"}, r.Subscribers())
}

func TestRelayManager_MuteSpeaker(t *testing.T) {
	m := NewRelayManager()
	r := installRelay(m, "s")
	a := NewOutTrack(nil, nil)
	b := NewOutTrack(nil, nil)
	r.AddOutTrack("a", a)
	r.AddOutTrack("b", b)
	b.MarkDelete()

	m.MuteSpeaker("s", true)
	assert.True(t, m.IsMuted("s"))
	assert.Equal(t, TrackStateMuted, a.GetState())
	assert.Equal(t, TrackStateDelete, b.GetState())

	m.MuteSpeaker("s", false)
	assert.False(t, m.IsMuted("s"))
	assert.Equal(t, TrackStateOk, a.GetState())
	assert.Equal(t, []domain.ClientID{"a"}, m.Subscribers("s"))
}

func TestRelayManager_MuteBeforeRelay(t *testing.T) {
	m := NewRelayManager()
	m.MuteSpeaker("s", true)
	assert.False(t, m.HasRelay("s"))
	assert.True(t, m.IsMuted("s"))

	r := installRelay(m, "s")
	assert.True(t, m.HasRelay("s"))
	assert.True(t, m.IsMuted("s"))

	ot := NewOutTrack(nil, nil)
	r.AddOutTrack("l", ot)
	assert.Equal(t, TrackStateMuted, ot.GetState())
}

func TestRelay_AddOutTrackAfterMute(t *testing.T) {
	r := NewRelay(nil, func() {})
	r.setMuted(true)
	ot := NewOutTrack(nil, nil)
	r.AddOutTrack("l", ot)
	assert.Equal(t, TrackStateMuted, ot.GetState())

	r.setMuted(false)
	assert.Equal(t, TrackStateOk, ot.GetState())
	late := NewOutTrack(nil, nil)
	r.AddOutTrack("m", late)
	assert.Equal(t, TrackStateOk, late.GetState())
}

func TestRelayManager_MuteRacingNewListeners(t *testing.T) {
	for round := 0; round < 20; round++ {
		m := NewRelayManager()
		r := installRelay(m, "s")

		const listeners = 32
		tracks := make([]*OutTrack, listeners)
		var wg sync.WaitGroup
		wg.Add(listeners + 1)
		go func() {
			defer wg.Done()
			m.MuteSpeaker("s", true)
		}()
		for i := 0; i < listeners; i++ {
			tracks[i] = NewOutTrack(nil, nil)
			go func(i int) {
				defer wg.Done()
				r.AddOutTrack(domain.ClientID(fmt.Sprintf("l%d", i)), tracks[i])
			}(i)
		}
		wg.Wait()

		for i, ot := range tracks {
			assert.Equal(t, TrackStateMuted, ot.GetState(), "round %d listener %d", round, i)
		}
	}
}

func TestRelayManager_SubscribeWithoutRelay(t *testing.T) {
	m := NewRelayManager()
	err := m.Subscribe("s", "l", "key", &fakeMedia{connected: true})
	assert.ErrorIs(t, err, ErrNoRelay)
}

func TestRelayManager_UnsubscribeAndForget(t *testing.T) {
	m := NewRelayManager()
	rs := installRelay(m, "s")
	rl := installRelay(m, "l")
	toL := NewOutTrack(nil, nil)
	toS := NewOutTrack(nil, nil)
	rs.AddOutTrack("l", toL)
	rl.AddOutTrack("s", toS)

	ot, ok := m.Unsubscribe("s", "l")
	require.True(t, ok)
	assert.Same(t, toL, ot)
	assert.Equal(t, TrackStateDelete, toL.GetState())
	_, ok = m.Unsubscribe("s", "nobody")
	assert.False(t, ok)

	m.MuteSpeaker("s", true)
	m.Forget("s")
	assert.False(t, m.HasRelay("s"))
	assert.False(t, m.IsMuted("s"))
	assert.Equal(t, TrackStateDelete, toS.GetState())
	assert.Empty(t, m.Subscribers("l"))
}

func TestBackend(t *testing.T) {
	relays := NewRelayManager()
	media := mediaMap{
		"up":     &fakeMedia{connected: true},
		"down":   &fakeMedia{connected: false},
		"closed": &fakeMedia{connected: true, closed: true},
	}
	b := NewBackend(media, blockSet{"up": true}, relays)

	assert.True(t, b.IsConnectedToRtc("up"))
	assert.False(t, b.IsConnectedToRtc("down"))
	assert.False(t, b.IsConnectedToRtc("closed"))
	assert.False(t, b.IsConnectedToRtc("missing"))

	assert.True(t, b.IsVoiceBlocked("up"))
	assert.False(t, b.IsVoiceBlocked("down"))
	assert.False(t, NewBackend(media, nil, relays).IsVoiceBlocked("up"))

	b.ForceMute("up")
	assert.True(t, relays.IsMuted("up"))
	b.ForceUnmute("up")
	assert.False(t, relays.IsMuted("up"))
}
