package orch

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/app/sfu"
	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, id domain.ClientID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, id, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(id, mc) })
}

// AttachMedia binds mc to the live session of id and subscribes it to
// every relay it is entitled to.
func (o *Orchestrator) AttachMedia(id domain.ClientID, mc core.MediaConnection) bool {
	if old := o.Registry.DetachMedia(id); old != nil && old != mc {
		o.cleanupMedia(id)
		old.Close()
	}
	if !o.Registry.AttachMedia(id, mc) {
		return false
	}
	o.OnMediaReady(id)
	return true
}

// OnMediaDisconnect runs when the peer connection of id fails or closes.
// A connection that was already replaced is ignored.
func (o *Orchestrator) OnMediaDisconnect(id domain.ClientID, mc core.MediaConnection) {
	cur, ok := o.Registry.Media(id)
	if !ok || cur != mc {
		return
	}
	o.Registry.DetachMedia(id)
	o.cleanupMedia(id)
}

func (o *Orchestrator) cleanupMedia(id domain.ClientID) {
	if o.Relays == nil {
		return
	}
	o.Relays.StopRelay(id)
	o.Relays.DropListener(id)
}

// OnTrack is called when a new remote media track appears for a given session.
// Every session that listens to id gets the new stream.
func (o *Orchestrator) OnTrack(ctx context.Context, id domain.ClientID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	speaker, ok := o.Registry.Lookup(id)
	if !ok {
		return
	}
	o.Relays.StartRelay(ctx, id, track)

	for _, listener := range o.Registry.Sessions() {
		if listener.ID() == id || !listener.IsPeer(id) {
			continue
		}
		o.SubscribeMedia(listener.ID(), speaker.Ref())
	}
}

// OnMediaReady subscribes id to the relays of every peer it already hears.
func (o *Orchestrator) OnMediaReady(id domain.ClientID) {
	if o.Relays == nil {
		return
	}
	sess, ok := o.Registry.Lookup(id)
	if !ok {
		return
	}
	peers := append(sess.ProximityPeers(), sess.GlobalPeers()...)
	for _, pid := range peers {
		peer, ok := o.Registry.Lookup(pid)
		if !ok {
			continue
		}
		o.SubscribeMedia(id, peer.Ref())
	}
}

// SubscribeMedia routes speaker's audio to listener when both sides have
// media. Missing pieces are picked up later by OnTrack or OnMediaReady.
func (o *Orchestrator) SubscribeMedia(listener domain.ClientID, speaker domain.PeerRef) {
	if o.Relays == nil {
		return
	}
	mc, ok := o.Registry.Media(listener)
	if !ok {
		return
	}
	err := o.Relays.Subscribe(speaker.ID, listener, speaker.StreamKey, mc)
	if err != nil && !errors.Is(err, sfu.ErrNoRelay) {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(listener)).Str("peer", string(speaker.ID)).Msg("media subscribe failed")
	}
}

// DropMedia stops the stream with streamKey from reaching listener.
func (o *Orchestrator) DropMedia(listener domain.ClientID, streamKey string) {
	if o.Relays == nil {
		return
	}
	speaker, ok := o.Registry.LookupStreamKey(streamKey)
	if !ok {
		return
	}
	ot, ok := o.Relays.Unsubscribe(speaker.ID(), listener)
	if !ok || ot.Sender == nil {
		return
	}
	mc, ok := o.Registry.Media(listener)
	if !ok || mc.IsClosed() {
		return
	}
	if err := mc.RemoveLocalTrack(ot.Sender); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(listener)).Msg("remove local track failed")
	}
}
