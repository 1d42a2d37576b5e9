package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/app"
	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type peerSubscribeMsg struct {
	Type         string          `json:"type"`
	Peer         domain.ClientID `json:"peer"`
	StreamKey    string          `json:"stream_key"`
	Visible      bool            `json:"visible"`
	SpatialAudio bool            `json:"spatial_audio"`
}

type peerDropMsg struct {
	Type      string `json:"type"`
	StreamKey string `json:"stream_key"`
}

// AddSubscribe tells the client to expect target's stream and routes the
// audio on the media side.
func (c *wsClient) AddSubscribe(target, owner domain.PeerRef, opts domain.PeerOptions) {
	c.ctl.sendJSON(c, peerSubscribeMsg{
		Type:         "peer_subscribe",
		Peer:         target.ID,
		StreamKey:    target.StreamKey,
		Visible:      opts.Visible,
		SpatialAudio: opts.SpatialAudio,
	})
	c.ctl.Orch.SubscribeMedia(owner.ID, target)
}

func (c *wsClient) Drop(streamKey string) {
	c.ctl.sendJSON(c, peerDropMsg{Type: "peer_drop", StreamKey: streamKey})
	c.ctl.Orch.DropMedia(c.id, streamKey)
}

type locationUpdatesMsg struct {
	Type    string                  `json:"type"`
	Updates []domain.LocationUpdate `json:"updates"`
}

var _ app.LocationSink = (*SignalWSController)(nil)

// SendLocations delivers one flushed batch. The error is left to the
// flusher's back-pressure policy.
func (ctl *SignalWSController) SendLocations(id domain.ClientID, updates []domain.LocationUpdate) error {
	sig, ok := ctl.Orch.Registry.Signal(id)
	if !ok {
		return app.ErrUnknownSession
	}
	b, err := json.Marshal(locationUpdatesMsg{Type: "location_updates", Updates: updates})
	if err != nil {
		return fmt.Errorf("failed to marshal location updates: %w", err)
	}
	return sig.TrySend(b)
}

type noticeMsg struct {
	Type   string          `json:"type"`
	Kind   core.EventKind  `json:"kind"`
	Source domain.ClientID `json:"source"`
	Target domain.ClientID `json:"target,omitempty"`
	At     int64           `json:"at"`
}

// Notify forwards an event to the client it concerns: the listener for
// proximity events, the session itself otherwise.
func (ctl *SignalWSController) Notify(ev core.Event) {
	to := ev.Target
	if to == "" {
		to = ev.Source
	}
	sig, ok := ctl.Orch.Registry.Signal(to)
	if !ok {
		return
	}
	b, err := json.Marshal(noticeMsg{
		Type:   "notice",
		Kind:   ev.Kind,
		Source: ev.Source,
		Target: ev.Target,
		At:     ev.At.UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("notice marshal")
		return
	}
	if err := sig.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(to)).Msg("notice dropped")
	}
}
