package signal

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/adapters/rtc"
)

func (ctl *SignalWSController) sendCandidate(c *wsClient, ci webrtc.ICECandidateInit) {
	resp := struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid,omitempty"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
	}{
		Type:      "candidate",
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (ctl *SignalWSController) handleOffer(ctx context.Context, c *wsClient, data []byte) {
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}

	// A renegotiation offer from the client goes to the existing connection.
	if mc, ok := ctl.Orch.Registry.Media(c.id); ok && !mc.IsClosed() {
		answer, err := mc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("webrtc apply renegotiation offer")
			return
		}
		ctl.sendJSON(c, sdpPayload{Type: "answer", SDP: answer.SDP})
		return
	}

	wc, err := rtc.NewWebRTCConnection(rtc.DefaultWebRTCConfig(), c.id)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(c, ci)
	})
	wc.OnNegotiationNeeded(func() { ctl.renegotiate(c, wc) })
	ctl.Orch.BindMediaHandlers(wc, c.id)

	if err = wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		return
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		wc.Close()
		return
	}
	ctl.sendJSON(c, sdpPayload{Type: "answer", SDP: answer.SDP})

	if !ctl.Orch.AttachMedia(c.id, wc) {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("media for unknown session")
		wc.Close()
	}
}

// renegotiate sends a server offer after relays added or removed tracks.
func (ctl *SignalWSController) renegotiate(c *wsClient, wc *rtc.WebRTCConnection) {
	if wc.IsClosed() {
		return
	}
	offer, err := wc.CreateAndSetOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("webrtc renegotiation offer")
		return
	}
	ctl.sendJSON(c, sdpPayload{Type: "offer", SDP: offer.SDP})
}

func (ctl *SignalWSController) handleAnswer(c *wsClient, data []byte) {
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}
	mc, ok := ctl.Orch.Registry.Media(c.id)
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("answer: no media connection for")
		return
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("webrtc apply answer")
	}
}

func (ctl *SignalWSController) handleCandidate(c *wsClient, data []byte) {
	type candidatePayload struct {
		Type          string `json:"type"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	cand := webrtc.ICECandidateInit{
		Candidate: p.Candidate,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	cand.SDPMLineIndex = &p.SDPMLineIndex

	mc, ok := ctl.Orch.Registry.Media(c.id)
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("candidate: no media connection for")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
