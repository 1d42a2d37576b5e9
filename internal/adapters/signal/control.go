package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/domain"
)

func (ctl *SignalWSController) handlePing(c *wsClient) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(c, resp)
}

func (ctl *SignalWSController) handleLocation(c *wsClient, data []byte) {
	var p struct {
		Type string `json:"type"`
		domain.Position
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad location payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if err := ctl.Orch.OnLocation(c.id, p.Position); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("location dropped")
	}
}

type togglePayload struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

func (ctl *SignalWSController) parseToggle(c *wsClient, data []byte) (bool, bool) {
	var p togglePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad toggle payload")
		ctl.sendError(c, "bad_payload")
		return false, false
	}
	if ctl.Toggles != nil && !ctl.Toggles.Allow(c.id) {
		ctl.sendError(c, "rate_limited")
		return false, false
	}
	return p.Enabled, true
}

func (ctl *SignalWSController) handleMic(c *wsClient, data []byte) {
	enabled, ok := ctl.parseToggle(c, data)
	if !ok {
		return
	}
	if err := ctl.Orch.SetMicrophone(c.id, enabled); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("mic toggle dropped")
	}
}

func (ctl *SignalWSController) handleDeafen(c *wsClient, data []byte) {
	enabled, ok := ctl.parseToggle(c, data)
	if !ok {
		return
	}
	if err := ctl.Orch.SetDeafened(c.id, enabled); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("deafen toggle dropped")
	}
}
