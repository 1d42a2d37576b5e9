package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/domain"
)

func defaultUsername(id domain.ClientID) string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

func (ctl *SignalWSController) handleHello(c *wsClient, data []byte) {
	var p struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad hello payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(c.id, p.Name); err != nil {
			ctl.sendError(c, "invalid_name")
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(c.id)).Str("name", p.Name).Msg("hello")
	}
	ctl.handleWhoAmI(c)
}

func (ctl *SignalWSController) handleWhoAmI(c *wsClient) {
	resp := struct {
		Type      string          `json:"type"`
		ID        domain.ClientID `json:"id"`
		Username  string          `json:"username"`
		StreamKey string          `json:"stream_key,omitempty"`
	}{
		Type: "whoami",
		ID:   c.id,
	}
	if user, ok := ctl.Orch.Registry.User(c.id); ok {
		resp.Username = user.Username
	}
	if sess, ok := ctl.Orch.Registry.Lookup(c.id); ok {
		resp.StreamKey = sess.StreamKey()
	}
	ctl.sendJSON(c, resp)
}
