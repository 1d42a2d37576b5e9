package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/proximity-voice/internal/app"
	"github.com/dkeye/proximity-voice/internal/app/orch"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type handlers struct {
	orch *orch.Orchestrator
}

type MuteRequest struct {
	Prevent *bool `json:"prevent"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrUnknownSession):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, orch.ErrNoBlockList):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func clientID(c *gin.Context) (domain.ClientID, bool) {
	id, err := domain.ParseClientID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

func (h *handlers) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.orch.Snapshots()})
}

func (h *handlers) getSession(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	snap, err := h.orch.Snapshot(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) mute(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Prevent == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid prevent"})
		return
	}
	if err := h.orch.PreventSpeaking(id, *req.Prevent); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func blockReason(c *gin.Context) (domain.BlockReason, bool) {
	reason, ok := domain.ParseBlockReason(c.Param("reason"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown block reason"})
	}
	return reason, ok
}

func (h *handlers) addBlockReason(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	reason, ok := blockReason(c)
	if !ok {
		return
	}
	if err := h.orch.AddBlockReason(id, reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) removeBlockReason(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	reason, ok := blockReason(c)
	if !ok {
		return
	}
	if err := h.orch.RemoveBlockReason(id, reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) voiceBlock(c *gin.Context)   { h.setVoiceBlocked(c, true) }
func (h *handlers) voiceUnblock(c *gin.Context) { h.setVoiceBlocked(c, false) }

func (h *handlers) setVoiceBlocked(c *gin.Context, blocked bool) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	if err := h.orch.SetVoiceBlocked(c.Request.Context(), id, blocked); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) mediaState(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	state, err := h.orch.MediaState(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *handlers) listVoiceBlocks(c *gin.Context) {
	ids, err := h.orch.VoiceBlocked(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": ids})
}

func (h *handlers) addGlobalPeer(c *gin.Context)    { h.setGlobalPeer(c, true) }
func (h *handlers) removeGlobalPeer(c *gin.Context) { h.setGlobalPeer(c, false) }

func (h *handlers) setGlobalPeer(c *gin.Context, on bool) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	peer, err := domain.ParseClientID(c.Param("peer"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.SetGlobalPeer(id, peer, on); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) setFlag(c *gin.Context)   { h.setStateFlag(c, true) }
func (h *handlers) clearFlag(c *gin.Context) { h.setStateFlag(c, false) }

func (h *handlers) setStateFlag(c *gin.Context, on bool) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	flag, ok := domain.ParseStateFlag(c.Param("flag"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state flag"})
		return
	}
	if err := h.orch.SetStateFlag(id, flag, on); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
