package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/adapters/signal"
	"github.com/dkeye/proximity-voice/internal/app/orch"
	"github.com/dkeye/proximity-voice/internal/config"
	"github.com/dkeye/proximity-voice/internal/metrics"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// AdminAuthMiddleware accepts "Authorization: Bearer <token>". An empty
// token disables the admin API.
func AdminAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, got, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if token == "" || !ok || scheme != "Bearer" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn().Str("module", "adapters.http").Str("path", c.FullPath()).Msg("admin request rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	orch *orch.Orchestrator,
	ctrl *signal.SignalWSController,
	m *metrics.Metrics,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	h := &handlers{orch: orch}
	admin := api.Group("/admin", AdminAuthMiddleware(cfg.AdminToken))
	admin.GET("/sessions", h.listSessions)
	admin.GET("/sessions/:id", h.getSession)
	admin.GET("/sessions/:id/media", h.mediaState)
	admin.POST("/sessions/:id/mute", h.mute)
	admin.POST("/sessions/:id/block/:reason", h.addBlockReason)
	admin.DELETE("/sessions/:id/block/:reason", h.removeBlockReason)
	admin.POST("/sessions/:id/voice-block", h.voiceBlock)
	admin.DELETE("/sessions/:id/voice-block", h.voiceUnblock)
	admin.POST("/sessions/:id/global/:peer", h.addGlobalPeer)
	admin.DELETE("/sessions/:id/global/:peer", h.removeGlobalPeer)
	admin.POST("/sessions/:id/flag/:flag", h.setFlag)
	admin.DELETE("/sessions/:id/flag/:flag", h.clearFlag)
	admin.GET("/voice-blocks", h.listVoiceBlocks)

	return r
}
