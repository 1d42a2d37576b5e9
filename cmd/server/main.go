package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/proximity-voice/internal/adapters/http"
	sig "github.com/dkeye/proximity-voice/internal/adapters/signal"
	"github.com/dkeye/proximity-voice/internal/app"
	"github.com/dkeye/proximity-voice/internal/app/orch"
	"github.com/dkeye/proximity-voice/internal/app/sfu"
	"github.com/dkeye/proximity-voice/internal/cluster"
	"github.com/dkeye/proximity-voice/internal/config"
	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/events"
	"github.com/dkeye/proximity-voice/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := app.NewRegistry()
	relays := sfu.NewRelayManager()
	tracker := app.NewTracker()
	m := metrics.New(cfg.Metrics.Namespace)
	dispatcher := events.NewDispatcher()

	var (
		blocks    *cluster.BlockList
		forwarder *cluster.MuteForwarder
	)
	if cfg.Cluster.Enabled {
		client, err := cluster.NewRedisClient(ctx, cluster.RedisConfig{
			Addr:     cfg.Cluster.RedisAddr,
			Password: cfg.Cluster.RedisPassword,
			DB:       cfg.Cluster.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("cluster redis unavailable")
		}
		defer client.Close()
		blocks = cluster.NewBlockList(client, cfg.Cluster.BlockSet, cfg.Cluster.BlockCacheTTL)
		role := cluster.RoleReceiver
		if cfg.Cluster.Forwarding {
			role = cluster.RoleSender
		}
		forwarder = cluster.NewMuteForwarder(client, cfg.Cluster.Channel, cfg.Cluster.NodeID, role)
	} else {
		blocks = cluster.NewBlockList(nil, "", 0)
	}

	backend := sfu.NewBackend(reg, blocks, relays)
	deps := &core.Deps{
		Directory: reg,
		Backend:   backend,
		Events:    dispatcher,
		Watcher:   tracker,
		Topology:  cluster.Topology{Forwarding: cfg.Cluster.Enabled && cfg.Cluster.Forwarding},
		NewKey:    core.RandomKeys(cfg.Voice.StreamKeyLength),
	}
	if forwarder != nil {
		deps.Forwarder = forwarder
		if forwarder.CanReceive() {
			if err := forwarder.Listen(ctx, cluster.ApplyTo(backend)); err != nil {
				log.Fatal().Err(err).Msg("mute control subscription failed")
			}
		}
	}

	o := &orch.Orchestrator{
		Registry: reg,
		Relays:   relays,
		Blocks:   blocks,
		Deps:     deps,
	}

	policy := app.PolicyByName(cfg.Voice.Backpressure)
	ctrl := sig.NewSignalWSController(o, policy, sig.NewToggleLimiter(cfg.Voice.ToggleLimit, cfg.Voice.ToggleInterval), sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})

	dispatcher.OnAny(events.LogListener)
	dispatcher.OnAny(m.OnEvent)
	dispatcher.OnAny(ctrl.Notify)
	m.Gauge("sessions_live", "Live sessions on this node.", func() float64 { return float64(reg.Count()) })
	m.Gauge("sessions_followed", "Sessions with at least one proximity peer.", func() float64 { return float64(tracker.Count()) })
	m.Counter("events_dropped_total", "Notifications dropped on a full dispatcher buffer.", func() float64 { return float64(dispatcher.Dropped()) })
	m.Counter("events_delivered_total", "Notifications handed to listeners.", func() float64 { return float64(dispatcher.Delivered()) })
	if cfg.AdminToken == "" {
		log.Warn().Msg("admin_token is empty, admin API disabled")
	}

	ticker := app.NewProximityTicker(reg, tracker, app.TickerConfig{
		Radius:       cfg.Voice.Radius,
		Period:       cfg.Voice.TickPeriod,
		Mutual:       cfg.Voice.Mutual,
		SpatialAudio: cfg.Voice.SpatialAudio,
	}, m)
	flusher := app.NewFlusher(reg, ctrl, policy, reg, cfg.Voice.FlushPeriod, m)

	go dispatcher.Run(ctx)
	go ticker.Run(ctx)
	go flusher.Run(ctx)

	r := router.SetupRouter(ctx, cfg, o, ctrl, m)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("node", cfg.Cluster.NodeID).Msg("Proximity voice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
