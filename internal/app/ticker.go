package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type TickerConfig struct {
	Radius       float64
	Period       time.Duration
	Mutual       bool
	SpatialAudio bool
	Workers      int
}

// ProximityTicker links sessions that are in range of each other and
// unlinks the ones that drifted apart.
type ProximityTicker struct {
	dir      core.Directory
	tracker  *Tracker
	cfg      TickerConfig
	observer Observer
}

func NewProximityTicker(dir core.Directory, tracker *Tracker, cfg TickerConfig, observer Observer) *ProximityTicker {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &ProximityTicker{dir: dir, tracker: tracker, cfg: cfg, observer: observer}
}

func (t *ProximityTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()
	log.Info().Str("module", "app.ticker").Dur("period", t.cfg.Period).Float64("radius", t.cfg.Radius).Msg("proximity ticker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.ticker").Msg("proximity ticker stopped")
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick runs one evaluation pass over every live session.
func (t *ProximityTicker) Tick() {
	sessions := t.dir.Sessions()
	positions := make(map[domain.ClientID]domain.Position, len(sessions))
	for _, s := range sessions {
		if p, ok := s.Position(); ok {
			positions[s.ID()] = p
		}
	}

	p := pool.New().WithMaxGoroutines(t.cfg.Workers)
	for _, s := range sessions {
		p.Go(func() { t.evaluate(s, sessions, positions) })
	}
	p.Wait()
}

func (t *ProximityTicker) evaluate(s *core.Session, sessions []*core.Session, positions map[domain.ClientID]domain.Position) {
	self, positioned := positions[s.ID()]

	if t.tracker == nil || t.tracker.Following(s.ID()) {
		for _, pid := range s.ProximityPeers() {
			peer, ok := t.dir.Lookup(pid)
			if !ok {
				if s.ForgetPeer(pid) {
					t.observer.ObserveUnlink()
				}
				continue
			}
			other, has := positions[pid]
			if positioned && has && self.InRange(other, t.cfg.Radius) {
				continue
			}
			if s.Unlink(peer) {
				t.observer.ObserveUnlink()
			}
		}
	}

	if !positioned {
		return
	}
	for _, peer := range sessions {
		if peer.ID() == s.ID() {
			continue
		}
		other, has := positions[peer.ID()]
		if !has || !self.InRange(other, t.cfg.Radius) {
			continue
		}
		if s.HasProximityPeer(peer.ID()) && (!t.cfg.Mutual || peer.HasProximityPeer(s.ID())) {
			continue
		}
		_, reason := s.RequestLinkageWithReason(peer, t.cfg.Mutual, t.options(s, peer))
		t.observer.ObserveLinkage(reason)
	}
}

func (t *ProximityTicker) options(s, peer *core.Session) domain.PeerOptions {
	return domain.PeerOptions{
		Visible: !s.HasStateFlag(domain.FlagModerating) && !peer.HasStateFlag(domain.FlagModerating),
		SpatialAudio: t.cfg.SpatialAudio &&
			!s.HasStateFlag(domain.FlagMonoAudio) && !peer.HasStateFlag(domain.FlagMonoAudio),
	}
}
