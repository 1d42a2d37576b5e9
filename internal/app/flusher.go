package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

// LocationSink delivers a batch of location updates to one client.
type LocationSink interface {
	SendLocations(id domain.ClientID, updates []domain.LocationUpdate) error
}

// Canceler ends a client's connection.
type Canceler interface {
	Cancel(id domain.ClientID) bool
}

// Flusher periodically moves pending location updates onto the transport.
type Flusher struct {
	dir      core.Directory
	sink     LocationSink
	policy   Policy
	kick     Canceler
	period   time.Duration
	workers  int
	observer Observer
}

func NewFlusher(dir core.Directory, sink LocationSink, policy Policy, kick Canceler, period time.Duration, observer Observer) *Flusher {
	if policy == nil {
		policy = DropPolicy{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Flusher{
		dir:      dir,
		sink:     sink,
		policy:   policy,
		kick:     kick,
		period:   period,
		workers:  8,
		observer: observer,
	}
}

func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.flusher").Msg("location flusher stopped")
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// Flush drains every session once and returns the number of updates sent.
func (f *Flusher) Flush() int {
	var sent atomic.Int64
	p := pool.New().WithMaxGoroutines(f.workers)
	for _, s := range f.dir.Sessions() {
		p.Go(func() {
			ups := s.DrainLocationUpdates()
			if len(ups) == 0 {
				return
			}
			if err := f.sink.SendLocations(s.ID(), ups); err != nil {
				f.onFailure(s, len(ups), err)
				return
			}
			sent.Add(int64(len(ups)))
		})
	}
	p.Wait()
	n := int(sent.Load())
	if n > 0 {
		f.observer.ObserveFlushed(n)
	}
	return n
}

func (f *Flusher) onFailure(s *core.Session, lost int, err error) {
	f.observer.ObserveDropped(lost)
	action := f.policy.OnBackPressure(s)
	log.Warn().
		Err(err).
		Str("module", "app.flusher").
		Str("sid", string(s.ID())).
		Int("lost", lost).
		Int("action", int(action)).
		Msg("location delivery failed")
	switch action {
	case KickMember:
		if f.kick != nil {
			f.kick.Cancel(s.ID())
		}
	case MarkSlow, DropFrame, NoAction:
	}
}
