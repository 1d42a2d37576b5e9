package app

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

// Tracker is the location-following subscription set. A followed session
// has at least one proximity peer and gets range checks every tick.
type Tracker struct {
	followed mapset.Set[domain.ClientID]
}

var _ core.LocationWatcher = (*Tracker)(nil)

func NewTracker() *Tracker {
	return &Tracker{followed: mapset.NewSet[domain.ClientID]()}
}

func (t *Tracker) Follow(id domain.ClientID) {
	if t.followed.Add(id) {
		log.Debug().Str("module", "app.tracker").Str("sid", string(id)).Msg("following")
	}
}

func (t *Tracker) Unfollow(id domain.ClientID) {
	t.followed.Remove(id)
	log.Debug().Str("module", "app.tracker").Str("sid", string(id)).Msg("unfollowed")
}

func (t *Tracker) Following(id domain.ClientID) bool { return t.followed.Contains(id) }

func (t *Tracker) Count() int { return t.followed.Cardinality() }
