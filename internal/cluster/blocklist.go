package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/domain"
)

type cachedBlock struct {
	blocked bool
	at      time.Time
}

// BlockList is the cluster-wide set of voice-blocked clients. Reads are
// served from a local cache refreshed after ttl; without a redis client
// the local view is authoritative.
type BlockList struct {
	client  redis.UniversalClient
	key     string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[domain.ClientID]cachedBlock
}

func NewBlockList(client redis.UniversalClient, key string, ttl time.Duration) *BlockList {
	return &BlockList{
		client:  client,
		key:     key,
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
		cache:   make(map[domain.ClientID]cachedBlock),
	}
}

func (b *BlockList) Block(ctx context.Context, id domain.ClientID) error {
	return b.set(ctx, id, true)
}

func (b *BlockList) Unblock(ctx context.Context, id domain.ClientID) error {
	return b.set(ctx, id, false)
}

func (b *BlockList) set(ctx context.Context, id domain.ClientID, blocked bool) error {
	if b.client != nil {
		var err error
		if blocked {
			err = b.client.SAdd(ctx, b.key, string(id)).Err()
		} else {
			err = b.client.SRem(ctx, b.key, string(id)).Err()
		}
		if err != nil {
			return fmt.Errorf("failed to update block list: %w", err)
		}
	}
	b.mu.Lock()
	b.cache[id] = cachedBlock{blocked: blocked, at: b.now()}
	b.mu.Unlock()
	log.Info().Str("module", "cluster.blocklist").Str("sid", string(id)).Bool("blocked", blocked).Msg("voice block updated")
	return nil
}

// IsVoiceBlocked may return a stale answer when redis is unreachable.
func (b *BlockList) IsVoiceBlocked(id domain.ClientID) bool {
	b.mu.Lock()
	entry, ok := b.cache[id]
	b.mu.Unlock()
	if b.client == nil {
		return ok && entry.blocked
	}
	if ok && b.now().Sub(entry.at) < b.ttl {
		return entry.blocked
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	blocked, err := b.client.SIsMember(ctx, b.key, string(id)).Result()
	if err != nil {
		log.Warn().Err(err).Str("module", "cluster.blocklist").Str("sid", string(id)).Msg("block lookup failed, using cached value")
		return ok && entry.blocked
	}
	b.mu.Lock()
	b.cache[id] = cachedBlock{blocked: blocked, at: b.now()}
	b.mu.Unlock()
	return blocked
}

// Blocked lists every blocked client.
func (b *BlockList) Blocked(ctx context.Context) ([]domain.ClientID, error) {
	if b.client == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		out := make([]domain.ClientID, 0, len(b.cache))
		for id, e := range b.cache {
			if e.blocked {
				out = append(out, id)
			}
		}
		return out, nil
	}
	members, err := b.client.SMembers(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list block list: %w", err)
	}
	out := make([]domain.ClientID, 0, len(members))
	for _, m := range members {
		out = append(out, domain.ClientID(m))
	}
	return out, nil
}
