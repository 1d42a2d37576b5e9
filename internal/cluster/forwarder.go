package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

type Role int

const (
	RoleSender Role = iota
	RoleReceiver
	RoleBoth
)

// MuteControl asks the node holding owner's backend connection to force
// mute (Prevent=true) or release it.
type MuteControl struct {
	Owner   domain.ClientID `json:"owner"`
	Prevent bool            `json:"prevent"`
	Origin  string          `json:"origin"`
	At      int64           `json:"at"`
}

// MuteForwarder publishes and consumes MuteControl over redis pub/sub.
type MuteForwarder struct {
	client  redis.UniversalClient
	channel string
	nodeID  string
	role    Role
	timeout time.Duration
	logger  zerolog.Logger
}

var _ core.MuteForwarder = (*MuteForwarder)(nil)

func NewMuteForwarder(client redis.UniversalClient, channel, nodeID string, role Role) *MuteForwarder {
	return &MuteForwarder{
		client:  client,
		channel: channel,
		nodeID:  nodeID,
		role:    role,
		timeout: 2 * time.Second,
		logger:  log.With().Str("module", "cluster.forwarder").Str("node", nodeID).Logger(),
	}
}

func (f *MuteForwarder) CanSend() bool    { return f.role == RoleSender || f.role == RoleBoth }
func (f *MuteForwarder) CanReceive() bool { return f.role == RoleReceiver || f.role == RoleBoth }

// ForwardMute publishes in the background; failures are logged only.
func (f *MuteForwarder) ForwardMute(owner domain.ClientID, prevent bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.Publish(ctx, owner, prevent); err != nil {
			f.logger.Error().Err(err).Str("sid", string(owner)).Bool("prevent", prevent).Msg("forward mute failed")
		}
	}()
}

func (f *MuteForwarder) Publish(ctx context.Context, owner domain.ClientID, prevent bool) error {
	if !f.CanSend() {
		return ErrNotSender
	}
	data, err := json.Marshal(MuteControl{Owner: owner, Prevent: prevent, Origin: f.nodeID, At: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("failed to marshal mute control: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish mute control: %w", err)
	}
	f.logger.Debug().Str("sid", string(owner)).Bool("prevent", prevent).Msg("mute control forwarded")
	return nil
}

// Listen subscribes and calls apply for every instruction until ctx ends.
// It returns once the subscription is confirmed.
func (f *MuteForwarder) Listen(ctx context.Context, apply func(MuteControl)) error {
	if !f.CanReceive() {
		return ErrNotReceiver
	}
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", f.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var mc MuteControl
				if err := json.Unmarshal([]byte(msg.Payload), &mc); err != nil {
					f.logger.Error().Err(err).Msg("bad mute control payload")
					continue
				}
				f.logger.Info().Str("sid", string(mc.Owner)).Bool("prevent", mc.Prevent).Str("origin", mc.Origin).Msg("applying mute control")
				apply(mc)
			}
		}
	}()
	return nil
}

// ApplyTo routes a received instruction to the local backend.
func ApplyTo(backend core.RtcBackend) func(MuteControl) {
	return func(mc MuteControl) {
		if mc.Prevent {
			backend.ForceMute(mc.Owner)
		} else {
			backend.ForceUnmute(mc.Owner)
		}
	}
}
