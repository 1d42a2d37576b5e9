package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/proximity-voice/internal/app"
	"github.com/dkeye/proximity-voice/internal/app/sfu"
	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

// VoiceBlocks is the admin-managed voice block list.
type VoiceBlocks interface {
	Block(ctx context.Context, id domain.ClientID) error
	Unblock(ctx context.Context, id domain.ClientID) error
	Blocked(ctx context.Context) ([]domain.ClientID, error)
}

// Orchestrator turns client intents and admin commands into session
// operations and keeps the media relays in step with the peer sets.
type Orchestrator struct {
	Registry *app.Registry
	Relays   *sfu.RelayManager
	Blocks   VoiceBlocks
	Deps     *core.Deps
}

// Connect creates the session of conn and binds it. A previous connection
// of the same client is canceled first.
func (o *Orchestrator) Connect(
	conn core.Connection,
	user *domain.User,
	signal core.SignalConnection,
	cancel context.CancelFunc,
) *core.Session {
	id := conn.ID()
	if o.Registry.Cancel(id) {
		log.Info().Str("module", "orch").Str("sid", string(id)).Msg("replacing previous connection")
	}
	if old := o.Registry.DetachMedia(id); old != nil {
		old.Close()
	}

	sess := core.NewSession(conn, o.Deps)
	o.Registry.Bind(sess, user, signal, cancel)
	// Registered after the session's own cleanup, so peers are scrubbed
	// while the session is still in the directory.
	conn.OnDisconnect(func() { o.disconnect(id, sess) })
	return sess
}

func (o *Orchestrator) disconnect(id domain.ClientID, sess *core.Session) {
	if cur, ok := o.Registry.Lookup(id); !ok || cur != sess {
		return
	}
	mc := o.Registry.DetachMedia(id)
	o.Registry.Unbind(id, sess)
	if o.Relays != nil {
		o.Relays.Forget(id)
	}
	if mc != nil {
		mc.Close()
	}
	log.Info().Str("module", "orch").Str("sid", string(id)).Msg("session disconnected")
}

// Kick ends the connection of id.
func (o *Orchestrator) Kick(id domain.ClientID) bool {
	return o.Registry.Cancel(id)
}

func (o *Orchestrator) session(id domain.ClientID) (*core.Session, error) {
	sess, ok := o.Registry.Lookup(id)
	if !ok {
		return nil, app.ErrUnknownSession
	}
	return sess, nil
}

func (o *Orchestrator) OnLocation(id domain.ClientID, pos domain.Position) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.OnLocationTick(pos)
	return nil
}

func (o *Orchestrator) SetMicrophone(id domain.ClientID, enabled bool) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.SetMicrophoneEnabled(enabled)
	return nil
}

func (o *Orchestrator) SetDeafened(id domain.ClientID, deafened bool) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.SetVoicechatDeafened(deafened)
	return nil
}

// PreventSpeaking forces the mute of id on or off.
func (o *Orchestrator) PreventSpeaking(id domain.ClientID, prevent bool) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.PreventSpeaking(prevent)
	return nil
}

func (o *Orchestrator) AddBlockReason(id domain.ClientID, reason domain.BlockReason) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.AddBlockReason(reason)
	return nil
}

func (o *Orchestrator) RemoveBlockReason(id domain.ClientID, reason domain.BlockReason) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.RemoveBlockReason(reason)
	return nil
}

var ErrNoBlockList = errors.New("voice block list not configured")

// SetVoiceBlocked updates the block list. A live session is also force
// muted so its current listeners stop hearing it.
func (o *Orchestrator) SetVoiceBlocked(ctx context.Context, id domain.ClientID, blocked bool) error {
	if o.Blocks == nil {
		return ErrNoBlockList
	}
	var err error
	if blocked {
		err = o.Blocks.Block(ctx, id)
	} else {
		err = o.Blocks.Unblock(ctx, id)
	}
	if err != nil {
		return err
	}
	if sess, ok := o.Registry.Lookup(id); ok {
		sess.PreventSpeaking(blocked)
	}
	return nil
}

// VoiceBlocked lists every voice-blocked client, live or not.
func (o *Orchestrator) VoiceBlocked(ctx context.Context) ([]domain.ClientID, error) {
	if o.Blocks == nil {
		return nil, ErrNoBlockList
	}
	return o.Blocks.Blocked(ctx)
}

// SetGlobalPeer makes id hear peer regardless of distance, or undoes it.
// Linking needs both sessions live; unlinking only needs id.
func (o *Orchestrator) SetGlobalPeer(id, peer domain.ClientID, on bool) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	other, ok := o.Registry.Lookup(peer)
	if on {
		if !ok {
			return app.ErrUnknownSession
		}
		sess.LinkGlobal(other, peerOptions(sess, other))
		return nil
	}
	if ok {
		sess.UnlinkGlobal(other)
	} else {
		sess.RemoveGlobalPeer(peer)
	}
	return nil
}

func peerOptions(s, peer *core.Session) domain.PeerOptions {
	return domain.PeerOptions{
		Visible:      !s.HasStateFlag(domain.FlagModerating) && !peer.HasStateFlag(domain.FlagModerating),
		SpatialAudio: !s.HasStateFlag(domain.FlagMonoAudio) && !peer.HasStateFlag(domain.FlagMonoAudio),
	}
}

func (o *Orchestrator) SetStateFlag(id domain.ClientID, flag domain.StateFlag, on bool) error {
	sess, err := o.session(id)
	if err != nil {
		return err
	}
	sess.SetStateFlag(flag, on)
	log.Info().Str("module", "orch").Str("sid", string(id)).Str("flag", string(flag)).Bool("on", on).Msg("state flag changed")
	return nil
}

// MediaState is the relay view of one speaker.
type MediaState struct {
	Relay     bool              `json:"relay"`
	Muted     bool              `json:"muted"`
	Listeners []domain.ClientID `json:"listeners"`
}

func (o *Orchestrator) MediaState(id domain.ClientID) (MediaState, error) {
	if _, err := o.session(id); err != nil {
		return MediaState{}, err
	}
	if o.Relays == nil {
		return MediaState{}, nil
	}
	return MediaState{
		Relay:     o.Relays.HasRelay(id),
		Muted:     o.Relays.IsMuted(id),
		Listeners: o.Relays.Subscribers(id),
	}, nil
}

func (o *Orchestrator) Snapshots() []core.SessionSnapshot {
	sessions := o.Registry.Sessions()
	out := make([]core.SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

func (o *Orchestrator) Snapshot(id domain.ClientID) (core.SessionSnapshot, error) {
	sess, err := o.session(id)
	if err != nil {
		return core.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}
