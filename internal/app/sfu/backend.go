package sfu

import (
	"github.com/dkeye/proximity-voice/internal/core"
	"github.com/dkeye/proximity-voice/internal/domain"
)

// MediaLookup finds the media connection of a client.
type MediaLookup interface {
	Media(id domain.ClientID) (core.MediaConnection, bool)
}

// VoiceBlocks answers whether a client is barred from voice.
type VoiceBlocks interface {
	IsVoiceBlocked(id domain.ClientID) bool
}

// Backend is the relay-based audio backend.
type Backend struct {
	media  MediaLookup
	blocks VoiceBlocks
	relays *RelayManager
}

var _ core.RtcBackend = (*Backend)(nil)

func NewBackend(media MediaLookup, blocks VoiceBlocks, relays *RelayManager) *Backend {
	return &Backend{media: media, blocks: blocks, relays: relays}
}

func (b *Backend) IsConnectedToRtc(id domain.ClientID) bool {
	mc, ok := b.media.Media(id)
	return ok && !mc.IsClosed() && mc.Connected()
}

func (b *Backend) IsVoiceBlocked(id domain.ClientID) bool {
	return b.blocks != nil && b.blocks.IsVoiceBlocked(id)
}

func (b *Backend) ForceMute(id domain.ClientID) { b.relays.MuteSpeaker(id, true) }

func (b *Backend) ForceUnmute(id domain.ClientID) { b.relays.MuteSpeaker(id, false) }
