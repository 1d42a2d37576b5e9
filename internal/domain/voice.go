package domain

// BlockReason is an explicit cause that keeps a client from broadcasting.
type BlockReason string

const (
	BlockAdminMute BlockReason = "admin_mute"
	BlockRegion    BlockReason = "region"
	BlockDeadZone  BlockReason = "dead_zone"
)

func ParseBlockReason(raw string) (BlockReason, bool) {
	switch r := BlockReason(raw); r {
	case BlockAdminMute, BlockRegion, BlockDeadZone:
		return r, true
	}
	return "", false
}

type StateFlag string

const (
	// FlagModerating hides the client from the peers it listens to.
	FlagModerating StateFlag = "moderating"
	// FlagMonoAudio asks peers to skip spatial mixing for this client.
	FlagMonoAudio StateFlag = "mono_audio"
)

func ParseStateFlag(raw string) (StateFlag, bool) {
	switch f := StateFlag(raw); f {
	case FlagModerating, FlagMonoAudio:
		return f, true
	}
	return "", false
}

// PeerOptions travel with a subscribe instruction.
type PeerOptions struct {
	Visible      bool `json:"visible"`
	SpatialAudio bool `json:"spatial_audio"`
}

func DefaultPeerOptions() PeerOptions {
	return PeerOptions{Visible: true, SpatialAudio: true}
}

// PeerRef addresses a session inside outbound instructions.
type PeerRef struct {
	ID        ClientID `json:"id"`
	StreamKey string   `json:"stream_key"`
}
