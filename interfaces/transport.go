package interfaces

import (
	"context"
	"fmt"
	"strings"
)

// Topology distinguishes one-to-one calls from group calls.
type Topology int

const (
	// TopologyOneToOne is a call with exactly one remote party
	TopologyOneToOne Topology = iota
	// TopologyGroup is a call with a roster of remote participants
	TopologyGroup
)

// String returns the topology name.
func (t Topology) String() string {
	switch t {
	case TopologyOneToOne:
		return "one-to-one"
	case TopologyGroup:
		return "group"
	default:
		return fmt.Sprintf("Topology(%d)", int(t))
	}
}

// Mode is the media mode of a call.
type Mode int

const (
	// ModeVoice carries audio only
	ModeVoice Mode = iota
	// ModeVideo carries audio and camera video
	ModeVideo
	// ModeScreenShare carries audio and a captured screen
	ModeScreenShare
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeVoice:
		return "voice"
	case ModeVideo:
		return "video"
	case ModeScreenShare:
		return "screen-share"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name into a Mode.
// Both "screen-share" and "screen_share" are accepted, as is the short form "screen".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "voice", "audio":
		return ModeVoice, nil
	case "video":
		return ModeVideo, nil
	case "screen-share", "screen_share", "screen":
		return ModeScreenShare, nil
	default:
		return ModeVoice, fmt.Errorf("invalid call mode: %q", s)
	}
}

// CallKind combines topology and media mode.
type CallKind struct {
	Topology Topology
	Mode     Mode
}

// IsGroup reports whether the call has a participant roster.
func (k CallKind) IsGroup() bool {
	return k.Topology == TopologyGroup
}

// HasVideo reports whether the call sends a video track.
func (k CallKind) HasVideo() bool {
	return k.Mode == ModeVideo || k.Mode == ModeScreenShare
}

// String returns "topology/mode".
func (k CallKind) String() string {
	return k.Topology.String() + "/" + k.Mode.String()
}

// Target identifies who a transport should connect to.
type Target struct {
	// SessionID is the local call session identifier, echoed in signaling.
	SessionID string
	// Peers holds the remote user for one-to-one calls or the invitees of a group call.
	Peers []string
}

// Transport is the signaling/transport capability consumed by the session controller.
//
// Connect starts call setup and returns once the request has been accepted
// by the signaling layer; progress is reported later through events.
// Reconnect re-establishes a dropped link for the current call.
type Transport interface {
	// Connect initiates a call towards target.
	Connect(ctx context.Context, target Target, kind CallKind) error

	// Reconnect tries once to re-establish the link of the current call.
	Reconnect(ctx context.Context) error

	// Disconnect tears down the current call. It is safe to call when idle.
	Disconnect(ctx context.Context) error

	// SetHold informs the remote side that the call is held or resumed.
	SetHold(ctx context.Context, held bool) error

	// SetEventHandler registers the receiver of transport events.
	SetEventHandler(handler EventHandler)

	// Close releases all transport resources.
	Close() error

	// IsSimulation returns true for in-memory implementations.
	IsSimulation() bool
}

// MediaProfile is the encoder operating point for a quality level.
type MediaProfile struct {
	Name             string
	Width            int
	Height           int
	AudioBitrateKbps int
	VideoBitrateKbps int
}

// MediaEngine executes device-level commands. Only success or failure of a
// command is relied upon.
type MediaEngine interface {
	SetMuted(muted bool) error
	SetVideoEnabled(enabled bool) error
	SetSpeakerOn(on bool) error
	SwitchCamera() error
	SetScreenSharing(enabled bool) error
	SetRecording(enabled bool) error
	SetQuality(profile MediaProfile) error
}
