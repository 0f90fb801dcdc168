package session

import (
	"time"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/quality"
)

// LocalControls is the local media state of a call.
type LocalControls struct {
	AudioMuted    bool
	VideoEnabled  bool
	SpeakerOn     bool
	ScreenSharing bool
	Recording     bool
}

func initialControls(kind interfaces.CallKind) LocalControls {
	return LocalControls{
		VideoEnabled: kind.HasVideo(),
		SpeakerOn:    kind.Mode == interfaces.ModeVideo || kind.IsGroup(),
	}
}

// CallSession is the record of the in-flight call. Values returned by the
// Controller are copies.
type CallSession struct {
	ID     string
	Kind   interfaces.CallKind
	Status Status

	// StartedAt is set on the first transition into StatusConnected.
	StartedAt time.Time
	// AccumulatedPause is the total time spent reconnecting or on hold.
	AccumulatedPause time.Duration

	Controls LocalControls

	// Target is the remote user of a one-to-one call.
	Target string
	// Invitees are the users invited to a group call.
	Invitees []string

	Quality   quality.Level
	LastError error
}

func (s *CallSession) clone() CallSession {
	out := *s
	out.Invitees = append([]string(nil), s.Invitees...)
	return out
}

func (s *CallSession) peers() []string {
	if s.Kind.IsGroup() {
		return append([]string(nil), s.Invitees...)
	}
	return []string{s.Target}
}
