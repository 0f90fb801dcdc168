package real

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/sirupsen/logrus"
)

// Media frame operations.
const (
	mediaMute         = "mute"
	mediaVideo        = "video"
	mediaSpeaker      = "speaker"
	mediaSwitchCamera = "switch_camera"
	mediaScreenShare  = "screen_share"
	mediaRecording    = "recording"
	mediaQuality      = "quality"
)

// MediaState is the device state last requested through a SignalingMediaEngine.
type MediaState struct {
	Muted         bool
	VideoEnabled  bool
	SpeakerOn     bool
	ScreenSharing bool
	Recording     bool
	Profile       interfaces.MediaProfile
}

// SignalingMediaEngine implements interfaces.MediaEngine for a remote media
// agent driven over the signaling connection.
//
// Commands issued while no connection is up are recorded and replayed once a
// call is accepted or rejoined.
type SignalingMediaEngine struct {
	transport *WebSocketTransport

	mu    sync.Mutex
	state MediaState
}

// NewSignalingMediaEngine creates a media engine that sends its commands
// through transport.
func NewSignalingMediaEngine(transport *WebSocketTransport) *SignalingMediaEngine {
	m := &SignalingMediaEngine{transport: transport}
	transport.OnLinkUp(m.replay)
	return m
}

// State returns the last requested device state.
func (m *SignalingMediaEngine) State() MediaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetMuted implements interfaces.MediaEngine.
func (m *SignalingMediaEngine) SetMuted(muted bool) error {
	return m.apply(frame{Op: mediaMute, Value: boolPtr(muted)}, func(s *MediaState) { s.Muted = muted })
}

// SetVideoEnabled implements interfaces.MediaEngine.
func (m *SignalingMediaEngine) SetVideoEnabled(enabled bool) error {
	return m.apply(frame{Op: mediaVideo, Value: boolPtr(enabled)}, func(s *MediaState) { s.VideoEnabled = enabled })
}

// SetSpeakerOn implements interfaces.MediaEngine.
func (m *SignalingMediaEngine) SetSpeakerOn(on bool) error {
	return m.apply(frame{Op: mediaSpeaker, Value: boolPtr(on)}, func(s *MediaState) { s.SpeakerOn = on })
}

// SwitchCamera implements interfaces.MediaEngine. It needs a live connection.
func (m *SignalingMediaEngine) SwitchCamera() error {
	if err := m.transport.notify(frame{Type: frameMedia, Op: mediaSwitchCamera}); err != nil {
		return fmt.Errorf("media %s: %w", mediaSwitchCamera, err)
	}
	return nil
}

// SetScreenSharing implements interfaces.MediaEngine.
func (m *SignalingMediaEngine) SetScreenSharing(enabled bool) error {
	return m.apply(frame{Op: mediaScreenShare, Value: boolPtr(enabled)}, func(s *MediaState) { s.ScreenSharing = enabled })
}

// SetRecording implements interfaces.MediaEngine.
func (m *SignalingMediaEngine) SetRecording(enabled bool) error {
	return m.apply(frame{Op: mediaRecording, Value: boolPtr(enabled)}, func(s *MediaState) { s.Recording = enabled })
}

// SetQuality implements interfaces.MediaEngine.
func (m *SignalingMediaEngine) SetQuality(profile interfaces.MediaProfile) error {
	return m.apply(frame{Op: mediaQuality, Profile: newProfileFrame(profile)}, func(s *MediaState) { s.Profile = profile })
}

func (m *SignalingMediaEngine) apply(f frame, update func(*MediaState)) error {
	f.Type = frameMedia
	if err := m.transport.notify(f); err != nil && !errors.Is(err, interfaces.ErrNotConnected) {
		return fmt.Errorf("media %s: %w", f.Op, err)
	}

	m.mu.Lock()
	update(&m.state)
	m.mu.Unlock()
	return nil
}

// replay sends the full recorded state after a connection comes up.
func (m *SignalingMediaEngine) replay() {
	s := m.State()
	frames := []frame{
		{Type: frameMedia, Op: mediaMute, Value: boolPtr(s.Muted)},
		{Type: frameMedia, Op: mediaVideo, Value: boolPtr(s.VideoEnabled)},
		{Type: frameMedia, Op: mediaSpeaker, Value: boolPtr(s.SpeakerOn)},
		{Type: frameMedia, Op: mediaScreenShare, Value: boolPtr(s.ScreenSharing)},
		{Type: frameMedia, Op: mediaRecording, Value: boolPtr(s.Recording)},
	}
	if s.Profile.Name != "" {
		frames = append(frames, frame{Type: frameMedia, Op: mediaQuality, Profile: newProfileFrame(s.Profile)})
	}

	for _, f := range frames {
		if err := m.transport.notify(f); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SignalingMediaEngine.replay",
				"op":       f.Op,
				"error":    err.Error(),
			}).Warn("Failed to replay media state")
			return
		}
	}
}
