package testing

import (
	"sync"

	"github.com/opd-ai/callengine/interfaces"
)

// Media operation names recorded in the command log.
const (
	OpMute         = "mute"
	OpVideo        = "video"
	OpSpeaker      = "speaker"
	OpSwitchCamera = "switch_camera"
	OpScreenShare  = "screen_share"
	OpRecording    = "recording"
	OpQuality      = "quality"
)

// MediaCommand is one recorded media engine command.
type MediaCommand struct {
	Op      string
	Value   bool
	Profile interfaces.MediaProfile
	Err     error
}

// SimulatedMediaEngine implements interfaces.MediaEngine in memory.
// Failures can be scripted per operation.
type SimulatedMediaEngine struct {
	mu       sync.Mutex
	failures map[string]error
	commands []MediaCommand
	profile  interfaces.MediaProfile
}

// NewSimulatedMediaEngine creates a media engine whose commands succeed.
func NewSimulatedMediaEngine() *SimulatedMediaEngine {
	return &SimulatedMediaEngine{
		failures: make(map[string]error),
	}
}

// SetFailure makes op fail with err. A nil err clears the failure.
func (m *SimulatedMediaEngine) SetFailure(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *SimulatedMediaEngine) record(cmd MediaCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd.Err = m.failures[cmd.Op]
	m.commands = append(m.commands, cmd)
	if cmd.Err == nil && cmd.Op == OpQuality {
		m.profile = cmd.Profile
	}
	return cmd.Err
}

// SetMuted implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SetMuted(muted bool) error {
	return m.record(MediaCommand{Op: OpMute, Value: muted})
}

// SetVideoEnabled implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SetVideoEnabled(enabled bool) error {
	return m.record(MediaCommand{Op: OpVideo, Value: enabled})
}

// SetSpeakerOn implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SetSpeakerOn(on bool) error {
	return m.record(MediaCommand{Op: OpSpeaker, Value: on})
}

// SwitchCamera implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SwitchCamera() error {
	return m.record(MediaCommand{Op: OpSwitchCamera})
}

// SetScreenSharing implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SetScreenSharing(enabled bool) error {
	return m.record(MediaCommand{Op: OpScreenShare, Value: enabled})
}

// SetRecording implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SetRecording(enabled bool) error {
	return m.record(MediaCommand{Op: OpRecording, Value: enabled})
}

// SetQuality implements interfaces.MediaEngine.
func (m *SimulatedMediaEngine) SetQuality(profile interfaces.MediaProfile) error {
	return m.record(MediaCommand{Op: OpQuality, Profile: profile})
}

// Commands returns a copy of the command log.
func (m *SimulatedMediaEngine) Commands() []MediaCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MediaCommand, len(m.commands))
	copy(out, m.commands)
	return out
}

// CommandCount returns how many times op was invoked.
func (m *SimulatedMediaEngine) CommandCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Profile returns the last successfully applied quality profile.
func (m *SimulatedMediaEngine) Profile() interfaces.MediaProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}
