package real

import (
	"time"

	"github.com/opd-ai/callengine/interfaces"
)

// Frame types that are not transport events.
const (
	frameCall     = "call"
	frameRejoin   = "rejoin"
	frameHangup   = "hangup"
	frameHold     = "hold"
	frameMedia    = "media"
	frameAccepted = "accepted"
	frameRejected = "rejected"
	frameRTCP     = "rtcp"
	frameRTP      = "rtp"
)

// defaultClockRate is assumed for rtcp and rtp frames that omit one.
const defaultClockRate = 48000

// frame is the JSON envelope exchanged with the signaling server.
// Event frames use the interfaces.EventType name as Type.
type frame struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ReplyTo   string `json:"reply_to,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Topology string   `json:"topology,omitempty"`
	Mode     string   `json:"mode,omitempty"`
	Peers    []string `json:"peers,omitempty"`

	Reason string `json:"reason,omitempty"`

	UserID       string `json:"user_id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	AudioMuted   bool   `json:"audio_muted,omitempty"`
	VideoEnabled bool   `json:"video_enabled,omitempty"`
	Speaking     bool   `json:"speaking,omitempty"`

	Op      string        `json:"op,omitempty"`
	Value   *bool         `json:"value,omitempty"`
	Profile *profileFrame `json:"profile,omitempty"`

	Sample    *sampleFrame `json:"sample,omitempty"`
	Payload   []byte       `json:"payload,omitempty"`
	ClockRate uint32       `json:"clock_rate,omitempty"`
}

type profileFrame struct {
	Name             string `json:"name"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps"`
	VideoBitrateKbps int    `json:"video_bitrate_kbps"`
}

func newProfileFrame(p interfaces.MediaProfile) *profileFrame {
	return &profileFrame{
		Name:             p.Name,
		Width:            p.Width,
		Height:           p.Height,
		AudioBitrateKbps: p.AudioBitrateKbps,
		VideoBitrateKbps: p.VideoBitrateKbps,
	}
}

type sampleFrame struct {
	LatencyMs              float64 `json:"latency_ms"`
	PacketLossPct          float64 `json:"packet_loss_pct"`
	JitterMs               float64 `json:"jitter_ms"`
	BitrateKbps            float64 `json:"bitrate_kbps"`
	AvailableBandwidthKbps float64 `json:"available_bandwidth_kbps"`
	FPS                    float64 `json:"fps"`
	CPUUsagePct            float64 `json:"cpu_usage_pct"`
	MemoryUsageMB          float64 `json:"memory_usage_mb"`
	Unstable               bool    `json:"unstable"`
}

func (s *sampleFrame) raw(participantID string, at time.Time) interfaces.RawSample {
	return interfaces.RawSample{
		ParticipantID:          participantID,
		LatencyMs:              s.LatencyMs,
		PacketLossPct:          s.PacketLossPct,
		JitterMs:               s.JitterMs,
		BitrateKbps:            s.BitrateKbps,
		AvailableBandwidthKbps: s.AvailableBandwidthKbps,
		FPS:                    s.FPS,
		CPUUsagePct:            s.CPUUsagePct,
		MemoryUsageMB:          s.MemoryUsageMB,
		Unstable:               s.Unstable,
		CapturedAt:             at,
	}
}

func boolPtr(v bool) *bool { return &v }
