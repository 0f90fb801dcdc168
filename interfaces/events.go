package interfaces

import (
	"fmt"
	"time"
)

// EventType identifies a transport event.
type EventType int

const (
	// EventRinging reports that the remote device is alerting
	EventRinging EventType = iota + 1
	// EventConnected reports that media is flowing
	EventConnected
	// EventRemoteHangup reports that the remote side ended the call
	EventRemoteHangup
	// EventConnectionLost reports that the link dropped
	EventConnectionLost
	// EventStatsSample carries a raw link-quality sample
	EventStatsSample
	// EventSignalingFailure reports a signaling error with a reason
	EventSignalingFailure
	// EventParticipantJoined reports a new group participant
	EventParticipantJoined
	// EventParticipantUpdated reports changed participant media state
	EventParticipantUpdated
	// EventParticipantLeft reports that a participant left
	EventParticipantLeft
	// EventSpeaking reports voice activity of a participant
	EventSpeaking
	// EventRemoteHold reports that the remote side put the call on hold
	EventRemoteHold
	// EventRemoteResume reports that the remote side resumed the call
	EventRemoteResume
	// EventPermissionDenied reports that a device permission was revoked
	EventPermissionDenied
	// EventDeviceUnavailable reports that a device required by the call vanished
	EventDeviceUnavailable
)

var eventTypeNames = map[EventType]string{
	EventRinging:            "ringing",
	EventConnected:          "connected",
	EventRemoteHangup:       "remote_hangup",
	EventConnectionLost:     "connection_lost",
	EventStatsSample:        "stats_sample",
	EventSignalingFailure:   "signaling_failure",
	EventParticipantJoined:  "participant_joined",
	EventParticipantUpdated: "participant_updated",
	EventParticipantLeft:    "participant_left",
	EventSpeaking:           "speaking",
	EventRemoteHold:         "remote_hold",
	EventRemoteResume:       "remote_resume",
	EventPermissionDenied:   "permission_denied",
	EventDeviceUnavailable:  "device_unavailable",
}

// String returns the snake_case event name.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// ParseEventType converts a snake_case event name back into an EventType.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// RawSample is one unsmoothed link-quality measurement.
//
// ParticipantID is empty for the local link aggregate. AvailableBandwidthKbps
// is the estimated link capacity; zero means unknown.
type RawSample struct {
	ParticipantID          string
	LatencyMs              float64
	PacketLossPct          float64
	JitterMs               float64
	BitrateKbps            float64
	AvailableBandwidthKbps float64
	FPS                    float64
	CPUUsagePct            float64
	MemoryUsageMB          float64
	Unstable               bool
	CapturedAt             time.Time
}

// ParticipantInfo describes a remote participant as reported by signaling.
type ParticipantInfo struct {
	UserID       string
	DisplayName  string
	AudioMuted   bool
	VideoEnabled bool
}

// Event is a notification from the transport layer.
// Only the fields relevant to Type are populated.
type Event struct {
	Type        EventType
	Err         error
	Sample      RawSample
	Participant ParticipantInfo
	UserID      string
	Speaking    bool
}

// EventHandler receives transport events. It must not block.
type EventHandler func(Event)
