// Package quality selects the media quality level of a call from network
// conditions.
//
// The Controller maps each classified stats sample to a target level and
// commits a change only after the same target has been seen for a number of
// consecutive samples.
package quality

import (
	"fmt"
	"strings"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/stats"
)

// Level is an ordered media quality operating point.
type Level int

const (
	// LevelLow is 320x240 video at the lowest bitrates
	LevelLow Level = iota
	// LevelMedium is 640x360 video
	LevelMedium
	// LevelHigh is 1280x720 video
	LevelHigh
	// LevelHD is 1920x1080 video
	LevelHD
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelHD:
		return "hd"
	default:
		return fmt.Sprintf("Unknown(%d)", int(l))
	}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= LevelLow && l <= LevelHD
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow, nil
	case "medium":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	case "hd":
		return LevelHD, nil
	default:
		return LevelMedium, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

var profiles = map[Level]interfaces.MediaProfile{
	LevelLow:    {Name: "low", Width: 320, Height: 240, AudioBitrateKbps: 16, VideoBitrateKbps: 150},
	LevelMedium: {Name: "medium", Width: 640, Height: 360, AudioBitrateKbps: 32, VideoBitrateKbps: 500},
	LevelHigh:   {Name: "high", Width: 1280, Height: 720, AudioBitrateKbps: 48, VideoBitrateKbps: 1500},
	LevelHD:     {Name: "hd", Width: 1920, Height: 1080, AudioBitrateKbps: 64, VideoBitrateKbps: 3000},
}

// Profile returns the encoder operating point of the level.
func (l Level) Profile() interfaces.MediaProfile {
	if p, ok := profiles[l]; ok {
		return p
	}
	return profiles[LevelMedium]
}

// ForCondition returns the target level for a network condition.
func ForCondition(c stats.NetworkCondition) Level {
	switch c {
	case stats.ConditionExcellent:
		return LevelHD
	case stats.ConditionGood:
		return LevelHigh
	case stats.ConditionFair:
		return LevelMedium
	default:
		return LevelLow
	}
}
