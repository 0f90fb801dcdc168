package quality

import (
	"testing"
	"time"

	"github.com/opd-ai/callengine/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(c stats.NetworkCondition, i int) stats.CallStats {
	return stats.CallStats{Condition: c, SampledAt: time.Unix(1000+int64(i), 0)}
}

func TestLevelProfiles(t *testing.T) {
	tests := []struct {
		level  Level
		width  int
		height int
		audio  int
		video  int
	}{
		{LevelLow, 320, 240, 16, 150},
		{LevelMedium, 640, 360, 32, 500},
		{LevelHigh, 1280, 720, 48, 1500},
		{LevelHD, 1920, 1080, 64, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			p := tt.level.Profile()
			assert.Equal(t, tt.level.String(), p.Name)
			assert.Equal(t, tt.width, p.Width)
			assert.Equal(t, tt.height, p.Height)
			assert.Equal(t, tt.audio, p.AudioBitrateKbps)
			assert.Equal(t, tt.video, p.VideoBitrateKbps)
		})
	}
}

func TestForCondition(t *testing.T) {
	assert.Equal(t, LevelHD, ForCondition(stats.ConditionExcellent))
	assert.Equal(t, LevelHigh, ForCondition(stats.ConditionGood))
	assert.Equal(t, LevelMedium, ForCondition(stats.ConditionFair))
	assert.Equal(t, LevelLow, ForCondition(stats.ConditionPoor))
	assert.Equal(t, LevelLow, ForCondition(stats.ConditionTerrible))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("HD")
	require.NoError(t, err)
	assert.Equal(t, LevelHD, l)

	_, err = ParseLevel("ultra")
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, (&Config{Hysteresis: 0}).Validate(), ErrInvalidHysteresis)
	assert.ErrorIs(t, (&Config{Hysteresis: 1, InitialLevel: Level(9)}).Validate(), ErrInvalidLevel)
}

func TestControllerUpgradeThenDowngrade(t *testing.T) {
	c, err := NewController(nil)
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, c.Committed())

	i := 0
	for n := 1; n <= 3; n++ {
		change, changed := c.Observe(sample(stats.ConditionGood, i))
		i++
		if n < 3 {
			assert.False(t, changed, "good sample %d", n)
			continue
		}
		require.True(t, changed)
		assert.Equal(t, LevelMedium, change.From)
		assert.Equal(t, LevelHigh, change.To)
	}
	assert.Equal(t, LevelHigh, c.Committed())

	for n := 1; n <= 5; n++ {
		change, changed := c.Observe(sample(stats.ConditionPoor, i))
		i++
		switch {
		case n < 3:
			assert.False(t, changed, "poor sample %d", n)
			assert.Equal(t, LevelHigh, c.Committed())
		case n == 3:
			require.True(t, changed)
			assert.Equal(t, LevelHigh, change.From)
			assert.Equal(t, LevelLow, change.To)
			assert.Equal(t, stats.ConditionPoor, change.Condition)
			assert.Equal(t, time.Unix(1000+int64(i-1), 0), change.At)
		default:
			assert.False(t, changed, "poor sample %d after commit", n)
		}
	}
	assert.Equal(t, LevelLow, c.Committed())
}

func TestControllerStreakResets(t *testing.T) {
	c, err := NewController(nil)
	require.NoError(t, err)

	conditions := []stats.NetworkCondition{
		stats.ConditionGood, stats.ConditionGood, stats.ConditionFair,
		stats.ConditionGood, stats.ConditionGood, stats.ConditionPoor,
		stats.ConditionGood, stats.ConditionGood,
	}
	for i, cond := range conditions {
		_, changed := c.Observe(sample(cond, i))
		assert.False(t, changed, "sample %d", i)
	}
	assert.Equal(t, LevelMedium, c.Committed())

	_, changed := c.Observe(sample(stats.ConditionGood, 99))
	assert.True(t, changed)
}

func TestControllerPoorAndTerribleShareTarget(t *testing.T) {
	c, err := NewController(nil)
	require.NoError(t, err)

	c.Observe(sample(stats.ConditionPoor, 0))
	c.Observe(sample(stats.ConditionTerrible, 1))
	change, changed := c.Observe(sample(stats.ConditionPoor, 2))
	require.True(t, changed)
	assert.Equal(t, LevelLow, change.To)
}

func TestControllerReset(t *testing.T) {
	c, err := NewController(&Config{Hysteresis: 1, InitialLevel: LevelLow})
	require.NoError(t, err)

	_, changed := c.Observe(sample(stats.ConditionExcellent, 0))
	require.True(t, changed)
	assert.Equal(t, LevelHD, c.Committed())

	c.Reset()
	assert.Equal(t, LevelLow, c.Committed())
}

func TestNewControllerInvalidConfig(t *testing.T) {
	_, err := NewController(&Config{Hysteresis: 0, InitialLevel: LevelMedium})
	assert.ErrorIs(t, err, ErrInvalidHysteresis)
}
