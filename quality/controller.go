package quality

import (
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/callengine/stats"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidLevel indicates an unknown quality level
	ErrInvalidLevel = errors.New("invalid quality level")

	// ErrInvalidHysteresis indicates a hysteresis window below one sample
	ErrInvalidHysteresis = errors.New("hysteresis must be at least 1")
)

// Config controls the quality controller.
type Config struct {
	// Hysteresis is the number of consecutive samples with the same target
	// level required to commit a change.
	Hysteresis int

	// InitialLevel is the committed level at call start and after Reset.
	InitialLevel Level
}

// DefaultConfig returns a three-sample window starting at medium.
func DefaultConfig() *Config {
	return &Config{
		Hysteresis:   3,
		InitialLevel: LevelMedium,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Hysteresis < 1 {
		return ErrInvalidHysteresis
	}
	if !c.InitialLevel.Valid() {
		return ErrInvalidLevel
	}
	return nil
}

// Change describes a committed level change.
type Change struct {
	From      Level
	To        Level
	Condition stats.NetworkCondition
	At        time.Time
}

// Controller applies K-sample hysteresis to quality level changes.
// It is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	config    Config
	committed Level
	candidate Level
	streak    int
}

// NewController creates a controller. A nil config selects DefaultConfig.
func NewController(config *Config) (*Controller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Controller{
		config:    *config,
		committed: config.InitialLevel,
		candidate: config.InitialLevel,
	}, nil
}

// Observe feeds one classified sample. It returns the committed change and
// true when this sample completes a streak.
func (c *Controller) Observe(sample stats.CallStats) (Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := ForCondition(sample.Condition)
	if target == c.committed {
		c.candidate = c.committed
		c.streak = 0
		return Change{}, false
	}

	if target == c.candidate {
		c.streak++
	} else {
		c.candidate = target
		c.streak = 1
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Controller.Observe",
		"committed": c.committed.String(),
		"candidate": c.candidate.String(),
		"streak":    c.streak,
		"condition": sample.Condition.String(),
	}).Debug("Quality target differs from committed level")

	if c.streak < c.config.Hysteresis {
		return Change{}, false
	}

	change := Change{
		From:      c.committed,
		To:        target,
		Condition: sample.Condition,
		At:        sample.SampledAt,
	}
	c.committed = target
	c.streak = 0

	logrus.WithFields(logrus.Fields{
		"function": "Controller.Observe",
		"from":     change.From.String(),
		"to":       change.To.String(),
	}).Info("Quality level changed")

	return change, true
}

// Committed returns the committed level.
func (c *Controller) Committed() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Reset returns to the initial level and clears the streak.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = c.config.InitialLevel
	c.candidate = c.config.InitialLevel
	c.streak = 0
}
