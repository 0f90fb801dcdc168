package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/opd-ai/callengine/quality"
	"github.com/opd-ai/callengine/reconnect"
	"github.com/opd-ai/callengine/stats"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid session config")

// Config holds controller timing and policy settings.
type Config struct {
	// ConnectTimeout bounds Transport.Connect.
	ConnectTimeout time.Duration
	// AttemptTimeout bounds a single Transport.Reconnect or SetHold.
	AttemptTimeout time.Duration
	// DisconnectTimeout bounds Transport.Disconnect.
	DisconnectTimeout time.Duration
	// StatsInterval is the sampling tick of the stats pipeline.
	StatsInterval time.Duration
	// DurationInterval is the period of duration ticks while connected.
	DurationInterval time.Duration
	// SmoothingAlpha is the EWMA factor for latency and jitter.
	SmoothingAlpha float64

	Reconnect  reconnect.Policy
	Quality    quality.Config
	Thresholds stats.Thresholds
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:    10 * time.Second,
		AttemptTimeout:    10 * time.Second,
		DisconnectTimeout: 5 * time.Second,
		StatsInterval:     time.Second,
		DurationInterval:  time.Second,
		SmoothingAlpha:    stats.DefaultAlpha,
		Reconnect:         *reconnect.DefaultPolicy(),
		Quality:           *quality.DefaultConfig(),
		Thresholds:        *stats.DefaultThresholds(),
	}
}

// Validate checks every field, including the nested policies.
func (c *Config) Validate() error {
	timeouts := map[string]time.Duration{
		"connect timeout":    c.ConnectTimeout,
		"attempt timeout":    c.AttemptTimeout,
		"disconnect timeout": c.DisconnectTimeout,
		"stats interval":     c.StatsInterval,
		"duration interval":  c.DurationInterval,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, stats.ErrInvalidAlpha)
	}
	if err := c.Reconnect.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Option customizes a Controller.
type Option func(*Controller)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Controller) {
		if cfg != nil {
			c.config = *cfg
		}
	}
}

// WithClock injects the clock used for timers and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newID = gen
		}
	}
}

func defaultIDGenerator() string {
	return uuid.NewString()
}
