package factory

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/real"
	"github.com/opd-ai/callengine/testing"
	"github.com/sirupsen/logrus"
)

// Environment variables read by NewAdapterFactory.
const (
	EnvUseSimulation  = "CALL_USE_SIMULATION"
	EnvSignalingURL   = "CALL_SIGNALING_URL"
	EnvDialTimeout    = "CALL_DIAL_TIMEOUT_MS"
	EnvPingInterval   = "CALL_PING_INTERVAL_MS"
	EnvHandshakeLimit = "CALL_HANDSHAKE_TIMEOUT_MS"
)

// Validation bounds for millisecond settings.
const (
	// MinDialTimeout is the minimum allowed dial timeout in milliseconds.
	MinDialTimeout = 100
	// MaxDialTimeout is the maximum allowed dial timeout in milliseconds (10 minutes).
	MaxDialTimeout = 600000
	// MinPingInterval is the minimum allowed keepalive interval in milliseconds.
	MinPingInterval = 1000
	// MaxPingInterval is the maximum allowed keepalive interval in milliseconds (5 minutes).
	MaxPingInterval = 300000
)

// AdapterFactory creates transport and media adapters based on configuration.
// It is safe for concurrent use.
type AdapterFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.TransportConfig
}

// NewAdapterFactory creates a factory from the defaults with CALL_*
// environment overrides applied. Invalid values are logged and ignored.
func NewAdapterFactory() *AdapterFactory {
	config := interfaces.DefaultTransportConfig()
	applyEnvironmentOverrides(config)

	logrus.WithFields(logrus.Fields{
		"function":       "NewAdapterFactory",
		"use_simulation": config.UseSimulation,
		"signaling_url":  config.SignalingURL,
		"dial_timeout":   config.DialTimeout,
		"ping_interval":  config.PingInterval,
	}).Info("Created adapter factory with configuration")

	return &AdapterFactory{defaultConfig: config}
}

func applyEnvironmentOverrides(config *interfaces.TransportConfig) {
	parseSimulationSetting(config)
	parseSignalingURLSetting(config)
	parseMillisSetting(EnvDialTimeout, MinDialTimeout, MaxDialTimeout, &config.DialTimeout)
	parseMillisSetting(EnvHandshakeLimit, MinDialTimeout, MaxDialTimeout, &config.HandshakeTimeout)
	parseMillisSetting(EnvPingInterval, MinPingInterval, MaxPingInterval, &config.PingInterval)
}

func parseSimulationSetting(config *interfaces.TransportConfig) {
	value := os.Getenv(EnvUseSimulation)
	if value == "" {
		return
	}
	useSim, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSimulationSetting",
			"env_var":     EnvUseSimulation,
			"value":       value,
			"error":       err.Error(),
			"using_value": config.UseSimulation,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	config.UseSimulation = useSim
}

func parseSignalingURLSetting(config *interfaces.TransportConfig) {
	value := strings.TrimSpace(os.Getenv(EnvSignalingURL))
	if value == "" {
		return
	}
	candidate := *config
	candidate.SignalingURL = value
	candidate.UseSimulation = false
	if err := candidate.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSignalingURLSetting",
			"env_var":     EnvSignalingURL,
			"value":       value,
			"error":       err.Error(),
			"using_value": config.SignalingURL,
		}).Warn("Invalid signaling URL in environment, using default")
		return
	}
	config.SignalingURL = value
}

// parseMillisSetting reads an integer millisecond value from env within
// [lo, hi] into target.
func parseMillisSetting(env string, lo, hi int, target *time.Duration) {
	value := os.Getenv(env)
	if value == "" {
		return
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseMillisSetting",
			"env_var":     env,
			"value":       value,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if ms < lo || ms > hi {
		logrus.WithFields(logrus.Fields{
			"function":    "parseMillisSetting",
			"env_var":     env,
			"value":       ms,
			"min":         lo,
			"max":         hi,
			"using_value": *target,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = time.Duration(ms) * time.Millisecond
}

// CreateAdapters creates adapters from the factory's current configuration.
func (f *AdapterFactory) CreateAdapters() (interfaces.Transport, interfaces.MediaEngine, error) {
	return f.CreateAdaptersWithConfig(nil)
}

// CreateAdaptersWithConfig creates adapters from config, or from the
// factory's configuration when config is nil.
func (f *AdapterFactory) CreateAdaptersWithConfig(config *interfaces.TransportConfig) (interfaces.Transport, interfaces.MediaEngine, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid transport config: %w", err)
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreateAdaptersWithConfig",
			"type":     "simulation",
		}).Info("Creating simulated call adapters")

		transport, media := f.CreateSimulation()
		return transport, media, nil
	}

	logrus.WithFields(logrus.Fields{
		"function":      "CreateAdaptersWithConfig",
		"type":          "real",
		"signaling_url": config.SignalingURL,
	}).Info("Creating WebSocket call adapters")

	transport, err := real.NewWebSocketTransport(config)
	if err != nil {
		return nil, nil, err
	}
	return transport, real.NewSignalingMediaEngine(transport), nil
}

// CreateSimulation returns a fresh pair of in-memory adapters.
func (f *AdapterFactory) CreateSimulation() (*testing.SimulatedTransport, *testing.SimulatedMediaEngine) {
	return testing.NewSimulatedTransport(), testing.NewSimulatedMediaEngine()
}

// SwitchToSimulation switches the configuration to the in-memory adapters.
func (f *AdapterFactory) SwitchToSimulation() {
	f.setSimulation(true)
}

// SwitchToReal switches the configuration to the WebSocket adapters.
func (f *AdapterFactory) SwitchToReal() {
	f.setSimulation(false)
}

func (f *AdapterFactory) setSimulation(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "AdapterFactory.setSimulation",
		"previous": f.defaultConfig.UseSimulation,
		"current":  enabled,
	}).Info("Switching factory mode")

	f.defaultConfig.UseSimulation = enabled
}

// GetCurrentConfig returns a copy of the current default configuration.
func (f *AdapterFactory) GetCurrentConfig() *interfaces.TransportConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cfg := *f.defaultConfig
	return &cfg
}

// IsUsingSimulation returns true if the factory is configured for simulation.
func (f *AdapterFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}

// UpdateConfig replaces the factory's default configuration with a copy of config.
func (f *AdapterFactory) UpdateConfig(config *interfaces.TransportConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid transport config: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "AdapterFactory.UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
		"signaling_url":  config.SignalingURL,
	}).Info("Updating factory configuration")

	cfg := *config
	f.defaultConfig = &cfg
	return nil
}
