package interfaces

import (
	"fmt"
	"net/url"
	"time"
)

// TransportConfig holds configuration for transport and media adapters.
type TransportConfig struct {
	// UseSimulation selects the in-memory adapters instead of the WebSocket ones.
	UseSimulation bool

	// SignalingURL is the ws:// or wss:// endpoint of the signaling server.
	SignalingURL string

	// DialTimeout bounds the WebSocket handshake including TCP connect.
	DialTimeout time.Duration

	// HandshakeTimeout bounds waiting for the server's accept of a call request.
	HandshakeTimeout time.Duration

	// PingInterval is the keepalive period. A missing pong within two
	// intervals is treated as connection loss.
	PingInterval time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
}

// DefaultTransportConfig returns the production defaults.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		UseSimulation:    false,
		SignalingURL:     "ws://localhost:8080/signal",
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Validate checks the configuration. The signaling URL is only required for
// real adapters.
func (c *TransportConfig) Validate() error {
	if c.DialTimeout <= 0 || c.HandshakeTimeout <= 0 || c.WriteTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PingInterval <= 0 {
		return ErrInvalidPingInterval
	}
	if c.UseSimulation {
		return nil
	}
	if c.SignalingURL == "" {
		return ErrInvalidSignalingURL
	}
	u, err := url.Parse(c.SignalingURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignalingURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSignalingURL, u.Scheme)
	}
	return nil
}
