package interfaces

import "errors"

// Failure classes reported by transport and media adapters.
var (
	// ErrSignaling indicates a transient signaling failure.
	ErrSignaling = errors.New("signaling failure")

	// ErrPermissionDenied indicates the user or platform refused access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDeviceUnavailable indicates a capture or playback device cannot be used.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrConnectionLost indicates the link to the remote side dropped.
	ErrConnectionLost = errors.New("connection lost")
)

// Adapter state errors.
var (
	// ErrNotConnected indicates an operation needs an established link.
	ErrNotConnected = errors.New("transport not connected")

	// ErrTransportClosed indicates the transport has been closed.
	ErrTransportClosed = errors.New("transport closed")
)

// Configuration errors.
var (
	// ErrInvalidTimeout indicates a non-positive timeout.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidSignalingURL indicates a missing signaling URL for a real transport.
	ErrInvalidSignalingURL = errors.New("signaling URL is required")

	// ErrInvalidPingInterval indicates a non-positive keepalive interval.
	ErrInvalidPingInterval = errors.New("ping interval must be positive")
)
