package session

import (
	"errors"

	"github.com/opd-ai/callengine/interfaces"
)

// Command errors.
var (
	// ErrCallAlreadyActive indicates a call start while a session exists.
	ErrCallAlreadyActive = errors.New("call already active")

	// ErrInvalidCommand indicates a command not allowed in the current status.
	ErrInvalidCommand = errors.New("invalid command for current call state")

	// ErrInvalidTarget indicates an empty, oversized or malformed call target.
	ErrInvalidTarget = errors.New("invalid call target")

	// ErrInvalidTransition indicates an edge outside the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrCallEnded indicates a command whose call ended before the transport
	// answered it.
	ErrCallEnded = errors.New("call ended before transport completed")
)

// Call failure errors carried on the failed StatusChange.
var (
	// ErrRemoteHangup indicates the remote side ended the call.
	ErrRemoteHangup = errors.New("remote hangup")

	// ErrReconnectExhausted indicates every reconnection attempt failed.
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")

	// ErrConnectFailed indicates the transport refused or timed out the call request.
	ErrConnectFailed = errors.New("connect failed")

	// ErrInternal indicates a recovered panic inside the controller.
	ErrInternal = errors.New("internal controller error")
)

// Failure classes shared with the transport and media adapters.
var (
	ErrSignaling         = interfaces.ErrSignaling
	ErrPermissionDenied  = interfaces.ErrPermissionDenied
	ErrDeviceUnavailable = interfaces.ErrDeviceUnavailable
	ErrConnectionLost    = interfaces.ErrConnectionLost
)

// Lifecycle errors.
var (
	// ErrControllerNotRunning indicates a command sent before Start or after Stop.
	ErrControllerNotRunning = errors.New("controller not running")

	// ErrControllerAlreadyRunning indicates a second Start.
	ErrControllerAlreadyRunning = errors.New("controller already running")

	// ErrNilTransport indicates a controller built without a transport.
	ErrNilTransport = errors.New("transport is required")

	// ErrNilMediaEngine indicates a controller built without a media engine.
	ErrNilMediaEngine = errors.New("media engine is required")
)

// FailureReason returns a short label for a failure error, suitable for
// metrics and logs.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrReconnectExhausted):
		return "reconnect_exhausted"
	case errors.Is(err, ErrRemoteHangup):
		return "remote_hangup"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrSignaling):
		return "signaling"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrConnectFailed):
		return "connect_failed"
	case errors.Is(err, ErrInternal):
		return "internal"
	default:
		return "unknown"
	}
}

// isFatal reports whether err ends the call without recovery.
func isFatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable)
}
