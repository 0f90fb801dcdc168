// Package session drives a single voice or video call through its lifecycle.
//
// The Controller owns one CallSession at a time. Commands from the
// presentation layer, events from the transport and timer expiries are all
// posted into one FIFO mailbox and applied by a single goroutine, so the
// state machine never observes concurrent mutation. Transport calls that can
// block (Connect, Reconnect, SetHold) run on their own goroutines and report
// back through the mailbox. State is published to subscribers through
// non-blocking streams.
//
// Status transitions follow a fixed table (see CanTransition). Every fatal
// path ends in failed followed by idle, and EndCall is the single point that
// cancels timers and any in-flight transport call.
package session

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a call.
type Status int

const (
	// StatusIdle means no call exists
	StatusIdle Status = iota
	// StatusInitializing means a session was created and setup is in progress
	StatusInitializing
	// StatusConnecting means the transport accepted the call request
	StatusConnecting
	// StatusRinging means the remote device is alerting
	StatusRinging
	// StatusConnected means media is flowing
	StatusConnected
	// StatusReconnecting means the link dropped and recovery is in progress
	StatusReconnecting
	// StatusOnHold means the call is paused by either side
	StatusOnHold
	// StatusDisconnecting means the call is being torn down
	StatusDisconnecting
	// StatusFailed means the call hit an unrecoverable error
	StatusFailed
)

var statusNames = [...]string{
	StatusIdle:          "idle",
	StatusInitializing:  "initializing",
	StatusConnecting:    "connecting",
	StatusRinging:       "ringing",
	StatusConnected:     "connected",
	StatusReconnecting:  "reconnecting",
	StatusOnHold:        "on_hold",
	StatusDisconnecting: "disconnecting",
	StatusFailed:        "failed",
}

// String returns the snake_case status name.
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Active reports whether a call exists in this status.
func (s Status) Active() bool {
	return s != StatusIdle
}

// Paused reports whether call duration is frozen in this status.
func (s Status) Paused() bool {
	return s == StatusReconnecting || s == StatusOnHold
}

// acceptsMedia reports whether local media commands are allowed.
func (s Status) acceptsMedia() bool {
	switch s {
	case StatusConnecting, StatusRinging, StatusConnected, StatusOnHold, StatusReconnecting:
		return true
	default:
		return false
	}
}

// inSetup reports whether the call has not yet been connected.
func (s Status) inSetup() bool {
	return s == StatusInitializing || s == StatusConnecting || s == StatusRinging
}

var transitions = map[Status][]Status{
	StatusIdle:          {StatusInitializing},
	StatusInitializing:  {StatusConnecting, StatusConnected, StatusFailed, StatusDisconnecting},
	StatusConnecting:    {StatusRinging, StatusConnected, StatusFailed, StatusDisconnecting},
	StatusRinging:       {StatusConnected, StatusFailed, StatusDisconnecting},
	StatusConnected:     {StatusReconnecting, StatusOnHold, StatusFailed, StatusDisconnecting},
	StatusOnHold:        {StatusConnected, StatusReconnecting, StatusFailed, StatusDisconnecting},
	StatusReconnecting:  {StatusConnected, StatusFailed, StatusDisconnecting},
	StatusDisconnecting: {StatusIdle},
	StatusFailed:        {StatusIdle},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusChange is published on every transition.
type StatusChange struct {
	SessionID string
	From      Status
	To        Status
	At        time.Time
	// Err is set only on transitions into StatusFailed.
	Err error
	// Duration is the call duration at the time of the transition.
	Duration time.Duration
}
