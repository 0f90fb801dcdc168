package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/sirupsen/logrus"
)

// Transport operation names recorded in the call log.
const (
	OpConnect    = "connect"
	OpReconnect  = "reconnect"
	OpDisconnect = "disconnect"
	OpHold       = "hold"
	OpResume     = "resume"
	OpClose      = "close"
)

// TransportCall is one recorded transport invocation.
type TransportCall struct {
	Op     string
	Target interfaces.Target
	Kind   interfaces.CallKind
	Err    error
}

// SimulatedTransport implements interfaces.Transport in memory.
//
// Results of Connect and Reconnect are scripted in advance. Remote behaviour
// is injected with the Emit helpers, which call the registered handler
// synchronously on the caller's goroutine.
type SimulatedTransport struct {
	mu               sync.Mutex
	handler          interfaces.EventHandler
	connectErr       error
	reconnectResults []error
	holdErr          error
	disconnectErr    error
	autoAnswer       bool
	connected        bool
	closed           bool
	target           interfaces.Target
	kind             interfaces.CallKind
	calls            []TransportCall
}

// NewSimulatedTransport creates a transport whose operations succeed.
func NewSimulatedTransport() *SimulatedTransport {
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedTransport",
	}).Info("Creating simulated transport for testing")

	return &SimulatedTransport{}
}

// SetConnectError makes subsequent Connect calls fail with err.
func (s *SimulatedTransport) SetConnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// SetHoldError makes subsequent SetHold calls fail with err.
func (s *SimulatedTransport) SetHoldError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdErr = err
}

// SetDisconnectError makes subsequent Disconnect calls fail with err.
func (s *SimulatedTransport) SetDisconnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectErr = err
}

// SetAutoAnswer makes a successful Connect emit EventConnected immediately.
func (s *SimulatedTransport) SetAutoAnswer(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoAnswer = enabled
}

// QueueReconnectResults scripts the outcome of the next Reconnect calls in
// order. Once the queue is empty Reconnect succeeds.
func (s *SimulatedTransport) QueueReconnectResults(results ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectResults = append(s.reconnectResults, results...)
}

// Connect implements interfaces.Transport.
func (s *SimulatedTransport) Connect(ctx context.Context, target interfaces.Target, kind interfaces.CallKind) error {
	s.mu.Lock()
	err := s.connectErr
	if s.closed {
		err = interfaces.ErrTransportClosed
	}
	if err == nil {
		err = ctx.Err()
	}
	s.target = interfaces.Target{SessionID: target.SessionID, Peers: append([]string(nil), target.Peers...)}
	s.kind = kind
	s.connected = err == nil
	s.calls = append(s.calls, TransportCall{Op: OpConnect, Target: s.target, Kind: kind, Err: err})
	answer := err == nil && s.autoAnswer
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "SimulatedTransport.Connect",
		"session_id": target.SessionID,
		"peers":      len(target.Peers),
		"kind":       kind.String(),
		"failed":     err != nil,
	}).Debug("Simulating connect")

	if answer {
		s.Answer()
	}
	return err
}

// Reconnect implements interfaces.Transport.
func (s *SimulatedTransport) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if len(s.reconnectResults) > 0 {
		err = s.reconnectResults[0]
		s.reconnectResults = s.reconnectResults[1:]
	}
	if err == nil && s.closed {
		err = interfaces.ErrTransportClosed
	}
	s.connected = err == nil
	s.calls = append(s.calls, TransportCall{Op: OpReconnect, Err: err})
	return err
}

// Disconnect implements interfaces.Transport.
func (s *SimulatedTransport) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.calls = append(s.calls, TransportCall{Op: OpDisconnect, Err: s.disconnectErr})
	return s.disconnectErr
}

// SetHold implements interfaces.Transport.
func (s *SimulatedTransport) SetHold(ctx context.Context, held bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := OpResume
	if held {
		op = OpHold
	}
	err := s.holdErr
	if err == nil && !s.connected {
		err = interfaces.ErrNotConnected
	}
	s.calls = append(s.calls, TransportCall{Op: op, Err: err})
	return err
}

// SetEventHandler implements interfaces.Transport.
func (s *SimulatedTransport) SetEventHandler(handler interfaces.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Close implements interfaces.Transport.
func (s *SimulatedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	s.calls = append(s.calls, TransportCall{Op: OpClose})
	return nil
}

// IsSimulation implements interfaces.Transport.
func (s *SimulatedTransport) IsSimulation() bool {
	return true
}

// Emit delivers ev to the registered handler. It reports whether a handler
// was registered.
func (s *SimulatedTransport) Emit(ev interfaces.Event) bool {
	s.mu.Lock()
	handler := s.handler
	switch ev.Type {
	case interfaces.EventConnected:
		s.connected = true
	case interfaces.EventConnectionLost, interfaces.EventRemoteHangup:
		s.connected = false
	}
	s.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(ev)
	return true
}

// Ring reports that the remote device is alerting.
func (s *SimulatedTransport) Ring() { s.Emit(interfaces.Event{Type: interfaces.EventRinging}) }

// Answer reports that the remote side accepted and media is flowing.
func (s *SimulatedTransport) Answer() { s.Emit(interfaces.Event{Type: interfaces.EventConnected}) }

// Hangup reports that the remote side ended the call.
func (s *SimulatedTransport) Hangup() { s.Emit(interfaces.Event{Type: interfaces.EventRemoteHangup}) }

// LoseConnection reports a dropped link.
func (s *SimulatedTransport) LoseConnection() {
	s.Emit(interfaces.Event{Type: interfaces.EventConnectionLost, Err: errors.New("simulated link drop")})
}

// SignalingFailure reports a signaling error with reason.
func (s *SimulatedTransport) SignalingFailure(reason string) {
	s.Emit(interfaces.Event{Type: interfaces.EventSignalingFailure, Err: errors.New(reason)})
}

// Sample delivers a raw stats sample.
func (s *SimulatedTransport) Sample(sample interfaces.RawSample) {
	s.Emit(interfaces.Event{Type: interfaces.EventStatsSample, Sample: sample})
}

// Join reports a participant joining a group call.
func (s *SimulatedTransport) Join(p interfaces.ParticipantInfo) {
	s.Emit(interfaces.Event{Type: interfaces.EventParticipantJoined, Participant: p, UserID: p.UserID})
}

// Update reports changed participant media state.
func (s *SimulatedTransport) Update(p interfaces.ParticipantInfo) {
	s.Emit(interfaces.Event{Type: interfaces.EventParticipantUpdated, Participant: p, UserID: p.UserID})
}

// Leave reports a participant leaving.
func (s *SimulatedTransport) Leave(userID string) {
	s.Emit(interfaces.Event{Type: interfaces.EventParticipantLeft, UserID: userID})
}

// Speaking reports voice activity of a participant.
func (s *SimulatedTransport) Speaking(userID string, speaking bool) {
	s.Emit(interfaces.Event{Type: interfaces.EventSpeaking, UserID: userID, Speaking: speaking})
}

// RemoteHold reports that the remote side held the call.
func (s *SimulatedTransport) RemoteHold() { s.Emit(interfaces.Event{Type: interfaces.EventRemoteHold}) }

// RemoteResume reports that the remote side resumed the call.
func (s *SimulatedTransport) RemoteResume() {
	s.Emit(interfaces.Event{Type: interfaces.EventRemoteResume})
}

// RevokePermission reports that a device permission was withdrawn.
func (s *SimulatedTransport) RevokePermission() {
	s.Emit(interfaces.Event{Type: interfaces.EventPermissionDenied, Err: errors.New("camera permission revoked")})
}

// LoseDevice reports that a capture device disappeared.
func (s *SimulatedTransport) LoseDevice() {
	s.Emit(interfaces.Event{Type: interfaces.EventDeviceUnavailable, Err: errors.New("microphone unplugged")})
}

// Calls returns a copy of the call log.
func (s *SimulatedTransport) Calls() []TransportCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransportCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times op was invoked.
func (s *SimulatedTransport) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ReconnectCalls returns how many reconnection attempts were made.
func (s *SimulatedTransport) ReconnectCalls() int {
	return s.CallCount(OpReconnect)
}

// LastTarget returns the target of the most recent Connect.
func (s *SimulatedTransport) LastTarget() interfaces.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// LastKind returns the call kind of the most recent Connect.
func (s *SimulatedTransport) LastKind() interfaces.CallKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// IsConnected reports whether the simulated link is up.
func (s *SimulatedTransport) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
