// Package testing provides in-memory transport and media adapters for
// deterministic tests and demos of the call engine.
//
// # Overview
//
// SimulatedTransport and SimulatedMediaEngine implement the interfaces
// package capabilities without any network or device access. Outcomes are
// scripted up front and remote behaviour is injected through helper methods.
// Every invocation is recorded so tests can assert on what the session
// controller asked for.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): events are delivered synchronously when a
//     helper such as Answer or LoseConnection is called.
//
//   - Real (real package): events arrive from a WebSocket signaling server.
//
// Both conform to interfaces.Transport and interfaces.MediaEngine and can be
// selected through the factory package.
//
// # Usage
//
//	transport := testing.NewSimulatedTransport()
//	media := testing.NewSimulatedMediaEngine()
//	transport.QueueReconnectResults(errors.New("still down"), nil)
//
//	ctrl, _ := session.NewController(transport, media, session.WithClock(clock.NewMock()))
//	_ = ctrl.Start()
//	_, _ = ctrl.StartCall(ctx, "bob", interfaces.ModeVoice)
//	transport.Answer()
//
// The package name shadows the standard library testing package; import it
// with an alias in test files.
package testing
