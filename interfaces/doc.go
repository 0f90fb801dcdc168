// Package interfaces defines the capability boundaries of the call session
// engine: the signaling/transport layer and the media engine.
//
// The session controller never talks to a network or a device directly. It
// drives a [Transport] (connect, reconnect, hold, tear down) and a
// [MediaEngine] (mute, camera, screen capture, recording, quality profile),
// and it consumes [Event] values that the transport delivers through the
// handler registered with [Transport.SetEventHandler].
//
// # Implementations
//
// Two families of implementations exist:
//   - real: a WebSocket signaling transport used in production
//   - testing: deterministic in-memory simulations used by tests and demos
//
// The factory package selects one of them from a [TransportConfig]:
//
//	cfg := interfaces.DefaultTransportConfig()
//	cfg.UseSimulation = true
//	transport, media, err := factory.NewAdapterFactory().CreateAdaptersWithConfig(cfg)
//
// # Events
//
// A transport reports connectivity changes, raw link-quality samples and
// roster changes as [Event] values:
//
//	transport.SetEventHandler(func(ev interfaces.Event) {
//	    if ev.Type == interfaces.EventConnectionLost {
//	        log.Printf("link lost: %v", ev.Err)
//	    }
//	})
//
// Handlers must not block; the session controller only enqueues the event.
//
// # Error Classification
//
// Adapters wrap the sentinel errors of this package so callers can classify
// failures with errors.Is:
//   - [ErrSignaling]: transient signaling failure
//   - [ErrPermissionDenied]: the user or OS refused access, fatal
//   - [ErrDeviceUnavailable]: the requested device cannot be opened
//   - [ErrConnectionLost]: the media/signaling link dropped
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package interfaces
