// Package factory creates the transport and media adapters consumed by the
// session controller.
//
// The factory hides whether a caller gets the in-memory simulation adapters
// or the WebSocket adapters from package real, so the same wiring code runs
// in tests, demos and production.
//
// # Configuration
//
// NewAdapterFactory starts from interfaces.DefaultTransportConfig and applies
// these environment variables:
//   - CALL_USE_SIMULATION: "true" or "false"
//   - CALL_SIGNALING_URL: ws:// or wss:// signaling endpoint
//   - CALL_DIAL_TIMEOUT_MS: 100..600000
//   - CALL_HANDSHAKE_TIMEOUT_MS: 100..600000
//   - CALL_PING_INTERVAL_MS: 1000..300000
//
// Values that fail to parse or fall outside their bounds are logged and the
// default is kept.
//
// # Usage
//
//	f := factory.NewAdapterFactory()
//	transport, media, err := f.CreateAdapters()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctrl, err := session.NewController(transport, media)
package factory
