// Package real provides the production adapters of the call engine: a
// WebSocket signaling transport and a media engine that drives a remote
// media agent over the same connection.
//
// # Wire Format
//
// Every message is one JSON text frame:
//
//	{"id": "<uuid>", "type": "<frame type>", ...}
//
// Outbound frames are call, rejoin, hold, hangup and media. The server
// answers call, rejoin and hold with accepted or rejected, carrying the
// request id in reply_to. A rejection reason of permission_denied or
// device_unavailable maps onto the matching interfaces error.
//
// Inbound frames named after an interfaces.EventType (ringing, connected,
// remote_hangup, participant_joined, stats_sample, ...) are delivered to the
// registered handler as events. Two measurement frames are converted into
// stats samples locally:
//
//   - rtcp: payload holds a compound RTCP packet; each reception report becomes
//     a sample with latency from the round trip and loss from the fraction lost.
//   - rtp: payload holds an RTP header; it feeds a per-sender RFC 3550 jitter
//     estimator.
//
// Frames larger than limits.MaxSignalingMessage close the connection.
//
// # Keepalive
//
// The transport pings every PingInterval. A connection that produces no pong
// for two intervals is dropped and reported as EventConnectionLost, as is any
// other read error on the current connection.
//
// # Usage
//
//	cfg := interfaces.DefaultTransportConfig()
//	cfg.SignalingURL = "wss://signal.example.com/call"
//
//	transport, err := real.NewWebSocketTransport(cfg)
//	if err != nil {
//	    return err
//	}
//	media := real.NewSignalingMediaEngine(transport)
//	ctrl, err := session.NewController(transport, media)
//
// All methods are safe for concurrent use. Event handlers are invoked from
// the connection's read goroutine and must not block.
package real
