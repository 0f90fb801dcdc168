package real

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/limits"
	"github.com/opd-ai/callengine/stats"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// link is one signaling connection together with its read and ping loops.
type link struct {
	conn    *websocket.Conn
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func (l *link) write(f frame, deadline time.Time) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	if err := limits.ValidateSignalingMessage(data); err != nil {
		return fmt.Errorf("%s frame: %w", f.Type, err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(deadline)
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

// callTarget is the call a transport is currently serving.
type callTarget struct {
	target interfaces.Target
	kind   interfaces.CallKind
}

// peerLink tracks link metrics measured for one remote participant.
type peerLink struct {
	jitter    *stats.JitterEstimator
	latencyMs float64
}

// WebSocketTransport implements interfaces.Transport over a JSON signaling
// protocol carried on a WebSocket connection.
//
// Requests that need an answer (call, rejoin, hold) are matched to the
// server's accepted or rejected frame by message id. Every other inbound
// frame is converted into an interfaces.Event. A read error on the current
// connection is reported as EventConnectionLost, a connection closed by
// Disconnect or Close is not.
type WebSocketTransport struct {
	config *interfaces.TransportConfig
	dialer *websocket.Dialer
	clock  clock.Clock

	mu       sync.Mutex
	link     *link
	handler  interfaces.EventHandler
	pending  map[string]chan frame
	call     *callTarget
	peers    map[string]*peerLink
	onLinkUp []func()
	closed   bool
}

// NewWebSocketTransport creates a transport for config.SignalingURL.
// No connection is made until Connect.
func NewWebSocketTransport(config *interfaces.TransportConfig) (*WebSocketTransport, error) {
	if config == nil {
		config = interfaces.DefaultTransportConfig()
	}
	cfg := *config
	cfg.UseSimulation = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":      "NewWebSocketTransport",
		"signaling_url": cfg.SignalingURL,
		"dial_timeout":  cfg.DialTimeout,
		"ping_interval": cfg.PingInterval,
	}).Info("Creating WebSocket signaling transport")

	return &WebSocketTransport{
		config: &cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		clock:   clock.New(),
		pending: make(map[string]chan frame),
		peers:   make(map[string]*peerLink),
	}, nil
}

// SetClock overrides the clock used for keepalive and sample timestamps.
// It must be called before Connect.
func (t *WebSocketTransport) SetClock(clk clock.Clock) {
	t.clock = clk
}

// OnLinkUp registers fn to run after every accepted call or rejoin.
func (t *WebSocketTransport) OnLinkUp(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLinkUp = append(t.onLinkUp, fn)
}

// Connect dials the signaling server and requests a call towards target.
func (t *WebSocketTransport) Connect(ctx context.Context, target interfaces.Target, kind interfaces.CallKind) error {
	l, err := t.dial(ctx)
	if err != nil {
		return err
	}

	req := frame{
		Type:      frameCall,
		SessionID: target.SessionID,
		Topology:  kind.Topology.String(),
		Mode:      kind.Mode.String(),
		Peers:     target.Peers,
	}
	if err := t.request(ctx, l, req); err != nil {
		t.dropLink(l)
		return err
	}

	t.mu.Lock()
	t.call = &callTarget{
		target: interfaces.Target{SessionID: target.SessionID, Peers: append([]string(nil), target.Peers...)},
		kind:   kind,
	}
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "WebSocketTransport.Connect",
		"session_id": target.SessionID,
		"kind":       kind.String(),
		"peers":      len(target.Peers),
	}).Info("Call accepted by signaling server")

	t.linkUp()
	return nil
}

// Reconnect replaces the current connection and rejoins the active call.
func (t *WebSocketTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	call, closed, old := t.call, t.closed, t.link
	t.mu.Unlock()

	if closed {
		return interfaces.ErrTransportClosed
	}
	if call == nil {
		return interfaces.ErrNotConnected
	}
	if old != nil {
		t.dropLink(old)
	}

	l, err := t.dial(ctx)
	if err != nil {
		return err
	}
	if err := t.request(ctx, l, frame{Type: frameRejoin, SessionID: call.target.SessionID}); err != nil {
		t.dropLink(l)
		return err
	}

	t.mu.Lock()
	current := t.call == call
	t.mu.Unlock()
	if !current {
		t.dropLink(l)
		return interfaces.ErrNotConnected
	}

	logrus.WithFields(logrus.Fields{
		"function":   "WebSocketTransport.Reconnect",
		"session_id": call.target.SessionID,
	}).Info("Rejoined call")

	t.linkUp()
	return nil
}

// Disconnect sends a hangup for the active call and closes the connection.
func (t *WebSocketTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	l, call := t.link, t.call
	t.link = nil
	t.call = nil
	t.peers = make(map[string]*peerLink)
	t.mu.Unlock()

	if l == nil {
		return nil
	}
	defer l.close()

	deadline := t.deadline(ctx)
	if call != nil {
		hangup := frame{ID: uuid.NewString(), Type: frameHangup, SessionID: call.target.SessionID}
		if err := l.write(hangup, deadline); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "WebSocketTransport.Disconnect",
				"session_id": call.target.SessionID,
				"error":      err.Error(),
			}).Warn("Failed to send hangup")
		}
	}
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, frameHangup), deadline)
	return nil
}

// SetHold asks the server to hold or resume the active call.
func (t *WebSocketTransport) SetHold(ctx context.Context, held bool) error {
	t.mu.Lock()
	l, call := t.link, t.call
	t.mu.Unlock()

	if l == nil || call == nil {
		return interfaces.ErrNotConnected
	}
	return t.request(ctx, l, frame{Type: frameHold, SessionID: call.target.SessionID, Value: boolPtr(held)})
}

// SetEventHandler registers the receiver of transport events.
func (t *WebSocketTransport) SetEventHandler(handler interfaces.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Close tears down the connection. Further calls fail with ErrTransportClosed.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	l := t.link
	t.link = nil
	t.call = nil
	t.handler = nil
	t.mu.Unlock()

	if l != nil {
		l.close()
	}
	logrus.WithFields(logrus.Fields{
		"function": "WebSocketTransport.Close",
	}).Info("WebSocket transport closed")
	return nil
}

// IsSimulation returns false.
func (t *WebSocketTransport) IsSimulation() bool {
	return false
}

// notify sends a frame that expects no reply.
func (t *WebSocketTransport) notify(f frame) error {
	t.mu.Lock()
	l, closed := t.link, t.closed
	t.mu.Unlock()

	if closed {
		return interfaces.ErrTransportClosed
	}
	if l == nil {
		return interfaces.ErrNotConnected
	}
	f.ID = uuid.NewString()
	return l.write(f, t.clock.Now().Add(t.config.WriteTimeout))
}

func (t *WebSocketTransport) deadline(ctx context.Context) time.Time {
	d := t.clock.Now().Add(t.config.WriteTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (t *WebSocketTransport) dial(ctx context.Context) (*link, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, interfaces.ErrTransportClosed
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.config.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(dialCtx, t.config.SignalingURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":      "WebSocketTransport.dial",
			"signaling_url": t.config.SignalingURL,
			"error":         err.Error(),
		}).Warn("Signaling dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %v", interfaces.ErrSignaling, t.config.SignalingURL, err)
	}
	conn.SetReadLimit(limits.MaxSignalingMessage)

	l := &link{conn: conn, done: make(chan struct{})}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return nil, interfaces.ErrTransportClosed
	}
	old := t.link
	t.link = l
	t.mu.Unlock()
	if old != nil {
		old.close()
	}

	_ = t.armReadDeadline(l)
	conn.SetPongHandler(func(string) error { return t.armReadDeadline(l) })

	go t.readLoop(l)
	go t.pingLoop(l)
	return l, nil
}

// armReadDeadline allows two ping intervals without a pong.
func (t *WebSocketTransport) armReadDeadline(l *link) error {
	return l.conn.SetReadDeadline(t.clock.Now().Add(2 * t.config.PingInterval))
}

// request sends f and waits for the matching reply.
func (t *WebSocketTransport) request(ctx context.Context, l *link, f frame) error {
	f.ID = uuid.NewString()
	reply := make(chan frame, 1)

	t.mu.Lock()
	t.pending[f.ID] = reply
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, f.ID)
		t.mu.Unlock()
	}()

	if err := l.write(f, t.deadline(ctx)); err != nil {
		return fmt.Errorf("%w: send %s: %v", interfaces.ErrSignaling, f.Type, err)
	}

	timer := t.clock.Timer(t.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		if r.Type == frameRejected {
			return rejection(f.Type, r.Reason)
		}
		return nil
	case <-l.done:
		return fmt.Errorf("%w: connection closed awaiting %s reply", interfaces.ErrSignaling, f.Type)
	case <-timer.C:
		return fmt.Errorf("%w: no %s reply within %s", interfaces.ErrSignaling, f.Type, t.config.HandshakeTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rejection maps a server rejection reason onto the failure classes.
func rejection(op, reason string) error {
	switch reason {
	case interfaces.EventPermissionDenied.String():
		return fmt.Errorf("%s rejected: %w", op, interfaces.ErrPermissionDenied)
	case interfaces.EventDeviceUnavailable.String():
		return fmt.Errorf("%s rejected: %w", op, interfaces.ErrDeviceUnavailable)
	default:
		return fmt.Errorf("%w: %s rejected: %s", interfaces.ErrSignaling, op, reason)
	}
}

func (t *WebSocketTransport) readLoop(l *link) {
	var readErr error
	defer func() { t.linkDown(l, readErr) }()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "WebSocketTransport.readLoop",
				"size":     len(data),
				"error":    err.Error(),
			}).Warn("Dropping malformed signaling frame")
			continue
		}
		t.dispatch(f)
	}
}

func (t *WebSocketTransport) pingLoop(l *link) {
	ticker := t.clock.Ticker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			deadline := t.clock.Now().Add(t.config.WriteTimeout)
			if err := l.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "WebSocketTransport.pingLoop",
					"error":    err.Error(),
				}).Warn("Keepalive ping failed")
				l.close()
				return
			}
		}
	}
}

// linkDown reports a lost connection unless it was closed on purpose.
func (t *WebSocketTransport) linkDown(l *link, cause error) {
	t.mu.Lock()
	current := t.link == l
	if current {
		t.link = nil
	}
	t.mu.Unlock()
	l.close()

	if !current {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "WebSocketTransport.linkDown",
		"error":    fmt.Sprint(cause),
	}).Warn("Signaling connection lost")

	if cause == nil {
		cause = errors.New("connection closed")
	}
	t.emit(interfaces.Event{Type: interfaces.EventConnectionLost, Err: cause})
}

func (t *WebSocketTransport) dropLink(l *link) {
	t.mu.Lock()
	if t.link == l {
		t.link = nil
	}
	t.mu.Unlock()
	l.close()
}

func (t *WebSocketTransport) linkUp() {
	t.mu.Lock()
	hooks := append([]func(){}, t.onLinkUp...)
	t.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (t *WebSocketTransport) emit(ev interfaces.Event) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (t *WebSocketTransport) dispatch(f frame) {
	switch f.Type {
	case frameAccepted, frameRejected:
		t.mu.Lock()
		reply, ok := t.pending[f.ReplyTo]
		t.mu.Unlock()
		if ok {
			select {
			case reply <- f:
			default:
			}
		}
		return
	case frameRTCP:
		t.onRTCP(f)
		return
	case frameRTP:
		t.onRTP(f)
		return
	}

	typ, ok := interfaces.ParseEventType(f.Type)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "WebSocketTransport.dispatch",
			"type":     f.Type,
		}).Warn("Ignoring unknown signaling frame")
		return
	}

	ev := interfaces.Event{Type: typ, UserID: f.UserID, Speaking: f.Speaking}
	if f.Reason != "" {
		ev.Err = errors.New(f.Reason)
	}
	switch typ {
	case interfaces.EventParticipantJoined, interfaces.EventParticipantUpdated:
		ev.Participant = interfaces.ParticipantInfo{
			UserID:       f.UserID,
			DisplayName:  f.DisplayName,
			AudioMuted:   f.AudioMuted,
			VideoEnabled: f.VideoEnabled,
		}
	case interfaces.EventStatsSample:
		if f.Sample == nil {
			return
		}
		ev.Sample = f.Sample.raw(f.UserID, t.clock.Now())
	}
	t.emit(ev)
}

func clockRate(f frame) uint32 {
	if f.ClockRate == 0 {
		return defaultClockRate
	}
	return f.ClockRate
}

// onRTCP turns each reception report of a compound RTCP packet into a sample.
func (t *WebSocketTransport) onRTCP(f frame) {
	reports, err := stats.ParseReceptionReports(f.Payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WebSocketTransport.onRTCP",
			"user_id":  f.UserID,
			"error":    err.Error(),
		}).Debug("Dropping rtcp frame")
		return
	}

	now := t.clock.Now()
	for _, report := range reports {
		sample, err := stats.SampleFromReceptionReport(f.UserID, report, clockRate(f), stats.RoundTrip(report, now), now)
		if err != nil {
			continue
		}
		t.mu.Lock()
		if p := t.peers[f.UserID]; p != nil {
			p.latencyMs = sample.LatencyMs
		} else {
			t.peers[f.UserID] = &peerLink{latencyMs: sample.LatencyMs}
		}
		t.mu.Unlock()
		t.emit(interfaces.Event{Type: interfaces.EventStatsSample, Sample: sample})
	}
}

// onRTP feeds a received RTP header into the sender's jitter estimator.
func (t *WebSocketTransport) onRTP(f frame) {
	var header rtp.Header
	if _, err := header.Unmarshal(f.Payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WebSocketTransport.onRTP",
			"user_id":  f.UserID,
			"error":    err.Error(),
		}).Debug("Dropping rtp frame")
		return
	}

	now := t.clock.Now()
	t.mu.Lock()
	p := t.peers[f.UserID]
	if p == nil {
		p = &peerLink{}
		t.peers[f.UserID] = p
	}
	if p.jitter == nil {
		est, err := stats.NewJitterEstimator(clockRate(f))
		if err != nil {
			t.mu.Unlock()
			return
		}
		p.jitter = est
	}
	p.jitter.Update(&header, now)
	sample := interfaces.RawSample{
		ParticipantID: f.UserID,
		LatencyMs:     p.latencyMs,
		JitterMs:      p.jitter.JitterMs(),
		PacketLossPct: p.jitter.LossPct(),
		CapturedAt:    now,
	}
	t.mu.Unlock()

	t.emit(interfaces.Event{Type: interfaces.EventStatsSample, Sample: sample})
}
