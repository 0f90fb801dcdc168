package real

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/limits"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// fakeServer is a minimal signaling server that accepts every request
// unless a rejection reason is configured.
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	frames chan frame

	mu     sync.Mutex
	conn   *websocket.Conn
	conns  []*websocket.Conn
	reject string
	dials  int
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{t: t, frames: make(chan frame, 256)}
	upgrader := websocket.Upgrader{}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conn = conn
		fs.conns = append(fs.conns, conn)
		fs.dials++
		fs.mu.Unlock()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			fs.frames <- f

			switch f.Type {
			case frameCall, frameRejoin, frameHold:
				reply := frame{ID: "reply-" + f.ID, Type: frameAccepted, ReplyTo: f.ID}
				fs.mu.Lock()
				if fs.reject != "" {
					reply.Type = frameRejected
					reply.Reason = fs.reject
				}
				fs.mu.Unlock()
				fs.send(conn, reply)
			}
		}
	}))

	t.Cleanup(func() {
		fs.mu.Lock()
		for _, c := range fs.conns {
			_ = c.Close()
		}
		fs.mu.Unlock()
		fs.srv.Close()
	})
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) send(conn *websocket.Conn, f frame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_ = conn.WriteJSON(f)
}

// push sends f on the most recent connection.
func (fs *fakeServer) push(f frame) {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	require.NotNil(fs.t, conn)
	fs.send(conn, f)
}

func (fs *fakeServer) pushRaw(data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotNil(fs.t, fs.conn)
	_ = fs.conn.WriteMessage(websocket.TextMessage, data)
}

func (fs *fakeServer) dropClient() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.conn != nil {
		_ = fs.conn.Close()
	}
}

func (fs *fakeServer) setReject(reason string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.reject = reason
}

// next returns the next received frame of type typ.
func (fs *fakeServer) next(typ string) frame {
	fs.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case f := <-fs.frames:
			if f.Type == typ {
				return f
			}
		case <-deadline:
			fs.t.Fatalf("no %s frame received", typ)
			return frame{}
		}
	}
}

type eventLog struct {
	ch chan interfaces.Event
}

func (e *eventLog) handle(ev interfaces.Event) {
	select {
	case e.ch <- ev:
	default:
	}
}

func (e *eventLog) next(t *testing.T, typ interfaces.EventType) interfaces.Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case ev := <-e.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
			return interfaces.Event{}
		}
	}
}

func testConfig(url string) *interfaces.TransportConfig {
	cfg := interfaces.DefaultTransportConfig()
	cfg.SignalingURL = url
	cfg.DialTimeout = waitFor
	cfg.HandshakeTimeout = waitFor
	cfg.PingInterval = 500 * time.Millisecond
	cfg.WriteTimeout = time.Second
	return cfg
}

func newConnected(t *testing.T) (*fakeServer, *WebSocketTransport, *eventLog) {
	t.Helper()
	fs := newFakeServer(t)
	tr, err := NewWebSocketTransport(testConfig(fs.url()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	events := &eventLog{ch: make(chan interfaces.Event, 64)}
	tr.SetEventHandler(events.handle)

	target := interfaces.Target{SessionID: "call-1", Peers: []string{"bob"}}
	kind := interfaces.CallKind{Topology: interfaces.TopologyOneToOne, Mode: interfaces.ModeVoice}
	require.NoError(t, tr.Connect(context.Background(), target, kind))
	return fs, tr, events
}

func TestNewWebSocketTransportValidation(t *testing.T) {
	cfg := interfaces.DefaultTransportConfig()
	cfg.SignalingURL = "http://example.com"
	_, err := NewWebSocketTransport(cfg)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignalingURL)

	tr, err := NewWebSocketTransport(nil)
	require.NoError(t, err)
	assert.False(t, tr.IsSimulation())
}

func TestConnectSendsCallRequest(t *testing.T) {
	fs, _, _ := newConnected(t)

	f := fs.next(frameCall)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "call-1", f.SessionID)
	assert.Equal(t, "one-to-one", f.Topology)
	assert.Equal(t, "voice", f.Mode)
	assert.Equal(t, []string{"bob"}, f.Peers)
}

func TestConnectRejected(t *testing.T) {
	tests := []struct {
		reason string
		want   error
	}{
		{"permission_denied", interfaces.ErrPermissionDenied},
		{"device_unavailable", interfaces.ErrDeviceUnavailable},
		{"busy", interfaces.ErrSignaling},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.setReject(tt.reason)
			tr, err := NewWebSocketTransport(testConfig(fs.url()))
			require.NoError(t, err)
			defer tr.Close()

			err = tr.Connect(context.Background(), interfaces.Target{SessionID: "s", Peers: []string{"bob"}}, interfaces.CallKind{})
			assert.ErrorIs(t, err, tt.want)

			err = tr.SetHold(context.Background(), true)
			assert.ErrorIs(t, err, interfaces.ErrNotConnected)
		})
	}
}

func TestConnectDialFailure(t *testing.T) {
	fs := newFakeServer(t)
	url := fs.url()
	fs.srv.Close()

	tr, err := NewWebSocketTransport(testConfig(url))
	require.NoError(t, err)
	defer tr.Close()

	err = tr.Connect(context.Background(), interfaces.Target{SessionID: "s"}, interfaces.CallKind{})
	assert.ErrorIs(t, err, interfaces.ErrSignaling)
}

func TestEventsFromServerFrames(t *testing.T) {
	fs, _, events := newConnected(t)
	fs.next(frameCall)

	fs.push(frame{ID: "1", Type: "ringing"})
	events.next(t, interfaces.EventRinging)

	fs.push(frame{ID: "2", Type: "participant_joined", UserID: "carol", DisplayName: "Carol", VideoEnabled: true})
	ev := events.next(t, interfaces.EventParticipantJoined)
	assert.Equal(t, interfaces.ParticipantInfo{UserID: "carol", DisplayName: "Carol", VideoEnabled: true}, ev.Participant)

	fs.push(frame{ID: "3", Type: "speaking", UserID: "carol", Speaking: true})
	ev = events.next(t, interfaces.EventSpeaking)
	assert.Equal(t, "carol", ev.UserID)
	assert.True(t, ev.Speaking)

	fs.push(frame{ID: "4", Type: "stats_sample", Sample: &sampleFrame{LatencyMs: 120, AvailableBandwidthKbps: 800}})
	ev = events.next(t, interfaces.EventStatsSample)
	assert.Equal(t, "", ev.Sample.ParticipantID)
	assert.InDelta(t, 120, ev.Sample.LatencyMs, 1e-9)
	assert.InDelta(t, 800, ev.Sample.AvailableBandwidthKbps, 1e-9)

	fs.push(frame{ID: "5", Type: "signaling_failure", Reason: "server restart"})
	ev = events.next(t, interfaces.EventSignalingFailure)
	require.Error(t, ev.Err)
	assert.Equal(t, "server restart", ev.Err.Error())

	fs.pushRaw([]byte("not json"))
	fs.push(frame{ID: "6", Type: "bogus"})
	fs.push(frame{ID: "7", Type: "remote_hold"})
	events.next(t, interfaces.EventRemoteHold)
}

func TestRTCPFrameProducesSample(t *testing.T) {
	fs, _, events := newConnected(t)
	fs.next(frameCall)

	rr := &rtcp.ReceiverReport{
		SSRC: 1,
		Reports: []rtcp.ReceptionReport{{
			SSRC:         2,
			FractionLost: 64,
			Jitter:       480,
		}},
	}
	payload, err := rr.Marshal()
	require.NoError(t, err)

	fs.push(frame{ID: "r", Type: frameRTCP, UserID: "bob", Payload: payload})
	ev := events.next(t, interfaces.EventStatsSample)
	assert.Equal(t, "bob", ev.Sample.ParticipantID)
	assert.InDelta(t, 25, ev.Sample.PacketLossPct, 1e-9)
	assert.InDelta(t, 10, ev.Sample.JitterMs, 1e-9)
	assert.Zero(t, ev.Sample.LatencyMs)

	fs.push(frame{ID: "r2", Type: frameRTCP, UserID: "bob", Payload: []byte{1, 2}})
	fs.push(frame{ID: "r3", Type: "remote_resume"})
	events.next(t, interfaces.EventRemoteResume)
}

func TestRTPFrameFeedsJitterEstimator(t *testing.T) {
	fs, _, events := newConnected(t)
	fs.next(frameCall)

	for seq := uint16(10); seq < 13; seq++ {
		header := rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: uint32(seq) * 960, SSRC: 7}
		payload, err := header.Marshal()
		require.NoError(t, err)
		fs.push(frame{ID: "p", Type: frameRTP, UserID: "bob", Payload: payload})

		ev := events.next(t, interfaces.EventStatsSample)
		assert.Equal(t, "bob", ev.Sample.ParticipantID)
		assert.GreaterOrEqual(t, ev.Sample.JitterMs, 0.0)
		assert.Zero(t, ev.Sample.PacketLossPct)
	}
}

func TestServerCloseReportsConnectionLost(t *testing.T) {
	fs, tr, events := newConnected(t)
	fs.next(frameCall)

	fs.dropClient()
	ev := events.next(t, interfaces.EventConnectionLost)
	assert.Error(t, ev.Err)

	assert.ErrorIs(t, tr.SetHold(context.Background(), true), interfaces.ErrNotConnected)
}

func TestOversizedFrameDropsConnection(t *testing.T) {
	fs, _, events := newConnected(t)
	fs.next(frameCall)

	big := frame{ID: "big", Type: "ringing", Reason: strings.Repeat("x", limits.MaxSignalingMessage+1)}
	data, err := json.Marshal(big)
	require.NoError(t, err)
	fs.pushRaw(data)

	events.next(t, interfaces.EventConnectionLost)
}

func TestReconnectRejoinsSession(t *testing.T) {
	fs, tr, events := newConnected(t)
	fs.next(frameCall)

	fs.dropClient()
	events.next(t, interfaces.EventConnectionLost)

	require.NoError(t, tr.Reconnect(context.Background()))
	f := fs.next(frameRejoin)
	assert.Equal(t, "call-1", f.SessionID)

	require.NoError(t, tr.SetHold(context.Background(), true))
	f = fs.next(frameHold)
	require.NotNil(t, f.Value)
	assert.True(t, *f.Value)
}

func TestReconnectWithoutCall(t *testing.T) {
	fs := newFakeServer(t)
	tr, err := NewWebSocketTransport(testConfig(fs.url()))
	require.NoError(t, err)
	defer tr.Close()

	assert.ErrorIs(t, tr.Reconnect(context.Background()), interfaces.ErrNotConnected)
	assert.NoError(t, tr.Disconnect(context.Background()))
}

func TestDisconnectIsSilent(t *testing.T) {
	fs, tr, events := newConnected(t)
	fs.next(frameCall)

	require.NoError(t, tr.Disconnect(context.Background()))
	f := fs.next(frameHangup)
	assert.Equal(t, "call-1", f.SessionID)

	assert.Never(t, func() bool {
		select {
		case ev := <-events.ch:
			return ev.Type == interfaces.EventConnectionLost
		default:
			return false
		}
	}, 300*time.Millisecond, 10*time.Millisecond)

	assert.ErrorIs(t, tr.Reconnect(context.Background()), interfaces.ErrNotConnected)
}

func TestCloseIsFinal(t *testing.T) {
	_, tr, _ := newConnected(t)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	err := tr.Connect(context.Background(), interfaces.Target{SessionID: "again"}, interfaces.CallKind{})
	assert.ErrorIs(t, err, interfaces.ErrTransportClosed)
	assert.ErrorIs(t, tr.Reconnect(context.Background()), interfaces.ErrTransportClosed)
}

func TestKeepaliveHoldsIdleConnection(t *testing.T) {
	fs, tr, events := newConnected(t)
	fs.next(frameCall)

	// Longer than two ping intervals without any data frame.
	time.Sleep(1200 * time.Millisecond)

	select {
	case ev := <-events.ch:
		assert.NotEqual(t, interfaces.EventConnectionLost, ev.Type)
	default:
	}
	require.NoError(t, tr.SetHold(context.Background(), false))
}
