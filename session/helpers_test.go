package session

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/stats"
	simulation "github.com/opd-ai/callengine/testing"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type harness struct {
	t       *testing.T
	clk     *clock.Mock
	tr      *simulation.SimulatedTransport
	media   *simulation.SimulatedMediaEngine
	ctrl    *Controller
	changes <-chan StatusChange
	samples <-chan stats.CallStats
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newWrappedHarness(t, nil, opts...)
}

// newWrappedHarness builds a harness whose controller talks to
// wrap(simulated transport) when wrap is not nil.
func newWrappedHarness(t *testing.T, wrap func(*simulation.SimulatedTransport) interfaces.Transport, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		clk:   clock.NewMock(),
		tr:    simulation.NewSimulatedTransport(),
		media: simulation.NewSimulatedMediaEngine(),
	}
	h.clk.Set(time.Unix(1700000000, 0))

	all := append([]Option{WithClock(h.clk)}, opts...)
	var transport interfaces.Transport = h.tr
	if wrap != nil {
		transport = wrap(h.tr)
	}
	ctrl, err := NewController(transport, h.media, all...)
	require.NoError(t, err)
	h.ctrl = ctrl

	var cancelChanges, cancelSamples func()
	h.changes, cancelChanges = ctrl.StatusChanges(512)
	h.samples, cancelSamples = ctrl.Stats(64)
	require.NoError(t, ctrl.Start())

	t.Cleanup(func() {
		_ = ctrl.Stop()
		cancelChanges()
		cancelSamples()
	})
	return h
}

// sync waits until every previously posted mailbox item has been applied.
func (h *harness) sync() Status {
	return h.ctrl.Status()
}

// drain returns every status change published so far.
func (h *harness) drain() []StatusChange {
	h.sync()
	var out []StatusChange
	for {
		select {
		case c := <-h.changes:
			out = append(out, c)
		default:
			return out
		}
	}
}

func targets(changes []StatusChange) []Status {
	out := make([]Status, len(changes))
	for i, c := range changes {
		out[i] = c.To
	}
	return out
}

func (h *harness) startVoice(remote string) string {
	h.t.Helper()
	id, err := h.ctrl.StartCall(context.Background(), remote, interfaces.ModeVoice)
	require.NoError(h.t, err)
	return id
}

func (h *harness) connectVoice(remote string) string {
	h.t.Helper()
	id := h.startVoice(remote)
	h.tr.Answer()
	require.Equal(h.t, StatusConnected, h.sync())
	return id
}

// loseLink drops the connection and waits for the reconnecting state.
func (h *harness) loseLink() {
	h.t.Helper()
	h.tr.LoseConnection()
	require.Equal(h.t, StatusReconnecting, h.sync())
}

// transportBusy reports whether a transport call is still awaiting its
// result on the mailbox.
func (h *harness) transportBusy() bool {
	var busy bool
	h.ctrl.query(func() { busy = h.ctrl.inflight != nil })
	return busy
}

// advanceToAttempt moves the clock by d and waits until the n-th reconnect
// attempt has been fully applied.
func (h *harness) advanceToAttempt(d time.Duration, n int) {
	h.t.Helper()
	h.clk.Add(d)
	require.Eventually(h.t, func() bool {
		return h.tr.ReconnectCalls() == n && !h.transportBusy()
	}, waitFor, time.Millisecond)
	h.sync()
}

// tick ingests sample, advances one stats interval and returns the next
// published stats for the sample's source.
func (h *harness) tick(sample interfaces.RawSample) stats.CallStats {
	h.t.Helper()
	h.tr.Sample(sample)
	h.sync()
	h.clk.Add(h.ctrl.Config().StatsInterval)

	deadline := time.After(waitFor)
	for {
		select {
		case cs := <-h.samples:
			if cs.ParticipantID == sample.ParticipantID {
				h.sync()
				return cs
			}
		case <-deadline:
			h.t.Fatalf("no stats published for %q", sample.ParticipantID)
			return stats.CallStats{}
		}
	}
}
