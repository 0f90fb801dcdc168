// Package metrics exports call engine activity as Prometheus metrics.
//
// A Collector can be fed directly through its Observe methods or attached
// to a session.Controller, in which case it follows the controller's status,
// stats and quality streams until detached.
package metrics

import (
	"sync"

	"github.com/opd-ai/callengine/quality"
	"github.com/opd-ai/callengine/session"
	"github.com/opd-ai/callengine/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// LocalLabel is the participant label used for the local link aggregate.
const LocalLabel = "local"

// streamBuffer is the subscription buffer used by Attach.
const streamBuffer = 256

// Collector holds the metrics of one controller.
type Collector struct {
	transitions    *prometheus.CounterVec
	activeCalls    prometheus.Gauge
	failures       *prometheus.CounterVec
	callDuration   prometheus.Histogram
	latency        *prometheus.GaugeVec
	jitter         *prometheus.GaugeVec
	packetLoss     *prometheus.GaugeVec
	bitrate        *prometheus.GaugeVec
	qualityLevel   prometheus.Gauge
	qualityChanges *prometheus.CounterVec

	mu      sync.Mutex
	active  bool
	cancels []func()
	wg      sync.WaitGroup

	// calls holds the sessions counted by activeCalls.
	callsMu sync.Mutex
	calls   map[string]struct{}
}

// NewCollector creates and registers the call metrics with reg under namespace.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		calls: make(map[string]struct{}),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_status_transitions_total",
				Help:      "Total number of call status transitions",
			},
			[]string{"from", "to"},
		),
		activeCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls_active",
				Help:      "Number of calls currently in progress",
			},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_failures_total",
				Help:      "Total number of failed calls by reason",
			},
			[]string{"reason"},
		),
		callDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Connected duration of finished calls in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		latency: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "call_latency_ms",
				Help:      "Smoothed one-way latency in milliseconds",
			},
			[]string{"participant"},
		),
		jitter: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "call_jitter_ms",
				Help:      "Smoothed jitter in milliseconds",
			},
			[]string{"participant"},
		),
		packetLoss: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "call_packet_loss_percent",
				Help:      "Packet loss percentage of the last sample",
			},
			[]string{"participant"},
		),
		bitrate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "call_bitrate_kbps",
				Help:      "Bitrate of the last sample in kbps",
			},
			[]string{"participant"},
		),
		qualityLevel: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "call_quality_level",
				Help:      "Committed quality level (0=low, 1=medium, 2=high, 3=hd)",
			},
		),
		qualityChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_quality_changes_total",
				Help:      "Total number of committed quality level changes",
			},
			[]string{"from", "to"},
		),
	}
}

// ObserveStatusChange records one status transition. The active call gauge
// counts sessions seen in an active status, so a dropped or replayed change
// cannot drive it below zero.
func (c *Collector) ObserveStatusChange(change session.StatusChange) {
	if change.To == session.StatusFailed {
		c.failures.WithLabelValues(session.FailureReason(change.Err)).Inc()
	}

	c.callsMu.Lock()
	_, tracked := c.calls[change.SessionID]
	switch {
	case change.To.Active() && !tracked:
		c.calls[change.SessionID] = struct{}{}
	case change.To == session.StatusIdle && tracked:
		delete(c.calls, change.SessionID)
		c.callDuration.Observe(change.Duration.Seconds())
		c.resetLinkGauges()
	}
	c.activeCalls.Set(float64(len(c.calls)))
	c.callsMu.Unlock()

	c.transitions.WithLabelValues(change.From.String(), change.To.String()).Inc()
}

// ObserveStats records one smoothed stats sample.
func (c *Collector) ObserveStats(cs stats.CallStats) {
	label := cs.ParticipantID
	if cs.IsLocal() {
		label = LocalLabel
	}
	c.latency.WithLabelValues(label).Set(cs.LatencyMs)
	c.jitter.WithLabelValues(label).Set(cs.JitterMs)
	c.packetLoss.WithLabelValues(label).Set(cs.PacketLossPct)
	c.bitrate.WithLabelValues(label).Set(cs.BitrateKbps)
}

// ObserveQualityChange records a committed quality change.
func (c *Collector) ObserveQualityChange(change quality.Change) {
	c.qualityLevel.Set(float64(change.To))
	c.qualityChanges.WithLabelValues(change.From.String(), change.To.String()).Inc()
}

func (c *Collector) resetLinkGauges() {
	c.latency.Reset()
	c.jitter.Reset()
	c.packetLoss.Reset()
	c.bitrate.Reset()
}

// Attach follows ctrl's streams until Detach. Attach before placing calls,
// since each stream replays its latest value to a new subscriber.
func (c *Collector) Attach(ctrl *session.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	c.active = true

	c.qualityLevel.Set(float64(ctrl.Quality()))

	changes, cancelChanges := ctrl.StatusChanges(streamBuffer)
	samples, cancelSamples := ctrl.Stats(streamBuffer)
	levels, cancelLevels := ctrl.QualityChanges(streamBuffer)
	c.cancels = []func(){cancelChanges, cancelSamples, cancelLevels}

	follow(&c.wg, changes, c.ObserveStatusChange)
	follow(&c.wg, samples, c.ObserveStats)
	follow(&c.wg, levels, c.ObserveQualityChange)

	logrus.WithFields(logrus.Fields{
		"function": "Collector.Attach",
	}).Info("Metrics collector attached to controller")
}

// Detach stops following the controller and waits for pending updates.
func (c *Collector) Detach() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.active = false
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.wg.Wait()
}

func follow[T any](wg *sync.WaitGroup, ch <-chan T, fn func(T)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := range ch {
			fn(v)
		}
	}()
}
