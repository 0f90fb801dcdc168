package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/limits"
	"github.com/sirupsen/logrus"
)

// LocalSource is the participant id of the local link aggregate.
const LocalSource = ""

// DefaultAlpha is the default EWMA smoothing factor.
const DefaultAlpha = 0.3

// CallStats is one smoothed, classified measurement for a source.
type CallStats struct {
	ParticipantID          string
	LatencyMs              float64
	PacketLossPct          float64
	JitterMs               float64
	BitrateKbps            float64
	AvailableBandwidthKbps float64
	FPS                    float64
	CPUUsagePct            float64
	MemoryUsageMB          float64
	Condition              NetworkCondition
	SampledAt              time.Time
}

// IsLocal reports whether the stats describe the local link aggregate.
func (s CallStats) IsLocal() bool {
	return s.ParticipantID == LocalSource
}

type sourceState struct {
	pending   *interfaces.RawSample
	latency   float64
	jitter    float64
	seeded    bool
	lastAt    time.Time
	latest    CallStats
	hasLatest bool
}

// Pipeline smooths and classifies raw samples per source.
// It is safe for concurrent use.
type Pipeline struct {
	mu         sync.Mutex
	alpha      float64
	thresholds *Thresholds
	sources    map[string]*sourceState
}

// NewPipeline creates a pipeline. A nil thresholds value selects
// DefaultThresholds.
func NewPipeline(alpha float64, thresholds *Thresholds) (*Pipeline, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, ErrInvalidAlpha
	}
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		alpha:      alpha,
		thresholds: thresholds,
		sources:    make(map[string]*sourceState),
	}, nil
}

// Thresholds returns the classification thresholds in use.
func (p *Pipeline) Thresholds() *Thresholds {
	return p.thresholds
}

// Ingest stores sample as the pending sample for its source, replacing any
// sample not yet flushed. At most limits.MaxParticipants participant sources
// are tracked besides the local aggregate; samples for further participants
// are dropped and Ingest reports false.
func (p *Pipeline) Ingest(sample interfaces.RawSample) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := sample.ParticipantID
	if _, known := p.sources[id]; !known && id != LocalSource && p.participantCount() >= limits.MaxParticipants {
		logrus.WithFields(logrus.Fields{
			"function":       "Pipeline.Ingest",
			"participant_id": id,
			"limit":          limits.MaxParticipants,
		}).Warn("Dropping sample for untracked participant, source limit reached")
		return false
	}

	st := p.source(id)
	if st.pending != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "Pipeline.Ingest",
			"participant_id": sample.ParticipantID,
		}).Debug("Replacing unflushed sample")
	}
	s := sample
	st.pending = &s
	return true
}

func (p *Pipeline) participantCount() int {
	n := len(p.sources)
	if _, ok := p.sources[LocalSource]; ok {
		n--
	}
	return n
}

// Flush emits one CallStats per source with a pending sample. The local
// aggregate comes first, followed by participants in id order.
func (p *Pipeline) Flush(now time.Time) []CallStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.sources))
	for id, st := range p.sources {
		if st.pending != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]CallStats, 0, len(ids))
	for _, id := range ids {
		st := p.sources[id]
		out = append(out, p.emit(id, st, now))
	}
	return out
}

func (p *Pipeline) emit(id string, st *sourceState, now time.Time) CallStats {
	raw := st.pending
	st.pending = nil

	if !st.seeded {
		st.latency = raw.LatencyMs
		st.jitter = raw.JitterMs
		st.seeded = true
	} else {
		st.latency = p.alpha*raw.LatencyMs + (1-p.alpha)*st.latency
		st.jitter = p.alpha*raw.JitterMs + (1-p.alpha)*st.jitter
	}

	at := now
	if !st.lastAt.IsZero() && !at.After(st.lastAt) {
		at = st.lastAt.Add(time.Nanosecond)
	}
	st.lastAt = at

	cs := CallStats{
		ParticipantID:          id,
		LatencyMs:              st.latency,
		PacketLossPct:          raw.PacketLossPct,
		JitterMs:               st.jitter,
		BitrateKbps:            raw.BitrateKbps,
		AvailableBandwidthKbps: raw.AvailableBandwidthKbps,
		FPS:                    raw.FPS,
		CPUUsagePct:            raw.CPUUsagePct,
		MemoryUsageMB:          raw.MemoryUsageMB,
		Condition:              p.thresholds.Classify(raw.LatencyMs, raw.AvailableBandwidthKbps, raw.Unstable),
		SampledAt:              at,
	}
	st.latest = cs
	st.hasLatest = true

	logrus.WithFields(logrus.Fields{
		"function":       "Pipeline.Flush",
		"participant_id": id,
		"latency_ms":     cs.LatencyMs,
		"condition":      cs.Condition.String(),
	}).Debug("Emitted call stats")

	return cs
}

// Latest returns the most recent CallStats emitted for a source.
func (p *Pipeline) Latest(participantID string) (CallStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.sources[participantID]
	if !ok || !st.hasLatest {
		return CallStats{}, false
	}
	return st.latest, true
}

// Forget drops all state for a participant.
func (p *Pipeline) Forget(participantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sources, participantID)
}

// Reset drops all state.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = make(map[string]*sourceState)
}

func (p *Pipeline) source(id string) *sourceState {
	st, ok := p.sources[id]
	if !ok {
		st = &sourceState{}
		p.sources[id] = st
	}
	return st
}
