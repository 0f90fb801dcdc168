package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(DefaultAlpha, nil)
	require.NoError(t, err)
	return p
}

func TestNewPipelineRejectsBadAlpha(t *testing.T) {
	for _, alpha := range []float64{0, -0.1, 1.5} {
		_, err := NewPipeline(alpha, nil)
		assert.ErrorIs(t, err, ErrInvalidAlpha)
	}
	_, err := NewPipeline(1, nil)
	assert.NoError(t, err)
}

func TestPipelineSmoothing(t *testing.T) {
	p := newTestPipeline(t)
	now := time.Unix(1000, 0)

	p.Ingest(interfaces.RawSample{LatencyMs: 100, JitterMs: 10})
	out := p.Flush(now)
	require.Len(t, out, 1)
	assert.InDelta(t, 100, out[0].LatencyMs, 1e-9, "first sample seeds the average")
	assert.InDelta(t, 10, out[0].JitterMs, 1e-9)

	p.Ingest(interfaces.RawSample{LatencyMs: 200, JitterMs: 20})
	out = p.Flush(now.Add(time.Second))
	require.Len(t, out, 1)
	assert.InDelta(t, 130, out[0].LatencyMs, 1e-9)
	assert.InDelta(t, 13, out[0].JitterMs, 1e-9)
}

func TestPipelineConditionFromRawSample(t *testing.T) {
	p := newTestPipeline(t)
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		p.Ingest(interfaces.RawSample{LatencyMs: 80})
		out := p.Flush(now.Add(time.Duration(i) * time.Second))
		require.Len(t, out, 1)
		assert.Equal(t, ConditionGood, out[0].Condition)
	}

	p.Ingest(interfaces.RawSample{LatencyMs: 300})
	out := p.Flush(now.Add(3 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, ConditionPoor, out[0].Condition)
	assert.Less(t, out[0].LatencyMs, 300.0, "latency stays smoothed")
}

func TestPipelineOnePerSourcePerFlush(t *testing.T) {
	p := newTestPipeline(t)
	now := time.Unix(1000, 0)

	p.Ingest(interfaces.RawSample{ParticipantID: "bob", LatencyMs: 40})
	p.Ingest(interfaces.RawSample{ParticipantID: "bob", LatencyMs: 60})
	p.Ingest(interfaces.RawSample{ParticipantID: "alice", LatencyMs: 10})
	p.Ingest(interfaces.RawSample{LatencyMs: 30})

	out := p.Flush(now)
	require.Len(t, out, 3)
	assert.Equal(t, LocalSource, out[0].ParticipantID)
	assert.True(t, out[0].IsLocal())
	assert.Equal(t, "alice", out[1].ParticipantID)
	assert.Equal(t, "bob", out[2].ParticipantID)
	assert.InDelta(t, 60, out[2].LatencyMs, 1e-9, "latest pending sample wins")

	assert.Empty(t, p.Flush(now.Add(time.Second)), "nothing pending")
}

func TestPipelineSampledAtStrictlyIncreasing(t *testing.T) {
	p := newTestPipeline(t)
	now := time.Unix(1000, 0)

	var last time.Time
	for i := 0; i < 5; i++ {
		p.Ingest(interfaces.RawSample{LatencyMs: 20})
		out := p.Flush(now)
		require.Len(t, out, 1)
		assert.True(t, out[0].SampledAt.After(last))
		last = out[0].SampledAt
	}
}

func TestPipelineLatestForgetReset(t *testing.T) {
	p := newTestPipeline(t)
	now := time.Unix(1000, 0)

	_, ok := p.Latest("bob")
	assert.False(t, ok)

	p.Ingest(interfaces.RawSample{ParticipantID: "bob", LatencyMs: 40, FPS: 30})
	p.Flush(now)

	latest, ok := p.Latest("bob")
	require.True(t, ok)
	assert.Equal(t, 30.0, latest.FPS)

	p.Forget("bob")
	_, ok = p.Latest("bob")
	assert.False(t, ok)

	p.Ingest(interfaces.RawSample{LatencyMs: 40})
	p.Flush(now)
	p.Reset()
	_, ok = p.Latest(LocalSource)
	assert.False(t, ok)
}

func TestPipelineBoundsParticipantSources(t *testing.T) {
	p := newTestPipeline(t)
	now := time.Unix(1000, 0)

	for i := 0; i < limits.MaxParticipants; i++ {
		require.True(t, p.Ingest(interfaces.RawSample{ParticipantID: fmt.Sprintf("user-%d", i), LatencyMs: 40}))
	}
	assert.False(t, p.Ingest(interfaces.RawSample{ParticipantID: "one-too-many", LatencyMs: 40}))
	assert.True(t, p.Ingest(interfaces.RawSample{LatencyMs: 40}), "local aggregate is always tracked")
	assert.True(t, p.Ingest(interfaces.RawSample{ParticipantID: "user-0", LatencyMs: 50}), "known source keeps updating")

	assert.Len(t, p.Flush(now), limits.MaxParticipants+1)
	_, ok := p.Latest("one-too-many")
	assert.False(t, ok)

	p.Forget("user-1")
	assert.True(t, p.Ingest(interfaces.RawSample{ParticipantID: "one-too-many", LatencyMs: 40}), "room after Forget")
}
