package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkConditionString(t *testing.T) {
	assert.Equal(t, "excellent", ConditionExcellent.String())
	assert.Equal(t, "terrible", ConditionTerrible.String())
	assert.Equal(t, "Unknown(42)", NetworkCondition(42).String())
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name      string
		latency   float64
		bandwidth float64
		unstable  bool
		want      NetworkCondition
	}{
		{"excellent both", 20, 8000, false, ConditionExcellent},
		{"latency boundary 50 is good", 50, 0, false, ConditionGood},
		{"good latency", 80, 0, false, ConditionGood},
		{"fair latency", 150, 0, false, ConditionFair},
		{"poor latency", 300, 0, false, ConditionPoor},
		{"terrible latency", 501, 0, false, ConditionTerrible},
		{"unknown bandwidth uses latency", 10, 0, false, ConditionExcellent},
		{"bandwidth worse than latency", 10, 700, false, ConditionFair},
		{"latency worse than bandwidth", 250, 9000, false, ConditionPoor},
		{"low bandwidth is poor", 10, 200, false, ConditionPoor},
		{"bandwidth exactly 5000 is good", 10, 5000, false, ConditionGood},
		{"unstable overrides", 10, 9000, true, ConditionTerrible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.Classify(tt.latency, tt.bandwidth, tt.unstable))
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.GoodLatencyMs = 300
	assert.ErrorIs(t, bad.Validate(), ErrInvalidThresholds)

	bad = DefaultThresholds()
	bad.FairBandwidthKbps = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidThresholds)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, ConditionPoor, Worse(ConditionGood, ConditionPoor))
	assert.Equal(t, ConditionPoor, Worse(ConditionPoor, ConditionExcellent))
}
