// Package stats turns raw link-quality samples into smoothed, classified
// call statistics.
//
// The Pipeline keeps the latest pending sample per source and emits one
// CallStats per source on each sampling tick. Latency and jitter are
// smoothed with an exponentially weighted moving average; the network
// condition is classified from the raw sample so that a sudden degradation
// is visible on the first bad sample.
package stats

import "fmt"

// NetworkCondition is an ordered assessment of link quality.
type NetworkCondition int

const (
	// ConditionExcellent indicates a link able to carry HD media
	ConditionExcellent NetworkCondition = iota
	// ConditionGood indicates a healthy link
	ConditionGood
	// ConditionFair indicates noticeable but tolerable degradation
	ConditionFair
	// ConditionPoor indicates significant degradation
	ConditionPoor
	// ConditionTerrible indicates an unusable or unstable link
	ConditionTerrible
)

// String returns the lowercase condition name.
func (c NetworkCondition) String() string {
	switch c {
	case ConditionExcellent:
		return "excellent"
	case ConditionGood:
		return "good"
	case ConditionFair:
		return "fair"
	case ConditionPoor:
		return "poor"
	case ConditionTerrible:
		return "terrible"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Worse returns the worse of two conditions.
func Worse(a, b NetworkCondition) NetworkCondition {
	if a > b {
		return a
	}
	return b
}

// Thresholds defines the boundaries used by Classify.
//
// Latency boundaries are upper bounds in milliseconds. Bandwidth boundaries
// are lower bounds in kbps applied to the available link bandwidth.
type Thresholds struct {
	ExcellentLatencyMs float64 // < 50
	GoodLatencyMs      float64 // <= 100
	FairLatencyMs      float64 // <= 200
	PoorLatencyMs      float64 // <= 500, above is terrible

	ExcellentBandwidthKbps float64 // > 5000
	GoodBandwidthKbps      float64 // >= 1000
	FairBandwidthKbps      float64 // >= 500, below is poor
}

// DefaultThresholds returns the default classification thresholds.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		ExcellentLatencyMs:     50,
		GoodLatencyMs:          100,
		FairLatencyMs:          200,
		PoorLatencyMs:          500,
		ExcellentBandwidthKbps: 5000,
		GoodBandwidthKbps:      1000,
		FairBandwidthKbps:      500,
	}
}

// Validate checks that the thresholds are positive and ordered.
func (t *Thresholds) Validate() error {
	if t.ExcellentLatencyMs <= 0 ||
		t.ExcellentLatencyMs > t.GoodLatencyMs ||
		t.GoodLatencyMs > t.FairLatencyMs ||
		t.FairLatencyMs > t.PoorLatencyMs {
		return fmt.Errorf("%w: latency thresholds must be positive and ascending", ErrInvalidThresholds)
	}
	if t.FairBandwidthKbps <= 0 ||
		t.FairBandwidthKbps > t.GoodBandwidthKbps ||
		t.GoodBandwidthKbps > t.ExcellentBandwidthKbps {
		return fmt.Errorf("%w: bandwidth thresholds must be positive and ascending", ErrInvalidThresholds)
	}
	return nil
}

// Classify assesses a link from its latency and available bandwidth.
// The worse of the two verdicts wins. A bandwidth of zero means unknown and
// classifies by latency alone. An unstable link is always terrible.
func (t *Thresholds) Classify(latencyMs, bandwidthKbps float64, unstable bool) NetworkCondition {
	if unstable {
		return ConditionTerrible
	}
	condition := t.classifyLatency(latencyMs)
	if bandwidthKbps > 0 {
		condition = Worse(condition, t.classifyBandwidth(bandwidthKbps))
	}
	return condition
}

func (t *Thresholds) classifyLatency(latencyMs float64) NetworkCondition {
	switch {
	case latencyMs < t.ExcellentLatencyMs:
		return ConditionExcellent
	case latencyMs <= t.GoodLatencyMs:
		return ConditionGood
	case latencyMs <= t.FairLatencyMs:
		return ConditionFair
	case latencyMs <= t.PoorLatencyMs:
		return ConditionPoor
	default:
		return ConditionTerrible
	}
}

func (t *Thresholds) classifyBandwidth(kbps float64) NetworkCondition {
	switch {
	case kbps > t.ExcellentBandwidthKbps:
		return ConditionExcellent
	case kbps >= t.GoodBandwidthKbps:
		return ConditionGood
	case kbps >= t.FairBandwidthKbps:
		return ConditionFair
	default:
		return ConditionPoor
	}
}
