package stats

import "errors"

var (
	// ErrInvalidThresholds indicates unordered or non-positive thresholds
	ErrInvalidThresholds = errors.New("invalid classification thresholds")

	// ErrInvalidAlpha indicates a smoothing factor outside (0, 1]
	ErrInvalidAlpha = errors.New("smoothing alpha must be in (0, 1]")

	// ErrInvalidClockRate indicates a zero RTP clock rate
	ErrInvalidClockRate = errors.New("clock rate must be positive")

	// ErrNoReports indicates an RTCP compound packet without reception reports
	ErrNoReports = errors.New("no reception reports in RTCP packet")
)
