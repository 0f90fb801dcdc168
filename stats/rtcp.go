package stats

import (
	"fmt"
	"time"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/pion/rtcp"
)

// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const ntpEpochOffset = 2208988800

// ToNTP converts t to a 64-bit NTP timestamp.
func ToNTP(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return secs<<32 | frac
}

// RoundTrip computes the RTT from a reception report received at now.
// It returns zero when the remote side has not yet received a sender report
// or the computed value is negative because of clock skew.
func RoundTrip(report rtcp.ReceptionReport, now time.Time) time.Duration {
	if report.LastSenderReport == 0 {
		return 0
	}
	middle := uint32(ToNTP(now) >> 16)
	rtt := int64(middle) - int64(report.LastSenderReport) - int64(report.Delay)
	if rtt < 0 {
		return 0
	}
	// Units are 1/65536 seconds.
	return time.Duration(rtt * int64(time.Second) >> 16)
}

// ParseReceptionReports extracts all reception reports from an RTCP compound
// packet, from both receiver and sender reports.
func ParseReceptionReports(data []byte) ([]rtcp.ReceptionReport, error) {
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal rtcp: %w", err)
	}

	var reports []rtcp.ReceptionReport
	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *rtcp.ReceiverReport:
			reports = append(reports, p.Reports...)
		case *rtcp.SenderReport:
			reports = append(reports, p.Reports...)
		}
	}
	if len(reports) == 0 {
		return nil, ErrNoReports
	}
	return reports, nil
}

// SampleFromReceptionReport converts an RTCP reception report into a raw sample.
//
// Latency is half the round trip. Jitter is converted from RTP timestamp
// units using clockRate. Bandwidth is left unknown.
func SampleFromReceptionReport(participantID string, report rtcp.ReceptionReport, clockRate uint32, rtt time.Duration, at time.Time) (interfaces.RawSample, error) {
	if clockRate == 0 {
		return interfaces.RawSample{}, ErrInvalidClockRate
	}

	return interfaces.RawSample{
		ParticipantID: participantID,
		LatencyMs:     float64(rtt) / float64(time.Millisecond) / 2,
		PacketLossPct: float64(report.FractionLost) * 100 / 256,
		JitterMs:      float64(report.Jitter) * 1000 / float64(clockRate),
		CapturedAt:    at,
	}, nil
}
