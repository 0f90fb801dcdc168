package stats

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// JitterEstimator tracks interarrival jitter and packet loss for one RTP
// stream as described in RFC 3550 section 6.4.1 and appendix A.
type JitterEstimator struct {
	mu        sync.Mutex
	clockRate uint32

	started     bool
	baseSeq     uint32
	maxSeq      uint16
	cycles      uint32
	received    uint64
	first       time.Time
	lastArrival int64
	lastTS      uint32
	jitter      float64
}

// NewJitterEstimator creates an estimator for a stream with the given RTP
// clock rate (48000 for Opus, 90000 for video).
func NewJitterEstimator(clockRate uint32) (*JitterEstimator, error) {
	if clockRate == 0 {
		return nil, ErrInvalidClockRate
	}
	return &JitterEstimator{clockRate: clockRate}, nil
}

// Update records the arrival of a packet.
func (j *JitterEstimator) Update(header *rtp.Header, arrival time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started {
		j.started = true
		j.first = arrival
		j.baseSeq = uint32(header.SequenceNumber)
		j.maxSeq = header.SequenceNumber
		j.received = 1
		j.lastTS = header.Timestamp
		return
	}

	// Arrival in RTP timestamp units relative to the first packet.
	arrivalTS := int64(arrival.Sub(j.first)) * int64(j.clockRate) / int64(time.Second)

	j.received++
	delta := header.SequenceNumber - j.maxSeq
	if delta != 0 && delta < 0x8000 {
		if header.SequenceNumber < j.maxSeq {
			j.cycles += 1 << 16
		}
		j.maxSeq = header.SequenceNumber
	}

	d := (arrivalTS - j.lastArrival) - int64(int32(header.Timestamp-j.lastTS))
	j.lastArrival = arrivalTS
	j.lastTS = header.Timestamp
	if d < 0 {
		d = -d
	}
	j.jitter += (float64(d) - j.jitter) / 16
}

// Jitter returns the current jitter estimate.
func (j *JitterEstimator) Jitter() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.jitter * float64(time.Second) / float64(j.clockRate))
}

// JitterMs returns the current jitter estimate in milliseconds.
func (j *JitterEstimator) JitterMs() float64 {
	return float64(j.Jitter()) / float64(time.Millisecond)
}

// LossPct returns the cumulative packet loss percentage.
func (j *JitterEstimator) LossPct() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started {
		return 0
	}
	extendedMax := j.cycles + uint32(j.maxSeq)
	expected := float64(extendedMax-j.baseSeq) + 1
	lost := expected - float64(j.received)
	if lost <= 0 {
		return 0
	}
	return lost * 100 / expected
}

// Received returns the number of packets seen.
func (j *JitterEstimator) Received() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.received
}
