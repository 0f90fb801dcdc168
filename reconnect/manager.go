package reconnect

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Attempt identifies one scheduled reconnection attempt.
type Attempt struct {
	// Episode is the generation of the outage this attempt belongs to.
	Episode uint64
	// Number is the one-based attempt number within the episode.
	Number int
	// Delay is the backoff that preceded the attempt.
	Delay time.Duration
}

// Manager schedules reconnection attempts on a clock.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	policy Policy
	clock  clock.Clock

	episode   uint64
	scheduled int
	active    bool
	timer     *clock.Timer
	fire      func(Attempt)
}

// NewManager creates a manager. A nil policy selects DefaultPolicy and a nil
// clock selects the wall clock.
func NewManager(policy *Policy, clk clock.Clock) (*Manager, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		policy: *policy,
		clock:  clk,
	}, nil
}

// Policy returns the backoff policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Begin starts a new episode and schedules its first attempt. Any running
// episode is cancelled. fire is called from a timer goroutine when an
// attempt is due and must not block.
func (m *Manager) Begin(fire func(Attempt)) Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.episode++
	m.scheduled = 0
	m.active = true
	m.fire = fire

	attempt := m.scheduleLocked()

	logrus.WithFields(logrus.Fields{
		"function":    "Manager.Begin",
		"episode":     attempt.Episode,
		"delay":       attempt.Delay,
		"max_retries": m.policy.MaxRetries,
	}).Info("Reconnection episode started")

	return attempt
}

// Retry records a failed attempt and schedules the next one. It returns
// false when the episode is exhausted or no episode is active.
func (m *Manager) Retry(lastErr error) (Attempt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return Attempt{}, false
	}
	if m.scheduled >= m.policy.MaxRetries {
		m.stopLocked()
		m.active = false

		fields := logrus.Fields{
			"function": "Manager.Retry",
			"episode":  m.episode,
			"attempts": m.scheduled,
		}
		if lastErr != nil {
			fields["error"] = lastErr.Error()
		}
		logrus.WithFields(fields).Warn("Reconnection attempts exhausted")
		return Attempt{}, false
	}

	attempt := m.scheduleLocked()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Retry",
		"episode":  attempt.Episode,
		"attempt":  attempt.Number,
		"delay":    attempt.Delay,
	}).Debug("Scheduled next reconnection attempt")

	return attempt, true
}

// Current reports whether a belongs to the active episode.
func (m *Manager) Current(a Attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active && a.Episode == m.episode
}

// Cancel stops the pending timer and ends the episode. It is safe to call
// when idle.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active && m.timer == nil {
		return
	}
	m.stopLocked()
	m.active = false
	m.episode++

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Cancel",
	}).Debug("Reconnection cancelled")
}

// Active reports whether an episode is in progress.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// PendingTimers returns the number of armed timers, zero or one.
func (m *Manager) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		return 1
	}
	return 0
}

func (m *Manager) scheduleLocked() Attempt {
	attempt := Attempt{
		Episode: m.episode,
		Number:  m.scheduled + 1,
		Delay:   m.policy.Delay(m.scheduled),
	}
	m.scheduled++
	m.timer = m.clock.AfterFunc(attempt.Delay, func() {
		m.onTimer(attempt)
	})
	return attempt
}

func (m *Manager) onTimer(a Attempt) {
	m.mu.Lock()
	if !m.active || a.Episode != m.episode {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	fire := m.fire
	m.mu.Unlock()

	if fire != nil {
		fire(a)
	}
}

func (m *Manager) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
