package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/callengine/roster"
	"github.com/sirupsen/logrus"
)

// transition moves the call to a new status along an allowed edge and
// publishes the change. cause is recorded only for StatusFailed.
func (c *Controller) transition(to Status, cause error) error {
	from := c.status
	if !CanTransition(from, to) {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.transition",
			"from":     from.String(),
			"to":       to.String(),
		}).Warn("Refusing transition outside the state table")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := c.clock.Now()
	change := StatusChange{From: from, To: to, At: now}

	if s := c.session; s != nil {
		switch {
		case to.Paused() && !c.paused:
			c.pauseStart = now
			c.paused = true
		case c.paused && to == StatusConnected:
			s.AccumulatedPause += now.Sub(c.pauseStart)
			c.paused = false
		}
		if to == StatusConnected && s.StartedAt.IsZero() {
			s.StartedAt = now
		}
		if to == StatusFailed {
			s.LastError = cause
		}
		s.Status = to
		change.SessionID = s.ID
	}
	c.status = to
	change.Duration = c.durationAt(now)
	if to == StatusFailed {
		change.Err = cause
	}

	fields := logrus.Fields{
		"function": "Controller.transition",
		"call_id":  change.SessionID,
		"from":     from.String(),
		"to":       to.String(),
		"duration": change.Duration,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	logrus.WithFields(fields).Info("Call status changed")

	if to == StatusConnected {
		c.startDurationTicker()
	} else {
		c.stopDurationTicker()
	}

	c.statusStream.Publish(change)
	return nil
}

// durationAt returns connected time excluding completed and open pauses.
func (c *Controller) durationAt(now time.Time) time.Duration {
	s := c.session
	if s == nil || s.StartedAt.IsZero() {
		return 0
	}
	d := now.Sub(s.StartedAt) - s.AccumulatedPause
	if c.paused {
		d -= now.Sub(c.pauseStart)
	}
	if d < 0 {
		return 0
	}
	return d
}

// fail ends the active call through failed -> idle.
func (c *Controller) fail(err error) {
	if c.session == nil || c.status == StatusFailed || c.status == StatusDisconnecting || c.status == StatusIdle {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.fail",
			"status":   c.status.String(),
			"error":    err.Error(),
		}).Debug("Ignoring failure, no call to fail")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Controller.fail",
		"call_id":  c.session.ID,
		"status":   c.status.String(),
		"reason":   FailureReason(err),
		"error":    err.Error(),
	}).Error("Call failed")

	c.cancelInflight(err)
	c.stopTimers()
	if terr := c.transition(StatusFailed, err); terr != nil {
		return
	}
	c.finish()
}

// endCall ends the active call through disconnecting -> idle.
func (c *Controller) endCall() {
	if c.session == nil || c.status == StatusIdle || c.status == StatusDisconnecting {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.EndCall",
			"status":   c.status.String(),
		}).Debug("No call to end")
		return
	}

	c.cancelInflight(ErrCallEnded)
	c.stopTimers()
	if err := c.transition(StatusDisconnecting, nil); err != nil {
		return
	}
	c.finish()
}

// finish releases every resource of the call and returns to idle.
func (c *Controller) finish() {
	c.stopTimers()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.DisconnectTimeout)
	err := c.transport.Disconnect(ctx)
	cancel()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.finish",
			"error":    err.Error(),
		}).Warn("Transport disconnect failed")
	}

	c.pipeline.Reset()
	c.quality.Reset()
	c.roster.Clear()

	_ = c.transition(StatusIdle, nil)
	c.session = nil
	c.paused = false
}

// stopTimers stops every ticker, the reconnection timer and any in-flight
// transport call.
func (c *Controller) stopTimers() {
	c.cancelInflight(ErrCallEnded)
	c.reconnect.Cancel()
	c.stopDurationTicker()
	if c.statsTicker != nil {
		c.statsTicker.Stop()
		c.statsTicker = nil
	}
}

// onConnected runs after every transition into StatusConnected.
func (c *Controller) onConnected() {
	s := c.session
	if s == nil || s.Kind.IsGroup() {
		return
	}
	if _, ok := c.roster.Get(s.Target); ok {
		return
	}
	if _, err := c.roster.AddOrUpdate(roster.Participant{UserID: s.Target, JoinedAt: c.clock.Now()}); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onConnected",
			"user_id":  s.Target,
			"error":    err.Error(),
		}).Warn("Failed to add remote party to roster")
	}
}

// classifyConnectError keeps permission and device failures verbatim and
// marks everything else as a connect failure.
func classifyConnectError(err error) error {
	if isFatal(err) {
		return err
	}
	if errors.Is(err, ErrConnectFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectFailed, err)
}

// wrapCause attaches a transport-supplied cause to a failure class.
func wrapCause(class, cause error) error {
	if cause == nil {
		return class
	}
	if errors.Is(cause, class) {
		return cause
	}
	return fmt.Errorf("%w: %v", class, cause)
}
