package session

import (
	"context"
	"fmt"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/reconnect"
	"github.com/opd-ai/callengine/stats"
	"github.com/sirupsen/logrus"
)

// handleEvent applies one transport event on the mailbox goroutine.
func (c *Controller) handleEvent(ev interfaces.Event) {
	if c.session == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleEvent",
			"event":    ev.Type.String(),
		}).Debug("Dropping event with no active call")
		return
	}

	switch ev.Type {
	case interfaces.EventRinging:
		c.onRinging()
	case interfaces.EventConnected:
		c.onRemoteConnected()
	case interfaces.EventRemoteHangup:
		c.fail(wrapCause(ErrRemoteHangup, ev.Err))
	case interfaces.EventConnectionLost:
		c.onLinkLost(wrapCause(ErrConnectionLost, ev.Err))
	case interfaces.EventSignalingFailure:
		c.onSignalingFailure(wrapCause(ErrSignaling, ev.Err))
	case interfaces.EventStatsSample:
		c.onSample(ev.Sample)
	case interfaces.EventParticipantJoined:
		c.onParticipant(ev.Participant, true)
	case interfaces.EventParticipantUpdated:
		c.onParticipant(ev.Participant, false)
	case interfaces.EventParticipantLeft:
		c.onParticipantLeft(ev.UserID)
	case interfaces.EventSpeaking:
		c.roster.SetSpeaking(ev.UserID, ev.Speaking)
	case interfaces.EventRemoteHold:
		if c.status == StatusConnected {
			_ = c.transition(StatusOnHold, nil)
		}
	case interfaces.EventRemoteResume:
		if c.status == StatusOnHold {
			_ = c.transition(StatusConnected, nil)
		}
	case interfaces.EventPermissionDenied:
		c.fail(wrapCause(ErrPermissionDenied, ev.Err))
	case interfaces.EventDeviceUnavailable:
		c.fail(wrapCause(ErrDeviceUnavailable, ev.Err))
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleEvent",
			"event":    ev.Type.String(),
		}).Warn("Ignoring unknown transport event")
	}
}

func (c *Controller) onRinging() {
	if c.session.Kind.IsGroup() || c.status != StatusConnecting {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onRinging",
			"status":   c.status.String(),
			"group":    c.session.Kind.IsGroup(),
		}).Debug("Ignoring ringing event")
		return
	}
	_ = c.transition(StatusRinging, nil)
}

func (c *Controller) onRemoteConnected() {
	switch c.status {
	case StatusInitializing, StatusConnecting, StatusRinging, StatusReconnecting:
		c.reconnect.Cancel()
		if err := c.transition(StatusConnected, nil); err == nil {
			c.onConnected()
		}
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onRemoteConnected",
			"status":   c.status.String(),
		}).Debug("Ignoring connected event")
	}
}

// onSignalingFailure fails a call still in setup and treats a failure on an
// established call as a dropped link.
func (c *Controller) onSignalingFailure(err error) {
	if c.status.inSetup() {
		c.fail(err)
		return
	}
	c.onLinkLost(err)
}

// onLinkLost starts a reconnection episode for an established call.
func (c *Controller) onLinkLost(err error) {
	switch c.status {
	case StatusConnected, StatusOnHold:
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onLinkLost",
			"call_id":  c.session.ID,
			"error":    err.Error(),
		}).Warn("Link lost, reconnecting")

		c.cancelInflight(err)
		if terr := c.transition(StatusReconnecting, nil); terr != nil {
			return
		}
		c.reconnect.Begin(func(a reconnect.Attempt) {
			c.post(func() { c.runAttempt(a) })
		})
	case StatusReconnecting:
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onLinkLost",
			"error":    err.Error(),
		}).Debug("Link loss while already reconnecting")
	default:
		c.fail(err)
	}
}

// runAttempt performs one scheduled reconnection attempt.
func (c *Controller) runAttempt(a reconnect.Attempt) {
	if c.session == nil || c.status != StatusReconnecting || !c.reconnect.Current(a) {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.runAttempt",
			"episode":  a.Episode,
			"attempt":  a.Number,
		}).Debug("Dropping stale reconnection attempt")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Controller.runAttempt",
		"call_id":  c.session.ID,
		"attempt":  a.Number,
		"delay":    a.Delay,
	}).Info("Attempting reconnection")

	c.launch(context.Background(), "reconnect", c.config.AttemptTimeout, c.transport.Reconnect,
		func(err error) { c.onAttemptResult(a, err) }, nil)
}

// onAttemptResult applies the outcome of one reconnection attempt. Results
// from an episode that has since ended are dropped.
func (c *Controller) onAttemptResult(a reconnect.Attempt, err error) {
	if c.session == nil || c.status != StatusReconnecting || !c.reconnect.Current(a) {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onAttemptResult",
			"episode":  a.Episode,
			"attempt":  a.Number,
		}).Debug("Dropping stale reconnection result")
		return
	}

	if err == nil {
		c.reconnect.Cancel()
		if terr := c.transition(StatusConnected, nil); terr == nil {
			c.onConnected()
		}
		return
	}

	if isFatal(err) {
		c.fail(err)
		return
	}
	if _, ok := c.reconnect.Retry(err); !ok {
		c.fail(fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, a.Number, err))
	}
}

func (c *Controller) onParticipant(info interfaces.ParticipantInfo, joined bool) {
	if !c.session.Kind.IsGroup() {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onParticipant",
			"user_id":  info.UserID,
		}).Debug("Ignoring participant event on one-to-one call")
		return
	}

	p, exists := c.roster.Get(info.UserID)
	if !exists && !joined {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onParticipant",
			"user_id":  info.UserID,
		}).Debug("Update for unknown participant treated as join")
	}
	p.UserID = info.UserID
	p.DisplayName = info.DisplayName
	p.AudioMuted = info.AudioMuted
	p.VideoEnabled = info.VideoEnabled
	if p.JoinedAt.IsZero() {
		p.JoinedAt = c.clock.Now()
	}

	if _, err := c.roster.AddOrUpdate(p); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onParticipant",
			"user_id":  info.UserID,
			"error":    err.Error(),
		}).Warn("Participant rejected")
	}
}

// onSample feeds the pipeline. Participant samples are accepted only for
// users on the roster.
func (c *Controller) onSample(sample interfaces.RawSample) {
	if id := sample.ParticipantID; id != stats.LocalSource {
		if _, ok := c.roster.Get(id); !ok {
			logrus.WithFields(logrus.Fields{
				"function":       "Controller.onSample",
				"participant_id": id,
			}).Debug("Dropping sample for participant not in roster")
			return
		}
	}
	c.pipeline.Ingest(sample)
}

func (c *Controller) onParticipantLeft(userID string) {
	if c.roster.Remove(userID) {
		c.pipeline.Forget(userID)
	}
}
