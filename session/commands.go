package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/limits"
	"github.com/opd-ai/callengine/roster"
	"github.com/sirupsen/logrus"
)

// StartCall places a one-to-one call to remoteID and returns the session id.
// It returns once the transport has accepted or refused the call request.
func (c *Controller) StartCall(ctx context.Context, remoteID string, mode interfaces.Mode) (string, error) {
	return c.placeCall(ctx, interfaces.CallKind{Topology: interfaces.TopologyOneToOne, Mode: mode}, []string{remoteID})
}

// StartGroupCall places a group call to participantIDs and returns the
// session id.
func (c *Controller) StartGroupCall(ctx context.Context, participantIDs []string, mode interfaces.Mode) (string, error) {
	return c.placeCall(ctx, interfaces.CallKind{Topology: interfaces.TopologyGroup, Mode: mode}, participantIDs)
}

// placeCall sets the call up on the mailbox goroutine and then waits for the
// connect result outside of it.
func (c *Controller) placeCall(ctx context.Context, kind interfaces.CallKind, peers []string) (string, error) {
	var (
		id     string
		result <-chan error
	)
	err := c.do(func() error {
		var err error
		id, result, err = c.startCall(ctx, kind, peers)
		return err
	})
	if err != nil {
		return id, err
	}
	return id, <-result
}

func validateTarget(kind interfaces.CallKind, peers []string) error {
	if kind.IsGroup() {
		if err := limits.ValidateParticipantCount(len(peers)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
	}
	seen := make(map[string]struct{}, len(peers))
	for _, id := range peers {
		if err := limits.ValidateUserID(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidTarget, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (c *Controller) startCall(ctx context.Context, kind interfaces.CallKind, peers []string) (string, <-chan error, error) {
	if c.session != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.StartCall",
			"call_id":  c.session.ID,
			"status":   c.status.String(),
		}).Warn("Rejecting call start while a call is active")
		return "", nil, ErrCallAlreadyActive
	}
	if err := validateTarget(kind, peers); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.StartCall",
			"kind":     kind.String(),
			"error":    err.Error(),
		}).Warn("Rejecting call start with invalid target")
		return "", nil, err
	}

	s := &CallSession{
		ID:       c.newID(),
		Kind:     kind,
		Status:   StatusIdle,
		Controls: initialControls(kind),
		Quality:  c.quality.Committed(),
	}
	if kind.IsGroup() {
		s.Invitees = append([]string(nil), peers...)
	} else {
		s.Target = peers[0]
	}
	c.session = s

	logrus.WithFields(logrus.Fields{
		"function": "Controller.StartCall",
		"call_id":  s.ID,
		"kind":     kind.String(),
		"peers":    len(peers),
	}).Info("Starting call")

	if err := c.transition(StatusInitializing, nil); err != nil {
		c.session = nil
		return "", nil, err
	}

	if kind.IsGroup() {
		for _, id := range peers {
			if _, err := c.roster.AddOrUpdate(roster.Participant{UserID: id}); err != nil {
				err = fmt.Errorf("%w: %w", ErrInvalidTarget, err)
				c.fail(err)
				return s.ID, nil, err
			}
		}
	}

	if err := c.media.SetQuality(s.Quality.Profile()); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			c.fail(err)
			return s.ID, nil, err
		}
		logrus.WithFields(logrus.Fields{
			"function": "Controller.StartCall",
			"call_id":  s.ID,
			"error":    err.Error(),
		}).Warn("Failed to apply initial quality profile")
	}

	result := make(chan error, 1)
	target := interfaces.Target{SessionID: s.ID, Peers: s.peers()}
	c.launch(ctx, "connect", c.config.ConnectTimeout,
		func(ctx context.Context) error { return c.transport.Connect(ctx, target, kind) },
		func(err error) { result <- c.onConnectResult(err) },
		func(cause error) { result <- cause })

	return s.ID, result, nil
}

// onConnectResult applies the outcome of Transport.Connect.
func (c *Controller) onConnectResult(err error) error {
	if err != nil {
		err = classifyConnectError(err)
		c.fail(err)
		return err
	}
	if c.status == StatusInitializing {
		if err := c.transition(StatusConnecting, nil); err != nil {
			return err
		}
	}
	c.startStatsTicker()
	return nil
}

// EndCall ends the active call. It is a no-op when no call is active or the
// call is already being torn down. An in-flight connect or reconnection
// attempt is cancelled. If ctx ends before the mailbox reaches the request,
// ctx's error is returned and the call is still ended.
func (c *Controller) EndCall(ctx context.Context) error {
	err := c.doContext(ctx, func() error {
		c.endCall()
		return nil
	})
	if errors.Is(err, ErrControllerNotRunning) {
		return nil
	}
	return err
}

// Hold puts a connected call on hold.
func (c *Controller) Hold(ctx context.Context) error {
	return c.changeHold(ctx, true)
}

// Resume takes a held call off hold.
func (c *Controller) Resume(ctx context.Context) error {
	return c.changeHold(ctx, false)
}

func (c *Controller) changeHold(ctx context.Context, held bool) error {
	var result <-chan error
	err := c.doContext(ctx, func() error {
		var err error
		result, err = c.setHold(ctx, held)
		return err
	})
	if err != nil {
		return err
	}
	return <-result
}

func (c *Controller) setHold(ctx context.Context, held bool) (<-chan error, error) {
	name, want, next := "resume", StatusOnHold, StatusConnected
	if held {
		name, want, next = "hold", StatusConnected, StatusOnHold
	}
	if c.session == nil || c.status != want || c.inflight != nil {
		return nil, c.rejectCommand(name)
	}

	result := make(chan error, 1)
	c.launch(ctx, name, c.config.AttemptTimeout,
		func(ctx context.Context) error { return c.transport.SetHold(ctx, held) },
		func(err error) { result <- c.onHoldResult(name, want, next, held, err) },
		func(cause error) { result <- cause })
	return result, nil
}

// onHoldResult applies the outcome of Transport.SetHold.
func (c *Controller) onHoldResult(name string, want, next Status, held bool, err error) error {
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.onHoldResult",
			"call_id":  c.session.ID,
			"held":     held,
			"error":    err.Error(),
		}).Warn("Transport rejected hold change")
		return fmt.Errorf("%s: %w", name, err)
	}
	switch c.status {
	case next:
		return nil
	case want:
		return c.transition(next, nil)
	default:
		return c.rejectCommand(name)
	}
}

func (c *Controller) rejectCommand(name string) error {
	logrus.WithFields(logrus.Fields{
		"function": "Controller.rejectCommand",
		"command":  name,
		"status":   c.status.String(),
	}).Warn("Rejecting command in current call state")
	return fmt.Errorf("%w: %s while %s", ErrInvalidCommand, name, c.status)
}

// mediaFailure converts a media engine error into the command result.
// A permission failure ends the call.
func (c *Controller) mediaFailure(name string, err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		c.fail(err)
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Controller.mediaFailure",
		"command":  name,
		"error":    err.Error(),
	}).Warn("Media command failed, state unchanged")
	return fmt.Errorf("%s: %w", name, err)
}

type controlField func(*LocalControls) *bool

func audioMuted(l *LocalControls) *bool    { return &l.AudioMuted }
func videoEnabled(l *LocalControls) *bool  { return &l.VideoEnabled }
func speakerOn(l *LocalControls) *bool     { return &l.SpeakerOn }
func screenSharing(l *LocalControls) *bool { return &l.ScreenSharing }
func recording(l *LocalControls) *bool     { return &l.Recording }

// toggle flips a control flag after the media engine accepts the change.
func (c *Controller) toggle(name string, field controlField, apply func(bool) error) error {
	if c.session == nil || !c.status.acceptsMedia() {
		return c.rejectCommand(name)
	}
	flag := field(&c.session.Controls)
	return c.setControl(name, flag, !*flag, apply)
}

// set moves a control flag to value; already at value is a no-op.
func (c *Controller) set(name string, field controlField, value bool, apply func(bool) error) error {
	if c.session == nil || !c.status.acceptsMedia() {
		return c.rejectCommand(name)
	}
	flag := field(&c.session.Controls)
	if *flag == value {
		return nil
	}
	return c.setControl(name, flag, value, apply)
}

func (c *Controller) setControl(name string, flag *bool, value bool, apply func(bool) error) error {
	if err := apply(value); err != nil {
		return c.mediaFailure(name, err)
	}
	*flag = value

	logrus.WithFields(logrus.Fields{
		"function": "Controller.setControl",
		"call_id":  c.session.ID,
		"command":  name,
		"value":    value,
	}).Debug("Local control changed")
	return nil
}

// ToggleAudioMute flips the local microphone mute.
func (c *Controller) ToggleAudioMute() error {
	return c.do(func() error { return c.toggle("toggle_audio_mute", audioMuted, c.media.SetMuted) })
}

// ToggleVideo flips the local camera.
func (c *Controller) ToggleVideo() error {
	return c.do(func() error { return c.toggle("toggle_video", videoEnabled, c.media.SetVideoEnabled) })
}

// ToggleSpeaker flips loudspeaker output.
func (c *Controller) ToggleSpeaker() error {
	return c.do(func() error { return c.toggle("toggle_speaker", speakerOn, c.media.SetSpeakerOn) })
}

// SwitchCamera switches between front and back cameras.
func (c *Controller) SwitchCamera() error {
	return c.do(func() error {
		if c.session == nil || !c.status.acceptsMedia() {
			return c.rejectCommand("switch_camera")
		}
		if err := c.media.SwitchCamera(); err != nil {
			return c.mediaFailure("switch_camera", err)
		}
		return nil
	})
}

// StartScreenSharing starts screen capture.
func (c *Controller) StartScreenSharing() error {
	return c.do(func() error { return c.set("start_screen_sharing", screenSharing, true, c.media.SetScreenSharing) })
}

// StopScreenSharing stops screen capture.
func (c *Controller) StopScreenSharing() error {
	return c.do(func() error { return c.set("stop_screen_sharing", screenSharing, false, c.media.SetScreenSharing) })
}

// StartRecording starts call recording.
func (c *Controller) StartRecording() error {
	return c.do(func() error { return c.set("start_recording", recording, true, c.media.SetRecording) })
}

// StopRecording stops call recording.
func (c *Controller) StopRecording() error {
	return c.do(func() error { return c.set("stop_recording", recording, false, c.media.SetRecording) })
}
