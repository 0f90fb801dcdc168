package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/callengine/broadcast"
	"github.com/opd-ai/callengine/interfaces"
	"github.com/opd-ai/callengine/quality"
	"github.com/opd-ai/callengine/reconnect"
	"github.com/opd-ai/callengine/roster"
	"github.com/opd-ai/callengine/stats"
	"github.com/sirupsen/logrus"
)

// Controller is the call session state machine.
//
// All exported methods are safe for concurrent use. Commands block until the
// mailbox goroutine has applied them.
type Controller struct {
	transport interfaces.Transport
	media     interfaces.MediaEngine
	config    Config
	clock     clock.Clock
	newID     func() string

	lifeMu  sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	mailbox *mailbox

	// Owned by the mailbox goroutine.
	status         Status
	session        *CallSession
	pauseStart     time.Time
	paused         bool
	statsTicker    *loopTicker
	durationTicker *loopTicker
	inflight       *inflight

	pipeline  *stats.Pipeline
	quality   *quality.Controller
	reconnect *reconnect.Manager
	roster    *roster.Roster

	statusStream   *broadcast.Broadcaster[StatusChange]
	durationStream *broadcast.Broadcaster[time.Duration]
	statsStream    *broadcast.Broadcaster[stats.CallStats]
	qualityStream  *broadcast.Broadcaster[quality.Change]
}

// NewController creates a controller bound to transport and media.
// Call Start before issuing commands.
func NewController(transport interfaces.Transport, media interfaces.MediaEngine, opts ...Option) (*Controller, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if media == nil {
		return nil, ErrNilMediaEngine
	}

	c := &Controller{
		transport:      transport,
		media:          media,
		config:         *DefaultConfig(),
		clock:          clock.New(),
		newID:          defaultIDGenerator,
		mailbox:        newMailbox(),
		statusStream:   broadcast.New[StatusChange](),
		durationStream: broadcast.New[time.Duration](),
		statsStream:    broadcast.New[stats.CallStats](),
		qualityStream:  broadcast.New[quality.Change](),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	var err error
	if c.pipeline, err = stats.NewPipeline(c.config.SmoothingAlpha, &c.config.Thresholds); err != nil {
		return nil, err
	}
	if c.quality, err = quality.NewController(&c.config.Quality); err != nil {
		return nil, err
	}
	if c.reconnect, err = reconnect.NewManager(&c.config.Reconnect, c.clock); err != nil {
		return nil, err
	}
	c.roster = roster.New()

	logrus.WithFields(logrus.Fields{
		"function":        "NewController",
		"simulation":      transport.IsSimulation(),
		"connect_timeout": c.config.ConnectTimeout,
		"stats_interval":  c.config.StatsInterval,
		"max_retries":     c.config.Reconnect.MaxRetries,
	}).Info("Call session controller created")

	return c, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Start launches the mailbox goroutine and registers the transport event
// handler.
func (c *Controller) Start() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.running {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.Start",
		}).Error("Controller is already running")
		return ErrControllerAlreadyRunning
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mailbox.setOpen(true)
	c.running = true
	go c.run(c.stop, c.done)

	c.transport.SetEventHandler(c.onTransportEvent)

	logrus.WithFields(logrus.Fields{
		"function": "Controller.Start",
	}).Info("Controller started")

	return nil
}

// Stop ends any active call and stops the mailbox goroutine. Streams stay
// open so the controller can be started again.
func (c *Controller) Stop() error {
	if !c.IsRunning() {
		return nil
	}

	if err := c.EndCall(context.Background()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.Stop",
			"error":    err.Error(),
		}).Warn("Failed to end call during shutdown")
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.running {
		return nil
	}
	c.transport.SetEventHandler(nil)
	c.mailbox.setOpen(false)
	close(c.stop)
	<-c.done
	c.running = false

	logrus.WithFields(logrus.Fields{
		"function": "Controller.Stop",
	}).Info("Controller stopped")

	return nil
}

// Close stops the controller, closes every stream and releases the transport.
func (c *Controller) Close() error {
	if err := c.Stop(); err != nil {
		return err
	}
	c.statusStream.Close()
	c.durationStream.Close()
	c.statsStream.Close()
	c.qualityStream.Close()
	c.roster.Close()
	return c.transport.Close()
}

// IsRunning reports whether the mailbox goroutine is active.
func (c *Controller) IsRunning() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.running
}

func (c *Controller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-c.mailbox.signal:
			for _, fn := range c.mailbox.drain() {
				fn()
			}
		case <-stop:
			for _, fn := range c.mailbox.drain() {
				fn()
			}
			return
		}
	}
}

// do runs fn on the mailbox goroutine and waits for its result.
func (c *Controller) do(fn func() error) error {
	return c.doContext(context.Background(), fn)
}

// doContext is do bounded by ctx. When ctx ends first its error is returned
// and fn still runs once the mailbox reaches it.
func (c *Controller) doContext(ctx context.Context, fn func() error) error {
	c.lifeMu.Lock()
	running, done := c.running, c.done
	c.lifeMu.Unlock()
	if !running {
		return ErrControllerNotRunning
	}

	reply := make(chan error, 1)
	if !c.mailbox.post(func() { reply <- c.safely(fn) }) {
		return ErrControllerNotRunning
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrControllerNotRunning
		}
	}
}

// post queues fn without waiting. Used for events and timer expiries.
func (c *Controller) post(fn func()) {
	if !c.mailbox.post(func() { _ = c.safely(func() error { fn(); return nil }) }) {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.post",
		}).Debug("Mailbox closed, dropping work item")
	}
}

// safely converts a panic in fn into a failed call.
func (c *Controller) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.safely",
				"panic":    fmt.Sprint(r),
				"stack":    string(debug.Stack()),
			}).Error("Recovered panic in controller handler")
			err = fmt.Errorf("%w: %v", ErrInternal, r)
			c.fail(err)
		}
	}()
	return fn()
}

func (c *Controller) onTransportEvent(ev interfaces.Event) {
	c.post(func() { c.handleEvent(ev) })
}

// query runs fn on the mailbox goroutine, or directly when stopped.
func (c *Controller) query(fn func()) {
	if err := c.do(func() error { fn(); return nil }); errors.Is(err, ErrControllerNotRunning) {
		fn()
	}
}

// Status returns the current status.
func (c *Controller) Status() Status {
	var s Status
	c.query(func() { s = c.status })
	return s
}

// Session returns a copy of the active session.
func (c *Controller) Session() (CallSession, bool) {
	var (
		out CallSession
		ok  bool
	)
	c.query(func() {
		if c.session != nil {
			out = c.session.clone()
			ok = true
		}
	})
	return out, ok
}

// Duration returns the connected time of the active call, excluding pauses.
func (c *Controller) Duration() time.Duration {
	var d time.Duration
	c.query(func() { d = c.durationAt(c.clock.Now()) })
	return d
}

// ParticipantsSnapshot returns the current roster.
func (c *Controller) ParticipantsSnapshot() []roster.Participant {
	var out []roster.Participant
	c.query(func() { out = c.roster.Snapshot() })
	return out
}

// Quality returns the committed quality level.
func (c *Controller) Quality() quality.Level {
	var l quality.Level
	c.query(func() { l = c.quality.Committed() })
	return l
}

// LatestStats returns the most recent stats of a source; use
// stats.LocalSource for the local link.
func (c *Controller) LatestStats(participantID string) (stats.CallStats, bool) {
	var (
		out stats.CallStats
		ok  bool
	)
	c.query(func() { out, ok = c.pipeline.Latest(participantID) })
	return out, ok
}

// ActiveTimers returns the number of armed tickers and backoff timers.
func (c *Controller) ActiveTimers() int {
	var n int
	c.query(func() {
		if c.statsTicker != nil {
			n++
		}
		if c.durationTicker != nil {
			n++
		}
		n += c.reconnect.PendingTimers()
	})
	return n
}

// StatusChanges subscribes to status transitions.
func (c *Controller) StatusChanges(buffer int) (<-chan StatusChange, func()) {
	return c.statusStream.Subscribe(buffer)
}

// DurationTicks subscribes to duration updates published while connected.
func (c *Controller) DurationTicks(buffer int) (<-chan time.Duration, func()) {
	return c.durationStream.Subscribe(buffer)
}

// Participants subscribes to roster snapshots.
func (c *Controller) Participants(buffer int) (<-chan []roster.Participant, func()) {
	return c.roster.Subscribe(buffer)
}

// Stats subscribes to smoothed stats of every source.
func (c *Controller) Stats(buffer int) (<-chan stats.CallStats, func()) {
	return c.statsStream.Subscribe(buffer)
}

// QualityChanges subscribes to committed quality level changes.
func (c *Controller) QualityChanges(buffer int) (<-chan quality.Change, func()) {
	return c.qualityStream.Subscribe(buffer)
}
