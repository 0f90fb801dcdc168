package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// inflight is a transport call running off the mailbox goroutine.
type inflight struct {
	name    string
	cancel  context.CancelFunc
	abandon func(cause error)
}

// launch runs call on its own goroutine under a context derived from parent
// and bounded by timeout, so the mailbox keeps serving commands and events.
// apply receives the result on the mailbox goroutine. If the call is
// cancelled first the result is dropped and abandon runs instead.
func (c *Controller) launch(parent context.Context, name string, timeout time.Duration,
	call func(context.Context) error, apply func(error), abandon func(cause error)) {
	c.cancelInflight(ErrCallEnded)

	ctx, cancel := context.WithTimeout(parent, timeout)
	op := &inflight{name: name, cancel: cancel, abandon: abandon}
	c.inflight = op

	go func() {
		err := call(ctx)
		cancel()
		c.post(func() {
			if c.inflight != op {
				logrus.WithFields(logrus.Fields{
					"function": "Controller.launch",
					"call":     name,
				}).Debug("Dropping result of cancelled transport call")
				return
			}
			c.inflight = nil
			apply(err)
		})
	}()
}

// cancelInflight cancels the running transport call, if any, and hands cause
// to whoever waits on it.
func (c *Controller) cancelInflight(cause error) {
	op := c.inflight
	if op == nil {
		return
	}
	c.inflight = nil
	op.cancel()

	logrus.WithFields(logrus.Fields{
		"function": "Controller.cancelInflight",
		"call":     op.name,
	}).Debug("Cancelled in-flight transport call")

	if op.abandon != nil {
		op.abandon(cause)
	}
}
