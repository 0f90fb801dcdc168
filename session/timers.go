package session

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// loopTicker forwards clock ticks into the mailbox until stopped.
type loopTicker struct {
	ticker *clock.Ticker
	stop   chan struct{}
}

func (t *loopTicker) Stop() {
	t.ticker.Stop()
	close(t.stop)
}

// startTicker posts fn every d. A tick already queued when the ticker is
// stopped is discarded because current no longer reports it as live.
func (c *Controller) startTicker(d time.Duration, current func() *loopTicker, fn func()) *loopTicker {
	lt := &loopTicker{
		ticker: c.clock.Ticker(d),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-lt.ticker.C:
				c.post(func() {
					if current() == lt {
						fn()
					}
				})
			case <-lt.stop:
				return
			}
		}
	}()
	return lt
}

func (c *Controller) startDurationTicker() {
	if c.durationTicker != nil {
		return
	}
	c.durationTicker = c.startTicker(c.config.DurationInterval, func() *loopTicker { return c.durationTicker }, c.onDurationTick)
}

func (c *Controller) stopDurationTicker() {
	if c.durationTicker != nil {
		c.durationTicker.Stop()
		c.durationTicker = nil
	}
}

func (c *Controller) startStatsTicker() {
	if c.statsTicker != nil {
		return
	}
	c.statsTicker = c.startTicker(c.config.StatsInterval, func() *loopTicker { return c.statsTicker }, c.onStatsTick)
}

func (c *Controller) onDurationTick() {
	if c.status != StatusConnected {
		return
	}
	c.durationStream.Publish(c.durationAt(c.clock.Now()))
}

// onStatsTick flushes the pipeline, publishes the samples and feeds the
// local aggregate to the quality controller.
func (c *Controller) onStatsTick() {
	if c.session == nil {
		return
	}

	for _, cs := range c.pipeline.Flush(c.clock.Now()) {
		c.statsStream.Publish(cs)

		if !cs.IsLocal() {
			c.roster.SetNetworkCondition(cs.ParticipantID, cs.Condition)
			continue
		}

		change, changed := c.quality.Observe(cs)
		if !changed {
			continue
		}
		c.session.Quality = change.To
		if err := c.media.SetQuality(change.To.Profile()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.onStatsTick",
				"call_id":  c.session.ID,
				"level":    change.To.String(),
				"error":    err.Error(),
			}).Warn("Media engine rejected quality profile")
		}
		c.qualityStream.Publish(change)
	}
}
