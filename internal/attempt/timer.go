package attempt

import (
	"context"
	"time"
)

// Tick advances the countdown by one second. When it reaches zero the
// attempt is submitted without confirmation.
func (c *Controller) Tick() { c.tick(nil) }

// tick is called by the timer goroutine with its own context. A goroutine
// whose timer was stopped while it waited for the lock must not count.
func (c *Controller) tick(timer context.Context) {
	c.mu.Lock()
	if timer != nil && timer.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.closed || (c.s.State != TakingQuiz && c.s.State != ConfirmSubmit) {
		c.mu.Unlock()
		return
	}
	if c.s.TimeLeft == nil || *c.s.TimeLeft <= 0 {
		c.mu.Unlock()
		return
	}
	*c.s.TimeLeft--
	if *c.s.TimeLeft > 0 {
		c.mu.Unlock()
		return
	}
	c.opts.log.Info("time limit reached, submitting")
	quizID, p, epoch := c.beginSubmitLocked()
	base := c.base
	c.mu.Unlock()
	_ = c.send(base, quizID, p, epoch)
}

// startTimerLocked runs the countdown goroutine when the quiz is timed.
func (c *Controller) startTimerLocked() {
	if c.opts.tick <= 0 || c.s.TimeLeft == nil || *c.s.TimeLeft <= 0 || c.timerCancel != nil || c.closed {
		return
	}
	ctx, cancel := context.WithCancel(c.base)
	done := make(chan struct{})
	c.timerCancel, c.timerDone = cancel, done
	go func(interval time.Duration) {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.tick(ctx)
			}
		}
	}(c.opts.tick)
}

// stopTimerLocked cancels the countdown. It does not wait for the goroutine,
// which may be blocked on c.mu; tick drops the stale call instead.
func (c *Controller) stopTimerLocked() {
	if c.timerCancel != nil {
		c.timerCancel()
	}
	c.timerCancel = nil
	c.timerDone = nil
}
