package orchestrator

import (
	"context"
	"time"
)

// availableSlots returns how many more steps may be launched given the
// number in flight. A limit of zero means unlimited.
func availableSlots(limit, running, ready int) int {
	if limit <= 0 {
		return ready
	}
	free := limit - running
	if free < 0 {
		free = 0
	}
	if free > ready {
		free = ready
	}
	return free
}

// dispatchThrottle enforces a minimum interval between step dispatches.
type dispatchThrottle struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
	// gate, when set, is consulted before every dispatch and may block.
	gate func(ctx context.Context) error
}

func newDispatchThrottle(interval time.Duration, now func() time.Time) *dispatchThrottle {
	if now == nil {
		now = time.Now
	}
	return &dispatchThrottle{interval: interval, now: now}
}

// wait blocks until the dispatch gate opens and the interval since the
// previous dispatch has elapsed. Cancellation interrupts the wait immediately.
func (t *dispatchThrottle) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.gate != nil {
		if err := t.gate(ctx); err != nil {
			return err
		}
	}
	if t.interval > 0 && !t.last.IsZero() {
		if remaining := t.interval - t.now().Sub(t.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	t.last = t.now()
	return nil
}
