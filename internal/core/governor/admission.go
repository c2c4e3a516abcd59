package governor

import (
	"context"
	"time"
)

// admit blocks until the caller holds the head of the ticket queue and both
// sliding windows have room, then records the dispatch.
func (g *Governor) admit(ctx context.Context) error {
	ticket := g.enqueue()
	defer g.dequeue(ticket)

	select {
	case <-ticket:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		g.mu.Lock()
		if g.fatal != nil {
			err := g.fatal
			g.mu.Unlock()
			return err
		}
		now := g.now()
		wait := g.admissionDelayLocked(now)
		if wait <= 0 {
			g.state.Steady = append(g.state.Steady, now)
			g.state.Burst = append(g.state.Burst, now)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Governor) enqueue() chan struct{} {
	ticket := make(chan struct{})
	g.mu.Lock()
	g.queue = append(g.queue, ticket)
	if len(g.queue) == 1 {
		close(ticket)
	}
	g.mu.Unlock()
	return ticket
}

func (g *Governor) dequeue(ticket chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, t := range g.queue {
		if t != ticket {
			continue
		}
		g.queue = append(g.queue[:i], g.queue[i+1:]...)
		if i == 0 && len(g.queue) > 0 {
			close(g.queue[0])
		}
		return
	}
}

// admissionDelayLocked prunes expired log entries and returns how long the head
// of the queue must still wait. Caller holds g.mu.
func (g *Governor) admissionDelayLocked(now time.Time) time.Duration {
	steady := g.cfg.SteadyWindow + g.cfg.WindowMargin
	burst := g.cfg.BurstWindow + g.cfg.WindowMargin
	g.state.Steady = pruneWindow(g.state.Steady, now, steady)
	g.state.Burst = pruneWindow(g.state.Burst, now, burst)

	var wait time.Duration
	if d := windowDelay(g.state.Steady, now, g.cfg.SteadyLimit, steady); d > wait {
		wait = d
	}
	if d := windowDelay(g.state.Burst, now, g.cfg.BurstLimit, burst); d > wait {
		wait = d
	}
	for bucket, until := range g.state.BackoffUntil {
		if !now.Before(until) {
			delete(g.state.BackoffUntil, bucket)
			continue
		}
		if d := until.Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

// pruneWindow drops entries that fell out of the window (now-window, now].
func pruneWindow(log []time.Time, now time.Time, window time.Duration) []time.Time {
	drop := 0
	for drop < len(log) && !now.Before(log[drop].Add(window)) {
		drop++
	}
	if drop == 0 {
		return log
	}
	return append(log[:0], log[drop:]...)
}

// windowDelay is how long until the oldest of the last limit entries leaves
// the window. window already includes the safety margin.
func windowDelay(log []time.Time, now time.Time, limit int, window time.Duration) time.Duration {
	if limit <= 0 || len(log) < limit {
		return 0
	}
	return log[len(log)-limit].Add(window).Sub(now)
}
