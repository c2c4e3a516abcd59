package handlers

import (
	"context"
	"fmt"
)

// Pinger is satisfied by *sql.DB and the journal store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// GovernorChecker is unhealthy once the governor has latched a fatal error.
func GovernorChecker(g GovernorView) HealthChecker {
	return CheckerFunc(func(ctx context.Context) error {
		if err := g.Fatal(); err != nil {
			return fmt.Errorf("governor halted: %w", err)
		}
		return nil
	})
}

// PingChecker reports the journal's reachability. Ship loops keep running
// without the journal, so a failed ping degrades rather than fails.
func PingChecker(p Pinger) HealthChecker {
	return CheckerFunc(func(ctx context.Context) error {
		if err := p.PingContext(ctx); err != nil {
			return Degraded(fmt.Errorf("journal unreachable: %w", err))
		}
		return nil
	})
}
