package governor

import (
	"math"
	"time"
)

// Backoff computes exponential retry delays with symmetric jitter.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     float64

	// Rand returns a value in [0,1). Nil disables jitter.
	Rand func() float64
}

// Delay returns the wait before the given retry (1-based).
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = DefaultBackoffMultiplier
	}

	delay := float64(base) * math.Pow(mult, float64(retry-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.Jitter > 0 && b.Rand != nil {
		delay *= 1 + b.Jitter*(2*b.Rand()-1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
