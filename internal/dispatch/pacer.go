package dispatch

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer decides how long to wait after a successful submission.
type Pacer interface {
	Next(base time.Duration) time.Duration
}

// JitterPacer spreads waits uniformly over [0.9*base, 1.1*base].
type JitterPacer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitterPacer returns a pacer drawing from src. A nil src uses a
// randomly seeded PCG source.
func NewJitterPacer(src rand.Source) *JitterPacer {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &JitterPacer{rng: rand.New(src)}
}

func (p *JitterPacer) Next(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	p.mu.Lock()
	f := 0.9 + 0.2*p.rng.Float64()
	p.mu.Unlock()
	return time.Duration(float64(base) * f)
}

// NoDelay never waits.
type NoDelay struct{}

func (NoDelay) Next(time.Duration) time.Duration { return 0 }

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
