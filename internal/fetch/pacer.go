package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests to the same host. Each host gets its own token
// bucket, and every request additionally waits a random delay in
// [delayMin, delayMax].
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	delayMin time.Duration
	delayMax time.Duration
}

// NewPacer creates a pacer. A non-positive perSecond disables the token
// bucket; a zero delay range disables the random delay.
func NewPacer(perSecond float64, delayMin, delayMax time.Duration) *Pacer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		delayMin: delayMin,
		delayMax: delayMax,
	}
}

// Wait blocks until a request to rawURL's host may be sent
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	if p == nil {
		return nil
	}
	if err := p.limiter(hostOf(rawURL)).Wait(ctx); err != nil {
		return err
	}
	return sleepCtx(ctx, p.delay())
}

func (p *Pacer) limiter(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(p.limit, 1)
		p.limiters[host] = limiter
	}
	return limiter
}

func (p *Pacer) delay() time.Duration {
	if p.delayMax <= 0 {
		return 0
	}
	spread := p.delayMax - p.delayMin
	if spread <= 0 {
		return p.delayMin
	}
	return p.delayMin + time.Duration(rand.Int63n(int64(spread)+1))
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
