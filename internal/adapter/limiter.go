package adapter

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/reel-cli/internal/resilience"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On a rate-limited response it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Limiters holds one adaptive limiter per external service, shared by every
// run in the process.
type Limiters struct {
	mu       sync.Mutex
	perSec   float64
	limiters map[string]*AdaptiveLimiter
}

// NewLimiters creates a limiter set allowing perSec calls per second to each
// service. A non-positive rate disables limiting.
func NewLimiters(perSec float64) *Limiters {
	return &Limiters{
		perSec:   perSec,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (l *Limiters) get(service string) *AdaptiveLimiter {
	if l == nil || l.perSec <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	al, ok := l.limiters[service]
	if !ok {
		burst := int(l.perSec)
		if burst < 1 {
			burst = 1
		}
		al = NewAdaptiveLimiter(rate.Limit(l.perSec), burst)
		l.limiters[service] = al
	}
	return al
}

// Wait blocks until service may be called. A cancelled context is reported
// as a timeout for service.
func (l *Limiters) Wait(ctx context.Context, service string) error {
	al := l.get(service)
	if al == nil {
		return nil
	}
	if err := al.Wait(ctx); err != nil {
		return resilience.NewAdapterError(service, resilience.KindTimeout, err)
	}
	return nil
}

// Observe feeds a classified call outcome back into service's limiter.
func (l *Limiters) Observe(service string, err error) {
	al := l.get(service)
	if al == nil {
		return
	}
	if err == nil {
		al.OnSuccess()
		return
	}
	if kind, ok := resilience.KindOf(err); ok && kind == resilience.KindRateLimited {
		al.OnRateLimit()
	}
}

// call waits for service's limiter, runs fn, classifies its error and
// reports the outcome back to the limiter.
func call[T any](ctx context.Context, l *Limiters, service string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := l.Wait(ctx, service); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	err = resilience.Classify(service, err)
	l.Observe(service, err)
	if err != nil {
		return zero, err
	}
	return val, nil
}
