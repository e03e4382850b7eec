package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a sliding-window request budget for one provider and holds
// its adaptive throttle state. Timestamps live in a fixed-capacity ring sized
// to the window limit, so a long-lived limiter never grows.
type Limiter struct {
	mu sync.Mutex

	window time.Duration
	limit  int

	stamps []time.Time
	head   int
	count  int

	retryAt     time.Time
	backoff     time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration

	now func() time.Time
}

// NewLimiter builds a limiter allowing limit requests per window. Throttle
// responses without a retry hint back off exponentially from backoffBase up
// to backoffCap.
func NewLimiter(limit int, window, backoffBase, backoffCap time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Limiter{
		window:      window,
		limit:       limit,
		stamps:      make([]time.Time, limit),
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		now:         time.Now,
	}
}

// Acquire blocks until a request slot is available and the throttle deadline
// has passed, then records the request timestamp. Returns the context error
// if the caller gives up first.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// AtLimit reports whether an immediate request would have to wait.
func (l *Limiter) AtLimit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	return l.count >= l.limit || now.Before(l.retryAt)
}

func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if now.Before(l.retryAt) {
		return l.retryAt.Sub(now), false
	}
	if l.count >= l.limit {
		oldest := l.stamps[l.head]
		return oldest.Add(l.window).Sub(now), false
	}

	l.stamps[(l.head+l.count)%l.limit] = now
	l.count++
	return 0, true
}

// RecordSuccess clears adaptive backoff state after a request the provider
// served normally.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = 0
	l.retryAt = time.Time{}
}

// RecordThrottle registers a provider throttle signal. A positive hint (the
// provider's Retry-After) is honored as-is; otherwise the backoff doubles per
// consecutive throttle up to the cap.
func (l *Limiter) RecordThrottle(hint time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hint <= 0 {
		if l.backoff == 0 {
			l.backoff = l.backoffBase
		} else {
			l.backoff *= 2
		}
		if l.backoffCap > 0 && l.backoff > l.backoffCap {
			l.backoff = l.backoffCap
		}
		hint = l.backoff
	}
	l.retryAt = l.now().Add(hint)
}

// Prune drops timestamps that have aged out of the window. Acquire prunes on
// demand; this exists for the periodic sweep so an idle limiter does not hold
// stale history indefinitely.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for l.count > 0 && !l.stamps[l.head].After(cutoff) {
		l.head = (l.head + 1) % l.limit
		l.count--
	}
}

// Registry hands out one limiter per provider name.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter

	limit       int
	window      time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
}

// NewRegistry builds a registry whose limiters all share the same window
// parameters.
func NewRegistry(limit int, window, backoffBase, backoffCap time.Duration) *Registry {
	return &Registry{
		limiters:    make(map[string]*Limiter),
		limit:       limit,
		window:      window,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
	}
}

// Get returns the limiter for a provider, creating it on first use.
func (r *Registry) Get(provider string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.limiters[provider]
	if !ok {
		limiter = NewLimiter(r.limit, r.window, r.backoffBase, r.backoffCap)
		r.limiters[provider] = limiter
	}
	return limiter
}

// PruneAll sweeps stale timestamps from every limiter.
func (r *Registry) PruneAll() {
	r.mu.Lock()
	limiters := make([]*Limiter, 0, len(r.limiters))
	for _, limiter := range r.limiters {
		limiters = append(limiters, limiter)
	}
	r.mu.Unlock()

	for _, limiter := range limiters {
		limiter.Prune()
	}
}
