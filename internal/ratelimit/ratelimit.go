// Package ratelimit implements fixed-window cooldown buckets keyed by scope
// and key, such as a command name and a user id.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// Policy configures the buckets of one scope.
type Policy struct {
	// Limit actions are allowed per Window.
	Limit  int
	Window time.Duration
	// Cooldown is the back-off Wait applies once the limit is hit. It shrinks
	// toward MinCooldown after ReductionThreshold consecutive limited calls.
	Cooldown           time.Duration
	MinCooldown        time.Duration
	ReductionThreshold int
}

var DefaultPolicy = Policy{
	Limit:              30,
	Window:             30 * time.Second,
	Cooldown:           2500 * time.Millisecond,
	MinCooldown:        2 * time.Second,
	ReductionThreshold: 5,
}

type bucket struct {
	mu              sync.Mutex
	actions         int
	windowStart     time.Time
	limitedCount    int
	currentCooldown time.Duration
}

type Limiter struct {
	mu       sync.RWMutex
	policies map[string]Policy
	buckets  map[string]map[string]*bucket // scope -> key -> bucket
	now      func() time.Time
}

func New() *Limiter {
	return &Limiter{
		policies: make(map[string]Policy),
		buckets:  make(map[string]map[string]*bucket),
		now:      time.Now,
	}
}

// SetPolicy configures scope. Existing buckets keep their counters.
func (l *Limiter) SetPolicy(scope string, p Policy) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[scope] = p
}

func (l *Limiter) policy(scope string) Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.policies[scope]; ok {
		return p
	}
	return DefaultPolicy
}

func (l *Limiter) bucket(scope, key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.buckets[scope]; !ok {
		l.buckets[scope] = make(map[string]*bucket)
	}
	b, ok := l.buckets[scope][key]
	if !ok {
		b = &bucket{windowStart: l.now()}
		l.buckets[scope][key] = b
	}
	return b
}

// Allow records an action and reports whether it is within the limit. When
// it is not, the returned duration is the time left until the window resets.
func (l *Limiter) Allow(scope, key string) (bool, time.Duration) {
	p := l.policy(scope)
	b := l.bucket(scope, key)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfExpired(p, now)
	if b.actions >= p.Limit {
		b.limited(p)
		return false, b.windowStart.Add(p.Window).Sub(now)
	}
	b.actions++
	return true, 0
}

// Wait records an action and, once the limit is hit, sleeps for the bucket's
// adaptive cooldown. It returns early with ctx's error when ctx ends.
func (l *Limiter) Wait(ctx context.Context, scope, key string) error {
	p := l.policy(scope)
	b := l.bucket(scope, key)

	b.mu.Lock()
	b.resetIfExpired(p, l.now())
	b.actions++
	var sleep time.Duration
	if b.actions > p.Limit {
		b.limited(p)
		sleep = b.currentCooldown
	}
	b.mu.Unlock()

	if sleep <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *bucket) resetIfExpired(p Policy, now time.Time) {
	if now.Sub(b.windowStart) >= p.Window {
		b.actions = 0
		b.limitedCount = 0
		b.currentCooldown = p.Cooldown
		b.windowStart = now
	}
}

func (b *bucket) limited(p Policy) {
	b.limitedCount++
	if b.currentCooldown == 0 {
		b.currentCooldown = p.Cooldown
	}
	if p.ReductionThreshold > 0 && b.limitedCount >= p.ReductionThreshold {
		factor := math.Min(float64(b.limitedCount-p.ReductionThreshold)/7.0, 1.0)
		reduced := p.Cooldown - time.Duration(factor*float64(p.Cooldown-p.MinCooldown))
		if reduced < p.MinCooldown {
			reduced = p.MinCooldown
		}
		b.currentCooldown = reduced
	}
}

// Reset forgets the bucket of key in scope.
func (l *Limiter) Reset(scope, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets[scope], key)
}

// Prune drops buckets whose window ended before now, so per-IP scopes do
// not grow without bound.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for scope, keys := range l.buckets {
		p, ok := l.policies[scope]
		if !ok {
			p = DefaultPolicy
		}
		for key, b := range keys {
			b.mu.Lock()
			expired := now.Sub(b.windowStart) >= p.Window
			b.mu.Unlock()
			if expired {
				delete(keys, key)
				n++
			}
		}
	}
	return n
}
