package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)}
	l := New()
	l.now = clock.now
	return l, clock
}

func TestAllowFixedWindow(t *testing.T) {
	l, clock := newTestLimiter()
	l.SetPolicy("api", Policy{Limit: 2, Window: time.Minute})

	ok, _ := l.Allow("api", "1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.Allow("api", "1.2.3.4")
	assert.True(t, ok)

	clock.advance(20 * time.Second)
	ok, retry := l.Allow("api", "1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	ok, _ = l.Allow("api", "5.6.7.8")
	assert.True(t, ok, "keys are independent")

	clock.advance(40 * time.Second)
	ok, _ = l.Allow("api", "1.2.3.4")
	assert.True(t, ok)
}

func TestScopesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	l.SetPolicy("mon_defi", Policy{Limit: 1, Window: time.Hour})

	ok, _ := l.Allow("mon_defi", "42")
	require.True(t, ok)
	ok, _ = l.Allow("mon_defi", "42")
	assert.False(t, ok)
	ok, _ = l.Allow("soumettre_defi", "42")
	assert.True(t, ok, "unconfigured scopes use the default policy")
}

func TestAdaptiveCooldownShrinks(t *testing.T) {
	p := Policy{Limit: 1, Window: time.Hour, Cooldown: 10 * time.Second, MinCooldown: 3 * time.Second, ReductionThreshold: 2}
	b := &bucket{}

	b.limited(p)
	assert.Equal(t, 10*time.Second, b.currentCooldown)
	b.limited(p)
	assert.Equal(t, 10*time.Second, b.currentCooldown)
	for i := 0; i < 7; i++ {
		b.limited(p)
	}
	assert.Equal(t, 3*time.Second, b.currentCooldown)
}

func TestWaitHonoursContext(t *testing.T) {
	l, _ := newTestLimiter()
	l.SetPolicy("dm", Policy{Limit: 1, Window: time.Hour, Cooldown: time.Hour, MinCooldown: time.Hour})

	require.NoError(t, l.Wait(context.Background(), "dm", "bulk"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx, "dm", "bulk"), context.Canceled)
}

func TestPrune(t *testing.T) {
	l, clock := newTestLimiter()
	l.SetPolicy("api", Policy{Limit: 5, Window: time.Minute})
	l.Allow("api", "a")
	l.Allow("api", "b")

	clock.advance(2 * time.Minute)
	l.Allow("api", "c")

	assert.Equal(t, 2, l.Prune())
	l.Reset("api", "c")
	assert.Zero(t, l.Prune())
}
