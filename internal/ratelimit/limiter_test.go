package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, store Store) (*Limiter, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(epoch)
	cfg := config.Config{RateLimit: config.RateLimitConfig{
		Enabled: true,
		Actions: map[string]config.ActionLimit{
			config.ActionFusion: {Limit: 10, Window: time.Minute},
			config.ActionGacha:  {Limit: 30, Window: time.Minute},
		},
	}}
	return NewLimiter(Params{
		Config:  cfg,
		Log:     zap.NewNop(),
		Clock:   clk,
		Store:   store,
		Metrics: metrics.NewFusionMetrics(prometheus.NewRegistry(), metrics.Config{}),
	}), clk
}

func TestEleventhFusionIsDenied(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	l, _ := newTestLimiter(t, store)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		res, err := l.Check(ctx, "u1", config.ActionFusion)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 10-i, res.Remaining)
		assert.Equal(t, 10, res.Limit)
	}

	res, err := l.Check(ctx, "u1", config.ActionFusion)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, epoch.Add(time.Minute), res.ResetAt)
	assert.Equal(t, time.Minute, res.RetryAfter(epoch))

	other, err := l.Check(ctx, "u2", config.ActionFusion)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	gacha, err := l.Check(ctx, "u1", config.ActionGacha)
	require.NoError(t, err)
	assert.True(t, gacha.Allowed)
	assert.Equal(t, 29, gacha.Remaining)
}

func TestWindowResets(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	l, clk := newTestLimiter(t, store)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := l.Check(ctx, "u1", config.ActionFusion)
		require.NoError(t, err)
	}
	clk.Advance(61 * time.Second)

	res, err := l.Check(ctx, "u1", config.ActionFusion)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestUnknownAction(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	l, _ := newTestLimiter(t, store)

	_, err := l.Check(context.Background(), "u1", "trade")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration, time.Time) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func (brokenStore) Get(context.Context, string, time.Time) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func (brokenStore) Reset(context.Context, string) error { return nil }

func TestStoreFailureFailsOpen(t *testing.T) {
	l, _ := newTestLimiter(t, brokenStore{})
	for i := 0; i < 20; i++ {
		res, err := l.Check(context.Background(), "u1", config.ActionFusion)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	l, _ := newTestLimiter(t, store)
	l.enabled = false

	for i := 0; i < 20; i++ {
		res, err := l.Check(context.Background(), "u1", config.ActionFusion)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	count, _, err := store.Get(context.Background(), key("u1", config.ActionFusion), epoch)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentChecksNeverOverAdmit(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	l, _ := newTestLimiter(t, store)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(context.Background(), "u1", config.ActionFusion)
			if err != nil || !res.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestPeekAndReset(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	l, _ := newTestLimiter(t, store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.Check(ctx, "u1", config.ActionFusion)
		require.NoError(t, err)
	}
	peek, err := l.Peek(ctx, "u1", config.ActionFusion)
	require.NoError(t, err)
	assert.Equal(t, 6, peek.Remaining)

	assert.Equal(t, epoch.Add(time.Minute), peek.ResetAt)

	require.NoError(t, l.Reset(ctx, "u1", config.ActionFusion))
	peek, err = l.Peek(ctx, "u1", config.ActionFusion)
	require.NoError(t, err)
	assert.Equal(t, 10, peek.Remaining)
	assert.True(t, peek.Allowed)

	assert.ErrorIs(t, l.Reset(ctx, "u1", "trade"), ErrUnknownAction)
	_, err = l.Peek(ctx, "u1", "trade")
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, []string{config.ActionFusion, config.ActionGacha}, l.Actions())
}
