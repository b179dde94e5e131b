package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyFormat = "%s:%s"

const (
	decisionAllowed  = "allowed"
	decisionDenied   = "denied"
	decisionFailOpen = "fail_open"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the window resets, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Store   Store
	Metrics *metrics.FusionMetrics `optional:"true"`
	OTel    *metrics.Metrics       `optional:"true"`
}

// Limiter enforces per-(user, action) fixed windows.
type Limiter struct {
	enabled bool
	limits  map[string]config.ActionLimit
	store   Store
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.FusionMetrics
	otel    *metrics.Metrics
}

func NewLimiter(p Params) *Limiter {
	limits := make(map[string]config.ActionLimit, len(p.Config.RateLimit.Actions))
	for action, limit := range p.Config.RateLimit.Actions {
		limits[strings.TrimSpace(action)] = limit
	}
	return &Limiter{
		enabled: p.Config.RateLimit.Enabled,
		limits:  limits,
		store:   p.Store,
		clock:   p.Clock,
		log:     p.Log.Named("ratelimit"),
		metrics: p.Metrics,
		otel:    p.OTel,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// Check consumes one unit of userID's allowance for action.
// Store failures fail open and are logged.
func (l *Limiter) Check(ctx context.Context, userID, action string) (Result, error) {
	action = strings.TrimSpace(action)
	limit, ok := l.limits[action]
	if !ok || limit.Limit <= 0 || limit.Window <= 0 {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	now := l.clock.Now()
	if !l.Enabled() {
		return Result{Allowed: true, Limit: limit.Limit, Remaining: limit.Limit, ResetAt: now.Add(limit.Window)}, nil
	}

	count, resetAt, err := l.store.Increment(ctx, key(userID, action), limit.Window, now)
	if err != nil {
		l.log.Warn("rate limit store unavailable, allowing request",
			zap.String("action", action),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		l.record(ctx, action, decisionFailOpen)
		return Result{Allowed: true, Limit: limit.Limit, Remaining: limit.Limit, ResetAt: now.Add(limit.Window)}, nil
	}

	remaining := limit.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   count <= int64(limit.Limit),
		Limit:     limit.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if res.Allowed {
		l.record(ctx, action, decisionAllowed)
	} else {
		l.record(ctx, action, decisionDenied)
	}
	return res, nil
}

// Peek reports the current allowance without consuming it.
func (l *Limiter) Peek(ctx context.Context, userID, action string) (Result, error) {
	action = strings.TrimSpace(action)
	limit, ok := l.limits[action]
	if !ok || limit.Limit <= 0 || limit.Window <= 0 {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	now := l.clock.Now()
	full := Result{Allowed: true, Limit: limit.Limit, Remaining: limit.Limit, ResetAt: now.Add(limit.Window)}
	if !l.Enabled() {
		return full, nil
	}

	count, resetAt, err := l.store.Get(ctx, key(userID, action), now)
	if err != nil {
		return Result{}, err
	}
	if resetAt.IsZero() {
		return full, nil
	}
	remaining := limit.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: remaining > 0, Limit: limit.Limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// Reset clears userID's window for action.
func (l *Limiter) Reset(ctx context.Context, userID, action string) error {
	action = strings.TrimSpace(action)
	if _, ok := l.limits[action]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return l.store.Reset(ctx, key(userID, action))
}

// Actions lists the configured action classes in name order.
func (l *Limiter) Actions() []string {
	actions := make([]string, 0, len(l.limits))
	for action, limit := range l.limits {
		if limit.Limit > 0 && limit.Window > 0 {
			actions = append(actions, action)
		}
	}
	sort.Strings(actions)
	return actions
}

func (l *Limiter) record(ctx context.Context, action, decision string) {
	l.metrics.IncRateLimit(action, decision)
	if l.otel == nil {
		return
	}
	if decision == decisionDenied {
		l.otel.RecordRateLimitDenied(ctx, action, "window_exhausted")
		return
	}
	l.otel.RecordRateLimitAllowed(ctx, action)
}

func key(userID, action string) string {
	return fmt.Sprintf(keyFormat, action, strings.TrimSpace(userID))
}
