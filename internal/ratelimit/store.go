package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Store keeps fixed-window counters keyed by bucket.
type Store interface {
	// Increment adds one hit to key and returns the hit count for the current
	// window and the instant the window resets. The window starts on the first hit.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error)
	// Get returns the current count without consuming; zero when no live window exists.
	Get(ctx context.Context, key string, now time.Time) (int64, time.Time, error)
	Reset(ctx context.Context, key string) error
}

var (
	ErrEmptyKey       = errors.New("rate_limit_key_empty")
	ErrInvalidWindow  = errors.New("rate_limit_window_invalid")
	ErrUnknownAction  = errors.New("rate_limit_unknown_action")
	ErrStoreNotConfig = errors.New("rate_limit_store_not_configured")
)

func validate(key string, window time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
