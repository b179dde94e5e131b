package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a fusion failure for callers.
type Kind string

const (
	KindUnauthenticated       Kind = "unauthenticated"
	KindInvalidMaterials      Kind = "invalid_materials"
	KindInvalidRequest        Kind = "invalid_request"
	KindInsufficientMaterials Kind = "insufficient_materials"
	KindRateLimited           Kind = "rate_limited"
	KindConflict              Kind = "conflict"
	KindNotFound              Kind = "not_found"
	KindStorageUnavailable    Kind = "storage_unavailable"
	KindInternal              Kind = "internal"
)

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrInvalidMaterials      = errors.New("invalid_materials")
	ErrInvalidRequest        = errors.New("invalid_request")
	ErrInsufficientMaterials = errors.New("insufficient_materials")
	ErrRateLimited           = errors.New("rate_limited")
	ErrConflict              = errors.New("conflict")
	ErrNotFound              = errors.New("fusion_not_found")
	ErrStorageUnavailable    = errors.New("storage_unavailable")
	ErrInternal              = errors.New("internal")
)

var sentinels = map[Kind]error{
	KindUnauthenticated:       ErrUnauthenticated,
	KindInvalidMaterials:      ErrInvalidMaterials,
	KindInvalidRequest:        ErrInvalidRequest,
	KindInsufficientMaterials: ErrInsufficientMaterials,
	KindRateLimited:           ErrRateLimited,
	KindConflict:              ErrConflict,
	KindNotFound:              ErrNotFound,
	KindStorageUnavailable:    ErrStorageUnavailable,
	KindInternal:              ErrInternal,
}

// Error is the only error type returned across the orchestrator boundary.
// errors.Is matches both the kind sentinel and the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Retryable reports whether resubmitting with the same fusion id may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindStorageUnavailable, KindInternal, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindOf returns KindInternal for errors that did not come from this package.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}
