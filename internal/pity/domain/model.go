package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Counter is a per-user streak of consecutive failed fusions.
type Counter struct {
	UserID          string     `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	FusionPityCount int        `gorm:"not null;default:0" json:"fusion_pity_count"`
	LastFusionAt    *time.Time `json:"last_fusion_at,omitempty"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (Counter) TableName() string { return "pity_counters" }

type Repository interface {
	// Get returns a zero counter for users without a row.
	Get(ctx context.Context, db *gorm.DB, userID string) (Counter, error)
	Reset(ctx context.Context, db *gorm.DB, userID string, at time.Time) error
	Increment(ctx context.Context, db *gorm.DB, userID string, at time.Time) error
}

type Service interface {
	Get(ctx context.Context, userID string) (Counter, error)
	// Record applies a fusion result: reset on success, +1 on failure.
	Record(ctx context.Context, userID string, success bool) error
}

var ErrInvalidUserID = errors.New("invalid_user_id")
