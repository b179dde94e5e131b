package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is the durable record of one fusion. Exactly one row exists per FusionID.
type Entry struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	FusionID  string       `gorm:"type:varchar(128);not null;uniqueIndex:ux_fusion_logs_fusion_id"`
	UserID    string       `gorm:"type:varchar(64);not null;index:ix_fusion_logs_user_id_id,priority:1"`
	SessionID *string      `gorm:"type:varchar(128)"`

	MaterialsUsed datatypes.JSON `gorm:"not null"`
	ResultCardID  *string        `gorm:"type:varchar(64)"`
	ResultRank    *string        `gorm:"type:varchar(8)"`
	Success       bool           `gorm:"not null"`

	EngineVersion   string         `gorm:"type:varchar(64);not null"`
	PolicyVersion   string         `gorm:"type:varchar(16);not null"`
	SuccessRate     float64        `gorm:"not null"`
	Breakdown       datatypes.JSON `gorm:"not null"`
	Candidates      datatypes.JSON
	SelectedOutcome datatypes.JSON
	UserTier        string `gorm:"type:varchar(16);not null"`
	PityBefore      int    `gorm:"not null;default:0"`

	InventoryHashBefore string    `gorm:"type:varchar(64);not null"`
	InventoryHashAfter  string    `gorm:"type:varchar(64);not null"`
	HMACSignature       string    `gorm:"column:hmac_signature;type:varchar(128);not null"`
	SignatureKeyID      string    `gorm:"type:varchar(64);not null"`
	SignedAt            time.Time `gorm:"not null"`
	ProcessingTimeMs    int64     `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
}

func (Entry) TableName() string { return "fusion_logs" }

// Material is the snapshot of one consumed card stored in MaterialsUsed.
type Material struct {
	CardID string `json:"card_id"`
	Name   string `json:"name"`
	Rank   string `json:"rank"`
}

type Repository interface {
	// FindByFusionID returns nil when no row exists. lock takes a row lock inside tx.
	FindByFusionID(ctx context.Context, tx *gorm.DB, fusionID string, lock bool) (*Entry, error)
	// Insert fails with ErrDuplicate when the fusion id is already recorded.
	Insert(ctx context.Context, tx *gorm.DB, entry *Entry) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string, beforeID snowflake.ID, limit int) ([]Entry, error)
}

var (
	ErrDuplicate = errors.New("duplicate_fusion_id")
	ErrNotFound  = errors.New("fusion_not_found")
)
