package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Tier is the player membership tier feeding the fusion tier bonus.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

func (t Tier) Valid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond:
		return true
	default:
		return false
	}
}

// ParseTier falls back to bronze for unknown labels.
func ParseTier(raw string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return TierBronze
	}
	return t
}

const (
	RolePlayer   = "player"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

type User struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	DisplayName string `gorm:"type:varchar(128)"`
	Tier        Tier   `gorm:"type:varchar(16);not null;default:bronze"`
	Role        string `gorm:"type:varchar(16);not null;default:player"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
	Upsert(ctx context.Context, db *gorm.DB, user *User) error
}

type Service interface {
	// Get returns the stored profile, or a bronze player for ids not provisioned yet.
	Get(ctx context.Context, id string) (*User, error)
}

var ErrInvalidUserID = errors.New("invalid_user_id")
