package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	FindByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]Card, error)
	ListActiveByRank(ctx context.Context, db *gorm.DB, rank Rank) ([]Card, error)
	Upsert(ctx context.Context, db *gorm.DB, card *Card) error
}

type Service interface {
	// GetByIDs returns active cards keyed by id. Unknown ids are absent.
	GetByIDs(ctx context.Context, ids []string) (map[string]Card, error)
	ListByRank(ctx context.Context, rank Rank) ([]Card, error)
}

var (
	ErrInvalidRank  = errors.New("invalid_rank")
	ErrCardNotFound = errors.New("card_not_found")
)
