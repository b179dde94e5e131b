package repository

import (
	"context"

	"github.com/smallbiznis/cardforge/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var cards []domain.Card
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, rank_code, base_attack, base_defense, active, created_at, updated_at
		 FROM cards WHERE id IN ? AND active = ?`,
		ids,
		true,
	).Scan(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *repo) ListActiveByRank(ctx context.Context, db *gorm.DB, rank domain.Rank) ([]domain.Card, error) {
	var cards []domain.Card
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, rank_code, base_attack, base_defense, active, created_at, updated_at
		 FROM cards WHERE rank_code = ? AND active = ? ORDER BY id ASC`,
		rank,
		true,
	).Scan(&cards).Error
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, card *domain.Card) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "name", "rank_code", "base_attack", "base_defense", "active", "updated_at"}),
	}).Create(card).Error
}
