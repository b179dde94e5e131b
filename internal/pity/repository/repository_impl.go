package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/cardforge/internal/pity/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID string) (domain.Counter, error) {
	var rows []domain.Counter
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, fusion_pity_count, last_fusion_at, updated_at
		 FROM pity_counters WHERE user_id = ?`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return domain.Counter{}, err
	}
	if len(rows) == 0 {
		return domain.Counter{UserID: userID}, nil
	}
	return rows[0], nil
}

func (r *repo) Reset(ctx context.Context, db *gorm.DB, userID string, at time.Time) error {
	return r.upsert(ctx, db, userID, at, 0, map[string]interface{}{
		"fusion_pity_count": 0,
		"last_fusion_at":    at,
		"updated_at":        at,
	})
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, userID string, at time.Time) error {
	return r.upsert(ctx, db, userID, at, 1, map[string]interface{}{
		"fusion_pity_count": gorm.Expr("pity_counters.fusion_pity_count + 1"),
		"last_fusion_at":    at,
		"updated_at":        at,
	})
}

func (r *repo) upsert(ctx context.Context, db *gorm.DB, userID string, at time.Time, initial int, onConflict map[string]interface{}) error {
	row := domain.Counter{
		UserID:          userID,
		FusionPityCount: initial,
		LastFusionAt:    &at,
		UpdatedAt:       at,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(onConflict),
	}).Create(&row).Error
}
