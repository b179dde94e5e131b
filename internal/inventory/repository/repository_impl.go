package repository

import (
	"context"
	"sort"
	"time"

	"github.com/smallbiznis/cardforge/internal/inventory/domain"
	"github.com/smallbiznis/cardforge/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockEntries(ctx context.Context, tx *gorm.DB, userID string, cardIDs []string) ([]domain.Entry, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(cardIDs))
	copy(ids, cardIDs)
	sort.Strings(ids)

	var entries []domain.Entry
	err := tx.WithContext(ctx).Raw(
		`SELECT user_id, card_id, quantity, first_obtained_at, last_obtained_at
		 FROM user_cards
		 WHERE user_id = ? AND card_id IN ?
		 ORDER BY card_id ASC`+db.LockSuffix(tx),
		userID,
		ids,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) Decrement(ctx context.Context, tx *gorm.DB, userID, cardID string, n int) error {
	if n <= 0 {
		return domain.ErrInvalidAmount
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE user_cards
		 SET quantity = quantity - ?
		 WHERE user_id = ? AND card_id = ? AND quantity >= ?`,
		n,
		userID,
		cardID,
		n,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInsufficient
	}
	return nil
}

func (r *repo) Increment(ctx context.Context, tx *gorm.DB, userID, cardID string, n int, at time.Time) error {
	if n <= 0 {
		return domain.ErrInvalidAmount
	}
	entry := domain.Entry{
		UserID:          userID,
		CardID:          cardID,
		Count:           n,
		FirstObtainedAt: at,
		LastObtainedAt:  at,
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "card_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":         gorm.Expr("user_cards.quantity + ?", n),
			"last_obtained_at": at,
		}),
	}).Create(&entry).Error
}

func (r *repo) Snapshot(ctx context.Context, db *gorm.DB, userID string) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, card_id, quantity, first_obtained_at, last_obtained_at
		 FROM user_cards
		 WHERE user_id = ?
		 ORDER BY card_id ASC`,
		userID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
