package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("inventory.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// List returns the user's non-empty holdings.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Entry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	entries, err := s.repo.Snapshot(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot inventory: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Count > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

// Grant credits n copies of cardID, e.g. from a gacha draw or an operator grant.
func (s *Service) Grant(ctx context.Context, userID, cardID string, n int) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	if n <= 0 {
		return domain.ErrInvalidAmount
	}
	if err := s.repo.Increment(ctx, s.db, userID, strings.TrimSpace(cardID), n, s.clock.Now()); err != nil {
		return fmt.Errorf("grant card: %w", err)
	}
	s.log.Debug("granted cards",
		zap.String("user_id", userID),
		zap.String("card_id", cardID),
		zap.Int("count", n),
	)
	return nil
}
