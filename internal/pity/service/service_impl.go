package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/pity/domain"
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
		log:   p.Log.Named("pity.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, userID string) (domain.Counter, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Counter{}, domain.ErrInvalidUserID
	}
	counter, err := s.repo.Get(ctx, s.db, userID)
	if err != nil {
		return domain.Counter{}, fmt.Errorf("get pity counter: %w", err)
	}
	return counter, nil
}

func (s *Service) Record(ctx context.Context, userID string, success bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	now := s.clock.Now()
	if success {
		return s.repo.Reset(ctx, s.db, userID, now)
	}
	return s.repo.Increment(ctx, s.db, userID, now)
}
