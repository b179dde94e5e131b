package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/cardforge/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("user.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidUserID
	}

	u, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return &domain.User{ID: id, Tier: domain.TierBronze, Role: domain.RolePlayer}, nil
	}
	u.Tier = domain.ParseTier(string(u.Tier))
	if strings.TrimSpace(u.Role) == "" {
		u.Role = domain.RolePlayer
	}
	return u, nil
}
