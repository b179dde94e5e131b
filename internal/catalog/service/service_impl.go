package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/cardforge/internal/cache"
	"github.com/smallbiznis/cardforge/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.CatalogCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.CatalogCache
}

func New(p Params) domain.Service {
	c := p.Cache
	if c == nil {
		c = cache.NewCatalogCache()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		cache: c,
	}
}

func (s *Service) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Card, error) {
	out := make(map[string]domain.Card, len(ids))
	missing := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if card, ok := s.cache.GetCard(id); ok {
			out[id] = card
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	cards, err := s.repo.FindByIDs(ctx, s.db, missing)
	if err != nil {
		return nil, fmt.Errorf("find cards: %w", err)
	}
	for _, card := range cards {
		s.cache.SetCard(card)
		out[card.ID] = card
	}
	return out, nil
}

func (s *Service) ListByRank(ctx context.Context, rank domain.Rank) ([]domain.Card, error) {
	if !rank.Valid() {
		return nil, domain.ErrInvalidRank
	}
	if cards, ok := s.cache.GetRank(rank); ok {
		return cards, nil
	}

	cards, err := s.repo.ListActiveByRank(ctx, s.db, rank)
	if err != nil {
		return nil, fmt.Errorf("list cards by rank: %w", err)
	}
	// empty ranks are not cached so a later catalog load is picked up
	if len(cards) > 0 {
		s.cache.SetRank(rank, cards)
	}
	return cards, nil
}
