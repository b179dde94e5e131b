package cache

import (
	"strings"
	"time"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
)

const (
	defaultRankTTL = time.Minute
	defaultCardTTL = 5 * time.Minute
)

// CatalogCache stores hot-path catalog lookups for fusion commits.
type CatalogCache interface {
	GetRank(rank catalogdomain.Rank) ([]catalogdomain.Card, bool)
	SetRank(rank catalogdomain.Rank, cards []catalogdomain.Card)
	GetCard(id string) (catalogdomain.Card, bool)
	SetCard(card catalogdomain.Card)
	Invalidate()
}

type catalogCache struct {
	ranks   Cache[catalogdomain.Rank, []catalogdomain.Card]
	cards   Cache[string, catalogdomain.Card]
	rankTTL time.Duration
	cardTTL time.Duration
}

// NewCatalogCache returns an in-memory cache for catalog reads.
func NewCatalogCache() CatalogCache {
	return &catalogCache{
		ranks:   NewTTLCache[catalogdomain.Rank, []catalogdomain.Card](),
		cards:   NewTTLCache[string, catalogdomain.Card](),
		rankTTL: defaultRankTTL,
		cardTTL: defaultCardTTL,
	}
}

func (c *catalogCache) GetRank(rank catalogdomain.Rank) ([]catalogdomain.Card, bool) {
	cards, ok := c.ranks.Get(rank)
	if !ok {
		return nil, false
	}
	out := make([]catalogdomain.Card, len(cards))
	copy(out, cards)
	return out, true
}

func (c *catalogCache) SetRank(rank catalogdomain.Rank, cards []catalogdomain.Card) {
	if !rank.Valid() {
		return
	}
	stored := make([]catalogdomain.Card, len(cards))
	copy(stored, cards)
	c.ranks.Set(rank, stored, c.rankTTL)
}

func (c *catalogCache) GetCard(id string) (catalogdomain.Card, bool) {
	return c.cards.Get(strings.TrimSpace(id))
}

func (c *catalogCache) SetCard(card catalogdomain.Card) {
	if strings.TrimSpace(card.ID) == "" {
		return
	}
	c.cards.Set(card.ID, card, c.cardTTL)
}

func (c *catalogCache) Invalidate() {
	c.ranks.Purge()
	c.cards.Purge()
}
