package cache

import (
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Delete("forever")
	_, ok = c.Get("forever")
	assert.False(t, ok)
}

func TestCatalogCacheCopiesRankLists(t *testing.T) {
	c := NewCatalogCache()
	cards := []catalogdomain.Card{{ID: "c1", Rank: catalogdomain.RankS}}
	c.SetRank(catalogdomain.RankS, cards)
	cards[0].ID = "mutated"

	got, ok := c.GetRank(catalogdomain.RankS)
	assert.True(t, ok)
	assert.Equal(t, "c1", got[0].ID)

	c.SetRank(catalogdomain.Rank("Z"), cards)
	_, ok = c.GetRank(catalogdomain.Rank("Z"))
	assert.False(t, ok)

	c.Invalidate()
	_, ok = c.GetRank(catalogdomain.RankS)
	assert.False(t, ok)
}
