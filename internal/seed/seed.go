package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
	inventorydomain "github.com/smallbiznis/cardforge/internal/inventory/domain"
	userdomain "github.com/smallbiznis/cardforge/internal/user/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DemoPlayerID   = "demo-player"
	DemoOperatorID = "demo-operator"

	demoStartingCopies = 6
)

var demoCards = []struct {
	code    string
	name    string
	rank    catalogdomain.Rank
	attack  int
	defense int
}{
	{"ember_pup", "Ember Pup", catalogdomain.RankB, 110, 90},
	{"tide_sprite", "Tide Sprite", catalogdomain.RankB, 95, 120},
	{"moss_golem", "Moss Golem", catalogdomain.RankB, 80, 140},
	{"storm_hawk", "Storm Hawk", catalogdomain.RankA, 180, 130},
	{"iron_sentinel", "Iron Sentinel", catalogdomain.RankA, 150, 210},
	{"lunar_oracle", "Lunar Oracle", catalogdomain.RankS, 260, 240},
	{"magma_titan", "Magma Titan", catalogdomain.RankS, 310, 220},
	{"void_reaper", "Void Reaper", catalogdomain.RankSS, 420, 330},
	{"aurora_dragon", "Aurora Dragon", catalogdomain.RankSSS, 600, 520},
}

// EnsureDemoCatalog inserts the demo catalog, two demo users and a starting
// hand of B-rank cards. Existing rows are left untouched.
func EnsureDemoCatalog(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range demoCards {
			card := catalogdomain.Card{
				ID:          "card_" + c.code,
				Code:        c.code,
				Name:        c.name,
				Rank:        c.rank,
				BaseAttack:  c.attack,
				BaseDefense: c.defense,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&card).Error; err != nil {
				return fmt.Errorf("seed card %s: %w", c.code, err)
			}
		}

		users := []userdomain.User{
			{ID: DemoPlayerID, DisplayName: "Demo Player", Tier: userdomain.TierBronze, Role: userdomain.RolePlayer, CreatedAt: now, UpdatedAt: now},
			{ID: DemoOperatorID, DisplayName: "Demo Operator", Tier: userdomain.TierDiamond, Role: userdomain.RoleOperator, CreatedAt: now, UpdatedAt: now},
		}
		for i := range users {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users[i]).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", users[i].ID, err)
			}
		}

		for _, c := range demoCards {
			if c.rank != catalogdomain.RankB {
				continue
			}
			entry := inventorydomain.Entry{
				UserID:          DemoPlayerID,
				CardID:          "card_" + c.code,
				Count:           demoStartingCopies,
				FirstObtainedAt: now,
				LastObtainedAt:  now,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
				return fmt.Errorf("seed inventory %s: %w", entry.CardID, err)
			}
		}
		return nil
	})
}
