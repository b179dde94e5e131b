package domain

import (
	"fmt"
	"strings"
	"time"
)

// Rank is a card rarity. B < A < S < SS < SSS.
type Rank string

const (
	RankB   Rank = "B"
	RankA   Rank = "A"
	RankS   Rank = "S"
	RankSS  Rank = "SS"
	RankSSS Rank = "SSS"
)

// Ranks lists every rank in ascending order.
var Ranks = []Rank{RankB, RankA, RankS, RankSS, RankSSS}

// Ordinal returns 1 for B through 5 for SSS, and 0 for unknown ranks.
func (r Rank) Ordinal() int {
	switch r {
	case RankB:
		return 1
	case RankA:
		return 2
	case RankS:
		return 3
	case RankSS:
		return 4
	case RankSSS:
		return 5
	default:
		return 0
	}
}

func (r Rank) Valid() bool {
	return r.Ordinal() > 0
}

func (r Rank) String() string {
	return string(r)
}

// ParseRank accepts a case-insensitive rank label.
func ParseRank(raw string) (Rank, error) {
	r := Rank(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRank, raw)
	}
	return r, nil
}

type Card struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Code        string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name        string `gorm:"type:varchar(128);not null"`
	Rank        Rank   `gorm:"column:rank_code;type:varchar(8);not null;index"`
	BaseAttack  int    `gorm:"not null;default:0"`
	BaseDefense int    `gorm:"not null;default:0"`
	Active      bool   `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Card) TableName() string { return "cards" }
