// Package probability computes fusion success rates and target-rank
// distributions. Policies are pure; only Draw consumes randomness.
package probability

import (
	"errors"
	"math"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
)

// PolicyVersion tags an Evaluation with the formula that produced it.
type PolicyVersion string

const (
	PolicyV1 PolicyVersion = "v1"
	PolicyV2 PolicyVersion = "v2"
	PolicyV3 PolicyVersion = "v3"
)

func (v PolicyVersion) String() string { return string(v) }

const (
	MinRate = 0.05
	MaxRate = 0.95
)

var (
	ErrEmptyCandidates = errors.New("empty_candidates")
	ErrUnknownPolicy   = errors.New("unknown_policy_version")
	ErrInvalidRoll     = errors.New("invalid_roll")
)

type MaterialCard struct {
	CardID string
	Rank   catalogdomain.Rank
}

type Input struct {
	Materials []MaterialCard
	UserTier  string
	Pity      int
}

// Breakdown carries every policy's components; fields a policy does not use stay zero.
type Breakdown struct {
	Base      float64                        `json:"base"`
	CardBonus float64                        `json:"card_bonus"`
	RankBonus float64                        `json:"rank_bonus"`
	PityBonus float64                        `json:"pity_bonus"`
	TierBonus float64                        `json:"tier_bonus"`
	RawRate   float64                        `json:"raw_rate"`
	Clamped   bool                           `json:"clamped"`
	RankShift float64                        `json:"rank_shift"`
	Synergy   map[catalogdomain.Rank]float64 `json:"synergy"`
}

type Candidate struct {
	Rank   catalogdomain.Rank `json:"rank"`
	Weight float64            `json:"weight"`
}

// Evaluation is the deterministic part of a fusion outcome.
type Evaluation struct {
	PolicyVersion PolicyVersion `json:"policy_version"`
	SuccessRate   float64       `json:"success_rate"`
	Breakdown     Breakdown     `json:"breakdown"`
	Candidates    []Candidate   `json:"candidates"`
}

// Policy computes an Evaluation. Identical inputs yield identical results.
type Policy interface {
	Version() PolicyVersion
	Compute(in Input) (Evaluation, error)
}

// TargetRanks are the ranks a successful fusion can produce.
var TargetRanks = []catalogdomain.Rank{
	catalogdomain.RankA,
	catalogdomain.RankS,
	catalogdomain.RankSS,
	catalogdomain.RankSSS,
}

var tierBonus = map[string]float64{
	"bronze":   0,
	"silver":   0.03,
	"gold":     0.06,
	"platinum": 0.09,
	"diamond":  0.12,
}

// TierBonus is zero for unknown tiers.
func TierBonus(tier string) float64 {
	return tierBonus[tier]
}

var statMultipliers = map[catalogdomain.Rank]float64{
	catalogdomain.RankA:   1.1,
	catalogdomain.RankS:   1.25,
	catalogdomain.RankSS:  1.5,
	catalogdomain.RankSSS: 2.0,
}

// StatMultipliers scale the base stats of the produced card.
type StatMultipliers struct {
	Attack  float64 `json:"attack"`
	Defense float64 `json:"defense"`
}

func MultipliersFor(rank catalogdomain.Rank) StatMultipliers {
	m, ok := statMultipliers[rank]
	if !ok {
		m = 1
	}
	return StatMultipliers{Attack: m, Defense: m}
}

// Clamp bounds a rate to [MinRate, MaxRate]. NaN maps to MinRate.
func Clamp(rate float64) float64 {
	if math.IsNaN(rate) || rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

func avgRankOrdinal(materials []MaterialCard) float64 {
	if len(materials) == 0 {
		return 0
	}
	sum := 0
	for _, m := range materials {
		sum += m.Rank.Ordinal()
	}
	return float64(sum) / float64(len(materials))
}

func finishRate(b *Breakdown, raw float64) float64 {
	b.RawRate = raw
	rate := Clamp(raw)
	b.Clamped = rate != raw
	return rate
}
