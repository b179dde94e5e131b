package probability

import (
	"math"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
)

var tieredBaseWeights = []Candidate{
	{Rank: catalogdomain.RankA, Weight: 0.55},
	{Rank: catalogdomain.RankS, Weight: 0.30},
	{Rank: catalogdomain.RankSS, Weight: 0.12},
	{Rank: catalogdomain.RankSSS, Weight: 0.03},
}

// TieredPolicy adds material, pity and tier bonuses to a 0.6 base and shifts
// the target distribution upward as the average material rank rises.
type TieredPolicy struct{}

func (TieredPolicy) Version() PolicyVersion { return PolicyV2 }

func (TieredPolicy) Compute(in Input) (Evaluation, error) {
	b := tieredRate(in)
	rate := finishRate(&b, b.Base+b.CardBonus+b.PityBonus+b.TierBonus)

	// shift is 0 for all-B materials and 1 for all-SSS
	shift := 0.0
	if avg := avgRankOrdinal(in.Materials); avg > 0 {
		shift = (avg - 1) / 4
	}
	b.RankShift = shift

	weights := make([]Candidate, len(tieredBaseWeights))
	for i, c := range tieredBaseWeights {
		factor := 1.0
		switch c.Rank {
		case catalogdomain.RankA:
			factor = 1 - 0.5*shift
		case catalogdomain.RankSS:
			factor = 1 + shift
		case catalogdomain.RankSSS:
			factor = 1 + 2*shift
		}
		weights[i] = Candidate{Rank: c.Rank, Weight: c.Weight * factor}
	}
	candidates, err := Normalize(weights)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{PolicyVersion: PolicyV2, SuccessRate: rate, Breakdown: b, Candidates: candidates}, nil
}

func tieredRate(in Input) Breakdown {
	pity := in.Pity
	if pity < 0 {
		pity = 0
	}
	return Breakdown{
		Base:      0.6,
		CardBonus: math.Min(0.3, float64(len(in.Materials))*0.05),
		PityBonus: float64(pity) * 0.01,
		TierBonus: TierBonus(in.UserTier),
	}
}
