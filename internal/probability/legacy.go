package probability

import (
	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
)

// LegacyPolicy is the original flat-bonus formula. It ignores pity and tier.
type LegacyPolicy struct{}

func (LegacyPolicy) Version() PolicyVersion { return PolicyV1 }

func (LegacyPolicy) Compute(in Input) (Evaluation, error) {
	n := len(in.Materials)
	b := Breakdown{
		Base:      0.5,
		CardBonus: clampRange(0.1*float64(n-3), 0, 0.3),
		RankBonus: 0.01 * avgRankOrdinal(in.Materials),
	}
	rate := finishRate(&b, b.Base+b.CardBonus+b.RankBonus)

	candidates, err := Normalize([]Candidate{
		{Rank: catalogdomain.RankA, Weight: 0.6},
		{Rank: catalogdomain.RankS, Weight: 0.3},
		{Rank: catalogdomain.RankSS, Weight: 0.08},
		{Rank: catalogdomain.RankSSS, Weight: 0.02},
	})
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{PolicyVersion: PolicyV1, SuccessRate: rate, Breakdown: b, Candidates: candidates}, nil
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
