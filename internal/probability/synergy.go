package probability

import (
	"math"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
)

// SynergyPolicy keeps the tiered success rate but derives target weights
// from the rank mix of the materials: base[R] * (1 + 2*sqrt(count(rank >= R) / n)).
type SynergyPolicy struct{}

func (SynergyPolicy) Version() PolicyVersion { return PolicyV3 }

func (SynergyPolicy) Compute(in Input) (Evaluation, error) {
	b := tieredRate(in)
	rate := finishRate(&b, b.Base+b.CardBonus+b.PityBonus+b.TierBonus)

	total := len(in.Materials)
	b.Synergy = make(map[catalogdomain.Rank]float64, len(TargetRanks))
	weights := make([]Candidate, len(tieredBaseWeights))
	for i, c := range tieredBaseWeights {
		synergy := 0.0
		if total > 0 {
			high := 0
			for _, m := range in.Materials {
				if m.Rank.Ordinal() >= c.Rank.Ordinal() {
					high++
				}
			}
			synergy = math.Sqrt(float64(high) / float64(total))
		}
		b.Synergy[c.Rank] = synergy
		weights[i] = Candidate{Rank: c.Rank, Weight: c.Weight * (1 + 2*synergy)}
	}

	candidates, err := Normalize(weights)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{PolicyVersion: PolicyV3, SuccessRate: rate, Breakdown: b, Candidates: candidates}, nil
}
