package probability

import (
	"testing"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func materials(ranks ...catalogdomain.Rank) []MaterialCard {
	out := make([]MaterialCard, len(ranks))
	for i, r := range ranks {
		out[i] = MaterialCard{CardID: "card_" + string(r), Rank: r}
	}
	return out
}

func repeat(rank catalogdomain.Rank, n int) []catalogdomain.Rank {
	out := make([]catalogdomain.Rank, n)
	for i := range out {
		out[i] = rank
	}
	return out
}

func weightSum(cs []Candidate) float64 {
	sum := 0.0
	for _, c := range cs {
		sum += c.Weight
	}
	return sum
}

func weightOf(cs []Candidate, rank catalogdomain.Rank) float64 {
	for _, c := range cs {
		if c.Rank == rank {
			return c.Weight
		}
	}
	return 0
}

func TestTieredRate(t *testing.T) {
	eval, err := TieredPolicy{}.Compute(Input{Materials: materials(repeat(catalogdomain.RankB, 3)...), UserTier: "bronze"})
	require.NoError(t, err)
	assert.Equal(t, PolicyV2, eval.PolicyVersion)
	assert.InDelta(t, 0.75, eval.SuccessRate, 1e-9)
	assert.InDelta(t, 0.15, eval.Breakdown.CardBonus, 1e-9)
	assert.False(t, eval.Breakdown.Clamped)
	assert.InDelta(t, 1, weightSum(eval.Candidates), 1e-9)
}

func TestDiamondTierAddsExactlyTwelvePoints(t *testing.T) {
	in := Input{Materials: materials(repeat(catalogdomain.RankB, 3)...), UserTier: "bronze"}
	bronze, err := TieredPolicy{}.Compute(in)
	require.NoError(t, err)
	in.UserTier = "diamond"
	diamond, err := TieredPolicy{}.Compute(in)
	require.NoError(t, err)

	assert.InDelta(t, 0.12, diamond.SuccessRate-bronze.SuccessRate, 1e-9)
	assert.InDelta(t, 0.12, diamond.Breakdown.TierBonus, 1e-12)
	assert.Zero(t, TierBonus("mythic"))
}

func TestRatesAreAlwaysBounded(t *testing.T) {
	policies := []Policy{LegacyPolicy{}, TieredPolicy{}, SynergyPolicy{}}
	inputs := []Input{
		{},
		{Materials: materials(catalogdomain.RankB)},
		{Materials: materials(repeat(catalogdomain.RankSSS, 10)...), UserTier: "diamond", Pity: 500},
		{Materials: materials(repeat(catalogdomain.RankA, 5)...), Pity: -3},
	}
	for _, p := range policies {
		for _, in := range inputs {
			eval, err := p.Compute(in)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, eval.SuccessRate, MinRate)
			assert.LessOrEqual(t, eval.SuccessRate, MaxRate)
			assert.InDelta(t, 1, weightSum(eval.Candidates), 1e-9)
		}
	}

	eval, err := TieredPolicy{}.Compute(inputs[2])
	require.NoError(t, err)
	assert.Equal(t, MaxRate, eval.SuccessRate)
	assert.True(t, eval.Breakdown.Clamped)
	assert.InDelta(t, 6.02, eval.Breakdown.RawRate, 1e-9)
}

func TestPoliciesAreDeterministic(t *testing.T) {
	in := Input{Materials: materials(catalogdomain.RankB, catalogdomain.RankA, catalogdomain.RankS, catalogdomain.RankA), UserTier: "gold", Pity: 4}
	for _, p := range DefaultRegistry().policies {
		first, err := p.Compute(in)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := p.Compute(in)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestLegacyRate(t *testing.T) {
	eval, err := LegacyPolicy{}.Compute(Input{Materials: materials(repeat(catalogdomain.RankB, 3)...), UserTier: "diamond", Pity: 9})
	require.NoError(t, err)
	assert.InDelta(t, 0.51, eval.SuccessRate, 1e-9)
	assert.Zero(t, eval.Breakdown.PityBonus)
	assert.Zero(t, eval.Breakdown.TierBonus)

	eval, err = LegacyPolicy{}.Compute(Input{Materials: materials(repeat(catalogdomain.RankSSS, 10)...)})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, eval.SuccessRate, 1e-9)
	assert.InDelta(t, 0.6, weightOf(eval.Candidates, catalogdomain.RankA), 1e-9)
}

func TestTieredShiftsTowardHigherRanks(t *testing.T) {
	low, err := TieredPolicy{}.Compute(Input{Materials: materials(repeat(catalogdomain.RankB, 4)...)})
	require.NoError(t, err)
	high, err := TieredPolicy{}.Compute(Input{Materials: materials(repeat(catalogdomain.RankSS, 4)...)})
	require.NoError(t, err)

	assert.InDelta(t, 0.55, weightOf(low.Candidates, catalogdomain.RankA), 1e-9)
	assert.Greater(t, weightOf(high.Candidates, catalogdomain.RankSSS), weightOf(low.Candidates, catalogdomain.RankSSS))
	assert.Less(t, weightOf(high.Candidates, catalogdomain.RankA), weightOf(low.Candidates, catalogdomain.RankA))
}

func TestSynergyWeights(t *testing.T) {
	eval, err := SynergyPolicy{}.Compute(Input{Materials: materials(catalogdomain.RankA, catalogdomain.RankA, catalogdomain.RankSSS)})
	require.NoError(t, err)
	assert.Equal(t, PolicyV3, eval.PolicyVersion)
	assert.InDelta(t, 1.0, eval.Breakdown.Synergy[catalogdomain.RankA], 1e-12)
	assert.InDelta(t, 0.57735026919, eval.Breakdown.Synergy[catalogdomain.RankSSS], 1e-9)
	assert.InDelta(t, 1.65/2.6196152422706632, weightOf(eval.Candidates, catalogdomain.RankA), 1e-9)
	assert.InDelta(t, 1, weightSum(eval.Candidates), 1e-9)

	// all-B materials have no synergy and fall back to the base distribution
	flat, err := SynergyPolicy{}.Compute(Input{Materials: materials(repeat(catalogdomain.RankB, 3)...)})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, weightOf(flat.Candidates, catalogdomain.RankA), 1e-9)

	tiered, err := TieredPolicy{}.Compute(Input{Materials: materials(catalogdomain.RankA, catalogdomain.RankA, catalogdomain.RankSSS)})
	require.NoError(t, err)
	assert.Equal(t, tiered.SuccessRate, eval.SuccessRate)
	assert.NotEqual(t, tiered.Candidates, eval.Candidates)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Get("v9")
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	eval, err := r.Compute(PolicyV3, Input{})
	require.NoError(t, err)
	assert.Equal(t, PolicyV3, eval.PolicyVersion)
}
