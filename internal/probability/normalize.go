package probability

import (
	"math"
	"sort"
)

// Normalize drops non-positive and non-finite weights and scales the rest to sum to 1.
// Output is ordered by rank ordinal.
func Normalize(candidates []Candidate) ([]Candidate, error) {
	kept := make([]Candidate, 0, len(candidates))
	sum := 0.0
	for _, c := range candidates {
		if !(c.Weight > 0) || math.IsInf(c.Weight, 0) {
			continue
		}
		kept = append(kept, c)
		sum += c.Weight
	}
	if len(kept) == 0 || sum <= 0 {
		return nil, ErrEmptyCandidates
	}
	for i := range kept {
		kept[i].Weight /= sum
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Rank.Ordinal() < kept[j].Rank.Ordinal()
	})
	return kept, nil
}

// Sample picks a candidate by cumulative probability. roll must be in [0, 1).
// Candidates must already be normalized.
func Sample(candidates []Candidate, roll float64) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrEmptyCandidates
	}
	if roll < 0 || roll >= 1 || math.IsNaN(roll) {
		return Candidate{}, ErrInvalidRoll
	}
	cumulative := 0.0
	for _, c := range candidates {
		cumulative += c.Weight
		if roll < cumulative {
			return c, nil
		}
	}
	// float rounding can leave cumulative a hair under 1
	return candidates[len(candidates)-1], nil
}
