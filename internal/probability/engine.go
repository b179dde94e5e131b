package probability

import (
	"fmt"

	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
)

// Outcome is the result of drawing against an Evaluation.
type Outcome struct {
	Success      bool
	Roll         float64
	RankRoll     float64
	SelectedRank catalogdomain.Rank
	Multipliers  StatMultipliers
}

// Registry maps versions to policies.
type Registry struct {
	policies map[PolicyVersion]Policy
}

func NewRegistry(policies ...Policy) *Registry {
	r := &Registry{policies: make(map[PolicyVersion]Policy, len(policies))}
	for _, p := range policies {
		r.policies[p.Version()] = p
	}
	return r
}

// DefaultRegistry holds v1, v2 and v3.
func DefaultRegistry() *Registry {
	return NewRegistry(LegacyPolicy{}, TieredPolicy{}, SynergyPolicy{})
}

func (r *Registry) Get(version PolicyVersion) (Policy, error) {
	p, ok := r.policies[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, version)
	}
	return p, nil
}

// Compute evaluates in under version.
func (r *Registry) Compute(version PolicyVersion, in Input) (Evaluation, error) {
	p, err := r.Get(version)
	if err != nil {
		return Evaluation{}, err
	}
	return p.Compute(in)
}

// Draw decides success with one draw (success iff roll < rate) and, on
// success, picks the target rank with a second draw over the normalized candidates.
func Draw(eval Evaluation, src Source) (Outcome, error) {
	roll, err := src.Float64()
	if err != nil {
		return Outcome{}, err
	}
	if roll < 0 || roll >= 1 {
		return Outcome{}, ErrInvalidRoll
	}
	out := Outcome{Roll: roll, Success: roll < Clamp(eval.SuccessRate)}
	if !out.Success {
		return out, nil
	}

	candidates, err := Normalize(eval.Candidates)
	if err != nil {
		return Outcome{}, err
	}
	rankRoll, err := src.Float64()
	if err != nil {
		return Outcome{}, err
	}
	picked, err := Sample(candidates, rankRoll)
	if err != nil {
		return Outcome{}, err
	}
	out.RankRoll = rankRoll
	out.SelectedRank = picked.Rank
	out.Multipliers = MultipliersFor(picked.Rank)
	return out, nil
}
