package featureflag

import (
	"github.com/smallbiznis/cardforge/internal/probability"
)

// Resolver evaluates flags for a user.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// IsEnabled is false for unknown or disabled flags, true at 100% rollout,
// and otherwise compares the user's stable bucket against the rollout.
func (r *Resolver) IsEnabled(name, userID string) bool {
	flag, ok := r.store.Get(name)
	if !ok || !flag.Enabled {
		return false
	}
	if flag.RolloutPercent >= 100 {
		return true
	}
	if flag.RolloutPercent <= 0 {
		return false
	}
	return Bucket(userID) < uint32(flag.RolloutPercent)
}

// Selection is the policy configuration resolved for one commit.
type Selection struct {
	Version     probability.PolicyVersion
	PityEnabled bool
}

// Select resolves the policy version by priority: v3, then v2, else legacy v1.
func (r *Resolver) Select(userID string) Selection {
	sel := Selection{
		Version:     probability.PolicyV1,
		PityEnabled: r.IsEnabled(FlagPity, userID),
	}
	switch {
	case r.IsEnabled(FlagPolicyV3Synergy, userID):
		sel.Version = probability.PolicyV3
	case r.IsEnabled(FlagPolicyV2Tiered, userID):
		sel.Version = probability.PolicyV2
	}
	return sel
}
