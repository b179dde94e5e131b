package featureflag

import (
	"errors"
	"strings"
)

const (
	FlagPolicyV3Synergy = "fusion.policy.v3_synergy"
	FlagPolicyV2Tiered  = "fusion.policy.v2_tiered"
	FlagPity            = "fusion.pity"
)

// Flag is a rollout gate. RolloutPercent is clamped to [0, 100].
type Flag struct {
	Name           string `mapstructure:"name" json:"name"`
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
	RolloutPercent int    `mapstructure:"rollout_percent" json:"rollout_percent"`
	Version        int64  `mapstructure:"version" json:"version"`
	Description    string `mapstructure:"description" json:"description,omitempty"`
}

var (
	ErrFlagNotFound    = errors.New("feature_flag_not_found")
	ErrInvalidFlagName = errors.New("invalid_feature_flag_name")
	ErrInvalidRollout  = errors.New("invalid_rollout_percent")
)

// Validate normalizes the name and rejects out-of-range rollouts.
func (f *Flag) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return ErrInvalidFlagName
	}
	if f.RolloutPercent < 0 || f.RolloutPercent > 100 {
		return ErrInvalidRollout
	}
	return nil
}

// Defaults are served when no flag file is configured.
func Defaults() []Flag {
	return []Flag{
		{
			Name:           FlagPolicyV3Synergy,
			Enabled:        true,
			RolloutPercent: 0,
			Description:    "rank-synergy probability policy",
		},
		{
			Name:           FlagPolicyV2Tiered,
			Enabled:        true,
			RolloutPercent: 100,
			Description:    "tiered probability policy with pity and tier bonus",
		},
		{
			Name:           FlagPity,
			Enabled:        true,
			RolloutPercent: 100,
			Description:    "consecutive-failure pity bonus",
		},
	}
}

// Bucket maps userID into [0, 100) with a 32-bit rolling hash over its UTF-8 bytes.
// The mapping never changes for a given id.
func Bucket(userID string) uint32 {
	var h uint32
	for i := 0; i < len(userID); i++ {
		h = h*31 + uint32(userID[i])
	}
	return h % 100
}
