package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/cardforge/internal/testutil"
	"github.com/smallbiznis/cardforge/internal/user/domain"
	"github.com/smallbiznis/cardforge/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetReturnsStoredProfile(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := repository.Provide()
	now := time.Now().UTC()
	require.NoError(t, repo.Upsert(context.Background(), conn, &domain.User{
		ID: "u1", Tier: domain.TierGold, Role: domain.RoleOperator, CreatedAt: now, UpdatedAt: now,
	}))

	svc := New(Params{DB: conn, Log: zap.NewNop(), Repo: repo})
	u, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierGold, u.Tier)
	assert.Equal(t, domain.RoleOperator, u.Role)
}

func TestGetDefaultsUnknownUsers(t *testing.T) {
	conn := testutil.NewDB(t)
	svc := New(Params{DB: conn, Log: zap.NewNop(), Repo: repository.Provide()})

	u, err := svc.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, domain.TierBronze, u.Tier)
	assert.Equal(t, domain.RolePlayer, u.Role)

	_, err = svc.Get(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, domain.TierDiamond, domain.ParseTier("Diamond"))
	assert.Equal(t, domain.TierBronze, domain.ParseTier("mythic"))
}
