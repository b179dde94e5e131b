package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cardforge/internal/fusionlog/domain"
	"github.com/smallbiznis/cardforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newEntry(id snowflake.ID, fusionID, userID string) *domain.Entry {
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Entry{
		ID:                  id,
		FusionID:            fusionID,
		UserID:              userID,
		MaterialsUsed:       datatypes.JSON(`[{"card_id":"card_a","name":"A","rank":"B"}]`),
		Success:             false,
		EngineVersion:       "fusion-engine/2.0",
		PolicyVersion:       "v2",
		SuccessRate:         0.75,
		Breakdown:           datatypes.JSON(`{"base":0.6}`),
		UserTier:            "bronze",
		InventoryHashBefore: "before",
		InventoryHashAfter:  "after",
		HMACSignature:       "sig",
		SignatureKeyID:      "k1",
		SignedAt:            now,
		CreatedAt:           now,
	}
}

func TestInsertAndFind(t *testing.T) {
	conn := testutil.NewDB(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, conn, newEntry(1, "fus-1", "u1")))

	got, err := r.FindByFusionID(ctx, conn, "fus-1", false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, 0.75, got.SuccessRate)
	assert.JSONEq(t, `{"base":0.6}`, string(got.Breakdown))

	missing, err := r.FindByFusionID(ctx, conn, "fus-404", false)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertDuplicateFusionID(t *testing.T) {
	conn := testutil.NewDB(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, conn, newEntry(1, "fus-1", "u1")))
	err := r.Insert(ctx, conn, newEntry(2, "fus-1", "u1"))
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestFindWithLockInTransaction(t *testing.T) {
	conn := testutil.NewDB(t)
	r := Provide()
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, conn, newEntry(1, "fus-1", "u1")))

	err := conn.Transaction(func(tx *gorm.DB) error {
		got, err := r.FindByFusionID(ctx, tx, "fus-1", true)
		require.NoError(t, err)
		require.NotNil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestListByUserPagesNewestFirst(t *testing.T) {
	conn := testutil.NewDB(t)
	r := Provide()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Insert(ctx, conn, newEntry(snowflake.ID(i), "fus-"+string(rune('0'+i)), "u1")))
	}
	require.NoError(t, r.Insert(ctx, conn, newEntry(99, "other", "u2")))

	page, err := r.ListByUser(ctx, conn, "u1", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, snowflake.ID(5), page[0].ID)
	assert.Equal(t, snowflake.ID(4), page[1].ID)

	next, err := r.ListByUser(ctx, conn, "u1", page[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, snowflake.ID(3), next[0].ID)
}
