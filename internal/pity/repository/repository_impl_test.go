package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/cardforge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPityAccrualAndReset(t *testing.T) {
	conn := testutil.NewDB(t)
	r := Provide()
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	counter, err := r.Get(ctx, conn, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.FusionPityCount)
	assert.Nil(t, counter.LastFusionAt)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Increment(ctx, conn, "u1", at.Add(time.Duration(i)*time.Minute)))
	}
	counter, err = r.Get(ctx, conn, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, counter.FusionPityCount)
	require.NotNil(t, counter.LastFusionAt)
	assert.True(t, counter.LastFusionAt.Equal(at.Add(4*time.Minute)))

	require.NoError(t, r.Reset(ctx, conn, "u1", at.Add(time.Hour)))
	counter, err = r.Get(ctx, conn, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.FusionPityCount)
}

func TestResetCreatesRow(t *testing.T) {
	conn := testutil.NewDB(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, r.Reset(ctx, conn, "fresh", time.Now().UTC()))
	counter, err := r.Get(ctx, conn, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", counter.UserID)
	assert.Equal(t, 0, counter.FusionPityCount)
	assert.NotNil(t, counter.LastFusionAt)
}
