package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) Service {
	t.Helper()

	dsn := fmt.Sprintf("file:authz_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestOperatorMayWriteFlags(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, "op-1", "operator", ObjectFlag, ActionFlagWrite))
	assert.NoError(t, svc.Authorize(ctx, "admin-1", "admin", ObjectAuditLog, ActionAuditLogView))
	assert.ErrorIs(t, svc.Authorize(ctx, "player-1", "player", ObjectFlag, ActionFlagWrite), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "player-2", "", ObjectFlag, ActionFlagRead), ErrForbidden)

	assert.NoError(t, svc.Authorize(ctx, "op-1", "operator", ObjectRateLimit, ActionRateLimitReset))
	assert.ErrorIs(t, svc.Authorize(ctx, "player-1", "player", ObjectRateLimit, ActionRateLimitReset), ErrForbidden)
}

func TestRoleChangeReplacesGrouping(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "u-1", "operator", ObjectFlag, ActionFlagRead))
	assert.ErrorIs(t, svc.Authorize(ctx, "u-1", "player", ObjectFlag, ActionFlagRead), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, " ", "operator", ObjectFlag, ActionFlagRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "u", "operator", "", ActionFlagRead), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "u", "operator", ObjectFlag, ""), ErrInvalidAction)
}
