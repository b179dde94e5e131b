package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cardforge/internal/audit/domain"
	auditrepo "github.com/smallbiznis/cardforge/internal/audit/repository"
	auditsvc "github.com/smallbiznis/cardforge/internal/audit/service"
	"github.com/smallbiznis/cardforge/internal/auth"
	"github.com/smallbiznis/cardforge/internal/authorization"
	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/featureflag"
	fusiondomain "github.com/smallbiznis/cardforge/internal/fusion/domain"
	inventoryrepo "github.com/smallbiznis/cardforge/internal/inventory/repository"
	inventorysvc "github.com/smallbiznis/cardforge/internal/inventory/service"
	"github.com/smallbiznis/cardforge/internal/observability"
	pityrepo "github.com/smallbiznis/cardforge/internal/pity/repository"
	pitysvc "github.com/smallbiznis/cardforge/internal/pity/service"
	"github.com/smallbiznis/cardforge/internal/ratelimit"
	"github.com/smallbiznis/cardforge/internal/testutil"
	userdomain "github.com/smallbiznis/cardforge/internal/user/domain"
	userrepo "github.com/smallbiznis/cardforge/internal/user/repository"
	usersvc "github.com/smallbiznis/cardforge/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeFusionService struct {
	mu        sync.Mutex
	seq       int
	requests  []fusiondomain.Request
	gets      int
	outcomes  map[string]*fusiondomain.Outcome
	commitErr error
}

func newFakeFusionService() *fakeFusionService {
	return &fakeFusionService{outcomes: map[string]*fusiondomain.Outcome{}}
}

func (f *fakeFusionService) Commit(ctx context.Context, req fusiondomain.Request) (*fusiondomain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	if req.FusionID == "" {
		f.seq++
		req.FusionID = fmt.Sprintf("gen-%d", f.seq)
	}
	if existing, ok := f.outcomes[req.FusionID]; ok {
		replay := *existing
		replay.IsIdempotent = true
		return &replay, nil
	}
	out := &fusiondomain.Outcome{FusionID: req.FusionID, UserID: req.UserID, Success: true, FusionSuccess: true, SuccessRate: 0.75, PolicyVersion: "v2"}
	f.outcomes[req.FusionID] = out
	return out, nil
}

func (f *fakeFusionService) Get(ctx context.Context, userID, fusionID string) (*fusiondomain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	out, ok := f.outcomes[fusionID]
	if !ok || out.UserID != userID {
		return nil, fusiondomain.E(fusiondomain.KindNotFound, "fusion.get", nil)
	}
	return out, nil
}

func (f *fakeFusionService) Verify(ctx context.Context, fusionID string) (*fusiondomain.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outcomes[fusionID]; !ok {
		return nil, fusiondomain.E(fusiondomain.KindNotFound, "fusion.verify", nil)
	}
	return &fusiondomain.VerifyResult{FusionID: fusionID, KeyID: "k1", Valid: true}, nil
}

func (f *fakeFusionService) History(ctx context.Context, userID, cursor string, limit int) (*fusiondomain.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &fusiondomain.HistoryPage{}
	for _, out := range f.outcomes {
		if out.UserID == userID {
			page.Outcomes = append(page.Outcomes, *out)
		}
	}
	return page, nil
}

type testEnv struct {
	engine   *gin.Engine
	db       *gorm.DB
	clock    *clock.FakeClock
	verifier *auth.Verifier
	fusions  *fakeFusionService
	flags    *featureflag.MemoryStore
	audit    auditdomain.Service
}

func newTestEnv(t *testing.T, fusionLimit int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := testutil.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	cfg := config.Config{
		Environment:   "test",
		AuthJWTSecret: "server-test-secret",
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Actions: map[string]config.ActionLimit{
				config.ActionFusion:       {Limit: fusionLimit, Window: time.Minute},
				config.ActionFusionReplay: {Limit: 2, Window: time.Minute},
				config.ActionGacha:        {Limit: 30, Window: time.Minute},
			},
		},
	}

	verifier, err := auth.NewVerifier(cfg, clk, log)
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)

	store := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(store.Close)

	users := userrepo.Provide()
	now := clk.Now()
	require.NoError(t, users.Upsert(context.Background(), conn, &userdomain.User{ID: "operator-1", Tier: userdomain.TierGold, Role: userdomain.RoleOperator, CreatedAt: now, UpdatedAt: now}))

	flags := featureflag.NewMemoryStore(featureflag.Defaults()...)
	fusions := newFakeFusionService()
	auditService := auditsvc.NewService(auditsvc.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide()})
	pityRepo := pityrepo.Provide()

	engine := NewEngine(observability.Config{Environment: "test"})
	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       cfg,
		Log:       log,
		Clock:     clk,
		Verifier:  verifier,
		AuthzSvc:  authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		AuditSvc:  auditService,
		UserSvc:   usersvc.New(usersvc.Params{DB: conn, Log: log, Repo: users}),
		FusionSvc: fusions,
		Inventory: inventorysvc.New(inventorysvc.Params{DB: conn, Log: log, Clock: clk, Repo: inventoryrepo.Provide()}),
		PitySvc:   pitysvc.New(pitysvc.Params{DB: conn, Log: log, Clock: clk, Repo: pityRepo}),
		Flags:     flags,
		Limiter:   ratelimit.NewLimiter(ratelimit.Params{Config: cfg, Log: log, Clock: clk, Store: store}),
	})

	return &testEnv{
		engine:   engine,
		db:       conn,
		clock:    clk,
		verifier: verifier,
		fusions:  fusions,
		flags:    flags,
		audit:    auditService,
	}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Issue(userID, "sess-"+userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

var threeMaterials = map[string]any{"materials": []string{"card_a", "card_a", "card_b"}}

func TestHealthAndFallback(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/nope", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestFusionRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/v1/fusions", "", threeMaterials, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Type)

	rec = env.do(t, http.MethodPost, "/v1/fusions", "", threeMaterials, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.fusions.requests)
}

func TestCreateFusionUsesIdempotencyKey(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", threeMaterials, map[string]string{HeaderIdempotencyKey: "fus-abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get(headerRateLimitLimit))
	assert.Equal(t, "9", rec.Header().Get(headerRateLimitRemaining))
	assert.Equal(t, fmt.Sprint(env.clock.Now().Add(time.Minute).Unix()), rec.Header().Get(headerRateLimitReset))

	var out fusiondomain.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "fus-abc", out.FusionID)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, true, raw["fusion_success"])

	require.Len(t, env.fusions.requests, 1)
	req := env.fusions.requests[0]
	assert.Equal(t, "player-1", req.UserID)
	assert.Equal(t, "sess-player-1", req.SessionID)
	assert.Equal(t, []string{"card_a", "card_a", "card_b"}, req.Materials)

	body := map[string]any{"materials": []string{"card_a", "card_a", "card_b"}, "fusion_id": "other"}
	rec = env.do(t, http.MethodPost, "/v1/fusions", "player-1", body, map[string]string{HeaderIdempotencyKey: "fus-abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFusionRateLimitAndReplayBypass(t *testing.T) {
	env := newTestEnv(t, 2)

	for _, id := range []string{"fus-1", "fus-2"} {
		body := map[string]any{"materials": []string{"c", "c", "c"}, "fusion_id": id}
		rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	body := map[string]any{"materials": []string{"c", "c", "c"}, "fusion_id": "fus-3"}
	rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get(headerRateLimitRemaining))
	payload := decodeError(t, rec)
	assert.Equal(t, "rate_limited", payload.Type)
	assert.True(t, payload.Retryable)

	// replays are answered from the ledger without spending allowance
	replay := map[string]any{"materials": []string{"c", "c", "c"}, "fusion_id": "fus-1"}
	rec = env.do(t, http.MethodPost, "/v1/fusions", "player-1", replay, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out fusiondomain.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.IsIdempotent)

	// another user has their own window
	rec = env.do(t, http.MethodPost, "/v1/fusions", "player-2", threeMaterials, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.clock.Advance(time.Minute)
	rec = env.do(t, http.MethodPost, "/v1/fusions", "player-1", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func (f *fakeFusionService) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func TestThrottledReplayLookupsAreBudgeted(t *testing.T) {
	env := newTestEnv(t, 1)

	first := map[string]any{"materials": []string{"c", "c", "c"}, "fusion_id": "fus-1"}
	rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", first, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.fusions.getCount(), "allowed commits skip the ledger lookup")

	for _, id := range []string{"rand-1", "rand-2", "rand-3"} {
		body := map[string]any{"materials": []string{"c", "c", "c"}, "fusion_id": id}
		rec = env.do(t, http.MethodPost, "/v1/fusions", "player-1", body, nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
	assert.Equal(t, 2, env.fusions.getCount())

	// the lookup budget is spent, so even a real replay waits for the window
	rec = env.do(t, http.MethodPost, "/v1/fusions", "player-1", first, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, env.fusions.getCount())

	env.clock.Advance(time.Minute)
	rec = env.do(t, http.MethodPost, "/v1/fusions", "player-1", first, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

type rateLimitFeedback struct {
	Data []rateLimitStatus `json:"data"`
}

func (e *testEnv) rateLimits(t *testing.T, userID string) map[string]rateLimitStatus {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/v1/rate-limits", userID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp rateLimitFeedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	out := make(map[string]rateLimitStatus, len(resp.Data))
	for _, status := range resp.Data {
		out[status.Action] = status
	}
	return out
}

func TestRateLimitFeedbackAndOperatorReset(t *testing.T) {
	env := newTestEnv(t, 10)

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", threeMaterials, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	limits := env.rateLimits(t, "player-1")
	require.Contains(t, limits, config.ActionFusion)
	assert.Equal(t, 10, limits[config.ActionFusion].Limit)
	assert.Equal(t, 7, limits[config.ActionFusion].Remaining)
	assert.True(t, env.clock.Now().Add(time.Minute).Equal(limits[config.ActionFusion].ResetTime))
	assert.Equal(t, 30, limits[config.ActionGacha].Remaining)

	// reading feedback does not spend allowance
	assert.Equal(t, 7, env.rateLimits(t, "player-1")[config.ActionFusion].Remaining)

	rec := env.do(t, http.MethodDelete, "/admin/rate-limits/player-1/fusion", "player-1", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/admin/rate-limits/player-1/trade", "operator-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/admin/rate-limits/player-1/fusion", "operator-1", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 10, env.rateLimits(t, "player-1")[config.ActionFusion].Remaining)

	logs, err := env.audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: auditdomain.ActionRateLimitReset})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, "player-1:fusion", *logs.AuditLogs[0].TargetID)
	assert.Equal(t, auditdomain.ActorTypeOperator, logs.AuditLogs[0].ActorType)
}

func TestFusionErrorMapping(t *testing.T) {
	cases := []struct {
		kind      fusiondomain.Kind
		status    int
		retryable bool
	}{
		{fusiondomain.KindInvalidMaterials, http.StatusBadRequest, false},
		{fusiondomain.KindInsufficientMaterials, http.StatusUnprocessableEntity, false},
		{fusiondomain.KindConflict, http.StatusConflict, false},
		{fusiondomain.KindStorageUnavailable, http.StatusServiceUnavailable, true},
		{fusiondomain.KindInternal, http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			env := newTestEnv(t, 10)
			env.fusions.commitErr = fusiondomain.E(tc.kind, "fusion.commit", fmt.Errorf("select from user_cards failed"))

			rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", threeMaterials, nil)
			assert.Equal(t, tc.status, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, string(tc.kind), payload.Type)
			assert.Equal(t, tc.retryable, payload.Retryable)
			assert.NotContains(t, rec.Body.String(), "user_cards")
		})
	}
}

func TestFusionReadsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodPost, "/v1/fusions", "player-1", threeMaterials, map[string]string{HeaderIdempotencyKey: "fus-own"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/fusions/fus-own", "player-1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/fusions/fus-own", "player-2", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/fusions/fus-own/verify", "player-2", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/fusions/fus-own/verify", "operator-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result fusiondomain.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)

	rec = env.do(t, http.MethodGet, "/v1/fusions", "player-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page fusiondomain.HistoryPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Outcomes, 1)
}

func TestInventoryAndPity(t *testing.T) {
	env := newTestEnv(t, 10)
	repo := inventoryrepo.Provide()
	require.NoError(t, repo.Increment(context.Background(), env.db, "player-1", "card_a", 4, env.clock.Now()))
	require.NoError(t, pityrepo.Provide().Increment(context.Background(), env.db, "player-1", env.clock.Now()))

	rec := env.do(t, http.MethodGet, "/v1/inventory", "player-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inv struct {
		Data []struct {
			CardID string `json:"card_id"`
			Count  int    `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Len(t, inv.Data, 1)
	assert.Equal(t, 4, inv.Data[0].Count)

	rec = env.do(t, http.MethodGet, "/v1/pity", "player-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fusion_pity_count":1`)
}

func TestAdminFlags(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.do(t, http.MethodGet, "/admin/flags", "player-1", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/flags", "operator-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), featureflag.FlagPolicyV3Synergy)

	before, ok := env.flags.Get(featureflag.FlagPolicyV3Synergy)
	require.True(t, ok)

	rec = env.do(t, http.MethodPut, "/admin/flags/"+featureflag.FlagPolicyV3Synergy, "operator-1", map[string]any{"rollout_percent": 25}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after, _ := env.flags.Get(featureflag.FlagPolicyV3Synergy)
	assert.Equal(t, 25, after.RolloutPercent)
	assert.True(t, after.Enabled)
	assert.Greater(t, after.Version, before.Version)

	rec = env.do(t, http.MethodPut, "/admin/flags/"+featureflag.FlagPolicyV3Synergy, "operator-1", map[string]any{"rollout_percent": 150}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/flags/"+featureflag.FlagPity, "player-1", map[string]any{"enabled": false}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	logs, err := env.audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: auditdomain.ActionFlagUpdated})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, featureflag.FlagPolicyV3Synergy, *logs.AuditLogs[0].TargetID)

	rec = env.do(t, http.MethodGet, "/admin/audit-logs?action="+auditdomain.ActionFlagUpdated, "operator-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), auditdomain.ActionFlagUpdated)

	rec = env.do(t, http.MethodGet, "/admin/audit-logs?start_at=yesterday", "operator-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
