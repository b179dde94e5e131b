package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/cardforge/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/cardforge/internal/catalog/domain"
	"github.com/smallbiznis/cardforge/internal/clock"
	"github.com/smallbiznis/cardforge/internal/config"
	"github.com/smallbiznis/cardforge/internal/featureflag"
	"github.com/smallbiznis/cardforge/internal/fusion/domain"
	fusionlogdomain "github.com/smallbiznis/cardforge/internal/fusionlog/domain"
	inventorydomain "github.com/smallbiznis/cardforge/internal/inventory/domain"
	"github.com/smallbiznis/cardforge/internal/observability/logger"
	"github.com/smallbiznis/cardforge/internal/observability/metrics"
	"github.com/smallbiznis/cardforge/internal/observability/tracing"
	pitydomain "github.com/smallbiznis/cardforge/internal/pity/domain"
	"github.com/smallbiznis/cardforge/internal/probability"
	"github.com/smallbiznis/cardforge/internal/signature"
	userdomain "github.com/smallbiznis/cardforge/internal/user/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCommit  = "fusion.commit"
	opGet     = "fusion.get"
	opVerify  = "fusion.verify"
	opHistory = "fusion.history"

	maxFusionIDLength = 128

	// bounds pity and audit writes once the caller's context is detached
	postCommitTimeout = 3 * time.Second
)

// ErrEmptyRankPool means the catalog has no active card for a drawn rank.
var ErrEmptyRankPool = errors.New("empty_rank_pool")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	GenID     *snowflake.Node
	Clock     clock.Clock
	Catalog   catalogdomain.Service
	Users     userdomain.Service
	Inventory inventorydomain.Repository
	Ledger    fusionlogdomain.Repository
	PityRepo  pitydomain.Repository
	Pity      pitydomain.Service
	Flags     *featureflag.Resolver
	Policies  *probability.Registry
	Source    probability.Source
	Signer    *signature.Signer
	Audit     auditdomain.Service
	Metrics   *metrics.FusionMetrics `optional:"true"`
	OTel      *metrics.Metrics       `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	catalog   catalogdomain.Service
	users     userdomain.Service
	inventory inventorydomain.Repository
	ledger    fusionlogdomain.Repository
	pityRepo  pitydomain.Repository
	pity      pitydomain.Service
	flags     *featureflag.Resolver
	policies  *probability.Registry
	source    probability.Source
	signer    *signature.Signer
	audit     auditdomain.Service
	metrics   *metrics.FusionMetrics
	otel      *metrics.Metrics
	tracer    trace.Tracer

	engineVersion string
	txTimeout     time.Duration
	minMaterials  int
	maxMaterials  int
}

func New(p Params) domain.Service {
	fusionCfg := p.Config.Fusion
	txTimeout := fusionCfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	minMaterials, maxMaterials := fusionCfg.MinMaterials, fusionCfg.MaxMaterials
	if minMaterials <= 0 {
		minMaterials = 3
	}
	if maxMaterials < minMaterials {
		maxMaterials = 10
	}
	engineVersion := strings.TrimSpace(fusionCfg.EngineVersion)
	if engineVersion == "" {
		engineVersion = "fusion-engine/2.0"
	}

	return &Service{
		db:            p.DB,
		log:           p.Log.Named("fusion.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		catalog:       p.Catalog,
		users:         p.Users,
		inventory:     p.Inventory,
		ledger:        p.Ledger,
		pityRepo:      p.PityRepo,
		pity:          p.Pity,
		flags:         p.Flags,
		policies:      p.Policies,
		source:        p.Source,
		signer:        p.Signer,
		audit:         p.Audit,
		metrics:       p.Metrics,
		otel:          p.OTel,
		tracer:        otel.Tracer("cardforge/fusion"),
		engineVersion: engineVersion,
		txTimeout:     txTimeout,
		minMaterials:  minMaterials,
		maxMaterials:  maxMaterials,
	}
}

// prepared holds everything read before the transaction opens. Catalog and
// user lookups stay outside so the transaction touches only ledger, inventory
// and pity rows.
type prepared struct {
	req       domain.Request
	cards     map[string]catalogdomain.Card
	need      map[string]int
	cardIDs   []string
	pools     map[catalogdomain.Rank][]catalogdomain.Card
	tier      string
	selection featureflag.Selection
}

func (s *Service) Commit(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	start := s.clock.Now()

	req.UserID = strings.TrimSpace(req.UserID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.FusionID = strings.TrimSpace(req.FusionID)
	if req.FusionID == "" {
		req.FusionID = ulid.Make().String()
	}

	ctx, span := s.tracer.Start(ctx, opCommit, trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("fusion.id", req.FusionID),
		attribute.String("user.id", req.UserID),
		attribute.Int("fusion.materials", len(req.Materials)),
	)...))
	defer span.End()

	log := logger.WithFusion(ctx, s.log, req.FusionID)

	outcome, err := s.commit(ctx, req, start)

	// post-commit writes survive caller cancellation
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()

	if err != nil {
		kind := domain.KindOf(err)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, string(kind))
		s.metrics.IncError(string(kind))
		s.recordFailure(postCtx, log, req, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("fusion.success", outcome.FusionSuccess),
		attribute.Bool("fusion.idempotent", outcome.IsIdempotent),
		attribute.String("fusion.policy_version", outcome.PolicyVersion),
	)
	if outcome.IsIdempotent {
		s.metrics.IncReplay()
		s.otel.RecordFusionReplay(ctx)
		s.writeAudit(postCtx, log, req, auditdomain.ActionFusionReplayed, map[string]any{
			"success": outcome.FusionSuccess,
		})
		log.Info("fusion replayed", zap.Bool("success", outcome.FusionSuccess))
		return outcome, nil
	}

	result := "failure"
	if outcome.FusionSuccess {
		result = "success"
	}
	s.metrics.ObserveCommit(result, outcome.PolicyVersion, s.clock.Now().Sub(start))
	s.otel.RecordFusionCommit(ctx, result, outcome.PolicyVersion)

	if err := s.pity.Record(postCtx, req.UserID, outcome.FusionSuccess); err != nil {
		log.Error("pity update failed after commit", zap.Bool("success", outcome.FusionSuccess), zap.Error(err))
	}

	metadata := map[string]any{
		"success":          outcome.FusionSuccess,
		"success_rate":     outcome.SuccessRate,
		"policy_version":   outcome.PolicyVersion,
		"materials":        len(outcome.MaterialsUsed),
		"hmac_signature":   outcome.Signature,
		"signature_key_id": outcome.SignatureKeyID,
	}
	if outcome.ResultCard != nil {
		metadata["result_card_id"] = outcome.ResultCard.ID
		metadata["result_rank"] = outcome.ResultCard.Rank
	}
	s.writeAudit(postCtx, log, req, auditdomain.ActionFusionCommitted, metadata)

	log.Info("fusion committed",
		zap.Bool("success", outcome.FusionSuccess),
		zap.Float64("success_rate", outcome.SuccessRate),
		zap.String("policy_version", outcome.PolicyVersion),
	)
	return outcome, nil
}

func (s *Service) commit(ctx context.Context, req domain.Request, start time.Time) (*domain.Outcome, error) {
	if req.UserID == "" {
		return nil, domain.E(domain.KindUnauthenticated, opCommit, nil)
	}
	if len(req.FusionID) > maxFusionIDLength {
		return nil, domain.E(domain.KindInvalidRequest, opCommit,
			fmt.Errorf("fusion id longer than %d bytes", maxFusionIDLength))
	}
	if n := len(req.Materials); n < s.minMaterials || n > s.maxMaterials {
		return nil, domain.E(domain.KindInvalidMaterials, opCommit,
			fmt.Errorf("material count %d outside [%d, %d]", n, s.minMaterials, s.maxMaterials))
	}

	prep, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var outcome *domain.Outcome
	err = s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		outcome, txErr = s.apply(txCtx, tx, prep, start)
		return txErr
	})
	if err == nil {
		return outcome, nil
	}

	if errors.Is(err, fusionlogdomain.ErrDuplicate) {
		// lost the insert race; the winner's row is the answer
		return s.replayCommitted(ctx, req)
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, domain.E(domain.KindStorageUnavailable, opCommit, fmt.Errorf("transaction exceeded %s: %w", s.txTimeout, err))
	}
	return nil, classify(opCommit, err)
}

func (s *Service) prepare(ctx context.Context, req domain.Request) (*prepared, error) {
	need := make(map[string]int, len(req.Materials))
	materials := make([]string, len(req.Materials))
	for i, raw := range req.Materials {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, domain.E(domain.KindInvalidMaterials, opCommit, fmt.Errorf("material %d is empty", i))
		}
		materials[i] = id
		need[id]++
	}
	req.Materials = materials
	cardIDs := make([]string, 0, len(need))
	for id := range need {
		cardIDs = append(cardIDs, id)
	}
	sort.Strings(cardIDs)

	cards, err := s.catalog.GetByIDs(ctx, cardIDs)
	if err != nil {
		return nil, classify(opCommit, err)
	}
	for _, id := range cardIDs {
		if _, ok := cards[id]; !ok {
			return nil, domain.E(domain.KindInvalidMaterials, opCommit, fmt.Errorf("%w: %s", catalogdomain.ErrCardNotFound, id))
		}
	}

	pools := make(map[catalogdomain.Rank][]catalogdomain.Card, len(probability.TargetRanks))
	for _, rank := range probability.TargetRanks {
		pool, err := s.catalog.ListByRank(ctx, rank)
		if err != nil {
			return nil, classify(opCommit, err)
		}
		pools[rank] = pool
	}

	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, classify(opCommit, err)
	}

	return &prepared{
		req:       req,
		cards:     cards,
		need:      need,
		cardIDs:   cardIDs,
		pools:     pools,
		tier:      string(user.Tier),
		selection: s.flags.Select(req.UserID),
	}, nil
}

// apply runs the transactional part of a commit. A non-nil outcome with a nil
// error commits tx; any error rolls it back.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, prep *prepared, start time.Time) (*domain.Outcome, error) {
	req := prep.req

	lockStart := s.clock.Now()
	existing, err := s.ledger.FindByFusionID(ctx, tx, req.FusionID, true)
	s.metrics.ObserveDBLockWait(metrics.LockResourceLedger, s.clock.Now().Sub(lockStart))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return replayOf(existing, req.UserID)
	}

	lockStart = s.clock.Now()
	held, err := s.inventory.LockEntries(ctx, tx, req.UserID, prep.cardIDs)
	s.metrics.ObserveDBLockWait(metrics.LockResourceInventory, s.clock.Now().Sub(lockStart))
	if err != nil {
		return nil, err
	}

	// a concurrent commit for the same id may have finished while we waited on the inventory locks
	if existing, err = s.ledger.FindByFusionID(ctx, tx, req.FusionID, false); err != nil {
		return nil, err
	} else if existing != nil {
		return replayOf(existing, req.UserID)
	}

	counts := make(map[string]int, len(held))
	for _, e := range held {
		counts[e.CardID] = e.Count
	}
	for _, id := range prep.cardIDs {
		if counts[id] < prep.need[id] {
			return nil, domain.E(domain.KindInsufficientMaterials, opCommit,
				fmt.Errorf("card %s: have %d, need %d", id, counts[id], prep.need[id]))
		}
	}

	before, err := s.inventory.Snapshot(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	pity := 0
	if prep.selection.PityEnabled {
		counter, err := s.pityRepo.Get(ctx, tx, req.UserID)
		if err != nil {
			return nil, err
		}
		pity = counter.FusionPityCount
	}

	input := probability.Input{UserTier: prep.tier, Pity: pity}
	materials := make([]fusionlogdomain.Material, 0, len(req.Materials))
	for _, id := range req.Materials {
		card := prep.cards[id]
		input.Materials = append(input.Materials, probability.MaterialCard{CardID: id, Rank: card.Rank})
		materials = append(materials, fusionlogdomain.Material{CardID: id, Name: card.Name, Rank: card.Rank.String()})
	}

	eval, err := s.policies.Compute(prep.selection.Version, input)
	if err != nil {
		return nil, domain.E(domain.KindInternal, opCommit, err)
	}
	draw, err := probability.Draw(eval, s.source)
	if err != nil {
		return nil, domain.E(domain.KindInternal, opCommit, err)
	}

	now := s.clock.Now()
	for _, id := range prep.cardIDs {
		if err := s.inventory.Decrement(ctx, tx, req.UserID, id, prep.need[id]); err != nil {
			if errors.Is(err, inventorydomain.ErrInsufficient) {
				return nil, domain.E(domain.KindInsufficientMaterials, opCommit, err)
			}
			return nil, err
		}
	}

	var selected *domain.SelectedOutcome
	if draw.Success {
		pool := prep.pools[draw.SelectedRank]
		if len(pool) == 0 {
			return nil, domain.E(domain.KindInternal, opCommit, fmt.Errorf("%w: %s", ErrEmptyRankPool, draw.SelectedRank))
		}
		idx, err := probability.Intn(s.source, len(pool))
		if err != nil {
			return nil, domain.E(domain.KindInternal, opCommit, err)
		}
		card := pool[idx]
		if err := s.inventory.Increment(ctx, tx, req.UserID, card.ID, 1, now); err != nil {
			return nil, err
		}
		selected = &domain.SelectedOutcome{
			Rank:        card.Rank.String(),
			CardID:      card.ID,
			CardName:    card.Name,
			Multipliers: draw.Multipliers,
			Roll:        draw.Roll,
			RankRoll:    draw.RankRoll,
		}
	}

	after, err := s.inventory.Snapshot(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	// the ledger keeps millisecond precision on every supported dialect
	signedAt := s.clock.Now().UTC().Truncate(time.Millisecond)
	entry, err := s.buildEntry(prep, eval, selected, materials, pity, before, after, signedAt, start)
	if err != nil {
		return nil, domain.E(domain.KindInternal, opCommit, err)
	}
	if err := s.ledger.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	return toOutcome(entry, false)
}

func (s *Service) buildEntry(
	prep *prepared,
	eval probability.Evaluation,
	selected *domain.SelectedOutcome,
	materials []fusionlogdomain.Material,
	pity int,
	before, after []inventorydomain.Entry,
	signedAt, start time.Time,
) (*fusionlogdomain.Entry, error) {
	req := prep.req
	selectedRank := ""
	if selected != nil {
		selectedRank = selected.Rank
	}
	sig, kid := s.signer.Sign(signature.Payload{
		FusionID:     req.FusionID,
		UserID:       req.UserID,
		Success:      selected != nil,
		SuccessRate:  eval.SuccessRate,
		SelectedRank: selectedRank,
		Timestamp:    signedAt,
	})

	materialsJSON, err := marshalJSON(materials)
	if err != nil {
		return nil, err
	}
	breakdownJSON, err := marshalJSON(eval.Breakdown)
	if err != nil {
		return nil, err
	}
	candidatesJSON, err := marshalJSON(eval.Candidates)
	if err != nil {
		return nil, err
	}

	entry := &fusionlogdomain.Entry{
		ID:                  s.genID.Generate(),
		FusionID:            req.FusionID,
		UserID:              req.UserID,
		MaterialsUsed:       materialsJSON,
		Success:             selected != nil,
		EngineVersion:       s.engineVersion,
		PolicyVersion:       eval.PolicyVersion.String(),
		SuccessRate:         eval.SuccessRate,
		Breakdown:           breakdownJSON,
		Candidates:          candidatesJSON,
		UserTier:            prep.tier,
		PityBefore:          pity,
		InventoryHashBefore: inventorydomain.Hash(before),
		InventoryHashAfter:  inventorydomain.Hash(after),
		HMACSignature:       sig,
		SignatureKeyID:      kid,
		SignedAt:            signedAt,
		ProcessingTimeMs:    s.clock.Now().Sub(start).Milliseconds(),
		CreatedAt:           signedAt,
	}
	if req.SessionID != "" {
		sessionID := req.SessionID
		entry.SessionID = &sessionID
	}
	if selected != nil {
		selectedJSON, err := marshalJSON(selected)
		if err != nil {
			return nil, err
		}
		entry.SelectedOutcome = selectedJSON
		cardID, rank := selected.CardID, selected.Rank
		entry.ResultCardID = &cardID
		entry.ResultRank = &rank
	}
	return entry, nil
}

func (s *Service) replayCommitted(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	existing, err := s.ledger.FindByFusionID(ctx, s.db, req.FusionID, false)
	if err != nil {
		return nil, classify(opCommit, err)
	}
	if existing == nil {
		return nil, domain.E(domain.KindConflict, opCommit, fusionlogdomain.ErrDuplicate)
	}
	return replayOf(existing, req.UserID)
}

// replayOf returns the stored outcome verbatim. A fusion id owned by another
// user is a conflict and discloses nothing.
func replayOf(entry *fusionlogdomain.Entry, userID string) (*domain.Outcome, error) {
	if entry.UserID != userID {
		return nil, domain.E(domain.KindConflict, opCommit, errors.New("fusion id belongs to another user"))
	}
	out, err := toOutcome(entry, true)
	if err != nil {
		return nil, domain.E(domain.KindInternal, opCommit, err)
	}
	return out, nil
}

func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, req domain.Request, err error) {
	kind := domain.KindOf(err)
	action := auditdomain.ActionFusionRejected
	if kind == domain.KindStorageUnavailable || kind == domain.KindInternal {
		action = auditdomain.ActionFusionFailed
		log.Error("fusion commit failed", zap.String("error_kind", string(kind)), zap.Error(err))
	} else {
		log.Warn("fusion commit rejected", zap.String("error_kind", string(kind)), zap.Error(err))
	}
	if kind == domain.KindUnauthenticated {
		return
	}
	s.writeAudit(ctx, log, req, action, map[string]any{
		"error_kind": string(kind),
		"materials":  len(req.Materials),
	})
}

func (s *Service) writeAudit(ctx context.Context, log *zap.Logger, req domain.Request, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if req.SessionID != "" {
		metadata["session_id"] = req.SessionID
	}
	userID, fusionID := req.UserID, req.FusionID
	if err := s.audit.AuditLog(ctx, auditdomain.ActorTypeUser, &userID, action, auditdomain.TargetTypeFusion, &fusionID, metadata); err != nil {
		log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
