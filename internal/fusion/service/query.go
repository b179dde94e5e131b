package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cardforge/internal/fusion/domain"
	"github.com/smallbiznis/cardforge/internal/signature"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *Service) Get(ctx context.Context, userID, fusionID string) (*domain.Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.E(domain.KindUnauthenticated, opGet, nil)
	}
	entry, err := s.ledger.FindByFusionID(ctx, s.db, strings.TrimSpace(fusionID), false)
	if err != nil {
		return nil, classify(opGet, err)
	}
	if entry == nil || entry.UserID != userID {
		return nil, domain.E(domain.KindNotFound, opGet, nil)
	}
	out, err := toOutcome(entry, false)
	if err != nil {
		return nil, domain.E(domain.KindInternal, opGet, err)
	}
	return out, nil
}

func (s *Service) Verify(ctx context.Context, fusionID string) (*domain.VerifyResult, error) {
	entry, err := s.ledger.FindByFusionID(ctx, s.db, strings.TrimSpace(fusionID), false)
	if err != nil {
		return nil, classify(opVerify, err)
	}
	if entry == nil {
		return nil, domain.E(domain.KindNotFound, opVerify, nil)
	}

	res := &domain.VerifyResult{FusionID: entry.FusionID, KeyID: entry.SignatureKeyID}
	valid, err := s.signer.Verify(payloadOf(entry), entry.HMACSignature, entry.SignatureKeyID)
	if err != nil && !errors.Is(err, signature.ErrUnknownKey) {
		return nil, domain.E(domain.KindInternal, opVerify, err)
	}
	res.Valid = valid
	if !valid {
		s.log.Warn("fusion signature mismatch",
			zap.String("fusion_id", entry.FusionID),
			zap.String("signature_key_id", entry.SignatureKeyID),
		)
	}
	return res, nil
}

// History pages a user's fusions newest first. cursor is the id of the last
// row of the previous page.
func (s *Service) History(ctx context.Context, userID, cursor string, limit int) (*domain.HistoryPage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.E(domain.KindUnauthenticated, opHistory, nil)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var before snowflake.ID
	if cursor = strings.TrimSpace(cursor); cursor != "" {
		id, err := snowflake.ParseString(cursor)
		if err != nil || id <= 0 {
			return nil, domain.E(domain.KindInvalidRequest, opHistory, errors.New("invalid cursor"))
		}
		before = id
	}

	entries, err := s.ledger.ListByUser(ctx, s.db, userID, before, limit+1)
	if err != nil {
		return nil, classify(opHistory, err)
	}

	page := &domain.HistoryPage{Outcomes: make([]domain.Outcome, 0, len(entries))}
	if len(entries) > limit {
		entries = entries[:limit]
		page.NextCursor = entries[len(entries)-1].ID.String()
	}
	for i := range entries {
		out, err := toOutcome(&entries[i], false)
		if err != nil {
			return nil, domain.E(domain.KindInternal, opHistory, err)
		}
		page.Outcomes = append(page.Outcomes, *out)
	}
	return page, nil
}
