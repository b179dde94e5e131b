package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cardforge/internal/fusionlog/domain"
	"github.com/smallbiznis/cardforge/pkg/db"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, fusion_id, user_id, session_id, materials_used, result_card_id, result_rank,
	success, engine_version, policy_version, success_rate, breakdown, candidates, selected_outcome,
	user_tier, pity_before, inventory_hash_before, inventory_hash_after, hmac_signature,
	signature_key_id, signed_at, processing_time_ms, created_at
	FROM fusion_logs`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByFusionID(ctx context.Context, tx *gorm.DB, fusionID string, lock bool) (*domain.Entry, error) {
	query := selectColumns + ` WHERE fusion_id = ?`
	if lock {
		query += db.LockSuffix(tx)
	}

	var rows []domain.Entry
	if err := tx.WithContext(ctx).Raw(query, fusionID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO fusion_logs (
			id, fusion_id, user_id, session_id, materials_used, result_card_id, result_rank,
			success, engine_version, policy_version, success_rate, breakdown, candidates, selected_outcome,
			user_tier, pity_before, inventory_hash_before, inventory_hash_after, hmac_signature,
			signature_key_id, signed_at, processing_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.FusionID,
		entry.UserID,
		entry.SessionID,
		entry.MaterialsUsed,
		entry.ResultCardID,
		entry.ResultRank,
		entry.Success,
		entry.EngineVersion,
		entry.PolicyVersion,
		entry.SuccessRate,
		entry.Breakdown,
		entry.Candidates,
		entry.SelectedOutcome,
		entry.UserTier,
		entry.PityBefore,
		entry.InventoryHashBefore,
		entry.InventoryHashAfter,
		entry.HMACSignature,
		entry.SignatureKeyID,
		entry.SignedAt,
		entry.ProcessingTimeMs,
		entry.CreatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *repo) ListByUser(ctx context.Context, conn *gorm.DB, userID string, beforeID snowflake.ID, limit int) ([]domain.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := selectColumns + ` WHERE user_id = ?`
	args := []interface{}{userID}
	if beforeID != 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var rows []domain.Entry
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
