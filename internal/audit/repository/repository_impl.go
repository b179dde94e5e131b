package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/cardforge/internal/audit/domain"
	"gorm.io/gorm"
)

// actionWildcard selects every action under a namespace, e.g. "fusion.*".
const actionWildcard = ".*"

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, actor_type, actor_id, action, target_type, target_id, metadata, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorType, entry.ActorID, entry.Action,
		entry.TargetType, entry.TargetID, entry.Metadata, entry.RequestID, entry.CreatedAt,
	).Error
}

// List returns entries newest first. It reads one row past Limit so the
// caller can tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.AuditLog{}), filter)
	if filter.Cursor != nil {
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	stmt = stmt.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if action := strings.TrimSpace(filter.Action); action != "" {
		if prefix, ok := strings.CutSuffix(action, actionWildcard); ok {
			stmt = stmt.Where("action LIKE ?", prefix+".%")
		} else {
			stmt = stmt.Where("action = ?", action)
		}
	}

	exact := []struct{ column, value string }{
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
		{"actor_id", filter.ActorID},
	}
	for _, f := range exact {
		if v := strings.TrimSpace(f.value); v != "" {
			stmt = stmt.Where(f.column+" = ?", v)
		}
	}

	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	return stmt
}
