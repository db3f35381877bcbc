package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/panelstack/quotad/pkg/model"
)

// AuditRepository keeps the trail of quota mutations. Write failures are
// logged and swallowed: an audit miss must never fail the mutation it records.
type AuditRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAuditRepository(db *gorm.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) Record(ctx context.Context, entry *model.QuotaAuditEntry) {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("failed to record quota audit entry",
			zap.Uint("user_id", entry.UserID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (r *AuditRepository) ListForUser(ctx context.Context, userID uint, since *time.Time, limit int) ([]model.QuotaAuditEntry, error) {
	var entries []model.QuotaAuditEntry
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")

	if since != nil {
		query = query.Where("created_at > ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) DeleteOldEntries(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.QuotaAuditEntry{}).Error
}
