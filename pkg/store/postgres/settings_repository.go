package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panelstack/quotad/pkg/model"
)

// SettingsRepository is plain namespaced key-value persistence over the
// panel_settings table. Interpretation of the stored JSON lives in
// pkg/settings.
type SettingsRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewSettingsRepository(db *gorm.DB, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{db: db, logger: logger}
}

// Get returns the stored value and whether the key exists. A missing key is
// not an error.
func (r *SettingsRepository) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var setting model.PanelSetting
	err := r.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", namespace, key).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("failed to read setting",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
		return "", false, err
	}
	return setting.Value, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, namespace, key, value string) error {
	setting := model.PanelSetting{Namespace: namespace, Key: key, Value: value}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		r.logger.Error("failed to write setting",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err))
	}
	return err
}
