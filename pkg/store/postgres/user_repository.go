package postgres

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/panelstack/quotad/pkg/model"
)

// UserRepository is the existence check guarding every quota operation. The
// addon never writes the users table.
type UserRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewUserRepository(db *gorm.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

func (r *UserRepository) Exists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		r.logger.Error("failed to check user existence", zap.Uint("user_id", userID), zap.Error(err))
		return false, err
	}
	return count > 0, nil
}
