package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/panelstack/quotad/pkg/model"
)

// ServerRepository reads the panel's server tables and applies the one write
// the addon performs on them: the validated batch edit of a server's own
// resource columns.
type ServerRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewServerRepository(db *gorm.DB, logger *zap.Logger) *ServerRepository {
	return &ServerRepository{db: db, logger: logger}
}

func (r *ServerRepository) ListByOwner(ctx context.Context, userID uint) ([]model.Server, error) {
	var servers []model.Server
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Order("id ASC").
		Find(&servers).Error
	if err != nil {
		r.logger.Error("failed to list servers", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	return servers, nil
}

func (r *ServerRepository) GetByID(ctx context.Context, id uint) (*model.Server, error) {
	var server model.Server
	err := r.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to load server", zap.Uint("server_id", id), zap.Error(err))
		return nil, err
	}
	return &server, nil
}

// UpdateResources writes the given per-server resource columns in one
// statement; the caller has already validated the batch as a whole.
func (r *ServerRepository) UpdateResources(ctx context.Context, id uint, fields map[model.ResourceType]int) error {
	if len(fields) == 0 {
		return ErrEmptyUpdate
	}

	updates := make(map[string]interface{}, len(fields))
	for t, value := range fields {
		column, ok := serverColumn(t)
		if !ok {
			continue
		}
		updates[column] = value
	}
	if len(updates) == 0 {
		return ErrEmptyUpdate
	}

	result := r.db.WithContext(ctx).Model(&model.Server{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		r.logger.Error("failed to update server resources", zap.Uint("server_id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ServerRepository) DatabaseCount(ctx context.Context, serverID uint) (int, error) {
	return r.countFor(ctx, &model.ServerDatabase{}, serverID)
}

func (r *ServerRepository) BackupCount(ctx context.Context, serverID uint) (int, error) {
	return r.countFor(ctx, &model.ServerBackup{}, serverID)
}

func (r *ServerRepository) AllocationCount(ctx context.Context, serverID uint) (int, error) {
	return r.countFor(ctx, &model.ServerAllocation{}, serverID)
}

func (r *ServerRepository) countFor(ctx context.Context, entity interface{}, serverID uint) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(entity).Where("server_id = ?", serverID).Count(&count).Error; err != nil {
		r.logger.Error("failed to count child entities", zap.Uint("server_id", serverID), zap.Error(err))
		return 0, err
	}
	return int(count), nil
}

// serverColumn maps a quota field to the matching servers-table column. The
// memory/cpu/disk columns drop the _limit suffix on the server row.
func serverColumn(t model.ResourceType) (string, bool) {
	switch t {
	case model.ResourceMemory:
		return "memory", true
	case model.ResourceCPU:
		return "cpu", true
	case model.ResourceDisk:
		return "disk", true
	case model.ResourceDatabases:
		return "database_limit", true
	case model.ResourceBackups:
		return "backup_limit", true
	case model.ResourceAllocations:
		return "allocation_limit", true
	default:
		return "", false
	}
}
