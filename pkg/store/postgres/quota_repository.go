package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panelstack/quotad/pkg/model"
)

// Validation sentinels. Callers match these to tell an expected rejection
// apart from an infrastructure failure; neither ever panics out of the store.
var (
	ErrUserMissing     = errors.New("user does not exist")
	ErrQuotaExists     = errors.New("quota record already exists for user")
	ErrQuotaNotFound   = errors.New("quota record not found")
	ErrEmptyUpdate     = errors.New("no quota fields to update")
	ErrUnknownResource = errors.New("unknown resource type")
	ErrExceedsMax      = errors.New("value exceeds configured maximum")
	ErrInsufficient    = errors.New("insufficient quota balance")
)

// ResourceSettings supplies the two admin-configured vectors. Reads always
// resolve to a complete vector; there is no error path.
type ResourceSettings interface {
	DefaultResources(ctx context.Context) model.ResourceVector
	MaxResources(ctx context.Context) model.ResourceVector
}

// QuotaRepository owns the user_quotas table: CRUD plus the two serialized
// read-modify-write primitives (UpdateForUser and AdjustForUser).
type QuotaRepository struct {
	db       *gorm.DB
	settings ResourceSettings
	logger   *zap.Logger
}

func NewQuotaRepository(db *gorm.DB, settings ResourceSettings, logger *zap.Logger) *QuotaRepository {
	return &QuotaRepository{db: db, settings: settings, logger: logger}
}

// GetByUser returns the user's quota row, or nil when the user has none.
// Absence is not an error.
func (r *QuotaRepository) GetByUser(ctx context.Context, userID uint) (*model.UserQuota, error) {
	var quota model.UserQuota
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&quota).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to load quota record", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &quota, nil
}

// EnsureForUser returns the existing row or creates one seeded from the
// configured defaults. A concurrent first-writer losing the unique-index race
// simply re-fetches the winner's row.
func (r *QuotaRepository) EnsureForUser(ctx context.Context, userID uint) (*model.UserQuota, error) {
	quota, err := r.GetByUser(ctx, userID)
	if err != nil || quota != nil {
		return quota, err
	}

	exists, err := r.userExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserMissing
	}

	seeded := &model.UserQuota{UserID: userID}
	seeded.SetVector(r.settings.DefaultResources(ctx))

	if err := r.db.WithContext(ctx).Create(seeded).Error; err != nil {
		if isUniqueViolation(err) {
			// Someone else won the creation race; their row is authoritative.
			return r.GetByUser(ctx, userID)
		}
		r.logger.Error("failed to create quota record", zap.Uint("user_id", userID), zap.Error(err))
		return nil, err
	}
	return seeded, nil
}

// Create inserts a fully specified quota row. One row per user is enforced
// here as well as by the unique index.
func (r *QuotaRepository) Create(ctx context.Context, quota *model.UserQuota) error {
	if quota.UserID == 0 {
		return ErrUserMissing
	}

	exists, err := r.userExists(ctx, quota.UserID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUserMissing
	}

	existing, err := r.GetByUser(ctx, quota.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrQuotaExists
	}

	if err := r.db.WithContext(ctx).Create(quota).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrQuotaExists
		}
		r.logger.Error("failed to create quota record", zap.Uint("user_id", quota.UserID), zap.Error(err))
		return err
	}
	return nil
}

// UpdateForUser sets the given resource fields on the user's row inside one
// transaction. Fields other than the seven resource columns are dropped.
// Every new value is checked against the configured maximums; a row absent at
// lock time is inserted seeded from the defaults merged with the update.
func (r *QuotaRepository) UpdateForUser(ctx context.Context, userID uint, fields map[model.ResourceType]int) error {
	fields = whitelistResourceFields(fields)
	if len(fields) == 0 {
		return ErrEmptyUpdate
	}

	maximums := r.settings.MaxResources(ctx)
	for t, value := range fields {
		if model.ExceedsCeiling(maximums.Get(t), value) {
			return ErrExceedsMax
		}
	}

	defaults := r.settings.DefaultResources(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quota model.UserQuota
		err := lockForUpdate(tx).Where("user_id = ?", userID).First(&quota).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			quota = model.UserQuota{UserID: userID}
			quota.SetVector(defaults.Merge(fields))
			return tx.Create(&quota).Error
		}
		if err != nil {
			return err
		}

		updates := make(map[string]interface{}, len(fields))
		for t, value := range fields {
			updates[model.QuotaColumn(t)] = value
		}
		return tx.Model(&model.UserQuota{}).Where("id = ?", quota.ID).Updates(updates).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the first-writer race; the caller may retry against the
			// winner's row.
			return r.UpdateForUser(ctx, userID, fields)
		}
		r.logger.Error("failed to update quota record", zap.Uint("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// UpdateByID is the raw administrative override: same whitelist, no maximum
// check, single statement.
func (r *QuotaRepository) UpdateByID(ctx context.Context, id string, fields map[model.ResourceType]int) error {
	fields = whitelistResourceFields(fields)
	if len(fields) == 0 {
		return ErrEmptyUpdate
	}

	updates := make(map[string]interface{}, len(fields))
	for t, value := range fields {
		updates[model.QuotaColumn(t)] = value
	}

	result := r.db.WithContext(ctx).Model(&model.UserQuota{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		r.logger.Error("failed to update quota record", zap.String("id", id), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// AdjustForUser applies a signed delta to one resource field, serialized
// against concurrent adjustments by a row lock held for the whole
// read-validate-write transaction. An absent row is treated as holding the
// configured default for the field and inserted with the adjusted value.
func (r *QuotaRepository) AdjustForUser(ctx context.Context, userID uint, resource model.ResourceType, delta int) error {
	if !model.KnownResource(resource) {
		return ErrUnknownResource
	}

	defaults := r.settings.DefaultResources(ctx)
	maximums := r.settings.MaxResources(ctx)

	// One retry: if two adjusters race on a missing row, the insert loser
	// re-runs against the winner's now-lockable row.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = r.adjustOnce(ctx, userID, resource, delta, defaults, maximums)
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil && !errors.Is(err, ErrInsufficient) && !errors.Is(err, ErrExceedsMax) {
		r.logger.Error("failed to adjust quota",
			zap.Uint("user_id", userID),
			zap.String("resource", string(resource)),
			zap.Int("delta", delta),
			zap.Error(err))
	}
	return err
}

func (r *QuotaRepository) adjustOnce(ctx context.Context, userID uint, resource model.ResourceType, delta int, defaults, maximums model.ResourceVector) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quota model.UserQuota
		insert := false

		err := lockForUpdate(tx).Where("user_id = ?", userID).First(&quota).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			insert = true
			quota = model.UserQuota{UserID: userID}
			quota.SetVector(defaults)
		} else if err != nil {
			return err
		}

		next := quota.Vector().Get(resource) + delta
		if next < 0 {
			return ErrInsufficient
		}
		if model.ExceedsCeiling(maximums.Get(resource), next) {
			return ErrExceedsMax
		}

		quota.SetField(resource, next)
		if insert {
			return tx.Create(&quota).Error
		}
		return tx.Model(&model.UserQuota{}).
			Where("id = ?", quota.ID).
			Update(model.QuotaColumn(resource), next).Error
	})
}

// GetResource reads one field without creating a row: the stored value if a
// row exists, the configured default otherwise, and zero for an unknown type.
func (r *QuotaRepository) GetResource(ctx context.Context, userID uint, resource model.ResourceType) (int, error) {
	if !model.KnownResource(resource) {
		return 0, nil
	}
	quota, err := r.GetByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if quota == nil {
		return r.settings.DefaultResources(ctx).Get(resource), nil
	}
	return quota.Vector().Get(resource), nil
}

// DeleteForUser removes the user's quota row; subsequent reads fall back to
// the configured defaults.
func (r *QuotaRepository) DeleteForUser(ctx context.Context, userID uint) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserQuota{})
	if result.Error != nil {
		r.logger.Error("failed to delete quota record", zap.Uint("user_id", userID), zap.Error(result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

func (r *QuotaRepository) userExists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func whitelistResourceFields(fields map[model.ResourceType]int) map[model.ResourceType]int {
	filtered := make(map[model.ResourceType]int, len(fields))
	for t, value := range fields {
		if model.KnownResource(t) {
			filtered[t] = value
		}
	}
	return filtered
}

// lockForUpdate takes a row-level exclusive lock on postgres. sqlite has no
// FOR UPDATE clause; its single-writer transactions already serialize.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
