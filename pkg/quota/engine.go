package quota

import (
	"context"

	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/model"
)

// QuotaSource is the slice of the quota store the engine reads.
type QuotaSource interface {
	GetByUser(ctx context.Context, userID uint) (*model.UserQuota, error)
	EnsureForUser(ctx context.Context, userID uint) (*model.UserQuota, error)
}

// ServerDirectory lists a user's provisioned servers and the live counts of
// their child entities.
type ServerDirectory interface {
	ListByOwner(ctx context.Context, userID uint) ([]model.Server, error)
	GetByID(ctx context.Context, id uint) (*model.Server, error)
	UpdateResources(ctx context.Context, id uint, fields map[model.ResourceType]int) error
	DatabaseCount(ctx context.Context, serverID uint) (int, error)
	BackupCount(ctx context.Context, serverID uint) (int, error)
	AllocationCount(ctx context.Context, serverID uint) (int, error)
}

// SettingsSource supplies the admin-configured default and maximum vectors.
type SettingsSource interface {
	DefaultResources(ctx context.Context) model.ResourceVector
	MaxResources(ctx context.Context) model.ResourceVector
}

// UserDirectory guards every operation with an existence check.
type UserDirectory interface {
	Exists(ctx context.Context, userID uint) (bool, error)
}

// Engine derives used, available and overflow figures from a user's quota
// record and server list, and applies the validation contract callers must
// follow before committing an edit. It mutates nothing except through the
// lazy quota-row creation of EnsureLimits and the validated ApplyServerEdit.
type Engine struct {
	quotas   QuotaSource
	servers  ServerDirectory
	settings SettingsSource
	users    UserDirectory
	logger   *zap.Logger
}

func NewEngine(quotas QuotaSource, servers ServerDirectory, settings SettingsSource, users UserDirectory, logger *zap.Logger) *Engine {
	return &Engine{quotas: quotas, servers: servers, settings: settings, users: users, logger: logger}
}

// LimitsOrDefault returns the user's limits, falling back to the configured
// defaults without creating a row.
func (e *Engine) LimitsOrDefault(ctx context.Context, userID uint) (model.ResourceVector, error) {
	quota, err := e.quotas.GetByUser(ctx, userID)
	if err != nil {
		return model.ResourceVector{}, err
	}
	if quota == nil {
		return e.settings.DefaultResources(ctx), nil
	}
	return quota.Vector(), nil
}

// EnsureLimits is the read path backing the quota API: it lazily creates the
// default-seeded row on first access.
func (e *Engine) EnsureLimits(ctx context.Context, userID uint) (model.ResourceVector, error) {
	exists, err := e.users.Exists(ctx, userID)
	if err != nil {
		return model.ResourceVector{}, err
	}
	if !exists {
		return model.ResourceVector{}, ErrUserNotFound
	}

	quota, err := e.quotas.EnsureForUser(ctx, userID)
	if err != nil {
		return model.ResourceVector{}, err
	}
	if quota == nil {
		return e.settings.DefaultResources(ctx), nil
	}
	return quota.Vector(), nil
}

// UsedFromServerLimits sums the resource fields of the user's servers,
// skipping any in exclude. Usage here is allocated capacity, not telemetry:
// a server "uses" exactly what it has been promised.
func (e *Engine) UsedFromServerLimits(ctx context.Context, userID uint, exclude ...uint) (model.ResourceVector, error) {
	servers, err := e.servers.ListByOwner(ctx, userID)
	if err != nil {
		return model.ResourceVector{}, err
	}

	skip := make(map[uint]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	var used model.ResourceVector
	for i := range servers {
		if _, excluded := skip[servers[i].ID]; excluded {
			continue
		}
		usage := servers[i].Usage()
		for _, t := range model.ResourceTypes {
			used.Set(t, used.Get(t)+usage.Get(t))
		}
	}
	return used, nil
}

// Available returns max(0, limit-used) per field, with the same exclusion
// set applied to the used computation.
func (e *Engine) Available(ctx context.Context, userID uint, exclude ...uint) (model.ResourceVector, error) {
	limits, err := e.LimitsOrDefault(ctx, userID)
	if err != nil {
		return model.ResourceVector{}, err
	}
	used, err := e.UsedFromServerLimits(ctx, userID, exclude...)
	if err != nil {
		return model.ResourceVector{}, err
	}

	var available model.ResourceVector
	for _, t := range model.ResourceTypes {
		headroom := limits.Get(t) - used.Get(t)
		if headroom < 0 {
			headroom = 0
		}
		available.Set(t, headroom)
	}
	return available, nil
}

// Overflow flags every field where the aggregate usage breaks a non-zero
// limit, server_limit included.
func (e *Engine) Overflow(ctx context.Context, userID uint) (OverflowReport, error) {
	limits, err := e.LimitsOrDefault(ctx, userID)
	if err != nil {
		return OverflowReport{}, err
	}
	used, err := e.UsedFromServerLimits(ctx, userID)
	if err != nil {
		return OverflowReport{}, err
	}
	return buildReport(model.ResourceTypes, used, limits), nil
}

// ServerOverflow compares one server's own resource fields against the
// user's total limits, catching a single over-provisioned server before the
// aggregate overflows. A server has no server-count field, so server_limit
// is absent from this report.
func (e *Engine) ServerOverflow(ctx context.Context, userID uint, server *model.Server) (OverflowReport, error) {
	limits, err := e.LimitsOrDefault(ctx, userID)
	if err != nil {
		return OverflowReport{}, err
	}
	return buildReport(model.ServerResourceTypes, server.Usage(), limits), nil
}
