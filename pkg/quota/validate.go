package quota

import (
	"context"

	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/model"
)

// ValidateQuotaUpdate checks a partial quota-row update: every value must be
// a non-negative integer and must not exceed the configured maximum for its
// field. All offending fields are reported together.
func (e *Engine) ValidateQuotaUpdate(ctx context.Context, fields map[model.ResourceType]int) error {
	maximums := e.settings.MaxResources(ctx)

	var errs ValidationErrors
	for _, t := range model.ResourceTypes {
		value, ok := fields[t]
		if !ok {
			continue
		}
		if value < 0 {
			errs.add(t, "must not be negative")
			continue
		}
		if model.ExceedsCeiling(maximums.Get(t), value) {
			errs.add(t, "must not exceed the configured maximum of %d", maximums.Get(t))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateServerEdit applies the contract every caller must follow before
// committing a change to one server's resource fields:
//
//  1. A user already over quota anywhere is rejected outright.
//  2. used and available are recomputed excluding the server under edit.
//  3. Each proposed value is checked against its floor, against the count of
//     the server's existing child entities, against the total limit on its
//     own, and against what the user's other servers leave free.
//
// Field failures are aggregated; any failure aborts the whole edit.
func (e *Engine) ValidateServerEdit(ctx context.Context, server *model.Server, fields map[model.ResourceType]int) error {
	gate, err := e.Overflow(ctx, server.OwnerID)
	if err != nil {
		return err
	}
	if gate.Overflowing() {
		return &OverflowGateError{Report: gate}
	}

	limits, err := e.LimitsOrDefault(ctx, server.OwnerID)
	if err != nil {
		return err
	}
	usedByOthers, err := e.UsedFromServerLimits(ctx, server.OwnerID, server.ID)
	if err != nil {
		return err
	}

	var errs ValidationErrors
	for _, t := range model.ServerResourceTypes {
		proposed, ok := fields[t]
		if !ok {
			continue
		}

		if floor := fieldFloor(t); proposed < floor {
			errs.add(t, "must be at least %d", floor)
			continue
		}

		if count, countErr := e.existingChildCount(ctx, server.ID, t); countErr != nil {
			return countErr
		} else if count > proposed {
			errs.add(t, "cannot be less than the server's current count of %d", count)
			continue
		}

		limit := limits.Get(t)
		if model.ExceedsCeiling(limit, proposed) {
			errs.add(t, "exceeds the total limit of %d", limit)
			continue
		}
		if limit > 0 && usedByOthers.Get(t)+proposed > limit {
			errs.add(t, "only %d left within the limit of %d", limit-usedByOthers.Get(t), limit)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ApplyServerEdit validates and, only if every field passes, commits the
// batch in one statement. Partial application is not possible.
func (e *Engine) ApplyServerEdit(ctx context.Context, serverID uint, fields map[model.ResourceType]int) (*model.Server, error) {
	server, err := e.servers.GetByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, ErrServerNotFound
	}

	if err := e.ValidateServerEdit(ctx, server, fields); err != nil {
		return nil, err
	}

	if err := e.servers.UpdateResources(ctx, serverID, fields); err != nil {
		e.logger.Error("failed to apply server edit",
			zap.Uint("server_id", serverID),
			zap.Uint("user_id", server.OwnerID),
			zap.Error(err))
		return nil, err
	}

	return e.servers.GetByID(ctx, serverID)
}

// fieldFloor is the minimum a server resource field may be set to, before
// child-entity counts are considered. Databases and backups may drop to zero;
// everything else needs at least one unit to run a server.
func fieldFloor(t model.ResourceType) int {
	switch t {
	case model.ResourceMemory, model.ResourceCPU, model.ResourceDisk, model.ResourceAllocations:
		return 1
	default:
		return 0
	}
}

func (e *Engine) existingChildCount(ctx context.Context, serverID uint, t model.ResourceType) (int, error) {
	switch t {
	case model.ResourceDatabases:
		return e.servers.DatabaseCount(ctx, serverID)
	case model.ResourceBackups:
		return e.servers.BackupCount(ctx, serverID)
	case model.ResourceAllocations:
		return e.servers.AllocationCount(ctx, serverID)
	default:
		return 0, nil
	}
}
