package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/eventbus"
	"github.com/panelstack/quotad/pkg/metrics"
	"github.com/panelstack/quotad/pkg/model"
	"github.com/panelstack/quotad/pkg/quota"
	"github.com/panelstack/quotad/pkg/store/postgres"
)

type QuotaHandler struct {
	engine *quota.Engine
	quotas *postgres.QuotaRepository
	users  *postgres.UserRepository
	audit  *postgres.AuditRepository
	bus    *eventbus.Bus
	logger *zap.Logger
}

func NewQuotaHandler(engine *quota.Engine, quotas *postgres.QuotaRepository, users *postgres.UserRepository, audit *postgres.AuditRepository, bus *eventbus.Bus, logger *zap.Logger) *QuotaHandler {
	return &QuotaHandler{engine: engine, quotas: quotas, users: users, audit: audit, bus: bus, logger: logger}
}

type adjustRequest struct {
	Resource string `json:"resource" binding:"required"`
	Delta    int    `json:"delta" binding:"required"`
}

// Get returns the user's limits, creating the default-seeded quota row on
// first read.
func (h *QuotaHandler) Get(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	limits, err := h.engine.EnsureLimits(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, quota.ErrUserNotFound) || errors.Is(err, postgres.ErrUserMissing) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("failed to read quota", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read quota"})
		return
	}

	c.JSON(http.StatusOK, limits)
}

// Update applies a partial quota update, rejecting the whole request with an
// aggregated error list when any field fails.
func (h *QuotaHandler) Update(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req resourcePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if !h.requireUser(c, ctx, userID) {
		return
	}

	fields := req.fields()
	if len(fields) == 0 {
		metrics.QuotaUpdatesTotal.WithLabelValues(metrics.ResultRejected).Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no quota fields provided"})
		return
	}

	if err := h.engine.ValidateQuotaUpdate(ctx, fields); err != nil {
		var verrs quota.ValidationErrors
		if errors.As(err, &verrs) {
			metrics.QuotaUpdatesTotal.WithLabelValues(metrics.ResultRejected).Inc()
			respondValidationErrors(c, verrs)
			return
		}
		h.logger.Error("quota validation failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate quota"})
		return
	}

	if err := h.quotas.UpdateForUser(ctx, userID, fields); err != nil {
		switch {
		case errors.Is(err, postgres.ErrEmptyUpdate):
			metrics.QuotaUpdatesTotal.WithLabelValues(metrics.ResultRejected).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no quota fields provided"})
		case errors.Is(err, postgres.ErrExceedsMax):
			metrics.QuotaUpdatesTotal.WithLabelValues(metrics.ResultRejected).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "value exceeds configured maximum"})
		default:
			metrics.QuotaUpdatesTotal.WithLabelValues(metrics.ResultError).Inc()
			h.logger.Error("failed to update quota", zap.Uint("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update quota"})
		}
		return
	}

	metrics.QuotaUpdatesTotal.WithLabelValues(metrics.ResultOK).Inc()
	h.audit.Record(ctx, &model.QuotaAuditEntry{
		UserID: userID,
		Actor:  actorFrom(c),
		Action: model.AuditActionUpdate,
		Detail: detailFor(fields),
	})
	h.publish(ctx, eventbus.EventQuotaUpdated, eventbus.QuotaEvent{UserID: userID})

	limits, err := h.engine.LimitsOrDefault(ctx, userID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
		return
	}
	c.JSON(http.StatusOK, limits)
}

// Delete drops the quota row; subsequent reads fall back to the defaults.
func (h *QuotaHandler) Delete(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()
	if err := h.quotas.DeleteForUser(ctx, userID); err != nil {
		if errors.Is(err, postgres.ErrQuotaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "quota record not found"})
			return
		}
		h.logger.Error("failed to delete quota", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete quota"})
		return
	}

	h.audit.Record(ctx, &model.QuotaAuditEntry{
		UserID: userID,
		Actor:  actorFrom(c),
		Action: model.AuditActionDelete,
	})
	h.publish(ctx, eventbus.EventQuotaDeleted, eventbus.QuotaEvent{UserID: userID})

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Adjust applies one atomic signed delta to one resource field.
func (h *QuotaHandler) Adjust(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	resource := model.ResourceType(req.Resource)
	ctx := c.Request.Context()
	if !h.requireUser(c, ctx, userID) {
		return
	}

	if err := h.quotas.AdjustForUser(ctx, userID, resource, req.Delta); err != nil {
		switch {
		case errors.Is(err, postgres.ErrUnknownResource):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown resource type"})
		case errors.Is(err, postgres.ErrInsufficient):
			metrics.AdjustmentsTotal.WithLabelValues(req.Resource, metrics.ResultRejected).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient quota balance"})
		case errors.Is(err, postgres.ErrExceedsMax):
			metrics.AdjustmentsTotal.WithLabelValues(req.Resource, metrics.ResultRejected).Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "value would exceed configured maximum"})
		default:
			metrics.AdjustmentsTotal.WithLabelValues(req.Resource, metrics.ResultError).Inc()
			h.logger.Error("failed to adjust quota", zap.Uint("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to adjust quota"})
		}
		return
	}

	metrics.AdjustmentsTotal.WithLabelValues(req.Resource, metrics.ResultOK).Inc()
	h.audit.Record(ctx, &model.QuotaAuditEntry{
		UserID:   userID,
		Actor:    actorFrom(c),
		Action:   model.AuditActionAdjust,
		Resource: resource,
		Delta:    req.Delta,
	})
	h.publish(ctx, eventbus.EventQuotaAdjusted, eventbus.QuotaEvent{
		UserID:   userID,
		Resource: req.Resource,
		Delta:    req.Delta,
	})

	value, err := h.quotas.GetResource(ctx, userID, resource)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "adjusted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resource": req.Resource, "value": value})
}

// Usage reports limits, used, available and the aggregate overflow state.
func (h *QuotaHandler) Usage(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()
	if !h.requireUser(c, ctx, userID) {
		return
	}

	limits, err := h.engine.LimitsOrDefault(ctx, userID)
	if err != nil {
		h.logger.Error("failed to read limits", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage"})
		return
	}
	used, err := h.engine.UsedFromServerLimits(ctx, userID)
	if err != nil {
		h.logger.Error("failed to compute usage", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage"})
		return
	}
	available, err := h.engine.Available(ctx, userID)
	if err != nil {
		h.logger.Error("failed to compute availability", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage"})
		return
	}
	overflow, err := h.engine.Overflow(ctx, userID)
	if err != nil {
		h.logger.Error("failed to compute overflow", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read usage"})
		return
	}

	for _, entry := range overflow.Entries {
		metrics.OverflowDetectedTotal.WithLabelValues(string(entry.Resource)).Inc()
	}

	c.JSON(http.StatusOK, gin.H{
		"limits":    limits,
		"used":      used,
		"available": available,
		"overflow":  overflow,
	})
}

// Audit lists the user's quota mutation trail.
func (h *QuotaHandler) Audit(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	limit := parseLimit(c.Query("limit"), 50)

	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		since = &parsed
	}

	entries, err := h.audit.ListForUser(c.Request.Context(), userID, since, limit)
	if err != nil {
		h.logger.Error("failed to list audit entries", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *QuotaHandler) requireUser(c *gin.Context, ctx context.Context, userID uint) bool {
	exists, err := h.users.Exists(ctx, userID)
	if err != nil {
		h.logger.Error("failed to check user", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check user"})
		return false
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return false
	}
	return true
}

func (h *QuotaHandler) publish(ctx context.Context, eventType string, payload interface{}) {
	if h.bus == nil {
		return
	}
	if event, err := eventbus.NewEvent(eventType, payload); err == nil {
		_ = h.bus.Publish(ctx, eventbus.ChannelQuota, event)
	}
}

func detailFor(fields map[model.ResourceType]int) string {
	parts := make([]string, 0, len(fields))
	for _, t := range model.ResourceTypes {
		if value, ok := fields[t]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", t, value))
		}
	}
	return strings.Join(parts, ", ")
}
