package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/eventbus"
	"github.com/panelstack/quotad/pkg/metrics"
	"github.com/panelstack/quotad/pkg/model"
	"github.com/panelstack/quotad/pkg/quota"
	"github.com/panelstack/quotad/pkg/store/postgres"
)

type ServerHandler struct {
	engine  *quota.Engine
	servers *postgres.ServerRepository
	audit   *postgres.AuditRepository
	bus     *eventbus.Bus
	logger  *zap.Logger
}

func NewServerHandler(engine *quota.Engine, servers *postgres.ServerRepository, audit *postgres.AuditRepository, bus *eventbus.Bus, logger *zap.Logger) *ServerHandler {
	return &ServerHandler{engine: engine, servers: servers, audit: audit, bus: bus, logger: logger}
}

type serverResourcesResponse struct {
	Server              serverView            `json:"server"`
	Limits              model.ResourceVector  `json:"limits"`
	Used                model.ResourceVector  `json:"used"`
	UsedExcludingSelf   model.ResourceVector  `json:"used_excluding_self"`
	Available           model.ResourceVector  `json:"available"`
	AvailableForEditing model.ResourceVector  `json:"available_for_editing"`
	ServerOverflow      quota.OverflowReport  `json:"server_overflow"`
	Overflow            quota.OverflowReport  `json:"overflow"`
}

type serverView struct {
	ID              uint   `json:"id"`
	OwnerID         uint   `json:"owner_id"`
	Name            string `json:"name"`
	Memory          int    `json:"memory"`
	CPU             int    `json:"cpu"`
	Disk            int    `json:"disk"`
	DatabaseLimit   int    `json:"database_limit"`
	BackupLimit     int    `json:"backup_limit"`
	AllocationLimit int    `json:"allocation_limit"`
}

// GetResources returns everything a caller needs to render or edit one
// server's allocation: the server's own fields, the owner's limits, usage
// with and without this server, both availability vectors and both overflow
// reports.
func (h *ServerHandler) GetResources(c *gin.Context) {
	serverID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return
	}

	ctx := c.Request.Context()
	server, err := h.servers.GetByID(ctx, serverID)
	if err != nil {
		h.logger.Error("failed to load server", zap.Uint("server_id", serverID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load server"})
		return
	}
	if server == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return
	}

	response, err := h.buildResponse(ctx, server)
	if err != nil {
		h.logger.Error("failed to compute server resources",
			zap.Uint("server_id", serverID),
			zap.Uint("user_id", server.OwnerID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute server resources"})
		return
	}

	c.JSON(http.StatusOK, response)
}

// Update validates and commits a batch edit of the server's resource fields.
// Any failing field aborts the whole request; an owner already over quota is
// rejected before field checks.
func (h *ServerHandler) Update(c *gin.Context) {
	serverID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return
	}

	var req serverResourcePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	fields := req.fields()
	if len(fields) == 0 {
		metrics.ServerEditsTotal.WithLabelValues(metrics.ResultRejected).Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no resource fields provided"})
		return
	}

	ctx := c.Request.Context()
	server, err := h.engine.ApplyServerEdit(ctx, serverID, fields)
	if err != nil {
		var verrs quota.ValidationErrors
		var gateErr *quota.OverflowGateError
		switch {
		case errors.Is(err, quota.ErrServerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		case errors.As(err, &gateErr):
			metrics.ServerEditsTotal.WithLabelValues(metrics.ResultRejected).Inc()
			c.JSON(http.StatusConflict, gin.H{
				"error":    "user is over quota; reduce usage or raise limits first",
				"overflow": gateErr.Report,
			})
		case errors.As(err, &verrs):
			metrics.ServerEditsTotal.WithLabelValues(metrics.ResultRejected).Inc()
			respondValidationErrors(c, verrs)
		default:
			metrics.ServerEditsTotal.WithLabelValues(metrics.ResultError).Inc()
			h.logger.Error("failed to update server resources", zap.Uint("server_id", serverID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update server resources"})
		}
		return
	}

	metrics.ServerEditsTotal.WithLabelValues(metrics.ResultOK).Inc()
	h.audit.Record(ctx, &model.QuotaAuditEntry{
		UserID: server.OwnerID,
		Actor:  actorFrom(c),
		Action: model.AuditActionServerEdit,
		Detail: detailFor(fields),
	})
	if h.bus != nil {
		if event, err := eventbus.NewEvent(eventbus.EventServerEdited, eventbus.ServerEvent{
			ServerID: server.ID,
			UserID:   server.OwnerID,
		}); err == nil {
			_ = h.bus.Publish(ctx, eventbus.ChannelServer, event)
		}
	}

	response, err := h.buildResponse(ctx, server)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ServerHandler) buildResponse(ctx context.Context, server *model.Server) (*serverResourcesResponse, error) {
	userID := server.OwnerID

	limits, err := h.engine.LimitsOrDefault(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := h.engine.UsedFromServerLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	usedExcluding, err := h.engine.UsedFromServerLimits(ctx, userID, server.ID)
	if err != nil {
		return nil, err
	}
	available, err := h.engine.Available(ctx, userID)
	if err != nil {
		return nil, err
	}
	availableForEditing, err := h.engine.Available(ctx, userID, server.ID)
	if err != nil {
		return nil, err
	}
	serverOverflow, err := h.engine.ServerOverflow(ctx, userID, server)
	if err != nil {
		return nil, err
	}
	overflow, err := h.engine.Overflow(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &serverResourcesResponse{
		Server: serverView{
			ID:              server.ID,
			OwnerID:         server.OwnerID,
			Name:            server.Name,
			Memory:          server.Memory,
			CPU:             server.CPU,
			Disk:            server.Disk,
			DatabaseLimit:   server.DatabaseLimit,
			BackupLimit:     server.BackupLimit,
			AllocationLimit: server.AllocationLimit,
		},
		Limits:              limits,
		Used:                used,
		UsedExcludingSelf:   usedExcluding,
		Available:           available,
		AvailableForEditing: availableForEditing,
		ServerOverflow:      serverOverflow,
		Overflow:            overflow,
	}, nil
}
