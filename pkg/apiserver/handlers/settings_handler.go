package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/panelstack/quotad/pkg/eventbus"
	"github.com/panelstack/quotad/pkg/metrics"
	"github.com/panelstack/quotad/pkg/model"
	"github.com/panelstack/quotad/pkg/quota"
	"github.com/panelstack/quotad/pkg/settings"
)

const (
	settingNameDefault = "default"
	settingNameMaximum = "maximum"
)

type SettingsHandler struct {
	settings *settings.Service
	bus      *eventbus.Bus
	logger   *zap.Logger
}

func NewSettingsHandler(service *settings.Service, bus *eventbus.Bus, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: service, bus: bus, logger: logger}
}

// Get returns one of the two named vectors, always structurally complete.
func (h *SettingsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	switch c.Param("name") {
	case settingNameDefault:
		c.JSON(http.StatusOK, h.settings.DefaultResources(ctx))
	case settingNameMaximum:
		c.JSON(http.StatusOK, h.settings.MaxResources(ctx))
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
	}
}

// Update accepts a partial vector; absent fields are backfilled from the
// structural defaults before the blob is stored.
func (h *SettingsHandler) Update(c *gin.Context) {
	name := c.Param("name")
	if name != settingNameDefault && name != settingNameMaximum {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}

	var req resourcePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	fields := req.fields()
	var errs quota.ValidationErrors
	for _, t := range model.ResourceTypes {
		if value, ok := fields[t]; ok && value < 0 {
			errs = append(errs, quota.FieldError{Field: t, Message: "must not be negative"})
		}
	}
	if len(errs) > 0 {
		respondValidationErrors(c, errs)
		return
	}

	ctx := c.Request.Context()
	var err error
	if name == settingNameDefault {
		err = h.settings.SetDefaultResources(ctx, fields)
	} else {
		err = h.settings.SetMaxResources(ctx, fields)
	}
	if err != nil {
		h.logger.Error("failed to store settings", zap.String("name", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store settings"})
		return
	}

	metrics.SettingsWritesTotal.WithLabelValues(name).Inc()
	if h.bus != nil {
		if event, evErr := eventbus.NewEvent(eventbus.EventSettingsChanged, gin.H{"name": name}); evErr == nil {
			_ = h.bus.Publish(ctx, eventbus.ChannelSettings, event)
		}
	}

	if name == settingNameDefault {
		c.JSON(http.StatusOK, h.settings.DefaultResources(ctx))
		return
	}
	c.JSON(http.StatusOK, h.settings.MaxResources(ctx))
}
