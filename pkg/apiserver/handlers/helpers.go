package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/panelstack/quotad/pkg/model"
	"github.com/panelstack/quotad/pkg/quota"
)

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

func parseLimit(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// resourcePatch is the wire shape of a partial quota update: any subset of
// the seven fields. Pointers distinguish "absent" from an explicit zero.
type resourcePatch struct {
	MemoryLimit     *int `json:"memory_limit"`
	CPULimit        *int `json:"cpu_limit"`
	DiskLimit       *int `json:"disk_limit"`
	ServerLimit     *int `json:"server_limit"`
	DatabaseLimit   *int `json:"database_limit"`
	BackupLimit     *int `json:"backup_limit"`
	AllocationLimit *int `json:"allocation_limit"`
}

func (p resourcePatch) fields() map[model.ResourceType]int {
	fields := make(map[model.ResourceType]int, 7)
	set := func(t model.ResourceType, v *int) {
		if v != nil {
			fields[t] = *v
		}
	}
	set(model.ResourceMemory, p.MemoryLimit)
	set(model.ResourceCPU, p.CPULimit)
	set(model.ResourceDisk, p.DiskLimit)
	set(model.ResourceServers, p.ServerLimit)
	set(model.ResourceDatabases, p.DatabaseLimit)
	set(model.ResourceBackups, p.BackupLimit)
	set(model.ResourceAllocations, p.AllocationLimit)
	return fields
}

// serverResourcePatch covers the six per-server fields; a server carries no
// server_limit column.
type serverResourcePatch struct {
	Memory          *int `json:"memory"`
	CPU             *int `json:"cpu"`
	Disk            *int `json:"disk"`
	DatabaseLimit   *int `json:"database_limit"`
	BackupLimit     *int `json:"backup_limit"`
	AllocationLimit *int `json:"allocation_limit"`
}

func (p serverResourcePatch) fields() map[model.ResourceType]int {
	fields := make(map[model.ResourceType]int, 6)
	set := func(t model.ResourceType, v *int) {
		if v != nil {
			fields[t] = *v
		}
	}
	set(model.ResourceMemory, p.Memory)
	set(model.ResourceCPU, p.CPU)
	set(model.ResourceDisk, p.Disk)
	set(model.ResourceDatabases, p.DatabaseLimit)
	set(model.ResourceBackups, p.BackupLimit)
	set(model.ResourceAllocations, p.AllocationLimit)
	return fields
}

func respondValidationErrors(c *gin.Context, errs quota.ValidationErrors) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errs})
}

func actorFrom(c *gin.Context) string {
	if subject, ok := c.Get("auth_subject"); ok {
		if s, ok := subject.(string); ok {
			return s
		}
	}
	return ""
}
