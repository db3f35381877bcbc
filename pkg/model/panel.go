package model

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors the panel's users table. The service never writes users; the
// row exists so the quota foreign key and existence checks have something to
// point at, and so AutoMigrate can stand up a full schema for development.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;not null"`
	Email     string `gorm:"index"`
	RootAdmin bool   `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

// Server mirrors the panel's servers table, reduced to the columns the quota
// arithmetic reads and the validated edit path writes. The memory, cpu and
// disk columns are the server's own configured ceilings, not live usage.
type Server struct {
	ID              uint      `gorm:"primaryKey"`
	UUID            uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	OwnerID         uint      `gorm:"not null;index"`
	Owner           *User     `gorm:"foreignKey:OwnerID"`
	Name            string    `gorm:"not null"`
	Memory          int       `gorm:"not null;default:0"`
	CPU             int       `gorm:"not null;default:0"`
	Disk            int       `gorm:"not null;default:0"`
	DatabaseLimit   int       `gorm:"not null;default:0"`
	BackupLimit     int       `gorm:"not null;default:0"`
	AllocationLimit int       `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Server) TableName() string {
	return "servers"
}

// Usage reports the server's own resource fields as a vector. Servers is
// always 1: one server contributes one unit to the user's server count.
func (s *Server) Usage() ResourceVector {
	return ResourceVector{
		Memory:      s.Memory,
		CPU:         s.CPU,
		Disk:        s.Disk,
		Servers:     1,
		Databases:   s.DatabaseLimit,
		Backups:     s.BackupLimit,
		Allocations: s.AllocationLimit,
	}
}

type ServerDatabase struct {
	ID        uint   `gorm:"primaryKey"`
	ServerID  uint   `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (ServerDatabase) TableName() string {
	return "server_databases"
}

type ServerBackup struct {
	ID        uint      `gorm:"primaryKey"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	ServerID  uint      `gorm:"not null;index"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time
}

func (ServerBackup) TableName() string {
	return "server_backups"
}

// ServerAllocation is a network allocation; ServerID is nil while the
// allocation sits in the unassigned pool.
type ServerAllocation struct {
	ID        uint  `gorm:"primaryKey"`
	ServerID  *uint `gorm:"index"`
	IP        string
	Port      int
	CreatedAt time.Time
}

func (ServerAllocation) TableName() string {
	return "server_allocations"
}

// PanelSetting is one named configuration blob, stored as a JSON string.
type PanelSetting struct {
	ID        uint   `gorm:"primaryKey"`
	Namespace string `gorm:"not null;uniqueIndex:idx_settings_ns_key"`
	Key       string `gorm:"not null;uniqueIndex:idx_settings_ns_key"`
	Value     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PanelSetting) TableName() string {
	return "panel_settings"
}
