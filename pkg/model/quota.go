package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserQuota is the one-per-user quota row. Each field is a ceiling the sum of
// the user's server allocations must not exceed; a zero ceiling means
// unlimited.
type UserQuota struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID          uint      `gorm:"not null;uniqueIndex"`
	User            *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	MemoryLimit     int       `gorm:"not null;default:0"`
	CPULimit        int       `gorm:"not null;default:0"`
	DiskLimit       int       `gorm:"not null;default:0"`
	ServerLimit     int       `gorm:"not null;default:0"`
	DatabaseLimit   int       `gorm:"not null;default:0"`
	BackupLimit     int       `gorm:"not null;default:0"`
	AllocationLimit int       `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (UserQuota) TableName() string {
	return "user_quotas"
}

func (q *UserQuota) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

func (q *UserQuota) Vector() ResourceVector {
	return ResourceVector{
		Memory:      q.MemoryLimit,
		CPU:         q.CPULimit,
		Disk:        q.DiskLimit,
		Servers:     q.ServerLimit,
		Databases:   q.DatabaseLimit,
		Backups:     q.BackupLimit,
		Allocations: q.AllocationLimit,
	}
}

func (q *UserQuota) SetVector(v ResourceVector) {
	q.MemoryLimit = v.Memory
	q.CPULimit = v.CPU
	q.DiskLimit = v.Disk
	q.ServerLimit = v.Servers
	q.DatabaseLimit = v.Databases
	q.BackupLimit = v.Backups
	q.AllocationLimit = v.Allocations
}

func (q *UserQuota) SetField(t ResourceType, value int) {
	v := q.Vector()
	v.Set(t, value)
	q.SetVector(v)
}

// QuotaColumn maps a resource type to its user_quotas column name. The JSON
// field names and the column names are deliberately identical.
func QuotaColumn(t ResourceType) string {
	return string(t)
}
