package model

import "time"

// QuotaAuditEntry records one successful mutation of a user's quota state.
type QuotaAuditEntry struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement"`
	UserID    uint         `gorm:"not null;index:idx_quota_audit_user_time"`
	Actor     string       `gorm:"type:varchar(64)"`
	Action    string       `gorm:"type:varchar(32);not null"`
	Resource  ResourceType `gorm:"type:varchar(32)"`
	Delta     int          `gorm:"default:0"`
	Detail    string       `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"autoCreateTime;index:idx_quota_audit_user_time"`
}

func (QuotaAuditEntry) TableName() string {
	return "quota_audit_log"
}

const (
	AuditActionAdjust     = "adjust"
	AuditActionUpdate     = "update"
	AuditActionDelete     = "delete"
	AuditActionServerEdit = "server_edit"
)
