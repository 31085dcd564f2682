package entities

import "time"

type AuditEventType string

const (
	AuditEventAuth      AuditEventType = "auth"
	AuditEventBootstrap AuditEventType = "bootstrap"
	AuditEventMethod    AuditEventType = "method_switch"
	AuditEventSecret    AuditEventType = "secret"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEvent is one row in the security audit trail: logins, bootstrap
// attempts, login method switches and secret writes.
type AuditEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    string         `gorm:"size:36;index" json:"user_id"`
	EventType AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action    string         `gorm:"size:100" json:"action"`
	IPAddress string         `gorm:"size:45" json:"ip_address"`
	UserAgent string         `gorm:"size:500" json:"user_agent"`
	Status    AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg  string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
