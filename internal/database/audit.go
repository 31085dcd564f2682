package database

import (
	"time"

	"github.com/mrlokans/syncserver/internal/entities"
)

// LogAuditEvent saves an audit event to the database.
func (d *Database) LogAuditEvent(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return d.DB.Create(event).Error
}

// GetAuditEvents retrieves audit events ordered by most recent first.
func (d *Database) GetAuditEvents(limit int) ([]entities.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []entities.AuditEvent
	err := d.DB.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// DeleteOldAuditEvents removes events older than the retention period.
// Returns the number of deleted rows.
func (d *Database) DeleteOldAuditEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := d.DB.Where("created_at < ?", cutoff).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}
