// Package audit records a security trail of logins, bootstrap attempts,
// login method switches and secret writes.
package audit

import (
	"log"

	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	db *database.Database
}

// NewService creates a new audit service.
func NewService(db *database.Database) *Service {
	return &Service{db: db}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.db.LogAuditEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	go func() {
		if err := s.db.LogAuditEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// LogLogin records a login attempt through any method.
func (s *Service) LogLogin(userID string, method entities.LoginMethod, ipAddr, userAgent string, err error) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventAuth,
		Action:    string(method) + "_login",
		IPAddress: ipAddr,
		UserAgent: truncate(userAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// LogBootstrap records a bootstrap attempt.
func (s *Service) LogBootstrap(ipAddr string, err error) {
	event := &entities.AuditEvent{
		EventType: entities.AuditEventBootstrap,
		Action:    "bootstrap",
		IPAddress: ipAddr,
		Status:    entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// LogMethodSwitch records a login method transition.
func (s *Service) LogMethodSwitch(userID string, method entities.LoginMethod, err error) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventMethod,
		Action:    "enable_" + string(method),
		Status:    entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// LogSecretWrite records a secret being stored. Only the name reaches the
// trail, never the value.
func (s *Service) LogSecretWrite(userID, name string, err error) {
	event := &entities.AuditEvent{
		UserID:    userID,
		EventType: entities.AuditEventSecret,
		Action:    truncate("set_secret:"+name, 100),
		Status:    entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
