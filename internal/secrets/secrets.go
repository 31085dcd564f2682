// Package secrets stores named opaque values for the surrounding sync
// service, such as bank-sync API credentials. Values are write-mostly and
// read back by name; listing is deliberately not offered.
package secrets

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/audit"
	"github.com/mrlokans/syncserver/internal/auth"
	"github.com/mrlokans/syncserver/internal/crypto"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

var ErrSecretNotFound = errors.New("secret not found")

// Service reads and writes named secrets. With an encryptor configured,
// values are encrypted at rest; the encryptor must stay the same across
// restarts or stored values become unreadable.
type Service struct {
	db        *database.Database
	encryptor *crypto.Encryptor
}

func NewService(db *database.Database, encryptor *crypto.Encryptor) *Service {
	return &Service{db: db, encryptor: encryptor}
}

func (s *Service) Get(name string) (string, error) {
	secret, err := s.db.GetSecret(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to load secret: %w", err)
	}
	if s.encryptor == nil {
		return secret.Value, nil
	}
	value, err := s.encryptor.Decrypt(secret.Value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return value, nil
}

// Exists reports whether a name has a stored value without decrypting it.
func (s *Service) Exists(name string) (bool, error) {
	_, err := s.db.GetSecret(name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up secret: %w", err)
	}
	return true, nil
}

func (s *Service) Set(name, value string) error {
	if name == "" {
		return errors.New("secret name is required")
	}
	if s.encryptor != nil {
		encrypted, err := s.encryptor.Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret: %w", err)
		}
		value = encrypted
	}
	return s.db.SetSecret(name, value)
}

type setSecretRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Controller exposes the secret endpoints. Both require a live session; when
// the federated login method is active, writing additionally requires the
// Admin permission, since any federated user can hold a session.
type Controller struct {
	service     *Service
	db          *database.Database
	middleware  *auth.Middleware
	permissions *auth.PermissionResolver
	auditor     *audit.Service
}

func NewController(service *Service, db *database.Database, middleware *auth.Middleware, permissions *auth.PermissionResolver, auditor *audit.Service) *Controller {
	return &Controller{
		service:     service,
		db:          db,
		middleware:  middleware,
		permissions: permissions,
		auditor:     auditor,
	}
}

func (ctl *Controller) RegisterRoutes(router *gin.Engine) {
	protected := router.Group("", ctl.middleware.ValidateSession())
	protected.POST("/secret", ctl.SetSecret)
	protected.GET("/secret/:name", ctl.GetSecret)
}

// SetSecret stores a named value.
func (ctl *Controller) SetSecret(c *gin.Context) {
	if !ctl.authorizeWrite(c) {
		return
	}

	var req setSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "reason": "invalid-request"})
		return
	}

	err := ctl.service.Set(req.Name, req.Value)
	if ctl.auditor != nil {
		ctl.auditor.LogSecretWrite(auth.GetSession(c).UserID, req.Name, err)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "reason": auth.ErrorReason(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSecret reports whether a name has a stored value. The value itself never
// leaves the server over HTTP; readers of the actual secret go through the
// service.
func (ctl *Controller) GetSecret(c *gin.Context) {
	exists, err := ctl.service.Exists(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "reason": auth.ErrorReason(err)})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "reason": "not-found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// authorizeWrite gates secret writes behind the Admin permission while the
// federated method is active. Under password and header logins every session
// already belongs to the owner.
func (ctl *Controller) authorizeWrite(c *gin.Context) bool {
	active, err := ctl.db.GetActiveAuthMethod()
	if err != nil || active.Method != entities.LoginMethodOpenID {
		return true
	}

	session := auth.GetSession(c)
	admin, err := ctl.permissions.IsAdmin(session.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "reason": "internal-error"})
		return false
	}
	if !admin {
		c.JSON(http.StatusForbidden, gin.H{
			"status":  "error",
			"reason":  "unauthorized",
			"details": "permission-not-found",
		})
		return false
	}
	return true
}
