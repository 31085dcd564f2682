package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// FederatedEnabler installs a federated provider configuration as the active
// login method during bootstrap. Implemented by the openid package.
type FederatedEnabler interface {
	EnableForBootstrap(rawConfig json.RawMessage) error
}

// BootstrapRequest carries the credentials of the one-time instance setup.
// Exactly one of the fields selects the method.
type BootstrapRequest struct {
	Password string          `json:"password"`
	OpenID   json.RawMessage `json:"openId,omitempty"`
}

// MethodInfo describes a configured login method for the listing endpoint.
type MethodInfo struct {
	Method      entities.LoginMethod `json:"method"`
	DisplayName string               `json:"displayName"`
	Active      bool                 `json:"active"`
}

// Bootstrapper is the one-time gate deciding whether the instance still needs
// its first owner, and dispatching setup to the requested login method.
type Bootstrapper struct {
	db        *database.Database
	service   *Service
	federated FederatedEnabler

	// Serializes bootstrap attempts so concurrent requests cannot both pass
	// the NeedsBootstrap check.
	mu sync.Mutex
}

func NewBootstrapper(db *database.Database, service *Service, federated FederatedEnabler) *Bootstrapper {
	return &Bootstrapper{db: db, service: service, federated: federated}
}

// NeedsBootstrap is true only while the instance has neither an owner user
// nor an active login method. Password bootstrap configures the method first
// and creates its owner lazily at first login, so both conditions matter.
func (b *Bootstrapper) NeedsBootstrap() (bool, error) {
	owners, err := b.db.CountOwners()
	if err != nil {
		return false, fmt.Errorf("failed to count owners: %w", err)
	}
	if owners > 0 {
		return false, nil
	}

	active, err := b.db.HasActiveAuthMethod()
	if err != nil {
		return false, fmt.Errorf("failed to check active method: %w", err)
	}
	return !active, nil
}

// LoginMethod returns the currently active login method, defaulting to
// password when nothing is active yet.
func (b *Bootstrapper) LoginMethod() entities.LoginMethod {
	row, err := b.db.GetActiveAuthMethod()
	if err != nil {
		return entities.LoginMethodPassword
	}
	return row.Method
}

// ListLoginMethods enumerates the configured methods. A fresh instance with
// no auth rows reports password as the implicit default.
func (b *Bootstrapper) ListLoginMethods() ([]MethodInfo, error) {
	var rows []entities.AuthMethod
	if err := b.db.DB.Order("method ASC").Find(&rows).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to list methods: %w", err)
	}

	if len(rows) == 0 {
		return []MethodInfo{{Method: entities.LoginMethodPassword, DisplayName: "Password", Active: false}}, nil
	}

	methods := make([]MethodInfo, 0, len(rows))
	for _, row := range rows {
		methods = append(methods, MethodInfo{
			Method:      row.Method,
			DisplayName: row.DisplayName,
			Active:      row.Active,
		})
	}
	return methods, nil
}

// Bootstrap performs the one-time instance setup with the requested method.
// Once an owner exists or a method is active it always refuses, regardless of
// which method the caller asks for.
func (b *Bootstrapper) Bootstrap(req BootstrapRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	needed, err := b.NeedsBootstrap()
	if err != nil {
		return err
	}
	if !needed {
		return ErrAlreadyBootstrapped
	}

	if len(req.OpenID) > 0 {
		if b.federated == nil {
			return ErrProviderMisconfigured
		}
		return b.federated.EnableForBootstrap(req.OpenID)
	}
	return b.service.BootstrapPassword(req.Password)
}
