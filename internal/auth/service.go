package auth

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// Service is the password authenticator. It owns the single password row in
// the auth relation and the sentinel local user behind password and header
// logins.
type Service struct {
	db       *database.Database
	sessions *SessionManager
	cfg      config.Auth
}

func NewService(db *database.Database, sessions *SessionManager, cfg config.Auth) *Service {
	return &Service{db: db, sessions: sessions, cfg: cfg}
}

// BootstrapPassword hashes the password and installs it as the single active
// login method. Any prior password row is replaced, not layered; the whole
// transition is one transaction. No session is created.
func (s *Service) BootstrapPassword(password string) error {
	if password == "" {
		return ErrInvalidPassword
	}

	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	row := &entities.AuthMethod{
		Method:      entities.LoginMethodPassword,
		DisplayName: "Password",
		ExtraData:   hash,
	}
	if err := s.db.ReplaceActiveAuthMethod(row); err != nil {
		return fmt.Errorf("failed to store password method: %w", err)
	}
	return nil
}

// LoginWithPassword verifies the password against the stored hash and returns
// a session token. The first successful login creates the sentinel local user
// and grants it the Admin role; later logins reuse that user. A sweep of
// expired sessions runs as a side effect.
func (s *Service) LoginWithPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}

	method, err := s.db.GetAuthMethod(entities.LoginMethodPassword)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No password configured. Fail closed with the same error as a
			// mismatch.
			return "", ErrInvalidPassword
		}
		return "", fmt.Errorf("failed to load password method: %w", err)
	}

	if err := CheckPassword(password, method.ExtraData); err != nil {
		return "", err
	}

	userID, err := s.ensureSentinelUser()
	if err != nil {
		return "", err
	}

	session, err := s.sessions.IssueOrReuse(userID, entities.LoginMethodPassword)
	if err != nil {
		return "", err
	}

	if _, err := s.sessions.Sweep(); err != nil {
		log.Printf("Session sweep after login failed: %v", err)
	}

	return session.Token, nil
}

// ChangePassword overwrites the stored hash for the password row in place.
// The active flag is untouched; changing the password does not switch the
// login method.
func (s *Service) ChangePassword(newPassword string) error {
	if newPassword == "" {
		return ErrInvalidPassword
	}

	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.UpdateAuthExtraData(entities.LoginMethodPassword, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// ensureSentinelUser returns the id of the local user with the empty
// user_name, creating it as the owner with the Admin role on the very first
// login. User and role association are inserted in one transaction.
func (s *Service) ensureSentinelUser() (string, error) {
	total, err := s.db.CountUsers()
	if err != nil {
		return "", fmt.Errorf("failed to count users: %w", err)
	}

	if total == 0 {
		role, err := s.db.GetRoleByName(entities.RoleAdminName)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", ErrAdminRoleMissing
			}
			return "", fmt.Errorf("failed to load admin role: %w", err)
		}

		user := &entities.User{
			ID:       uuid.NewString(),
			UserName: "",
			Enabled:  true,
			Owner:    true,
		}
		if err := s.db.CreateUserWithRole(user, role.ID); err != nil {
			return "", fmt.Errorf("failed to create owner user: %w", err)
		}
		return user.ID, nil
	}

	user, err := s.db.GetUserByUserName("")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Users exist but the sentinel is gone: corrupted install.
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to load sentinel user: %w", err)
	}
	return user.ID, nil
}
