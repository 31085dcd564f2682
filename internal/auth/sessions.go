package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// ErrSessionNotFound is returned by Resolve for unknown and expired tokens
// alike; callers cannot tell the two apart.
var ErrSessionNotFound = errors.New("session not found")

// SessionManager owns the session token lifecycle: issuing, per-method reuse,
// expiry and reclamation. It never caches rows; every call goes to the store.
type SessionManager struct {
	db  *database.Database
	cfg config.Auth
}

func NewSessionManager(db *database.Database, cfg config.Auth) *SessionManager {
	return &SessionManager{db: db, cfg: cfg}
}

// IssueOrReuse returns the session for the given method, updating its user
// and expiry in place when a row already exists and inserting a fresh
// uuid-token row otherwise. Repeated logins through the same method keep
// returning the same token. Expiry comes from configuration.
func (sm *SessionManager) IssueOrReuse(userID string, method entities.LoginMethod) (*entities.Session, error) {
	return sm.IssueOrReuseUntil(userID, method, sm.DefaultExpiry())
}

// IssueOrReuseUntil is IssueOrReuse with an explicit expiry, used when the
// federated provider delegates the session lifetime.
func (sm *SessionManager) IssueOrReuseUntil(userID string, method entities.LoginMethod, expiresAt int64) (*entities.Session, error) {
	existing, err := sm.db.GetSessionByMethod(method)
	if err == nil {
		return sm.reuse(existing, userID, expiresAt)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	session := &entities.Session{
		Token:      uuid.NewString(),
		UserID:     userID,
		ExpiresAt:  expiresAt,
		AuthMethod: method,
	}
	if err := sm.db.InsertSession(session); err != nil {
		// A concurrent login inserted the method's row first; fall back to
		// updating it so both requests agree on one token.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := sm.db.GetSessionByMethod(method)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to recover session after insert race: %w", lookupErr)
			}
			return sm.reuse(existing, userID, expiresAt)
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

func (sm *SessionManager) reuse(session *entities.Session, userID string, expiresAt int64) (*entities.Session, error) {
	if err := sm.db.UpdateSessionByMethod(session.AuthMethod, userID, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	session.UserID = userID
	session.ExpiresAt = expiresAt
	return session, nil
}

// Resolve returns the live session for a token. Expiry is enforced here, not
// by the sweep: a token past its expiry is invalid even while its row still
// exists.
func (sm *SessionManager) Resolve(token string) (*entities.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	session, err := sm.db.GetSessionByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session.Expired(time.Now().Unix()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Sweep reclaims expired session rows. It is best-effort garbage collection
// piggybacked on logins and the background queue; correctness never depends
// on it having run.
func (sm *SessionManager) Sweep() (int64, error) {
	return sm.db.DeleteExpiredSessions(time.Now().Unix())
}

// Invalidate removes one session row, e.g. when its login method is switched
// off.
func (sm *SessionManager) Invalidate(token string) error {
	return sm.db.DeleteSession(token)
}

// DefaultExpiry computes expires_at from the configured token expiration.
// Misconfigured values fall back to the never sentinel rather than failing
// the login.
func (sm *SessionManager) DefaultExpiry() int64 {
	if minutes, ok := sm.cfg.TokenExpirationMinutes(); ok {
		return time.Now().Unix() + int64(minutes)*60
	}
	return entities.TokenExpirationNever
}
