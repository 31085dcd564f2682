package database

import (
	"github.com/mrlokans/syncserver/internal/entities"
)

func (d *Database) GetSessionByToken(token string) (*entities.Session, error) {
	var session entities.Session
	err := d.DB.Where("token = ?", token).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *Database) GetSessionByMethod(method entities.LoginMethod) (*entities.Session, error) {
	var session entities.Session
	err := d.DB.Where("auth_method = ?", method).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *Database) InsertSession(session *entities.Session) error {
	return d.DB.Create(session).Error
}

// UpdateSessionByMethod rewrites user_id and expires_at of the method's
// session row, keeping its token.
func (d *Database) UpdateSessionByMethod(method entities.LoginMethod, userID string, expiresAt int64) error {
	return d.DB.Model(&entities.Session{}).
		Where("auth_method = ?", method).
		Updates(map[string]any{"user_id": userID, "expires_at": expiresAt}).Error
}

func (d *Database) DeleteSession(token string) error {
	return d.DB.Where("token = ?", token).Delete(&entities.Session{}).Error
}

// DeleteSessionsForMethods invalidates the session rows of the given login
// methods, used when the active method switches.
func (d *Database) DeleteSessionsForMethods(methods ...entities.LoginMethod) error {
	return d.DB.Where("auth_method IN ?", methods).Delete(&entities.Session{}).Error
}

// DeleteExpiredSessions removes rows whose expiry is strictly before now,
// skipping the never sentinel. Returns the number of reclaimed rows.
func (d *Database) DeleteExpiredSessions(now int64) (int64, error) {
	result := d.DB.
		Where("expires_at <> ? AND expires_at < ?", entities.TokenExpirationNever, now).
		Delete(&entities.Session{})
	return result.RowsAffected, result.Error
}
