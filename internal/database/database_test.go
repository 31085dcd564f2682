package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/entities"
)

// setupTestDB creates a fresh test database
func setupTestDB(t *testing.T) *Database {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRolesSeeded(t *testing.T) {
	db := setupTestDB(t)

	admin, err := db.GetRoleByName(entities.RoleAdminName)
	require.NoError(t, err)
	assert.Equal(t, entities.RoleAdminID, admin.ID)

	basic, err := db.GetRoleByName(entities.RoleBasicName)
	require.NoError(t, err)
	assert.Equal(t, entities.RoleBasicID, basic.ID)
}

func TestReplaceActiveAuthMethod(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.ReplaceActiveAuthMethod(&entities.AuthMethod{
		Method:      entities.LoginMethodPassword,
		DisplayName: "Password",
		ExtraData:   "hash-1",
	}))

	active, err := db.GetActiveAuthMethod()
	require.NoError(t, err)
	assert.Equal(t, entities.LoginMethodPassword, active.Method)
	assert.Equal(t, "hash-1", active.ExtraData)

	t.Run("switching deactivates the previous method", func(t *testing.T) {
		require.NoError(t, db.ReplaceActiveAuthMethod(&entities.AuthMethod{
			Method:      entities.LoginMethodOpenID,
			DisplayName: "OpenID",
			ExtraData:   "{}",
		}))

		active, err := db.GetActiveAuthMethod()
		require.NoError(t, err)
		assert.Equal(t, entities.LoginMethodOpenID, active.Method)

		password, err := db.GetAuthMethod(entities.LoginMethodPassword)
		require.NoError(t, err)
		assert.False(t, password.Active)

		var count int64
		require.NoError(t, db.DB.Model(&entities.AuthMethod{}).Where("active = ?", true).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("replacing the same method overwrites its payload", func(t *testing.T) {
		require.NoError(t, db.ReplaceActiveAuthMethod(&entities.AuthMethod{
			Method:      entities.LoginMethodPassword,
			DisplayName: "Password",
			ExtraData:   "hash-2",
		}))

		row, err := db.GetAuthMethod(entities.LoginMethodPassword)
		require.NoError(t, err)
		assert.True(t, row.Active)
		assert.Equal(t, "hash-2", row.ExtraData)
	})
}

func TestActivateAuthMethod(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.ReplaceActiveAuthMethod(&entities.AuthMethod{
		Method: entities.LoginMethodPassword, ExtraData: "hash",
	}))
	require.NoError(t, db.ReplaceActiveAuthMethod(&entities.AuthMethod{
		Method: entities.LoginMethodOpenID, ExtraData: "{}",
	}))

	require.NoError(t, db.ActivateAuthMethod(entities.LoginMethodPassword))

	active, err := db.GetActiveAuthMethod()
	require.NoError(t, err)
	assert.Equal(t, entities.LoginMethodPassword, active.Method)
	assert.Equal(t, "hash", active.ExtraData)

	t.Run("unknown method", func(t *testing.T) {
		err := db.ActivateAuthMethod(entities.LoginMethodHeader)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)

	session := &entities.Session{
		Token:      "token-1",
		UserID:     "user-1",
		ExpiresAt:  entities.TokenExpirationNever,
		AuthMethod: entities.LoginMethodPassword,
	}
	require.NoError(t, db.InsertSession(session))

	t.Run("one session row per method", func(t *testing.T) {
		err := db.InsertSession(&entities.Session{
			Token:      "token-2",
			UserID:     "user-1",
			ExpiresAt:  entities.TokenExpirationNever,
			AuthMethod: entities.LoginMethodPassword,
		})
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})

	t.Run("update keeps the token", func(t *testing.T) {
		require.NoError(t, db.UpdateSessionByMethod(entities.LoginMethodPassword, "user-2", 42))

		got, err := db.GetSessionByMethod(entities.LoginMethodPassword)
		require.NoError(t, err)
		assert.Equal(t, "token-1", got.Token)
		assert.Equal(t, "user-2", got.UserID)
		assert.EqualValues(t, 42, got.ExpiresAt)
	})

	t.Run("delete by method", func(t *testing.T) {
		require.NoError(t, db.InsertSession(&entities.Session{
			Token: "token-h", UserID: "user-1",
			ExpiresAt: entities.TokenExpirationNever, AuthMethod: entities.LoginMethodHeader,
		}))

		require.NoError(t, db.DeleteSessionsForMethods(entities.LoginMethodHeader))

		_, err := db.GetSessionByMethod(entities.LoginMethodHeader)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().Unix()

	require.NoError(t, db.InsertSession(&entities.Session{
		Token: "expired", ExpiresAt: now - 10, AuthMethod: entities.LoginMethodPassword,
	}))
	require.NoError(t, db.InsertSession(&entities.Session{
		Token: "eternal", ExpiresAt: entities.TokenExpirationNever, AuthMethod: entities.LoginMethodOpenID,
	}))
	require.NoError(t, db.InsertSession(&entities.Session{
		Token: "live", ExpiresAt: now + 600, AuthMethod: entities.LoginMethodHeader,
	}))

	deleted, err := db.DeleteExpiredSessions(now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = db.GetSessionByToken("expired")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = db.GetSessionByToken("eternal")
	assert.NoError(t, err)

	_, err = db.GetSessionByToken("live")
	assert.NoError(t, err)
}

func TestPendingStates(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.InsertPendingState(&entities.PendingOpenIDState{
		State:        "abc",
		CodeVerifier: "verifier",
		ReturnURL:    "https://app.example.com",
		ExpiresAt:    time.Now().Add(time.Minute).Unix(),
	}))

	t.Run("consume returns the row once", func(t *testing.T) {
		row, err := db.ConsumePendingState("abc")
		require.NoError(t, err)
		assert.Equal(t, "verifier", row.CodeVerifier)
		assert.Equal(t, "https://app.example.com", row.ReturnURL)

		_, err = db.ConsumePendingState("abc")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := db.ConsumePendingState("never-issued")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("expired rows are reclaimed", func(t *testing.T) {
		require.NoError(t, db.InsertPendingState(&entities.PendingOpenIDState{
			State: "old", ExpiresAt: time.Now().Add(-time.Minute).Unix(),
		}))

		removed, err := db.DeleteExpiredPendingStates(time.Now().Unix())
		require.NoError(t, err)
		assert.EqualValues(t, 1, removed)
	})
}

func TestUsersAndRoles(t *testing.T) {
	db := setupTestDB(t)

	admin, err := db.GetRoleByName(entities.RoleAdminName)
	require.NoError(t, err)

	owner := &entities.User{ID: "id-1", UserName: "", Enabled: true, Owner: true}
	require.NoError(t, db.CreateUserWithRole(owner, admin.ID))

	count, err := db.CountUsers()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	owners, err := db.CountOwners()
	require.NoError(t, err)
	assert.EqualValues(t, 1, owners)

	hasRole, err := db.UserHasRole("id-1", entities.RoleAdminName)
	require.NoError(t, err)
	assert.True(t, hasRole)

	names, err := db.RoleNamesForUser("id-1")
	require.NoError(t, err)
	assert.Equal(t, []string{entities.RoleAdminName}, names)

	t.Run("duplicate user name is rejected", func(t *testing.T) {
		err := db.CreateUserWithRole(&entities.User{ID: "id-2", UserName: ""}, admin.ID)
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})
}

func TestSecrets(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.SetSecret("bank-token", "v1"))

	exists, err := db.SecretExists("bank-token")
	require.NoError(t, err)
	assert.True(t, exists)

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, db.SetSecret("bank-token", "v2"))

		secret, err := db.GetSecret("bank-token")
		require.NoError(t, err)
		assert.Equal(t, "v2", secret.Value)
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := db.GetSecret("nope")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestAuditEvents(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.LogAuditEvent(&entities.AuditEvent{
		EventType: entities.AuditEventAuth,
		Action:    "password_login",
		Status:    entities.AuditStatusSuccess,
	}))
	require.NoError(t, db.LogAuditEvent(&entities.AuditEvent{
		EventType: entities.AuditEventAuth,
		Action:    "password_login",
		Status:    entities.AuditStatusFailed,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))

	events, err := db.GetAuditEvents(10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	deleted, err := db.DeleteOldAuditEvents(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
