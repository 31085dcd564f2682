package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/entities"
)

func TestIssueOrReuse(t *testing.T) {
	db := testDatabase(t)
	sm := NewSessionManager(db, testAuthConfig())

	first, err := sm.IssueOrReuse("user-1", entities.LoginMethodPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, entities.TokenExpirationNever, first.ExpiresAt)

	t.Run("same method reuses the token", func(t *testing.T) {
		second, err := sm.IssueOrReuse("user-1", entities.LoginMethodPassword)
		require.NoError(t, err)
		assert.Equal(t, first.Token, second.Token)
	})

	t.Run("another user through the same method keeps the token", func(t *testing.T) {
		second, err := sm.IssueOrReuse("user-2", entities.LoginMethodPassword)
		require.NoError(t, err)
		assert.Equal(t, first.Token, second.Token)
		assert.Equal(t, "user-2", second.UserID)
	})

	t.Run("different method gets its own token", func(t *testing.T) {
		other, err := sm.IssueOrReuse("user-1", entities.LoginMethodOpenID)
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, other.Token)
	})
}

func TestResolve(t *testing.T) {
	db := testDatabase(t)
	sm := NewSessionManager(db, testAuthConfig())

	session, err := sm.IssueOrReuse("user-1", entities.LoginMethodPassword)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		got, err := sm.Resolve(session.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := sm.Resolve("")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := sm.Resolve("nope")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("expired token is rejected before any sweep runs", func(t *testing.T) {
		expired, err := sm.IssueOrReuseUntil("user-1", entities.LoginMethodHeader, time.Now().Unix()-10)
		require.NoError(t, err)

		_, err = sm.Resolve(expired.Token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("invalidated token", func(t *testing.T) {
		require.NoError(t, sm.Invalidate(session.Token))
		_, err := sm.Resolve(session.Token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestSweep(t *testing.T) {
	db := testDatabase(t)
	sm := NewSessionManager(db, testAuthConfig())

	_, err := sm.IssueOrReuseUntil("user-1", entities.LoginMethodPassword, time.Now().Unix()-10)
	require.NoError(t, err)
	eternal, err := sm.IssueOrReuseUntil("user-1", entities.LoginMethodOpenID, entities.TokenExpirationNever)
	require.NoError(t, err)

	reclaimed, err := sm.Sweep()
	require.NoError(t, err)
	assert.EqualValues(t, 1, reclaimed)

	_, err = sm.Resolve(eternal.Token)
	assert.NoError(t, err)
}

func TestDefaultExpiry(t *testing.T) {
	db := testDatabase(t)

	t.Run("never", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.TokenExpiration = config.TokenExpirationNever
		sm := NewSessionManager(db, cfg)
		assert.Equal(t, entities.TokenExpirationNever, sm.DefaultExpiry())
	})

	t.Run("minutes", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.TokenExpiration = "10"
		sm := NewSessionManager(db, cfg)

		expiry := sm.DefaultExpiry()
		assert.InDelta(t, time.Now().Unix()+600, expiry, 5)
	})

	t.Run("openid-provider mode behaves like never by default", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.TokenExpiration = config.TokenExpirationOpenIDProvider
		sm := NewSessionManager(db, cfg)
		assert.Equal(t, entities.TokenExpirationNever, sm.DefaultExpiry())
	})

	t.Run("garbage falls back to never", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.TokenExpiration = "soon"
		sm := NewSessionManager(db, cfg)
		assert.Equal(t, entities.TokenExpirationNever, sm.DefaultExpiry())
	})
}
