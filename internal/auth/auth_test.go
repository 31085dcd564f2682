package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
)

func testDatabase(t *testing.T) *database.Database {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testAuthConfig() config.Auth {
	return config.Auth{
		TokenExpiration: config.TokenExpirationNever,
		BcryptCost:      bcrypt.MinCost,
		ServerBaseURL:   "http://localhost:5006",
		PendingStateTTL: time.Minute,
	}
}
