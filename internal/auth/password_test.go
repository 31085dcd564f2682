package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "secret", hash)

	t.Run("zero cost falls back to default", func(t *testing.T) {
		hash, err := HashPassword("secret", 0)
		require.NoError(t, err)

		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, DefaultBcryptCost, cost)
	})
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret", bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		assert.NoError(t, CheckPassword("secret", hash))
	})

	t.Run("wrong password", func(t *testing.T) {
		assert.ErrorIs(t, CheckPassword("wrong", hash), ErrInvalidPassword)
	})

	t.Run("empty stored hash fails closed", func(t *testing.T) {
		assert.ErrorIs(t, CheckPassword("anything", ""), ErrInvalidPassword)
	})

	t.Run("empty password against real hash", func(t *testing.T) {
		assert.ErrorIs(t, CheckPassword("", hash), ErrInvalidPassword)
	})
}
