package http

import (
	"github.com/mrlokans/syncserver/internal/auth"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/secrets"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database *database.Database

	// Account endpoints
	AccountController *auth.Controller

	// Secret storage endpoints
	SecretsController *secrets.Controller

	// Application info
	Version string
}
