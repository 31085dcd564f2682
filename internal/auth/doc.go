// Package auth is the identity and session core of the sync server.
//
// It decides who may obtain a session token and how that token is issued,
// reused and invalidated. Three login methods exist, of which exactly one is
// active at a time (a single active row in the auth relation):
//
//   - "password": the local password verified against a bcrypt hash
//   - "openid":   a federated provider, finalized by the openid package
//   - "header":   a password asserted by a trusted authenticating proxy
//
// # Configuration
//
//	TOKEN_EXPIRATION=never        # "never", "openid-provider" or minutes
//	AUTH_BCRYPT_COST=12           # bcrypt cost factor
//	TRUSTED_AUTH_PROXIES=         # CIDRs allowed to use header login
//
// # Usage
//
// Initialize in entrypoint:
//
//	sessions := auth.NewSessionManager(db, cfg.Auth)
//	service := auth.NewService(db, sessions, cfg.Auth)
//	middleware := auth.NewMiddleware(sessions)
//
// Protected routes resolve the caller through the middleware:
//
//	router.GET("/sync", middleware.ValidateSession(), handler)
//	session := auth.GetSession(c)
package auth
