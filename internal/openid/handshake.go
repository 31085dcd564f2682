package openid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/syncserver/internal/auth"
	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

const callbackPath = "/account/login-openid/cb"

const defaultPendingStateTTL = 10 * time.Minute

// Handshake runs the federated login flow against the configured provider:
// Setup issues the authorization redirect, Finalize redeems the callback. It
// also owns switching the openid method on and off. Implements the login and
// bootstrap interfaces of the auth package.
type Handshake struct {
	db       *database.Database
	sessions *auth.SessionManager
	cfg      config.Auth
	client   *Client
}

func NewHandshake(db *database.Database, sessions *auth.SessionManager, cfg config.Auth) *Handshake {
	return &Handshake{
		db:       db,
		sessions: sessions,
		cfg:      cfg,
		client:   NewClient(),
	}
}

// Setup starts a login attempt: it persists a single-use state row with its
// PKCE verifier and returns the provider authorization URL for the client to
// follow. The return URL travels through the state row, never through the
// provider.
func (h *Handshake) Setup(returnURL string) (string, error) {
	providerCfg, err := h.loadConfig()
	if err != nil {
		return "", err
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	pending := &entities.PendingOpenIDState{
		State:        state,
		CodeVerifier: verifier,
		ReturnURL:    returnURL,
		ExpiresAt:    time.Now().Add(h.pendingStateTTL()).Unix(),
	}
	if err := h.db.InsertPendingState(pending); err != nil {
		return "", fmt.Errorf("failed to store pending state: %w", err)
	}

	return h.client.BuildAuthURL(providerCfg, h.redirectURI(), state, verifier), nil
}

// Finalize redeems the provider callback: it consumes the state row, trades
// the code for tokens, resolves the identity and issues a session. The
// returned URL is the stored return URL with the token in the fragment, which
// browsers never send back to any server.
func (h *Handshake) Finalize(ctx context.Context, state, code string) (string, error) {
	if state == "" || code == "" {
		return "", auth.ErrInvalidState
	}

	pending, err := h.db.ConsumePendingState(state)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", auth.ErrInvalidState
		}
		return "", fmt.Errorf("failed to consume state: %w", err)
	}
	if pending.ExpiresAt < time.Now().Unix() {
		return "", auth.ErrInvalidState
	}

	providerCfg, err := h.loadConfig()
	if err != nil {
		return "", err
	}

	tokens, err := h.client.ExchangeCode(ctx, providerCfg, code, h.redirectURI(), pending.CodeVerifier)
	if err != nil {
		return "", fmt.Errorf("code exchange failed: %w", err)
	}

	identity, err := h.client.FetchIdentity(ctx, providerCfg, tokens.AccessToken)
	if err != nil {
		return "", fmt.Errorf("identity resolution failed: %w", err)
	}

	user, err := h.resolveUser(identity)
	if err != nil {
		return "", err
	}

	session, err := h.sessions.IssueOrReuseUntil(user.ID, entities.LoginMethodOpenID, h.sessionExpiry(tokens))
	if err != nil {
		return "", err
	}

	return h.tokenRedirect(pending.ReturnURL, session.Token), nil
}

// resolveUser maps the provider identity to a local user. The very first
// federated login of a fresh instance creates the owner with the Admin role;
// every later identity must already exist as an enabled user.
func (h *Handshake) resolveUser(identity *Identity) (*entities.User, error) {
	user, err := h.db.GetUserByUserName(identity.UserName())
	if err == nil {
		if !user.Enabled {
			return nil, auth.ErrUserDisabled
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	owners, err := h.db.CountOwners()
	if err != nil {
		return nil, fmt.Errorf("failed to count owners: %w", err)
	}
	if owners > 0 {
		return nil, auth.ErrUserNotFound
	}

	role, err := h.db.GetRoleByName(entities.RoleAdminName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrAdminRoleMissing
		}
		return nil, fmt.Errorf("failed to load admin role: %w", err)
	}

	owner := &entities.User{
		ID:          uuid.NewString(),
		UserName:    identity.UserName(),
		DisplayName: identity.Name,
		Enabled:     true,
		Owner:       true,
	}
	if err := h.db.CreateUserWithRole(owner, role.ID); err != nil {
		return nil, fmt.Errorf("failed to create owner user: %w", err)
	}
	return owner, nil
}

// Enable installs the provider configuration as the single active login
// method and invalidates the sessions of the methods it displaces.
func (h *Handshake) Enable(rawConfig json.RawMessage) error {
	var providerCfg ProviderConfig
	if err := json.Unmarshal(rawConfig, &providerCfg); err != nil {
		return auth.ErrProviderMisconfigured
	}
	if err := providerCfg.Validate(); err != nil {
		return auth.ErrProviderMisconfigured
	}

	stored, err := json.Marshal(providerCfg)
	if err != nil {
		return fmt.Errorf("failed to serialize provider config: %w", err)
	}

	row := &entities.AuthMethod{
		Method:      entities.LoginMethodOpenID,
		DisplayName: "OpenID",
		ExtraData:   string(stored),
	}
	if err := h.db.ReplaceActiveAuthMethod(row); err != nil {
		return fmt.Errorf("failed to store openid method: %w", err)
	}

	return h.db.DeleteSessionsForMethods(entities.LoginMethodPassword, entities.LoginMethodHeader)
}

// EnableForBootstrap installs the provider configuration during the one-time
// instance setup. Same transition as Enable; the bootstrap gate has already
// run.
func (h *Handshake) EnableForBootstrap(rawConfig json.RawMessage) error {
	return h.Enable(rawConfig)
}

// Disable reverts the active method to password. With a new password the
// password row is rewritten from scratch; without one the existing row is
// merely reactivated, so the old password comes back into effect. Open
// federated sessions are invalidated either way.
func (h *Handshake) Disable(newPassword string) error {
	if newPassword != "" {
		hash, err := auth.HashPassword(newPassword, h.cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		row := &entities.AuthMethod{
			Method:      entities.LoginMethodPassword,
			DisplayName: "Password",
			ExtraData:   hash,
		}
		if err := h.db.ReplaceActiveAuthMethod(row); err != nil {
			return fmt.Errorf("failed to store password method: %w", err)
		}
	} else {
		if err := h.db.ActivateAuthMethod(entities.LoginMethodPassword); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Nothing to fall back to: a password must be supplied.
				return auth.ErrInvalidPassword
			}
			return fmt.Errorf("failed to activate password method: %w", err)
		}
	}

	return h.db.DeleteSessionsForMethods(entities.LoginMethodOpenID)
}

// PublicConfig returns the client-facing subset of the stored configuration.
// The client secret never leaves the server.
func (h *Handshake) PublicConfig() (map[string]any, error) {
	providerCfg, err := h.loadConfig()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"issuer":                 providerCfg.Issuer,
		"client_id":              providerCfg.ClientID,
		"authorization_endpoint": providerCfg.AuthorizationEndpoint,
	}, nil
}

// CleanupExpiredStates reclaims pending state rows whose replay window has
// closed. Returns the number of removed rows.
func (h *Handshake) CleanupExpiredStates() (int64, error) {
	return h.db.DeleteExpiredPendingStates(time.Now().Unix())
}

func (h *Handshake) loadConfig() (*ProviderConfig, error) {
	row, err := h.db.GetAuthMethod(entities.LoginMethodOpenID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrProviderMisconfigured
		}
		return nil, fmt.Errorf("failed to load openid method: %w", err)
	}

	var providerCfg ProviderConfig
	if err := json.Unmarshal([]byte(row.ExtraData), &providerCfg); err != nil {
		return nil, auth.ErrProviderMisconfigured
	}
	if err := providerCfg.Validate(); err != nil {
		return nil, auth.ErrProviderMisconfigured
	}
	return &providerCfg, nil
}

func (h *Handshake) redirectURI() string {
	return h.cfg.ServerBaseURL + callbackPath
}

func (h *Handshake) pendingStateTTL() time.Duration {
	if h.cfg.PendingStateTTL > 0 {
		return h.cfg.PendingStateTTL
	}
	return defaultPendingStateTTL
}

// sessionExpiry honors the openid-provider expiration mode by adopting the
// provider token lifetime; every other mode uses the configured default.
func (h *Handshake) sessionExpiry(tokens *TokenResponse) int64 {
	if h.cfg.TokenExpiration == config.TokenExpirationOpenIDProvider && tokens.ExpiresIn > 0 {
		return time.Now().Unix() + int64(tokens.ExpiresIn)
	}
	return h.sessions.DefaultExpiry()
}

// tokenRedirect appends the session token as a URL fragment so intermediaries
// and the return target's server logs never see it.
func (h *Handshake) tokenRedirect(returnURL, token string) string {
	if returnURL == "" {
		returnURL = h.cfg.ServerBaseURL
	}
	return returnURL + "#token=" + url.QueryEscape(token)
}
