package openid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/syncserver/internal/auth"
	"github.com/mrlokans/syncserver/internal/config"
	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

// fakeProvider serves the token and userinfo endpoints of a provider.
type fakeProvider struct {
	server *httptest.Server

	identity      Identity
	expiresIn     int
	lastExchange  url.Values
	rejectCode    bool
	rejectUserURL bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		identity:  Identity{Subject: "sub-1", Email: "owner@example.com", Name: "Owner"},
		expiresIn: 3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.lastExchange = r.PostForm

		if p.rejectCode {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","error_description":"code expired"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":%d}`, p.expiresIn)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if p.rejectUserURL {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(p.identity))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) config() ProviderConfig {
	return ProviderConfig{
		ClientID:              "client-1",
		ClientSecret:          "secret-1",
		AuthorizationEndpoint: p.server.URL + "/authorize",
		TokenEndpoint:         p.server.URL + "/token",
		UserInfoEndpoint:      p.server.URL + "/userinfo",
	}
}

type handshakeFixture struct {
	db        *database.Database
	handshake *Handshake
	provider  *fakeProvider
}

func newHandshakeFixture(t *testing.T, tokenExpiration string) *handshakeFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Auth{
		TokenExpiration: tokenExpiration,
		BcryptCost:      bcrypt.MinCost,
		ServerBaseURL:   "http://localhost:5006",
		PendingStateTTL: time.Minute,
	}
	sessions := auth.NewSessionManager(db, cfg)

	provider := newFakeProvider(t)
	handshake := NewHandshake(db, sessions, cfg)

	raw, err := json.Marshal(provider.config())
	require.NoError(t, err)
	require.NoError(t, handshake.Enable(raw))

	return &handshakeFixture{db: db, handshake: handshake, provider: provider}
}

// runSetup starts a login attempt and returns the state the provider would
// echo back.
func (f *handshakeFixture) runSetup(t *testing.T, returnURL string) string {
	t.Helper()
	authURL, err := f.handshake.Setup(returnURL)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestSetup(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationNever)

	authURL, err := f.handshake.Setup("https://app.example.com/sync")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "/authorize", parsed.Path)
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:5006/account/login-openid/cb", q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))

	t.Run("each attempt gets a distinct state", func(t *testing.T) {
		otherURL, err := f.handshake.Setup("")
		require.NoError(t, err)
		other, err := url.Parse(otherURL)
		require.NoError(t, err)
		assert.NotEqual(t, q.Get("state"), other.Query().Get("state"))
	})

	t.Run("without a provider configuration", func(t *testing.T) {
		require.NoError(t, f.handshake.Disable("fallback-password"))
		_, err := f.handshake.Setup("")
		// The openid row survives deactivation, so its configuration still
		// loads; only a missing or broken row refuses.
		assert.NoError(t, err)
	})
}

func TestFinalize(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationNever)
	state := f.runSetup(t, "https://app.example.com/sync")

	redirect, err := f.handshake.Finalize(context.Background(), state, "code-1")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(redirect, "https://app.example.com/sync#token="))
	token := strings.TrimPrefix(redirect, "https://app.example.com/sync#token=")
	require.NotEmpty(t, token)

	t.Run("code exchange carries the PKCE verifier", func(t *testing.T) {
		assert.Equal(t, "authorization_code", f.provider.lastExchange.Get("grant_type"))
		assert.Equal(t, "code-1", f.provider.lastExchange.Get("code"))
		assert.NotEmpty(t, f.provider.lastExchange.Get("code_verifier"))
	})

	t.Run("first federated login creates the owner", func(t *testing.T) {
		user, err := f.db.GetUserByUserName("owner@example.com")
		require.NoError(t, err)
		assert.True(t, user.Owner)
		assert.Equal(t, "Owner", user.DisplayName)

		hasRole, err := f.db.UserHasRole(user.ID, entities.RoleAdminName)
		require.NoError(t, err)
		assert.True(t, hasRole)
	})

	t.Run("state cannot be replayed", func(t *testing.T) {
		_, err := f.handshake.Finalize(context.Background(), state, "code-1")
		assert.ErrorIs(t, err, auth.ErrInvalidState)
	})

	t.Run("repeat login reuses the session token", func(t *testing.T) {
		state := f.runSetup(t, "https://app.example.com/sync")
		redirect, err := f.handshake.Finalize(context.Background(), state, "code-2")
		require.NoError(t, err)
		assert.Equal(t, token, strings.TrimPrefix(redirect, "https://app.example.com/sync#token="))
	})
}

func TestFinalizeRejections(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationNever)

	t.Run("empty state or code", func(t *testing.T) {
		_, err := f.handshake.Finalize(context.Background(), "", "code")
		assert.ErrorIs(t, err, auth.ErrInvalidState)

		_, err = f.handshake.Finalize(context.Background(), "state", "")
		assert.ErrorIs(t, err, auth.ErrInvalidState)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := f.handshake.Finalize(context.Background(), "never-issued", "code")
		assert.ErrorIs(t, err, auth.ErrInvalidState)
	})

	t.Run("expired state", func(t *testing.T) {
		require.NoError(t, f.db.InsertPendingState(&entities.PendingOpenIDState{
			State:     "stale",
			ExpiresAt: time.Now().Add(-time.Minute).Unix(),
		}))
		_, err := f.handshake.Finalize(context.Background(), "stale", "code")
		assert.ErrorIs(t, err, auth.ErrInvalidState)
	})

	t.Run("provider rejects the code", func(t *testing.T) {
		f.provider.rejectCode = true
		defer func() { f.provider.rejectCode = false }()

		state := f.runSetup(t, "")
		_, err := f.handshake.Finalize(context.Background(), state, "bad-code")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_grant")
	})

	t.Run("unknown identity after the owner exists", func(t *testing.T) {
		state := f.runSetup(t, "")
		_, err := f.handshake.Finalize(context.Background(), state, "code")
		require.NoError(t, err, "owner login")

		f.provider.identity = Identity{Subject: "sub-2", Email: "stranger@example.com"}
		state = f.runSetup(t, "")
		_, err = f.handshake.Finalize(context.Background(), state, "code")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})

	t.Run("disabled user", func(t *testing.T) {
		require.NoError(t, f.db.DB.Create(&entities.User{
			ID: "disabled-id", UserName: "disabled@example.com", Enabled: false,
		}).Error)

		f.provider.identity = Identity{Subject: "sub-3", Email: "disabled@example.com"}
		state := f.runSetup(t, "")
		_, err := f.handshake.Finalize(context.Background(), state, "code")
		assert.ErrorIs(t, err, auth.ErrUserDisabled)
	})
}

func TestFinalizeProviderExpiry(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationOpenIDProvider)
	f.provider.expiresIn = 1800

	state := f.runSetup(t, "")
	_, err := f.handshake.Finalize(context.Background(), state, "code")
	require.NoError(t, err)

	session, err := f.db.GetSessionByMethod(entities.LoginMethodOpenID)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix()+1800, session.ExpiresAt, 5)
}

func TestEnableAndDisable(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationNever)

	t.Run("enable activates openid and clears other sessions", func(t *testing.T) {
		require.NoError(t, f.db.InsertSession(&entities.Session{
			Token: "pw-token", AuthMethod: entities.LoginMethodPassword,
			ExpiresAt: entities.TokenExpirationNever,
		}))

		raw, err := json.Marshal(f.provider.config())
		require.NoError(t, err)
		require.NoError(t, f.handshake.Enable(raw))

		active, err := f.db.GetActiveAuthMethod()
		require.NoError(t, err)
		assert.Equal(t, entities.LoginMethodOpenID, active.Method)

		_, err = f.db.GetSessionByToken("pw-token")
		assert.Error(t, err)
	})

	t.Run("enable rejects incomplete configuration", func(t *testing.T) {
		err := f.handshake.Enable(json.RawMessage(`{"client_id":"only"}`))
		assert.ErrorIs(t, err, auth.ErrProviderMisconfigured)

		err = f.handshake.Enable(json.RawMessage(`not json`))
		assert.ErrorIs(t, err, auth.ErrProviderMisconfigured)
	})

	t.Run("disable with a new password rewrites the password row", func(t *testing.T) {
		require.NoError(t, f.db.InsertSession(&entities.Session{
			Token: "oid-token", AuthMethod: entities.LoginMethodOpenID,
			ExpiresAt: entities.TokenExpirationNever,
		}))

		require.NoError(t, f.handshake.Disable("fresh-password"))

		active, err := f.db.GetActiveAuthMethod()
		require.NoError(t, err)
		assert.Equal(t, entities.LoginMethodPassword, active.Method)
		assert.NoError(t, auth.CheckPassword("fresh-password", active.ExtraData))

		_, err = f.db.GetSessionByToken("oid-token")
		assert.Error(t, err, "federated sessions are invalidated")
	})

	t.Run("disable without a password reactivates the old row", func(t *testing.T) {
		raw, err := json.Marshal(f.provider.config())
		require.NoError(t, err)
		require.NoError(t, f.handshake.Enable(raw))

		require.NoError(t, f.handshake.Disable(""))

		active, err := f.db.GetActiveAuthMethod()
		require.NoError(t, err)
		assert.Equal(t, entities.LoginMethodPassword, active.Method)
		assert.NoError(t, auth.CheckPassword("fresh-password", active.ExtraData))
	})
}

func TestDisableWithoutAnyPasswordRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Auth{TokenExpiration: config.TokenExpirationNever, BcryptCost: bcrypt.MinCost}
	handshake := NewHandshake(db, auth.NewSessionManager(db, cfg), cfg)

	assert.ErrorIs(t, handshake.Disable(""), auth.ErrInvalidPassword)
}

func TestPublicConfig(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationNever)

	public, err := f.handshake.PublicConfig()
	require.NoError(t, err)

	assert.Equal(t, "client-1", public["client_id"])
	assert.Contains(t, public["authorization_endpoint"], "/authorize")
	assert.NotContains(t, public, "client_secret")
}

func TestCleanupExpiredStates(t *testing.T) {
	f := newHandshakeFixture(t, config.TokenExpirationNever)

	require.NoError(t, f.db.InsertPendingState(&entities.PendingOpenIDState{
		State: "stale", ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}))
	f.runSetup(t, "")

	removed, err := f.handshake.CleanupExpiredStates()
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
