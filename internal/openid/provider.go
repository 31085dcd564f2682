package openid

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProviderConfig is the federated provider configuration stored in the
// extra_data of the openid auth row.
type ProviderConfig struct {
	Issuer                string `json:"issuer,omitempty"`
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
}

// Validate reports whether the configuration is complete enough to run the
// handshake.
func (c *ProviderConfig) Validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("client_id is required")
	case c.AuthorizationEndpoint == "":
		return fmt.Errorf("authorization_endpoint is required")
	case c.TokenEndpoint == "":
		return fmt.Errorf("token_endpoint is required")
	case c.UserInfoEndpoint == "":
		return fmt.Errorf("userinfo_endpoint is required")
	}
	return nil
}

// TokenResponse carries the fields of the provider's token endpoint response
// the handshake uses.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Identity is the claim set resolved from the provider's userinfo endpoint.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// UserName returns the value used as the local user_name key for this
// identity: the email claim when present, the subject otherwise.
func (i Identity) UserName() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// Client performs the provider round-trips of the handshake: the code
// exchange and the userinfo fetch. These are the only calls in the core that
// block on external I/O.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BuildAuthURL constructs the provider authorization URL for one login
// attempt, carrying the S256 challenge of the pending code verifier.
func (c *Client) BuildAuthURL(cfg *ProviderConfig, redirectURI, state, codeVerifier string) string {
	params := url.Values{}
	params.Set("client_id", cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("scope", "openid email profile")
	params.Set("redirect_uri", redirectURI)
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge(codeVerifier))
	params.Set("code_challenge_method", "S256")

	separator := "?"
	if strings.Contains(cfg.AuthorizationEndpoint, "?") {
		separator = "&"
	}
	return cfg.AuthorizationEndpoint + separator + params.Encode()
}

// ExchangeCode trades the authorization code for tokens at the provider's
// token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, cfg *ProviderConfig, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", cfg.ClientID)
	data.Set("redirect_uri", redirectURI)
	data.Set("code_verifier", codeVerifier)
	if cfg.ClientSecret != "" {
		data.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("token exchange failed: %s - %s", errResp.Error, errResp.ErrorDescription)
		}
		return nil, fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &tokenResp, nil
}

// FetchIdentity resolves the authenticated identity from the provider's
// userinfo endpoint.
func (c *Client) FetchIdentity(ctx context.Context, cfg *ProviderConfig, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", cfg.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	if identity.UserName() == "" {
		return nil, fmt.Errorf("userinfo response carries neither email nor subject")
	}
	return &identity, nil
}

// generateState creates a random state value correlating setup and callback.
func generateState() (string, error) {
	return randomToken(16)
}

// generateCodeVerifier creates the PKCE verifier kept server-side until the
// callback.
func generateCodeVerifier() (string, error) {
	return randomToken(32)
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken(size int) (string, error) {
	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
