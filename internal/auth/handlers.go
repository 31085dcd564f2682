package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/syncserver/internal/audit"
	"github.com/mrlokans/syncserver/internal/entities"
)

// PasswordHeader is the credential header asserted by a trusted
// authenticating proxy when the header login method is active.
const PasswordHeader = "X-Auth-Password"

// FederatedLogin is the federated handshake consumed by the HTTP surface.
// Implemented by the openid package; nil when no federated support is wired.
type FederatedLogin interface {
	// Setup builds the provider authorization URL for a login attempt and
	// persists the pending state correlating its callback.
	Setup(returnURL string) (string, error)

	// Finalize consumes the callback state and code and returns the redirect
	// target carrying the session token.
	Finalize(ctx context.Context, state, code string) (string, error)

	// Enable installs the provider configuration as the active login method.
	Enable(rawConfig json.RawMessage) error

	// Disable reverts the active method to password.
	Disable(newPassword string) error

	// PublicConfig returns the client-facing subset of the stored provider
	// configuration.
	PublicConfig() (map[string]any, error)
}

type loginRequest struct {
	Password  string `json:"password"`
	ReturnURL string `json:"returnUrl"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// Controller exposes the account endpoints: bootstrap, login, session
// validation and login-method administration.
type Controller struct {
	service      *Service
	sessions     *SessionManager
	middleware   *Middleware
	bootstrapper *Bootstrapper
	permissions  *PermissionResolver
	federated    FederatedLogin
	proxyTrust   *ProxyTrust
	auditor      *audit.Service
}

func NewController(
	service *Service,
	sessions *SessionManager,
	middleware *Middleware,
	bootstrapper *Bootstrapper,
	permissions *PermissionResolver,
	federated FederatedLogin,
	proxyTrust *ProxyTrust,
	auditor *audit.Service,
) *Controller {
	return &Controller{
		service:      service,
		sessions:     sessions,
		middleware:   middleware,
		bootstrapper: bootstrapper,
		permissions:  permissions,
		federated:    federated,
		proxyTrust:   proxyTrust,
		auditor:      auditor,
	}
}

// RegisterRoutes registers the account routes on the router.
func (ctl *Controller) RegisterRoutes(router *gin.Engine) {
	account := router.Group("/account")
	account.GET("/needs-bootstrap", ctl.NeedsBootstrap)
	account.POST("/bootstrap", ctl.Bootstrap)
	account.GET("/login-methods", ctl.LoginMethods)
	account.POST("/login", ctl.Login)
	account.GET("/login-openid/cb", ctl.OpenIDCallback)
	account.GET("/openid-config", ctl.OpenIDConfig)

	protected := account.Group("", ctl.middleware.ValidateSession())
	protected.POST("/change-password", ctl.ChangePassword)
	protected.GET("/validate", ctl.Validate)
	protected.POST("/enable-openid", ctl.EnableOpenID)
	protected.POST("/enable-password", ctl.EnablePassword)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": data})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"status": "error", "reason": ErrorReason(err)})
}

// NeedsBootstrap reports whether the instance still awaits its first owner,
// and which login method is currently in effect.
func (ctl *Controller) NeedsBootstrap(c *gin.Context) {
	needed, err := ctl.bootstrapper.NeedsBootstrap()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{
		"bootstrapped": !needed,
		"loginMethod":  ctl.bootstrapper.LoginMethod(),
	})
}

// Bootstrap performs the one-time instance setup. Refused once an owner or
// active method exists.
func (ctl *Controller) Bootstrap(c *gin.Context) {
	var req BootstrapRequest
	_ = c.ShouldBindJSON(&req)

	err := ctl.bootstrapper.Bootstrap(req)
	if ctl.auditor != nil {
		ctl.auditor.LogBootstrap(c.ClientIP(), err)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LoginMethods lists the configured login methods.
func (ctl *Controller) LoginMethods(c *gin.Context) {
	methods, err := ctl.bootstrapper.ListLoginMethods()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "methods": methods})
}

// Login dispatches on the active login method. Password and header logins
// return a token directly; an openid login returns the provider redirect URL
// for the client to follow.
func (ctl *Controller) Login(c *gin.Context) {
	var req loginRequest
	_ = c.ShouldBindJSON(&req)

	var token string
	var err error

	method := ctl.bootstrapper.LoginMethod()
	logAttempt := func(err error) {
		if ctl.auditor != nil {
			ctl.auditor.LogLogin("", method, c.ClientIP(), c.Request.UserAgent(), err)
		}
	}

	switch method {
	case entities.LoginMethodHeader:
		headerVal := c.GetHeader(PasswordHeader)
		if headerVal == "" {
			logAttempt(ErrInvalidHeader)
			fail(c, http.StatusBadRequest, ErrInvalidHeader)
			return
		}
		if ctl.proxyTrust == nil || !ctl.proxyTrust.Trusted(c.Request.RemoteAddr) {
			logAttempt(ErrProxyNotTrusted)
			fail(c, http.StatusBadRequest, ErrProxyNotTrusted)
			return
		}
		token, err = ctl.service.LoginWithPassword(headerVal)

	case entities.LoginMethodOpenID:
		if ctl.federated == nil {
			fail(c, http.StatusBadRequest, ErrProviderMisconfigured)
			return
		}
		url, setupErr := ctl.federated.Setup(req.ReturnURL)
		if setupErr != nil {
			fail(c, http.StatusBadRequest, setupErr)
			return
		}
		ok(c, gin.H{"redirect_url": url})
		return

	default:
		token, err = ctl.service.LoginWithPassword(req.Password)
	}

	logAttempt(err)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ok(c, gin.H{"token": token})
}

// OpenIDCallback finalizes a federated login and redirects the browser to
// the return URL carrying the token.
func (ctl *Controller) OpenIDCallback(c *gin.Context) {
	if ctl.federated == nil {
		fail(c, http.StatusBadRequest, ErrProviderMisconfigured)
		return
	}

	url, err := ctl.federated.Finalize(c.Request.Context(), c.Query("state"), c.Query("code"))
	if ctl.auditor != nil {
		ctl.auditor.LogLogin("", entities.LoginMethodOpenID, c.ClientIP(), c.Request.UserAgent(), err)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// OpenIDConfig exposes the client-facing provider configuration, but only
// while the instance is still unbootstrapped (first-run clients need it to
// start the flow; afterwards it is none of anyone's business).
func (ctl *Controller) OpenIDConfig(c *gin.Context) {
	owners, err := ctl.bootstrapper.db.CountOwners()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if owners > 0 {
		fail(c, http.StatusBadRequest, ErrAlreadyBootstrapped)
		return
	}

	if ctl.federated == nil {
		fail(c, http.StatusInternalServerError, ErrProviderMisconfigured)
		return
	}
	cfg, err := ctl.federated.PublicConfig()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"openId": cfg})
}

// ChangePassword overwrites the stored password hash. Requires a live
// session.
func (ctl *Controller) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	_ = c.ShouldBindJSON(&req)

	if err := ctl.service.ChangePassword(req.Password); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ok(c, gin.H{})
}

// Validate resolves the bearer token and returns the session's user identity
// and permissions. Every protected endpoint in the surrounding service
// depends on this contract.
func (ctl *Controller) Validate(c *gin.Context) {
	session := GetSession(c)

	user, err := ctl.service.db.GetUserByID(session.UserID)
	if err != nil {
		fail(c, http.StatusInternalServerError, errors.New("session user missing"))
		return
	}

	ok(c, gin.H{
		"validated":   true,
		"userName":    user.UserName,
		"permissions": ctl.permissions.UserPermissions(user.ID),
		"userId":      user.ID,
		"displayName": user.DisplayName,
		"loginMethod": session.AuthMethod,
	})
}

// EnableOpenID installs a federated provider configuration as the active
// login method. Admin only.
func (ctl *Controller) EnableOpenID(c *gin.Context) {
	if !ctl.requireAdmin(c) {
		return
	}
	if ctl.federated == nil {
		fail(c, http.StatusBadRequest, ErrProviderMisconfigured)
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrProviderMisconfigured)
		return
	}
	err = ctl.federated.Enable(raw)
	if ctl.auditor != nil {
		ctl.auditor.LogMethodSwitch(GetSession(c).UserID, entities.LoginMethodOpenID, err)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// EnablePassword reverts the active login method to password. Admin only.
func (ctl *Controller) EnablePassword(c *gin.Context) {
	if !ctl.requireAdmin(c) {
		return
	}
	if ctl.federated == nil {
		fail(c, http.StatusBadRequest, ErrProviderMisconfigured)
		return
	}

	var req changePasswordRequest
	_ = c.ShouldBindJSON(&req)

	err := ctl.federated.Disable(req.Password)
	if ctl.auditor != nil {
		ctl.auditor.LogMethodSwitch(GetSession(c).UserID, entities.LoginMethodPassword, err)
	}
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ctl *Controller) requireAdmin(c *gin.Context) bool {
	session := GetSession(c)
	admin, err := ctl.permissions.IsAdmin(session.UserID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return false
	}
	if !admin {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"reason":  "unauthorized",
			"details": "permission-not-found",
		})
		return false
	}
	return true
}
