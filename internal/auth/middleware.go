package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/syncserver/internal/entities"
)

// Context key for the resolved session.
const ContextKeySession = "auth_session"

// TokenHeader is the fallback credential header for clients that cannot set
// an Authorization header.
const TokenHeader = "X-Auth-Token"

// Middleware resolves a bearer token to a live session for protected routes.
type Middleware struct {
	sessions *SessionManager
}

func NewMiddleware(sessions *SessionManager) *Middleware {
	return &Middleware{sessions: sessions}
}

// ValidateSession aborts with an unauthorized envelope unless the request
// carries a token resolving to a live session. The session is stored in the
// request context for handlers.
func (m *Middleware) ValidateSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := m.ResolveRequest(c)
		if !ok {
			return
		}
		c.Set(ContextKeySession, session)
		c.Next()
	}
}

// ResolveRequest resolves the request's token, writing the unauthorized
// envelope and aborting when it fails. Handlers that validate inline (rather
// than through ValidateSession) use this directly.
func (m *Middleware) ResolveRequest(c *gin.Context) (*entities.Session, bool) {
	session, err := m.sessions.Resolve(ExtractToken(c.Request))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"reason":  "unauthorized",
			"details": "token-not-found",
		})
		return nil, false
	}
	return session, true
}

// ExtractToken pulls the session token from the Authorization bearer header,
// falling back to the X-Auth-Token header.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.Header.Get(TokenHeader)
}

// GetSession retrieves the session stored by ValidateSession.
func GetSession(c *gin.Context) *entities.Session {
	if value, exists := c.Get(ContextKeySession); exists {
		if session, ok := value.(*entities.Session); ok {
			return session
		}
	}
	return nil
}
