package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionKey is the gin context key holding the caller's Session.
const SessionKey = "auth_session"

// SessionHeader carries a session id as an alternative to a bearer token.
const SessionHeader = "X-Session-ID"

type Middleware struct {
	svc     *Service
	enabled bool
}

func NewMiddleware(svc *Service, enabled bool) *Middleware {
	return &Middleware{svc: svc, enabled: enabled && svc != nil}
}

// GinAuth rejects requests without a live session when enabled.
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}
		id := SessionID(c.Request)
		sess, ok := m.svc.Session(id)
		if id == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}
		c.Set(SessionKey, sess)
		c.Next()
	}
}

// SessionID extracts the session id from the Authorization bearer token or
// the X-Session-ID header.
func SessionID(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}
