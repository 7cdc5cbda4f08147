package middleware

import (
	"time"

	"github.com/example/poster-shop/internal/infrastructure/localstore"
	"github.com/example/poster-shop/internal/session"
	"github.com/gin-gonic/gin"
)

const (
	DefaultSessionMaxAge = 30 * 24 * time.Hour
	sessionContextKey    = "session_id"
)

// Session resolves the shopper's session id from the session cookie,
// issuing a new one when the browser has none.
func Session(maxAge time.Duration, secure bool) gin.HandlerFunc {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return func(c *gin.Context) {
		storage := localstore.NewCookieStorage(c.Writer, c.Request, maxAge, secure)
		identity := session.NewIdentity(storage)
		id := identity.GetOrCreateSessionID()
		if !session.Valid(id) {
			// a tampered cookie gets replaced
			_ = identity.Reset()
			id = identity.GetOrCreateSessionID()
		}
		c.Set(sessionContextKey, id)
		c.Next()
	}
}

// SessionID returns the id resolved by Session, "" outside it
func SessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
