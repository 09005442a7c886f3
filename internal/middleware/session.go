package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitpulse/gitpulse/internal/models"
)

// SessionCookieName carries the opaque session key. The cookie has no
// max-age, so it lives for the browser session only, like the credential
// it points at.
const SessionCookieName = "gitpulse_session"

const credentialContextKey = "credential"

// CredentialGetter reads credentials from the session store.
type CredentialGetter interface {
	Get(key string) (*models.Credential, error)
}

// SessionMiddleware resolves the session cookie into a cached credential
// and attaches it to the request context. Requests without a valid session
// proceed unauthenticated.
func SessionMiddleware(store CredentialGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := c.Cookie(SessionCookieName)
		if err == nil && key != "" {
			cred, err := store.Get(key)
			if err == nil && cred != nil && cred.AccessToken != "" {
				c.Set(credentialContextKey, cred)
			}
		}
		c.Next()
	}
}

// GetCredential retrieves the session credential from the request context,
// or nil when the request is unauthenticated.
func GetCredential(c *gin.Context) *models.Credential {
	value, exists := c.Get(credentialContextKey)
	if !exists {
		return nil
	}
	if cred, ok := value.(*models.Credential); ok {
		return cred
	}
	return nil
}

// SetSessionCookie sets the session cookie holding the opaque session key
func SetSessionCookie(c *gin.Context, key string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, key, 0, "/", "", secure, true)
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", secure, true)
}
