package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/middleware"
	"github.com/gitpulse/gitpulse/internal/services"
	"github.com/gitpulse/gitpulse/pkg/config"
	"github.com/gitpulse/gitpulse/pkg/logger"
)

const (
	stateCookieName = "github_oauth_state"
	// The anti-forgery cookie is short-lived: the whole round trip to the
	// provider and back must finish within 15 minutes.
	stateCookieMaxAge = 15 * 60
)

// OAuthStarter covers the pieces of the flow the login endpoint needs.
type OAuthStarter interface {
	GenerateState() (string, error)
	AuthURL(state string) string
}

type AuthHandler struct {
	oauth    OAuthStarter
	sessions *services.AuthSessionService
}

func NewAuthHandler(oauth OAuthStarter, sessions *services.AuthSessionService) *AuthHandler {
	return &AuthHandler{
		oauth:    oauth,
		sessions: sessions,
	}
}

func secureCookies() bool {
	return gin.Mode() == gin.ReleaseMode
}

// Login initiates the OAuth flow: issue the anti-forgery state, park it in
// a browser-inaccessible cookie and redirect to the provider.
func (h *AuthHandler) Login(c *gin.Context) {
	if config.AppConfig.GitHub.ClientID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "GitHub client ID is not configured on the server."})
		return
	}

	state, err := h.oauth.GenerateState()
	if err != nil {
		logger.WithError(err).Errorf("failed to generate OAuth state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start the login flow."})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, stateCookieMaxAge, "/", "", secureCookies(), true)

	c.Redirect(http.StatusFound, h.oauth.AuthURL(state))
}

type exchangeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Exchange verifies the anti-forgery state and exchanges the authorization
// code for an access token plus the authenticated identity. The state
// cookie is cleared only on success, so a replayed exchange with a
// consumed state fails the verification gate.
func (h *AuthHandler) Exchange(c *gin.Context) {
	if config.AppConfig.GitHub.ClientID == "" || config.AppConfig.GitHub.ClientSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "GitHub OAuth credentials are not configured on the server."})
		return
	}

	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" || req.State == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing OAuth code or state."})
		return
	}

	storedState, err := c.Cookie(stateCookieName)
	if err != nil || storedState == "" || storedState != req.State {
		c.JSON(http.StatusBadRequest, gin.H{"error": "State verification failed."})
		return
	}

	previousKey, _ := c.Cookie(middleware.SessionCookieName)

	key, cred, err := h.sessions.Exchange(c.Request.Context(), previousKey, req.Code, req.State)
	if err != nil {
		h.renderExchangeError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, "", -1, "/", "", secureCookies(), true)
	middleware.SetSessionCookie(c, key, secureCookies())

	c.JSON(http.StatusOK, cred)
}

func (h *AuthHandler) renderExchangeError(c *gin.Context, err error) {
	if err == apperrors.ErrExchangeInFlight {
		c.JSON(http.StatusConflict, gin.H{"error": "An OAuth exchange is already in progress."})
		return
	}
	if upstream, ok := apperrors.AsUpstream(err); ok {
		// The token exchange itself succeeded; fetching the identity did
		// not.
		c.JSON(http.StatusBadGateway, gin.H{
			"error": fmt.Sprintf("Failed to fetch authenticated user profile: %s", upstream.Message),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// Logout clears the cached credential and both cookies. Clearing the
// server-side state never depends on the client having a valid session.
func (h *AuthHandler) Logout(c *gin.Context) {
	if key, err := c.Cookie(middleware.SessionCookieName); err == nil && key != "" {
		if err := h.sessions.Logout(key); err != nil {
			logger.WithError(err).Warnf("failed to clear session on logout")
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, "", -1, "/", "", secureCookies(), true)
	middleware.ClearSessionCookie(c, secureCookies())

	c.Status(http.StatusNoContent)
}

// SessionInfo reports the restore result for the caller's session: the
// auth status plus the identity when authenticated. The access token is
// never included.
func (h *AuthHandler) SessionInfo(c *gin.Context) {
	key, _ := c.Cookie(middleware.SessionCookieName)

	status, cred := h.sessions.Restore(key)
	if cred == nil {
		c.JSON(http.StatusOK, gin.H{"status": status, "user": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status, "user": cred.User})
}
