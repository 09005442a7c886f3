package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/middleware"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/services"
	"github.com/gitpulse/gitpulse/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func configureOAuth(t *testing.T, clientID, clientSecret string) {
	t.Helper()
	previous := config.AppConfig
	config.AppConfig = &config.Config{
		GitHub: config.GitHubConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "http://localhost:5173/",
		},
	}
	t.Cleanup(func() { config.AppConfig = previous })
}

// fakeStarter issues a fixed state and a recognizable authorization URL.
type fakeStarter struct {
	state string
}

func (f *fakeStarter) GenerateState() (string, error) {
	return f.state, nil
}

func (f *fakeStarter) AuthURL(state string) string {
	return "https://github.com/login/oauth/authorize?state=" + state
}

type fakeStore struct {
	mu    sync.Mutex
	creds map[string]*models.Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: make(map[string]*models.Credential)}
}

func (f *fakeStore) Get(key string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[key], nil
}

func (f *fakeStore) Set(key string, cred *models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[key] = cred
	return nil
}

func (f *fakeStore) Clear(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, key)
	return nil
}

type fakeExchanger struct {
	token       string
	exchangeErr error
	user        *models.AuthUser
	userErr     error
	calls       int
}

func (f *fakeExchanger) ExchangeCode(ctx context.Context, code, state string) (string, error) {
	f.calls++
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeExchanger) GetUserInfo(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func newAuthRouter(starter OAuthStarter, store services.CredentialStore, exchanger services.TokenExchanger) *gin.Engine {
	handler := NewAuthHandler(starter, services.NewAuthSessionService(store, exchanger))

	router := gin.New()
	auth := router.Group("/api/auth")
	{
		auth.GET("/github/login", handler.Login)
		auth.POST("/github/exchange", handler.Exchange)
		auth.POST("/github/logout", handler.Logout)
		auth.GET("/session", handler.SessionInfo)
	}
	return router
}

func cookieByName(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestLogin(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	router := newAuthRouter(&fakeStarter{state: "fixed-state"}, newFakeStore(), &fakeExchanger{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/github/login", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://github.com/login/oauth/authorize?state=fixed-state", w.Header().Get("Location"))

	state := cookieByName(w.Result(), "github_oauth_state")
	require.NotNil(t, state)
	assert.Equal(t, "fixed-state", state.Value)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, 15*60, state.MaxAge)
}

func TestLoginWithoutClientID(t *testing.T) {
	configureOAuth(t, "", "")
	router := newAuthRouter(&fakeStarter{state: "fixed-state"}, newFakeStore(), &fakeExchanger{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/github/login", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "GitHub client ID is not configured")
}

func exchangeRequestBody(code, state string) *strings.Reader {
	payload, _ := json.Marshal(map[string]string{"code": code, "state": state})
	return strings.NewReader(string(payload))
}

func TestExchangeMissingCodeOrState(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	exchanger := &fakeExchanger{}
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), exchanger)

	for _, body := range []*strings.Reader{
		exchangeRequestBody("", "state"),
		exchangeRequestBody("code", ""),
		strings.NewReader("not json"),
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", body)
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Missing OAuth code or state.")
	}
	assert.Equal(t, 0, exchanger.calls)
}

func TestExchangeStateMismatch(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	exchanger := &fakeExchanger{token: "gho_token", user: &models.AuthUser{Login: "octo"}}
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), exchanger)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", exchangeRequestBody("code", "tampered"))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: "issued"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "State verification failed.")
	// The provider is never contacted on a failed verification.
	assert.Equal(t, 0, exchanger.calls)
}

func TestExchangeWithoutStateCookie(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	exchanger := &fakeExchanger{}
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), exchanger)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", exchangeRequestBody("code", "issued"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "State verification failed.")
	assert.Equal(t, 0, exchanger.calls)
}

func TestExchangeSuccess(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	store := newFakeStore()
	exchanger := &fakeExchanger{
		token: "gho_token",
		user:  &models.AuthUser{ID: 1, Login: "octo", Name: "Octo Cat"},
	}
	router := newAuthRouter(&fakeStarter{}, store, exchanger)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", exchangeRequestBody("code", "issued"))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: "issued"})
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		AccessToken string          `json:"accessToken"`
		User        models.AuthUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "gho_token", payload.AccessToken)
	assert.Equal(t, "octo", payload.User.Login)

	resp := w.Result()

	// The consumed state cookie is cleared.
	state := cookieByName(resp, "github_oauth_state")
	require.NotNil(t, state)
	assert.Empty(t, state.Value)
	assert.Equal(t, -1, state.MaxAge)

	// A session cookie is issued and points at the stored credential.
	session := cookieByName(resp, middleware.SessionCookieName)
	require.NotNil(t, session)
	require.NotEmpty(t, session.Value)
	assert.True(t, session.HttpOnly)

	stored, err := store.Get(session.Value)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "gho_token", stored.AccessToken)
}

func TestExchangeProviderFailure(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	exchanger := &fakeExchanger{exchangeErr: errors.New("The code passed is incorrect or expired.")}
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), exchanger)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", exchangeRequestBody("stale", "issued"))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: "issued"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "The code passed is incorrect or expired.")
}

func TestExchangeIdentityFailure(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	exchanger := &fakeExchanger{
		token:   "gho_token",
		userErr: apperrors.NewUpstreamError(http.StatusInternalServerError, "boom"),
	}
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), exchanger)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", exchangeRequestBody("code", "issued"))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "github_oauth_state", Value: "issued"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to fetch authenticated user profile: boom")
}

func TestExchangeWithoutServerCredentials(t *testing.T) {
	configureOAuth(t, "client-id", "")
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), &fakeExchanger{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/exchange", exchangeRequestBody("code", "issued"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "GitHub OAuth credentials are not configured")
}

func TestLogout(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	store := newFakeStore()
	require.NoError(t, store.Set("session-key", &models.Credential{
		AccessToken: "gho_token",
		User:        models.AuthUser{Login: "octo"},
	}))
	router := newAuthRouter(&fakeStarter{}, store, &fakeExchanger{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-key"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	stored, err := store.Get("session-key")
	require.NoError(t, err)
	assert.Nil(t, stored)

	session := cookieByName(w.Result(), middleware.SessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, -1, session.MaxAge)
}

func TestLogoutWithoutSession(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	router := newAuthRouter(&fakeStarter{}, newFakeStore(), &fakeExchanger{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/github/logout", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionInfo(t *testing.T) {
	configureOAuth(t, "client-id", "client-secret")
	store := newFakeStore()
	require.NoError(t, store.Set("session-key", &models.Credential{
		AccessToken: "gho_token",
		User:        models.AuthUser{ID: 1, Login: "octo"},
	}))
	router := newAuthRouter(&fakeStarter{}, store, &fakeExchanger{})

	t.Run("authenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-key"})
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"authenticated"`)
		assert.Contains(t, w.Body.String(), `"login":"octo"`)
		// The access token never leaves the server.
		assert.NotContains(t, w.Body.String(), "gho_token")
	})

	t.Run("no session", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"unauthenticated"`)
		assert.Contains(t, w.Body.String(), `"user":null`)
	})
}
