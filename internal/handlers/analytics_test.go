package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/middleware"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLoader records the request it received and returns a canned result.
type stubLoader struct {
	report *models.AnalyticsReport
	err    error

	received *services.AnalyticsRequest
}

func (s *stubLoader) LoadAnalytics(ctx context.Context, req services.AnalyticsRequest) (*models.AnalyticsReport, error) {
	s.received = &req
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func stubReport() *models.AnalyticsReport {
	return &models.AnalyticsReport{
		Summary: models.Summary{
			TotalCommits:     12,
			ActiveRepos:      2,
			UniqueAuthors:    3,
			Velocity:         4,
			ReviewTurnaround: "6h",
			Repositories:     2,
		},
		CommitActivity: models.CommitActivityDataset{
			Labels: []string{"2024-01-01"},
			Datasets: []models.ActivitySeries{
				{Label: "app", Data: []int{12}},
			},
		},
		PullRequestStatus: models.PullRequestStatus{Open: 1, Stale: []models.StalePullRequest{}},
		Repositories: []models.Repository{
			{Name: "app", Owner: "octo", Stars: 5, Language: "Go", Visibility: "public", LastPushed: "2 days ago"},
		},
		Insights:  []string{"Teams are shipping at 4 commits per week across 2 active repositories."},
		Languages: []models.LanguageStat{{Name: "Go", Percentage: 100}},
	}
}

func newAnalyticsRouter(loader AnalyticsLoader, store middleware.CredentialGetter) *gin.Engine {
	handler := NewAnalyticsHandler(loader, services.NewExportService())

	router := gin.New()
	if store != nil {
		router.Use(middleware.SessionMiddleware(store))
	}
	router.GET("/api/analytics", handler.Analyze)
	router.GET("/api/analytics/export", handler.Export)
	return router
}

func TestAnalyze(t *testing.T) {
	loader := &stubLoader{report: stubReport()}
	router := newAnalyticsRouter(loader, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics?username=octo&since=2024-01-01&until=2024-01-31&repos=app,%20lib", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalCommits":12`)
	assert.Contains(t, w.Body.String(), `"reviewTurnaround":"6h"`)

	require.NotNil(t, loader.received)
	assert.Equal(t, "octo", loader.received.Username)
	assert.Equal(t, []string{"app", "lib"}, loader.received.Repos)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), loader.received.Since)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), loader.received.Until)
}

func TestAnalyzeDefaultWindow(t *testing.T) {
	loader := &stubLoader{report: stubReport()}
	router := newAnalyticsRouter(loader, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics?username=octo", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, loader.received)
	window := loader.received.Until.Sub(loader.received.Since)
	assert.InDelta(t, float64(30*24*time.Hour), float64(window), float64(time.Minute))
}

func TestAnalyzeInvalidDates(t *testing.T) {
	loader := &stubLoader{report: stubReport()}
	router := newAnalyticsRouter(loader, nil)

	for _, path := range []string{
		"/api/analytics?username=octo&since=yesterday",
		"/api/analytics?username=octo&until=01/31/2024",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	// The pipeline never runs on invalid input.
	assert.Nil(t, loader.received)
}

func TestAnalyzeAcceptsRFC3339(t *testing.T) {
	loader := &stubLoader{report: stubReport()}
	router := newAnalyticsRouter(loader, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics?username=octo&since=2024-01-01T12:30:00Z", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, loader.received)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC), loader.received.Since)
}

func TestAnalyzeSessionTokenWins(t *testing.T) {
	loader := &stubLoader{report: stubReport()}
	store := newFakeStore()
	require.NoError(t, store.Set("session-key", &models.Credential{
		AccessToken: "session-token",
		User:        models.AuthUser{Login: "octo"},
	}))
	router := newAnalyticsRouter(loader, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics?username=octo&token=query-token", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-key"})
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, loader.received)
	assert.Equal(t, "session-token", loader.received.Token)
}

func TestAnalyzeErrorMapping(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		status   int
		contains string
	}{
		{"validation", apperrors.NewValidationError("Please enter a GitHub username."), http.StatusBadRequest, "Please enter a GitHub username."},
		{"no repositories", apperrors.ErrNoRepositories, http.StatusNotFound, "No repositories found"},
		{"already running", apperrors.ErrAnalysisInProgress, http.StatusConflict, "already in progress"},
		{"upstream", apperrors.NewUpstreamError(http.StatusForbidden, "rate limit exceeded"), http.StatusBadGateway, "rate limit exceeded"},
		{"unexpected", assert.AnError, http.StatusInternalServerError, "Failed to load analytics."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAnalyticsRouter(&stubLoader{err: tc.err}, nil)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/analytics?username=octo", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.contains)
		})
	}
}

func TestExport(t *testing.T) {
	loader := &stubLoader{report: stubReport()}
	router := newAnalyticsRouter(loader, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/export?username=octo", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "gitpulse-report.xlsx")
	// XLSX workbooks are zip archives.
	require.Greater(t, w.Body.Len(), 4)
	assert.Equal(t, "PK", w.Body.String()[:2])
}

func TestExportErrorMapping(t *testing.T) {
	router := newAnalyticsRouter(&stubLoader{err: apperrors.ErrNoRepositories}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/export?username=octo", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/healthz", NewHealthHandler().HealthCheck)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
