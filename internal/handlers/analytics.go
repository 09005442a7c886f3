package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/middleware"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/services"
	"github.com/gitpulse/gitpulse/pkg/logger"
)

// defaultWindowDays is the analysis window when no dates are given.
const defaultWindowDays = 30

// AnalyticsLoader runs one analysis and returns the derived report.
type AnalyticsLoader interface {
	LoadAnalytics(ctx context.Context, req services.AnalyticsRequest) (*models.AnalyticsReport, error)
}

type AnalyticsHandler struct {
	analytics AnalyticsLoader
	exporter  *services.ExportService
}

func NewAnalyticsHandler(analytics AnalyticsLoader, exporter *services.ExportService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		exporter:  exporter,
	}
}

// Analyze runs the analytics pipeline for the requested username and
// window and returns the report as JSON.
func (h *AnalyticsHandler) Analyze(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}

	report, err := h.analytics.LoadAnalytics(c.Request.Context(), req)
	if err != nil {
		h.renderAnalyticsError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Export runs the same pipeline and streams the report as an XLSX
// workbook.
func (h *AnalyticsHandler) Export(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}

	report, err := h.analytics.LoadAnalytics(c.Request.Context(), req)
	if err != nil {
		h.renderAnalyticsError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="gitpulse-report.xlsx"`)
	if err := h.exporter.WriteReport(c.Writer, report); err != nil {
		logger.WithError(err).Errorf("failed to write report workbook")
	}
}

// buildRequest assembles the analysis request from query parameters and
// the session credential. Responds with 400 and returns false on invalid
// input.
func (h *AnalyticsHandler) buildRequest(c *gin.Context) (services.AnalyticsRequest, bool) {
	until := time.Now()
	since := until.AddDate(0, 0, -defaultWindowDays)

	if raw := c.Query("since"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since date. Use YYYY-MM-DD or RFC 3339."})
			return services.AnalyticsRequest{}, false
		}
		since = parsed
	}
	if raw := c.Query("until"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid until date. Use YYYY-MM-DD or RFC 3339."})
			return services.AnalyticsRequest{}, false
		}
		until = parsed
	}

	// The session credential wins over an explicitly supplied token.
	token := c.Query("token")
	if cred := middleware.GetCredential(c); cred != nil {
		token = cred.AccessToken
	}

	return services.AnalyticsRequest{
		Username: c.Query("username"),
		Token:    token,
		Since:    since,
		Until:    until,
		Repos:    splitRepos(c.Query("repos")),
	}, true
}

func parseDate(raw string) (time.Time, error) {
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func splitRepos(raw string) []string {
	if raw == "" {
		return nil
	}
	var repos []string
	for _, name := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			repos = append(repos, trimmed)
		}
	}
	return repos
}

func (h *AnalyticsHandler) renderAnalyticsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrAnalysisInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "An analysis run is already in progress."})
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNoRepositories):
		c.JSON(http.StatusNotFound, gin.H{"error": apperrors.ErrNoRepositories.Error()})
	default:
		if upstream, ok := apperrors.AsUpstream(err); ok {
			c.JSON(http.StatusBadGateway, gin.H{"error": upstream.Error()})
			return
		}
		logger.WithError(err).Errorf("analysis run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics."})
	}
}
