package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/pkg/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultAPIBaseURL = "https://api.github.com"

// GitHubService implements the server side of the OAuth exchange flow:
// anti-forgery state generation, the authorization URL, the code-for-token
// exchange and the authenticated identity fetch.
type GitHubService struct {
	oauthConfig *oauth2.Config
	apiBaseURL  string
}

func NewGitHubService() *GitHubService {
	oauthConfig := &oauth2.Config{
		ClientID:     config.AppConfig.GitHub.ClientID,
		ClientSecret: config.AppConfig.GitHub.ClientSecret,
		RedirectURL:  config.AppConfig.GitHub.RedirectURL,
		Scopes: []string{
			"repo",     // Read access to repositories (includes PRs and commits)
			"read:org", // Read access to organization membership
		},
		Endpoint: github.Endpoint,
	}

	return &GitHubService{
		oauthConfig: oauthConfig,
		apiBaseURL:  defaultAPIBaseURL,
	}
}

// GenerateState returns a cryptographically random anti-forgery token
func (s *GitHubService) GenerateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthURL returns the GitHub authorization URL carrying the anti-forgery
// state, with signup disabled.
func (s *GitHubService) AuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.SetAuthURLParam("allow_signup", "false"))
}

// ExchangeCode exchanges an authorization code for an access token. A
// provider-reported OAuth error, a non-success status or a missing access
// token all fail the exchange; the provider-supplied description is
// surfaced when available.
func (s *GitHubService) ExchangeCode(ctx context.Context, code, state string) (string, error) {
	token, err := s.oauthConfig.Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		return "", errors.New(exchangeErrorMessage(err))
	}
	if token.AccessToken == "" {
		return "", errors.New("OAuth exchange failed.")
	}
	return token.AccessToken, nil
}

// exchangeErrorMessage extracts the provider-supplied error description
// from a token endpoint failure, falling back to a generic message.
func exchangeErrorMessage(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
	}
	return "OAuth exchange failed."
}

// GetUserInfo fetches the authenticated identity with the new token. A
// non-success status fails with an upstream error carrying the status code
// and body text.
func (s *GitHubService) GetUserInfo(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	client := s.oauthConfig.Client(ctx, &oauth2.Token{AccessToken: accessToken})

	resp, err := client.Get(s.apiBaseURL + "/user")
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(body)
		if message == "" {
			message = resp.Status
		}
		return nil, apperrors.NewUpstreamError(resp.StatusCode, message)
	}

	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	return &models.AuthUser{
		ID:        payload.ID,
		Login:     payload.Login,
		Name:      payload.Name,
		AvatarURL: payload.AvatarURL,
		HTMLURL:   payload.HTMLURL,
	}, nil
}
