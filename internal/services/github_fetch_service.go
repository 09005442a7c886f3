package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const (
	// maxPages bounds upstream call volume per resource. Accounts with
	// more than maxPages*pageSize records are silently truncated; this is
	// a documented limitation of the fetch contract, not a bug.
	maxPages = 2

	repoPageSize   = 100
	commitPageSize = 100
	pullPageSize   = 50
)

// GitHubFetchService issues paginated requests against the GitHub API and
// maps the raw records into normalized intermediate records.
type GitHubFetchService struct {
	// apiBaseURL overrides the GitHub API base URL, used in tests.
	apiBaseURL string
}

func NewGitHubFetchService() *GitHubFetchService {
	return &GitHubFetchService{}
}

// createClient creates a GitHub client, authenticated when a token is
// provided and anonymous otherwise.
func (s *GitHubFetchService) createClient(ctx context.Context, token string) *github.Client {
	var client *github.Client
	if token == "" {
		client = github.NewClient(nil)
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}

	if s.apiBaseURL != "" {
		base := s.apiBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		if parsed, err := url.Parse(base); err == nil {
			client.BaseURL = parsed
		}
	}

	return client
}

// FetchRepositories lists repositories for the given username, or for the
// authenticated user when username is empty, newest-pushed first.
func (s *GitHubFetchService) FetchRepositories(ctx context.Context, username, token string) ([]models.Repository, error) {
	client := s.createClient(ctx, token)
	now := time.Now()

	var repositories []models.Repository
	for page := 1; page <= maxPages; page++ {
		opts := &github.RepositoryListOptions{
			Sort:      "pushed",
			Direction: "desc",
			ListOptions: github.ListOptions{
				PerPage: repoPageSize,
				Page:    page,
			},
		}

		repos, _, err := client.Repositories.List(ctx, username, opts)
		if err != nil {
			return nil, wrapUpstreamError("failed to list repositories", err)
		}
		if len(repos) == 0 {
			break
		}

		for _, repo := range repos {
			repositories = append(repositories, normalizeRepository(repo, now))
		}

		if len(repos) < repoPageSize {
			break
		}
	}

	return repositories, nil
}

// FetchCommits lists commits for one repository within the since/until
// window. The window is passed upstream as query parameters; records are
// not re-filtered locally.
func (s *GitHubFetchService) FetchCommits(ctx context.Context, owner, name, token string, since, until *time.Time) ([]models.Commit, error) {
	client := s.createClient(ctx, token)

	var commits []models.Commit
	for page := 1; page <= maxPages; page++ {
		opts := &github.CommitsListOptions{
			ListOptions: github.ListOptions{
				PerPage: commitPageSize,
				Page:    page,
			},
		}
		if since != nil {
			opts.Since = *since
		}
		if until != nil {
			opts.Until = *until
		}

		raw, _, err := client.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			return nil, wrapUpstreamError(fmt.Sprintf("failed to list commits for %s/%s", owner, name), err)
		}
		if len(raw) == 0 {
			break
		}

		for _, commit := range raw {
			commits = append(commits, normalizeCommit(commit))
		}

		if len(raw) < commitPageSize {
			break
		}
	}

	return commits, nil
}

// FetchPullRequests lists pull requests in all states for one repository.
// Unlike commits, the GitHub pulls listing has no since/until parameters,
// so the creation-time window is applied client-side; records without a
// creation timestamp are kept.
func (s *GitHubFetchService) FetchPullRequests(ctx context.Context, owner, name, token string, since, until *time.Time) ([]models.PullRequest, error) {
	client := s.createClient(ctx, token)

	var pullRequests []models.PullRequest
	for page := 1; page <= maxPages; page++ {
		opts := &github.PullRequestListOptions{
			State:     "all",
			Sort:      "updated",
			Direction: "desc",
			ListOptions: github.ListOptions{
				PerPage: pullPageSize,
				Page:    page,
			},
		}

		raw, _, err := client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, wrapUpstreamError(fmt.Sprintf("failed to list pull requests for %s/%s", owner, name), err)
		}
		if len(raw) == 0 {
			break
		}

		for _, pr := range raw {
			normalized := normalizePullRequest(pr)
			if !withinWindow(normalized.CreatedAt, since, until) {
				continue
			}
			pullRequests = append(pullRequests, normalized)
		}

		if len(raw) < pullPageSize {
			break
		}
	}

	return pullRequests, nil
}

// FetchLanguages returns the language byte breakdown for one repository as
// integer percentage shares.
func (s *GitHubFetchService) FetchLanguages(ctx context.Context, owner, name, token string) ([]models.LanguageStat, error) {
	client := s.createClient(ctx, token)

	byteCounts, _, err := client.Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		return nil, wrapUpstreamError(fmt.Sprintf("failed to list languages for %s/%s", owner, name), err)
	}

	totalBytes := 0
	for _, bytes := range byteCounts {
		totalBytes += bytes
	}

	languages := make([]models.LanguageStat, 0, len(byteCounts))
	for language, bytes := range byteCounts {
		percentage := 0
		if totalBytes > 0 {
			percentage = int(math.Round(float64(bytes) / float64(totalBytes) * 100))
		}
		languages = append(languages, models.LanguageStat{
			Name:       language,
			Percentage: percentage,
		})
	}

	return languages, nil
}

func normalizeRepository(repo *github.Repository, now time.Time) models.Repository {
	normalized := models.Repository{
		ID:         repo.GetID(),
		Name:       repo.GetName(),
		Owner:      repo.GetOwner().GetLogin(),
		Stars:      repo.GetStargazersCount(),
		Forks:      repo.GetForksCount(),
		OpenIssues: repo.GetOpenIssuesCount(),
		Language:   repo.GetLanguage(),
		Visibility: "public",
	}
	if repo.GetPrivate() {
		normalized.Visibility = "private"
	}
	if repo.PushedAt != nil {
		pushed := repo.PushedAt.Time
		normalized.PushedAt = &pushed
		normalized.LastPushed = relativeTimeSince(pushed, now)
	}
	return normalized
}

func normalizeCommit(commit *github.RepositoryCommit) models.Commit {
	normalized := models.Commit{
		SHA:          commit.GetSHA(),
		Author:       "Unknown",
		Message:      "No message",
		FilesChanged: "—",
	}

	if name := commit.GetCommit().GetAuthor().GetName(); name != "" {
		normalized.Author = name
	} else if login := commit.GetAuthor().GetLogin(); login != "" {
		normalized.Author = login
	}

	if message := commit.GetCommit().GetMessage(); message != "" {
		normalized.Message = strings.SplitN(message, "\n", 2)[0]
	}

	if author := commit.GetCommit().GetAuthor(); author != nil && author.Date != nil {
		date := author.Date.Time
		normalized.Date = &date
	}

	if stats := commit.GetStats(); stats != nil {
		normalized.FilesChanged = strconv.Itoa(stats.GetTotal())
	}

	return normalized
}

func normalizePullRequest(pr *github.PullRequest) models.PullRequest {
	normalized := models.PullRequest{
		ID:     pr.GetID(),
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		State:  pr.GetState(),
		URL:    pr.GetHTMLURL(),
		Draft:  pr.GetDraft(),
	}
	if pr.CreatedAt != nil {
		created := pr.CreatedAt.Time
		normalized.CreatedAt = &created
	}
	if pr.ClosedAt != nil {
		closed := pr.ClosedAt.Time
		normalized.ClosedAt = &closed
	}
	if pr.MergedAt != nil {
		merged := pr.MergedAt.Time
		normalized.MergedAt = &merged
	}
	return normalized
}

// withinWindow reports whether created falls inside the inclusive
// since/until window. A missing timestamp always passes.
func withinWindow(created, since, until *time.Time) bool {
	if created == nil {
		return true
	}
	if since != nil && created.Before(*since) {
		return false
	}
	if until != nil && created.After(*until) {
		return false
	}
	return true
}

// wrapUpstreamError converts a go-github error into an UpstreamError
// carrying the upstream status code and body text.
func wrapUpstreamError(op string, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return fmt.Errorf("%s: %w", op, apperrors.NewUpstreamError(errResp.Response.StatusCode, errResp.Message))
	}
	return fmt.Errorf("%s: %w", op, err)
}
