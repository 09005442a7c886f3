package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// maxAnalyzedRepos caps how many repositories one analysis run fans out
// over.
const maxAnalyzedRepos = 10

// staleAge is how old an open pull request must be to count as stale.
const staleAge = 7 * 24 * time.Hour

// activityPalette is the fixed series palette, assigned by insertion order
// of first appearance and cycled when exhausted.
var activityPalette = []string{"#2563eb", "#7c3aed", "#0ea5e9", "#10b981", "#f97316", "#ec4899"}

// Fetcher is the upstream data source consumed by analysis runs.
type Fetcher interface {
	FetchRepositories(ctx context.Context, username, token string) ([]models.Repository, error)
	FetchCommits(ctx context.Context, owner, name, token string, since, until *time.Time) ([]models.Commit, error)
	FetchPullRequests(ctx context.Context, owner, name, token string, since, until *time.Time) ([]models.PullRequest, error)
	FetchLanguages(ctx context.Context, owner, name, token string) ([]models.LanguageStat, error)
}

// AnalyticsRequest describes one analysis run.
type AnalyticsRequest struct {
	Username string
	Token    string
	Since    time.Time
	Until    time.Time
	Repos    []string
}

// AnalyticsService turns normalized records into the derived analytics
// report. The builders are pure and deterministic; LoadAnalytics
// orchestrates the fetch fan-out around them.
type AnalyticsService struct {
	fetcher Fetcher
	running atomic.Bool
}

func NewAnalyticsService(fetcher Fetcher) *AnalyticsService {
	return &AnalyticsService{
		fetcher: fetcher,
	}
}

// repoRecords holds the joined fetch results for one repository.
type repoRecords struct {
	commits      []models.Commit
	pullRequests []models.PullRequest
	languages    []models.LanguageStat
}

// LoadAnalytics runs one full analysis: list repositories, fan out the
// per-repository fetches, join, and aggregate. The run fails as a whole if
// any fetch fails; aggregation never sees partial per-repository data.
// Overlapping runs are suppressed with a busy flag.
func (s *AnalyticsService) LoadAnalytics(ctx context.Context, req AnalyticsRequest) (*models.AnalyticsReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, apperrors.ErrAnalysisInProgress
	}
	defer s.running.Store(false)

	if req.Username == "" {
		return nil, apperrors.NewValidationError("Please enter a GitHub username.")
	}

	repositories, err := s.fetcher.FetchRepositories(ctx, req.Username, req.Token)
	if err != nil {
		return nil, err
	}

	selected := filterRepositories(repositories, req.Repos)
	if len(selected) == 0 {
		return nil, apperrors.ErrNoRepositories
	}
	if len(selected) > maxAnalyzedRepos {
		selected = selected[:maxAnalyzedRepos]
	}

	since, until := req.Since, req.Until
	records := make([]repoRecords, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, repo := range selected {
		i, repo := i, repo
		g.Go(func() error {
			commits, err := s.fetcher.FetchCommits(gctx, repo.Owner, repo.Name, req.Token, &since, &until)
			if err != nil {
				return err
			}
			records[i].commits = commits
			return nil
		})
		g.Go(func() error {
			pullRequests, err := s.fetcher.FetchPullRequests(gctx, repo.Owner, repo.Name, req.Token, &since, &until)
			if err != nil {
				return err
			}
			records[i].pullRequests = pullRequests
			return nil
		})
		g.Go(func() error {
			languages, err := s.fetcher.FetchLanguages(gctx, repo.Owner, repo.Name, req.Token)
			if err != nil {
				return err
			}
			records[i].languages = languages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis run failed: %w", err)
	}

	var allCommits []models.Commit
	var allPullRequests []models.PullRequest
	perRepoLanguages := make([]models.RepositoryLanguages, 0, len(selected))
	for i, repo := range selected {
		for _, commit := range records[i].commits {
			commit.Repo = repo.Name
			allCommits = append(allCommits, commit)
		}
		for _, pr := range records[i].pullRequests {
			pr.Repo = repo.Name
			allPullRequests = append(allPullRequests, pr)
		}
		perRepoLanguages = append(perRepoLanguages, models.RepositoryLanguages{
			Repo:      repo.Name,
			Languages: records[i].languages,
		})
	}

	now := time.Now()
	summary := s.BuildSummary(selected, allCommits, allPullRequests, since, until, now)
	status := s.BuildPullRequestStatus(allPullRequests, now)

	report := &models.AnalyticsReport{
		Summary:           summary,
		CommitActivity:    s.BuildCommitActivityDataset(allCommits),
		CommitTimeline:    s.BuildCommitTimeline(allCommits),
		PullRequestStatus: status,
		Repositories:      s.BuildRepositoriesSnapshot(selected),
		Insights:          s.BuildInsights(summary, status),
		Languages:         s.BuildLanguageMix(perRepoLanguages),
	}

	logger.WithFields(map[string]interface{}{
		"username":     req.Username,
		"repositories": len(selected),
		"commits":      len(allCommits),
		"pullRequests": len(allPullRequests),
	}).Info("analysis run complete")

	return report, nil
}

// filterRepositories keeps only the named repositories when a filter is
// given, preserving fetch order.
func filterRepositories(repositories []models.Repository, names []string) []models.Repository {
	if len(names) == 0 {
		return repositories
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	var filtered []models.Repository
	for _, repo := range repositories {
		if wanted[repo.Name] {
			filtered = append(filtered, repo)
		}
	}
	return filtered
}

// BuildSummary computes the headline metrics over the full normalized
// record set for the query window.
func (s *AnalyticsService) BuildSummary(repositories []models.Repository, commits []models.Commit, pullRequests []models.PullRequest, since, until, now time.Time) models.Summary {
	activeRepos := make(map[string]bool)
	uniqueAuthors := make(map[string]bool)
	for _, commit := range commits {
		if commit.Date != nil {
			activeRepos[commit.Repo] = true
		}
		uniqueAuthors[commit.Author] = true
	}

	totalCommits := len(commits)

	days := calendarDaysBetween(since, until)
	if days < 1 {
		days = 1
	}
	velocity := int(math.Round(float64(totalCommits) / float64(days) * 7))

	var reviewDurations []int
	for _, pr := range pullRequests {
		if pr.LifecycleState() == models.PullRequestOpen {
			continue
		}
		resolved := pr.ResolvedAt()
		if pr.CreatedAt == nil || resolved == nil {
			continue
		}
		hours := int(resolved.Sub(*pr.CreatedAt).Hours())
		if hours < 0 {
			continue
		}
		reviewDurations = append(reviewDurations, hours)
	}
	sort.Ints(reviewDurations)

	reviewTurnaround := "n/a"
	if len(reviewDurations) > 0 {
		// Lower-middle element for even-length samples.
		reviewTurnaround = fmt.Sprintf("%dh", reviewDurations[(len(reviewDurations)-1)/2])
	}

	longLivedBranches := 0
	for _, pr := range pullRequests {
		if pr.LifecycleState() != models.PullRequestOpen || pr.CreatedAt == nil {
			continue
		}
		if now.Sub(*pr.CreatedAt) > staleAge {
			longLivedBranches++
		}
	}

	return models.Summary{
		TotalCommits:      totalCommits,
		ActiveRepos:       len(activeRepos),
		UniqueAuthors:     len(uniqueAuthors),
		Velocity:          velocity,
		ReviewTurnaround:  reviewTurnaround,
		LongLivedBranches: longLivedBranches,
		Repositories:      len(repositories),
	}
}

// calendarDaysBetween returns the number of calendar days between two
// timestamps, ignoring the time of day.
func calendarDaysBetween(since, until time.Time) int {
	s := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	u := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, time.UTC)
	return int(u.Sub(s).Hours() / 24)
}

// BuildCommitActivityDataset groups dated commits by repository and
// calendar date. Every series spans the sorted union of all observed
// dates, zero-filled where a repository had no commits that day.
func (s *AnalyticsService) BuildCommitActivityDataset(commits []models.Commit) models.CommitActivityDataset {
	grouped := make(map[string]map[string]int)
	var repoOrder []string
	dateSet := make(map[string]bool)

	for _, commit := range commits {
		if commit.Date == nil {
			continue
		}
		date := commit.Date.Format("2006-01-02")
		perDate, seen := grouped[commit.Repo]
		if !seen {
			perDate = make(map[string]int)
			grouped[commit.Repo] = perDate
			repoOrder = append(repoOrder, commit.Repo)
		}
		perDate[date]++
		dateSet[date] = true
	}

	labels := make([]string, 0, len(dateSet))
	for date := range dateSet {
		labels = append(labels, date)
	}
	sort.Strings(labels)

	datasets := make([]models.ActivitySeries, 0, len(repoOrder))
	for i, repo := range repoOrder {
		data := make([]int, len(labels))
		for j, date := range labels {
			data[j] = grouped[repo][date]
		}
		color := activityPalette[i%len(activityPalette)]
		datasets = append(datasets, models.ActivitySeries{
			Label:           repo,
			Data:            data,
			BorderColor:     color,
			BackgroundColor: color + "33",
		})
	}

	return models.CommitActivityDataset{
		Labels:   labels,
		Datasets: datasets,
	}
}

// BuildCommitTimeline returns all dated commits, most recent first. Ties
// keep their input order; presentation truncates, the engine does not.
func (s *AnalyticsService) BuildCommitTimeline(commits []models.Commit) []models.TimelineEntry {
	dated := make([]models.Commit, 0, len(commits))
	for _, commit := range commits {
		if commit.Date != nil {
			dated = append(dated, commit)
		}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Date.After(*dated[j].Date)
	})

	timeline := make([]models.TimelineEntry, 0, len(dated))
	for _, commit := range dated {
		timeline = append(timeline, models.TimelineEntry{
			SHA:          commit.SHA,
			Repo:         commit.Repo,
			Author:       commit.Author,
			Message:      commit.Message,
			Date:         commit.Date.Format("Jan 02, 15:04"),
			FilesChanged: commit.FilesChanged,
		})
	}

	return timeline
}

// BuildPullRequestStatus partitions pull requests by derived lifecycle
// state and collects open ones older than a week as stale, oldest first.
func (s *AnalyticsService) BuildPullRequestStatus(pullRequests []models.PullRequest, now time.Time) models.PullRequestStatus {
	status := models.PullRequestStatus{
		Stale: []models.StalePullRequest{},
	}

	type agedStale struct {
		entry    models.StalePullRequest
		ageHours float64
	}
	var stale []agedStale

	for _, pr := range pullRequests {
		switch pr.LifecycleState() {
		case models.PullRequestOpen:
			status.Open++
			if pr.CreatedAt == nil {
				continue
			}
			age := now.Sub(*pr.CreatedAt)
			if age > staleAge {
				stale = append(stale, agedStale{
					entry: models.StalePullRequest{
						ID:       pr.ID,
						Title:    pr.Title,
						Repo:     pr.Repo,
						AgeHuman: relativeTimeSince(*pr.CreatedAt, now),
					},
					ageHours: age.Hours(),
				})
			}
		case models.PullRequestMerged:
			status.Merged++
		case models.PullRequestClosed:
			status.Closed++
		}
	}

	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].ageHours > stale[j].ageHours
	})
	for _, aged := range stale {
		status.Stale = append(status.Stale, aged.entry)
	}

	return status
}

// BuildRepositoriesSnapshot returns the repository set ordered by star
// count, descending and stable.
func (s *AnalyticsService) BuildRepositoriesSnapshot(repositories []models.Repository) []models.Repository {
	snapshot := make([]models.Repository, len(repositories))
	copy(snapshot, repositories)
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Stars > snapshot[j].Stars
	})
	return snapshot
}

// BuildInsights evaluates the heuristic rule list in order and collects
// every message that fires. When nothing fires, a single fallback message
// is emitted.
func (s *AnalyticsService) BuildInsights(summary models.Summary, status models.PullRequestStatus) []string {
	var insights []string

	if summary.Velocity > 0 {
		insights = append(insights, fmt.Sprintf(
			"Teams are shipping at %d commits per week across %d active repositories.",
			summary.Velocity, summary.ActiveRepos))
	}
	if status.Open > 0 {
		insights = append(insights, fmt.Sprintf(
			"%d pull requests are still open. %d have been waiting longer than a week.",
			status.Open, len(status.Stale)))
	}
	if summary.TotalCommits > 120 {
		insights = append(insights,
			"Commit throughput is high — consider splitting reviews across more maintainers.")
	}
	if summary.LongLivedBranches > 0 {
		insights = append(insights, fmt.Sprintf(
			"%d long-lived branches could be blocking merges. Encourage smaller, incremental PRs.",
			summary.LongLivedBranches))
	}

	if len(insights) == 0 {
		insights = append(insights, "Fetching more data will unlock tailored insights about your workflow.")
	}

	return insights
}

// BuildLanguageMix merges per-repository percentage shares by summing
// same-named language percentages across repositories and clamping each
// sum to 100. This is a documented approximation: shares are not
// renormalized against true combined byte totals.
func (s *AnalyticsService) BuildLanguageMix(perRepo []models.RepositoryLanguages) []models.LanguageStat {
	totals := make(map[string]int)
	var order []string
	for _, repo := range perRepo {
		for _, language := range repo.Languages {
			if _, seen := totals[language.Name]; !seen {
				order = append(order, language.Name)
			}
			totals[language.Name] += language.Percentage
		}
	}

	combined := make([]models.LanguageStat, 0, len(order))
	for _, name := range order {
		percentage := totals[name]
		if percentage > 100 {
			percentage = 100
		}
		combined = append(combined, models.LanguageStat{
			Name:       name,
			Percentage: percentage,
		})
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Percentage > combined[j].Percentage
	})

	return combined
}
