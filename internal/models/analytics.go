package models

// Summary holds the derived headline metrics for one analysis run. It is
// recomputed from the full normalized record set every run.
type Summary struct {
	TotalCommits      int    `json:"totalCommits"`
	ActiveRepos       int    `json:"activeRepos"`
	UniqueAuthors     int    `json:"uniqueAuthors"`
	Velocity          int    `json:"velocity"`
	ReviewTurnaround  string `json:"reviewTurnaround"`
	LongLivedBranches int    `json:"longLivedBranches"`
	Repositories      int    `json:"repositories"`
}

// ActivitySeries is one repository's commit counts over the shared date
// labels of a CommitActivityDataset.
type ActivitySeries struct {
	Label           string `json:"label"`
	Data            []int  `json:"data"`
	BorderColor     string `json:"borderColor"`
	BackgroundColor string `json:"backgroundColor"`
}

// CommitActivityDataset is the time-bucketed multi-series commit dataset.
// Labels is the sorted union of all observed calendar dates; every series
// has one value per label, zero-filled where a repository had no commits.
type CommitActivityDataset struct {
	Labels   []string         `json:"labels"`
	Datasets []ActivitySeries `json:"datasets"`
}

// TimelineEntry is one commit in the recency-ordered timeline.
type TimelineEntry struct {
	SHA          string `json:"sha"`
	Repo         string `json:"repo"`
	Author       string `json:"author"`
	Message      string `json:"message"`
	Date         string `json:"date"`
	FilesChanged string `json:"filesChanged"`
}

// StalePullRequest is an open pull request older than seven days. Age is
// used only to order the stale list and is not exposed.
type StalePullRequest struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Repo     string `json:"repo"`
	AgeHuman string `json:"ageHuman"`
}

// PullRequestStatus partitions pull requests by derived lifecycle state.
type PullRequestStatus struct {
	Open   int                `json:"open"`
	Merged int                `json:"merged"`
	Closed int                `json:"closed"`
	Stale  []StalePullRequest `json:"stale"`
}

// AnalyticsReport is the full output of one analysis run and the sole
// input to presentation.
type AnalyticsReport struct {
	Summary           Summary               `json:"summary"`
	CommitActivity    CommitActivityDataset `json:"commitActivity"`
	CommitTimeline    []TimelineEntry       `json:"commitTimeline"`
	PullRequestStatus PullRequestStatus     `json:"pullRequestStatus"`
	Repositories      []Repository          `json:"repositories"`
	Insights          []string              `json:"insights"`
	Languages         []LanguageStat        `json:"languages"`
}
