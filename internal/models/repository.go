package models

import "time"

// Repository is an immutable snapshot of a GitHub repository, normalized
// from the API listing for one analysis run.
type Repository struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Owner      string     `json:"owner"`
	Stars      int        `json:"stars"`
	Forks      int        `json:"forks"`
	OpenIssues int        `json:"openIssues"`
	PushedAt   *time.Time `json:"pushedAt,omitempty"`
	LastPushed string     `json:"lastPushed"`
	Language   string     `json:"language,omitempty"`
	Visibility string     `json:"visibility"`
}

// RepositoryLanguages holds the percentage-of-bytes language breakdown for
// a single repository.
type RepositoryLanguages struct {
	Repo      string         `json:"repo"`
	Languages []LanguageStat `json:"languages"`
}

// LanguageStat is one language's share of bytes, rounded to the nearest
// integer percentage.
type LanguageStat struct {
	Name       string `json:"name"`
	Percentage int    `json:"percentage"`
}
