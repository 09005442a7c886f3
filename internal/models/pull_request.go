package models

import "time"

// PullRequestState is the derived lifecycle state of a pull request.
type PullRequestState string

const (
	PullRequestOpen   PullRequestState = "open"
	PullRequestMerged PullRequestState = "merged"
	PullRequestClosed PullRequestState = "closed"
)

// PullRequest is a normalized pull request record. State holds the raw
// provider state ("open" or "closed"); the lifecycle state is derived via
// LifecycleState. Repo is attached after fetching.
type PullRequest struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	MergedAt  *time.Time `json:"mergedAt,omitempty"`
	URL       string     `json:"url"`
	Draft     bool       `json:"draft"`
	Repo      string     `json:"repo"`
}

// LifecycleState derives the lifecycle state: open if the provider reports
// open, otherwise merged when a merge timestamp is present, else closed
// without merge.
func (pr *PullRequest) LifecycleState() PullRequestState {
	if pr.State == "open" {
		return PullRequestOpen
	}
	if pr.MergedAt != nil {
		return PullRequestMerged
	}
	return PullRequestClosed
}

// ResolvedAt returns the resolution timestamp, preferring the merge
// timestamp over the close timestamp. Nil when neither is present.
func (pr *PullRequest) ResolvedAt() *time.Time {
	if pr.MergedAt != nil {
		return pr.MergedAt
	}
	return pr.ClosedAt
}
