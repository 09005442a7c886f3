package models

import "time"

// Commit is a normalized commit record. Date may be nil when the upstream
// record carried no authored-at timestamp; such commits still count toward
// raw totals but are excluded from time-series and timeline views.
// Repo is attached after fetching, it is not part of the raw record.
type Commit struct {
	SHA          string     `json:"sha"`
	Repo         string     `json:"repo"`
	Author       string     `json:"author"`
	Message      string     `json:"message"`
	Date         *time.Time `json:"date,omitempty"`
	FilesChanged string     `json:"filesChanged"`
}
