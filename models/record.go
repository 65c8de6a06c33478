// Package models defines data structures for the link validator.
package models

import "time"

// Status classifies the outcome of validating one target.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusRedirect        Status = "redirect"
	StatusHTTPError       Status = "http_error"
	StatusTimeout         Status = "timeout"
	StatusConnectionError Status = "connection_error"
	StatusUnknownError    Status = "unknown_error"
	StatusMalformedInput  Status = "malformed_input"
	StatusCancelled       Status = "cancelled"
)

// Accessible reports whether the target was reachable.
func (s Status) Accessible() bool {
	return s == StatusSuccess || s == StatusRedirect
}

// Target is one (URL, description) pair to validate.
type Target struct {
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`
	Section     string `json:"section,omitempty" yaml:"section,omitempty"`
}

// Key identifies a target within a batch. The same URL may appear in
// several sections, so the section is part of the key.
func (t Target) Key() string {
	return t.Section + "\x00" + t.URL
}

// FetchOutcome is the result of one logical HTTP fetch, retries included.
type FetchOutcome struct {
	Status       Status
	StatusCode   int
	ResponseTime time.Duration
	Error        string
	Body         []byte // only set on success
	FinalURL     string
	ContentType  string
	Attempts     int
}

// RelevanceResult holds the keyword counts and the bounded score.
type RelevanceResult struct {
	KeywordMatches     map[string]int `json:"keyword_matches,omitempty"`
	KeywordScore       float64        `json:"keyword_score"`
	DescriptionOverlap float64        `json:"description_overlap"`
	Score              float64        `json:"score"`
}

// Record is the validation output for exactly one target.
type Record struct {
	URL                 string         `json:"url"`
	Description         string         `json:"description"`
	Section             string         `json:"section,omitempty"`
	Status              Status         `json:"status"`
	StatusCode          int            `json:"status_code,omitempty"`
	ResponseTimeSeconds float64        `json:"response_time_seconds"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	ContentLength       int            `json:"content_length"`
	Accessible          bool           `json:"accessible"`
	ContentHash         string         `json:"content_hash,omitempty"`
	KeywordMatches      map[string]int `json:"keyword_matches,omitempty"`
	Score               float64        `json:"score"`
	Title               string         `json:"title,omitempty"`
	FinalURL            string         `json:"final_url,omitempty"`
	Attempts            int            `json:"attempts,omitempty"`
	ExtractionError     string         `json:"extraction_error,omitempty"`
	CheckedAt           time.Time      `json:"checked_at"`
}

// Scored reports whether the record reached the success-scored state.
func (r Record) Scored() bool {
	return r.Status == StatusSuccess && r.ExtractionError == ""
}

// Summary aggregates counts over a set of records.
type Summary struct {
	Total             int            `json:"total"`
	Accessible        int            `json:"accessible"`
	Failed            int            `json:"failed"`
	HighRelevance     int            `json:"high_relevance"`
	SuccessRate       float64        `json:"success_rate"`
	HighRelevanceRate float64        `json:"high_relevance_rate"`
	AverageScore      float64        `json:"average_score"`
	ByStatus          map[Status]int `json:"by_status"`
}

// SectionReport groups the records of one section, sorted by score.
type SectionReport struct {
	Name    string   `json:"name"`
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
}

// Report is the aggregate of one validation run.
type Report struct {
	RunID      string          `json:"run_id"`
	Project    string          `json:"project,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Summary    Summary         `json:"summary"`
	Sections   []SectionReport `json:"sections"`
}
