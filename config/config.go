package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Extraction modes.
const (
	ExtractText    = "text"
	ExtractArticle = "article"
)

// Scoring strategies.
const (
	ScoreKeyword     = "keyword"
	ScoreDescription = "description"
	ScoreBlend       = "blend"
)

// Config holds validator configuration.
type Config struct {
	ProjectName string

	Concurrency       int
	Timeout           time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	RetryBackoffMax   time.Duration
	FollowRedirects   bool
	MaxRedirects      int
	MaxBodySize       int
	UserAgent         string
	RespectRobotsTxt  bool
	RequestsPerSecond float64
	FetchCacheSize    int

	ExtractMode       string // text or article
	ScoringStrategy   string // keyword, description, or blend
	ScaleK            float64
	DescriptionWeight float64
	Keywords          map[string]float64 // nil means the built-in table

	HighThreshold   float64
	MediumThreshold float64
	TopKeywords     int

	OutputDir      string
	OutputJSON     string
	OutputMarkdown string
	RecordsFile    string
	RecordsFormat  string // jsonl, csv, or dual

	MetricsAddr string
	Verbose     bool

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
	S3Prefix          string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisQueue    string
}

// DefaultConfig returns conservative defaults for a personal link audit.
func DefaultConfig() *Config {
	return &Config{
		ProjectName:       "linkcheck",
		Concurrency:       5,
		Timeout:           15 * time.Second,
		MaxRetries:        2,
		RetryBackoff:      200 * time.Millisecond,
		RetryBackoffMax:   2 * time.Second,
		FollowRedirects:   true,
		MaxRedirects:      10,
		MaxBodySize:       10 * 1024 * 1024,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt:  false,
		RequestsPerSecond: 0,
		FetchCacheSize:    256,
		ExtractMode:       ExtractText,
		ScoringStrategy:   ScoreKeyword,
		ScaleK:            20,
		DescriptionWeight: 0.4,
		HighThreshold:     50,
		MediumThreshold:   20,
		TopKeywords:       3,
		OutputDir:         "output",
		RecordsFormat:     "jsonl",
		RedisQueue:        "linkcheck:dead-links",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.FetchCacheSize < 0 {
		return fmt.Errorf("fetch cache size cannot be negative")
	}
	if c.ExtractMode != ExtractText && c.ExtractMode != ExtractArticle {
		return fmt.Errorf("extract mode must be text or article")
	}
	switch c.ScoringStrategy {
	case ScoreKeyword, ScoreDescription, ScoreBlend:
	default:
		return fmt.Errorf("scoring strategy must be keyword, description, or blend")
	}
	if c.ScaleK <= 0 {
		return fmt.Errorf("scale constant must be positive")
	}
	if c.DescriptionWeight < 0 || c.DescriptionWeight > 1 {
		return fmt.Errorf("description weight must be within [0, 1]")
	}
	for keyword, weight := range c.Keywords {
		if keyword == "" {
			return fmt.Errorf("keyword cannot be empty")
		}
		if weight < 1 {
			return fmt.Errorf("keyword %q weight must be at least 1", keyword)
		}
	}
	if c.HighThreshold < 0 || c.HighThreshold > 100 {
		return fmt.Errorf("high relevance threshold must be within [0, 100]")
	}
	if c.MediumThreshold < 0 || c.MediumThreshold > c.HighThreshold {
		return fmt.Errorf("medium relevance threshold must be within [0, high threshold]")
	}
	if c.TopKeywords < 0 {
		return fmt.Errorf("top keywords cannot be negative")
	}
	if c.RecordsFormat != "jsonl" && c.RecordsFormat != "csv" && c.RecordsFormat != "dual" {
		return fmt.Errorf("records format must be jsonl, csv, or dual")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return fmt.Errorf("S3 region is required when a bucket is set")
	}
	if c.RedisAddr != "" && c.RedisQueue == "" {
		return fmt.Errorf("redis queue name cannot be empty")
	}
	return nil
}

// ResolveOutputs fills empty output paths from the project name.
func (c *Config) ResolveOutputs() {
	name := Slug(c.ProjectName)
	if name == "" {
		name = "linkcheck"
	}
	if c.OutputJSON == "" {
		c.OutputJSON = filepath.Join(c.OutputDir, name+"_link_validation_results.json")
	}
	if c.OutputMarkdown == "" {
		c.OutputMarkdown = filepath.Join(c.OutputDir, name+"_validation_summary.md")
	}
}
