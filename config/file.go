package config

import (
	"fmt"
	"os"
	"time"

	"github.com/aluiziolira/go-linkcheck/models"
	"gopkg.in/yaml.v2"
)

// File is the YAML layout of a link set plus optional settings.
type File struct {
	Project  string             `yaml:"project"`
	Settings FileSettings       `yaml:"settings"`
	Keywords map[string]float64 `yaml:"keywords"`
	Sections []FileSection      `yaml:"sections"`
}

// FileSettings overrides defaults; unset fields keep the current value.
type FileSettings struct {
	Concurrency       *int     `yaml:"concurrency"`
	Timeout           string   `yaml:"timeout"`
	MaxRetries        *int     `yaml:"max_retries"`
	FollowRedirects   *bool    `yaml:"follow_redirects"`
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
	UserAgent         string   `yaml:"user_agent"`
	ExtractMode       string   `yaml:"extract_mode"`
	ScoringStrategy   string   `yaml:"scoring_strategy"`
	DescriptionWeight *float64 `yaml:"description_weight"`
	HighThreshold     *float64 `yaml:"high_threshold"`
	MediumThreshold   *float64 `yaml:"medium_threshold"`
	OutputDir         string   `yaml:"output_dir"`
}

// FileSection is one named group of links.
type FileSection struct {
	Name  string     `yaml:"name"`
	Links []FileLink `yaml:"links"`
}

// FileLink is one link entry.
type FileLink struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// LoadFile reads and decodes a YAML link set.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return &f, nil
}

// Apply copies the file's project, settings, and keywords onto cfg.
func (f *File) Apply(cfg *Config) error {
	if f.Project != "" {
		cfg.ProjectName = f.Project
	}
	if len(f.Keywords) > 0 {
		cfg.Keywords = make(map[string]float64, len(f.Keywords))
		for k, v := range f.Keywords {
			cfg.Keywords[k] = v
		}
	}

	s := f.Settings
	if s.Concurrency != nil {
		cfg.Concurrency = *s.Concurrency
	}
	if s.Timeout != "" {
		timeout, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("settings.timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if s.MaxRetries != nil {
		cfg.MaxRetries = *s.MaxRetries
	}
	if s.FollowRedirects != nil {
		cfg.FollowRedirects = *s.FollowRedirects
	}
	if s.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *s.RequestsPerSecond
	}
	if s.UserAgent != "" {
		cfg.UserAgent = s.UserAgent
	}
	if s.ExtractMode != "" {
		cfg.ExtractMode = s.ExtractMode
	}
	if s.ScoringStrategy != "" {
		cfg.ScoringStrategy = s.ScoringStrategy
	}
	if s.DescriptionWeight != nil {
		cfg.DescriptionWeight = *s.DescriptionWeight
	}
	if s.HighThreshold != nil {
		cfg.HighThreshold = *s.HighThreshold
	}
	if s.MediumThreshold != nil {
		cfg.MediumThreshold = *s.MediumThreshold
	}
	if s.OutputDir != "" {
		cfg.OutputDir = s.OutputDir
	}
	return nil
}

// Targets flattens the sections in file order.
func (f *File) Targets() []models.Target {
	var targets []models.Target
	for _, section := range f.Sections {
		for _, link := range section.Links {
			targets = append(targets, models.Target{
				URL:         link.URL,
				Description: link.Description,
				Section:     section.Name,
			})
		}
	}
	return targets
}
