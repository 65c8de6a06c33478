// Package report aggregates validation records into summaries and
// renders them as JSON, Markdown and console output.
package report

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
)

// Display limits for the recommendation buckets.
const (
	highLimit   = 10
	mediumLimit = 5
	lowLimit    = 5
	deadLimit   = 5
)

// Build groups records by section in first-appearance order, sorts each
// section by descending score and computes summaries. A nil cfg uses the
// defaults.
func Build(records []models.Record, cfg *config.Config) models.Report {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	rep := models.Report{
		RunID:    uuid.NewString(),
		Project:  cfg.ProjectName,
		Sections: []models.SectionReport{},
	}

	index := make(map[string]int)
	for _, r := range records {
		i, ok := index[r.Section]
		if !ok {
			i = len(rep.Sections)
			index[r.Section] = i
			rep.Sections = append(rep.Sections, models.SectionReport{Name: r.Section})
		}
		rep.Sections[i].Records = append(rep.Sections[i].Records, r)

		if !r.CheckedAt.IsZero() {
			if rep.StartedAt.IsZero() || r.CheckedAt.Before(rep.StartedAt) {
				rep.StartedAt = r.CheckedAt
			}
			if r.CheckedAt.After(rep.FinishedAt) {
				rep.FinishedAt = r.CheckedAt
			}
		}
	}

	for i := range rep.Sections {
		sortByScore(rep.Sections[i].Records)
		rep.Sections[i].Summary = Summarize(rep.Sections[i].Records, cfg.HighThreshold)
	}
	rep.Summary = Summarize(records, cfg.HighThreshold)
	return rep
}

// Summarize computes aggregate counts. Rates and averages are zero when
// there is nothing to divide by.
func Summarize(records []models.Record, highThreshold float64) models.Summary {
	s := models.Summary{
		Total:    len(records),
		ByStatus: make(map[models.Status]int),
	}

	var scoreSum float64
	for _, r := range records {
		s.ByStatus[r.Status]++
		if !r.Status.Accessible() {
			continue
		}
		s.Accessible++
		scoreSum += r.Score
		if r.Score >= highThreshold {
			s.HighRelevance++
		}
	}
	s.Failed = s.Total - s.Accessible

	if s.Total > 0 {
		s.SuccessRate = round1(float64(s.Accessible) / float64(s.Total) * 100)
		s.HighRelevanceRate = round1(float64(s.HighRelevance) / float64(s.Total) * 100)
	}
	if s.Accessible > 0 {
		s.AverageScore = round1(scoreSum / float64(s.Accessible))
	}
	return s
}

// DomainCount is the number of records pointing at one host.
type DomainCount struct {
	Domain string
	Count  int
}

// Recommendations partitions a report's records for follow-up.
type Recommendations struct {
	High        []models.Record
	Medium      []models.Record
	Low         []models.Record
	Dead        []models.Record
	Domains     []DomainCount
	Suggestions []string
}

// Recommend splits accessible records into relevance buckets using the
// configured thresholds and lists the dead links.
func Recommend(rep models.Report, cfg *config.Config) Recommendations {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var rec Recommendations
	domains := make(map[string]int)

	for _, section := range rep.Sections {
		for _, r := range section.Records {
			domains[domainOf(r.URL)]++
			switch {
			case !r.Status.Accessible():
				rec.Dead = append(rec.Dead, r)
			case r.Score >= cfg.HighThreshold:
				rec.High = append(rec.High, r)
			case r.Score >= cfg.MediumThreshold:
				rec.Medium = append(rec.Medium, r)
			default:
				rec.Low = append(rec.Low, r)
			}
		}
	}

	sortByScore(rec.High)
	sortByScore(rec.Medium)
	sortByScore(rec.Low)

	for d, c := range domains {
		rec.Domains = append(rec.Domains, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(rec.Domains, func(i, j int) bool {
		if rec.Domains[i].Count != rec.Domains[j].Count {
			return rec.Domains[i].Count > rec.Domains[j].Count
		}
		return rec.Domains[i].Domain < rec.Domains[j].Domain
	})

	if n := len(rec.Dead); n > 0 {
		rec.Suggestions = append(rec.Suggestions, plural(n, "dead link needs", "dead links need")+" fixing or replacing")
	}
	if n := len(rec.Low); n > 0 {
		rec.Suggestions = append(rec.Suggestions, plural(n, "link has", "links have")+" low relevance and may need updating")
	}
	return rec
}

// sortByScore orders records by descending score, then URL.
func sortByScore(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].URL < records[j].URL
	})
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
