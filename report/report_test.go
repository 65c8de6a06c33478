package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
)

func rec(section, url string, status models.Status, score float64) models.Record {
	return models.Record{
		URL:        url,
		Section:    section,
		Status:     status,
		Accessible: status.Accessible(),
		Score:      score,
		CheckedAt:  time.Date(2025, 11, 4, 13, 0, 0, 0, time.UTC),
	}
}

func sampleRecords() []models.Record {
	dead := rec("Storage", "https://dead.example.com/x", models.StatusHTTPError, 0)
	dead.StatusCode = 404
	dead.ErrorMessage = "HTTP 404"

	redis := rec("Caching", "https://redis.io/docs", models.StatusSuccess, 72.5)
	redis.KeywordMatches = map[string]int{"redis": 5, "cache": 2, "lock": 1, "lua": 1}
	redis.Description = "Redis [docs]"

	return []models.Record{
		rec("Caching", "https://b.example.com", models.StatusSuccess, 10),
		redis,
		dead,
		rec("Caching", "https://a.example.com", models.StatusSuccess, 10),
		rec("Storage", "https://www.Example.com/moved", models.StatusRedirect, 0),
		rec("Storage", "https://slow.example.com", models.StatusTimeout, 0),
		rec("Caching", "https://mid.example.com", models.StatusSuccess, 30),
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 50)
	if s.Total != 0 || s.Accessible != 0 || s.Failed != 0 || s.HighRelevance != 0 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.SuccessRate != 0 || s.HighRelevanceRate != 0 || s.AverageScore != 0 {
		t.Fatalf("rates must be zero: %+v", s)
	}
}

func TestSummarizeCounts(t *testing.T) {
	s := Summarize(sampleRecords(), 50)

	if s.Total != 7 || s.Accessible != 5 || s.Failed != 2 {
		t.Fatalf("total/accessible/failed = %d/%d/%d", s.Total, s.Accessible, s.Failed)
	}
	if s.Total != s.Accessible+s.Failed {
		t.Fatalf("total must equal accessible+failed")
	}
	if s.HighRelevance != 1 || s.HighRelevance > s.Accessible {
		t.Fatalf("high relevance = %d", s.HighRelevance)
	}
	if s.SuccessRate != 71.4 {
		t.Fatalf("success rate = %v, want 71.4", s.SuccessRate)
	}
	// (10 + 72.5 + 10 + 0 + 30) / 5
	if s.AverageScore != 24.5 {
		t.Fatalf("average score = %v, want 24.5", s.AverageScore)
	}
	if s.ByStatus[models.StatusSuccess] != 4 || s.ByStatus[models.StatusTimeout] != 1 {
		t.Fatalf("by status = %v", s.ByStatus)
	}
}

func TestBuildGroupsAndSorts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectName = "Redis Notes"
	rep := Build(sampleRecords(), cfg)

	if rep.RunID == "" || rep.Project != "Redis Notes" {
		t.Fatalf("run id %q project %q", rep.RunID, rep.Project)
	}
	if len(rep.Sections) != 2 || rep.Sections[0].Name != "Caching" || rep.Sections[1].Name != "Storage" {
		t.Fatalf("sections out of first-appearance order: %+v", rep.Sections)
	}

	got := make([]string, 0, 4)
	for _, r := range rep.Sections[0].Records {
		got = append(got, r.URL)
	}
	want := []string{"https://redis.io/docs", "https://mid.example.com", "https://a.example.com", "https://b.example.com"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("caching order = %v, want %v", got, want)
	}

	total := 0
	for _, s := range rep.Sections {
		total += s.Summary.Total
	}
	if total != rep.Summary.Total || rep.Summary.Total != 7 {
		t.Fatalf("section totals %d, overall %d", total, rep.Summary.Total)
	}
	if rep.StartedAt.IsZero() || rep.FinishedAt.Before(rep.StartedAt) {
		t.Fatalf("bad run window %v - %v", rep.StartedAt, rep.FinishedAt)
	}
}

func TestRecommend(t *testing.T) {
	cfg := config.DefaultConfig()
	rep := Build(sampleRecords(), cfg)
	r := Recommend(rep, cfg)

	if len(r.High) != 1 || len(r.Medium) != 1 || len(r.Low) != 3 || len(r.Dead) != 2 {
		t.Fatalf("buckets high=%d medium=%d low=%d dead=%d", len(r.High), len(r.Medium), len(r.Low), len(r.Dead))
	}
	if len(r.Domains) != 7 {
		t.Fatalf("domains = %+v", r.Domains)
	}
	found := false
	for _, d := range r.Domains {
		if strings.HasPrefix(d.Domain, "www.") {
			t.Fatalf("domain %q not normalised", d.Domain)
		}
		found = found || d.Domain == "example.com"
	}
	if !found {
		t.Fatalf("www.Example.com not folded into example.com: %+v", r.Domains)
	}
	if len(r.Suggestions) != 2 {
		t.Fatalf("suggestions = %v", r.Suggestions)
	}
}

func TestNilConfigUsesDefaults(t *testing.T) {
	rep := Build(sampleRecords(), nil)
	if rep.Project != config.DefaultConfig().ProjectName || rep.Summary.Total != 7 {
		t.Fatalf("project %q total %d", rep.Project, rep.Summary.Total)
	}

	want := Recommend(rep, config.DefaultConfig())
	got := Recommend(rep, nil)
	if len(got.High) != len(want.High) || len(got.Medium) != len(want.Medium) || len(got.Low) != len(want.Low) {
		t.Fatalf("nil config buckets %d/%d/%d, want %d/%d/%d",
			len(got.High), len(got.Medium), len(got.Low), len(want.High), len(want.Medium), len(want.Low))
	}

	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, rep, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "High relevance (score >= 50)") {
		t.Fatalf("default threshold missing:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	rep := Build(sampleRecords(), config.DefaultConfig())
	path := filepath.Join(t.TempDir(), "out", "results.json")

	if err := WriteJSON(path, rep); err != nil {
		t.Fatalf("write json: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}

	var decoded map[string][]models.Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded["Caching"]) != 4 || len(decoded["Storage"]) != 3 {
		t.Fatalf("decoded sections = %v", decoded)
	}
	if strings.Index(string(data), `"Caching"`) > strings.Index(string(data), `"Storage"`) {
		t.Fatalf("sections not in report order")
	}
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, Build(nil, config.DefaultConfig())); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "{}" {
		t.Fatalf("empty report = %q, want {}", buf.String())
	}
}

func TestWriteJSONUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := WriteJSON(filepath.Join(blocker, "results.json"), models.Report{}); err == nil {
		t.Fatalf("expected error writing under a regular file")
	}
}

func TestRenderMarkdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectName = "Redis Notes"
	rep := Build(sampleRecords(), cfg)

	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, rep, cfg); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Redis Notes - Link Validation Report",
		"## Caching",
		"## Storage",
		"- **Top keywords**: redis (5), cache (2), lock (1)",
		"## Overall Statistics",
		"- **Success rate**: 71.4%",
		"### High relevance (score >= 50)",
		`- [Redis \[docs\]](https://redis.io/docs) (score: 72.5)`,
		"### Dead links",
		"HTTP 404",
		"## Domain Distribution",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "lua (1)") {
		t.Fatalf("top keywords not limited to %d", cfg.TopKeywords)
	}
	if strings.Index(out, "https://redis.io/docs") > strings.Index(out, "https://mid.example.com") {
		t.Fatalf("records not sorted by score")
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, Build(nil, cfg), cfg); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "- **Success rate**: 0.0%") {
		t.Fatalf("empty report must show zero rates:\n%s", buf.String())
	}
}

func TestRenderMarkdownLimitsBuckets(t *testing.T) {
	cfg := config.DefaultConfig()
	var records []models.Record
	for i := 0; i < 8; i++ {
		records = append(records, rec("S", "https://dead.example.com/"+string(rune('a'+i)), models.StatusConnectionError, 0))
	}
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, Build(records, cfg), cfg); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "- ... and 3 more") {
		t.Fatalf("dead links not truncated:\n%s", buf.String())
	}
}

func TestPrintSummary(t *testing.T) {
	rep := Build(sampleRecords(), config.DefaultConfig())
	var buf bytes.Buffer
	PrintSummary(&buf, rep)
	out := buf.String()

	for _, want := range []string{"Total links:     7", "Success rate:    71.4%", "https://dead.example.com/x", "https://slow.example.com"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q\n%s", want, out)
		}
	}
}

func TestProgressLine(t *testing.T) {
	ok := rec("S", "https://redis.io", models.StatusSuccess, 42)
	if got := ProgressLine(ok); got != "✅ success: https://redis.io (score: 42.0)" {
		t.Fatalf("progress line = %q", got)
	}

	bad := rec("S", "https://x.example.com", models.StatusHTTPError, 0)
	bad.StatusCode = 404
	if got := ProgressLine(bad); got != "❌ http_error: https://x.example.com (HTTP 404)" {
		t.Fatalf("progress line = %q", got)
	}
}
