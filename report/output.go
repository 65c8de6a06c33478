package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rodaine/table"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
	"github.com/aluiziolira/go-linkcheck/pipeline"
	"github.com/aluiziolira/go-linkcheck/relevance"
)

var statusIcons = map[models.Status]string{
	models.StatusSuccess:         "✅",
	models.StatusRedirect:        "↪️",
	models.StatusHTTPError:       "❌",
	models.StatusTimeout:         "⏱️",
	models.StatusConnectionError: "🔌",
	models.StatusMalformedInput:  "⚠️",
	models.StatusCancelled:       "⏹️",
	models.StatusUnknownError:    "❓",
}

// Icon returns the console/Markdown marker for a status.
func Icon(s models.Status) string {
	if icon, ok := statusIcons[s]; ok {
		return icon
	}
	return "❓"
}

// sectionMap marshals as a JSON object keyed by section name, keeping
// the report's section order.
type sectionMap []models.SectionReport

func (m sectionMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, section := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(section.Name)
		if err != nil {
			return nil, err
		}
		records := section.Records
		if records == nil {
			records = []models.Record{}
		}
		body, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeJSON writes the {section: [record, ...]} document.
func EncodeJSON(w io.Writer, rep models.Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sectionMap(rep.Sections)); err != nil {
		return fmt.Errorf("encode report json: %w", err)
	}
	return nil
}

// WriteJSON writes the JSON results file.
func WriteJSON(path string, rep models.Report) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeJSON(w, rep)
	})
}

// WriteMarkdown writes the Markdown summary file.
func WriteMarkdown(path string, rep models.Report, cfg *config.Config) error {
	return writeFile(path, func(w io.Writer) error {
		return RenderMarkdown(w, rep, cfg)
	})
}

func writeFile(path string, render func(io.Writer) error) error {
	if err := pipeline.EnsureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := render(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// RenderMarkdown writes the human-readable report.
func RenderMarkdown(w io.Writer, rep models.Report, cfg *config.Config) error {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	mw := &mdWriter{w: w}

	title := rep.Project
	if title == "" {
		title = "Links"
	}
	mw.printf("# %s - Link Validation Report\n\n", title)
	mw.printf("- **Run ID**: %s\n", rep.RunID)
	mw.printf("- **Generated**: %s\n", formatTime(rep.FinishedAt))
	mw.printf("- **Started**: %s\n", formatTime(rep.StartedAt))
	mw.printf("- **Total links**: %d\n\n", rep.Summary.Total)

	for _, section := range rep.Sections {
		name := section.Name
		if name == "" {
			name = "Links"
		}
		mw.printf("## %s\n\n", name)
		for i, r := range section.Records {
			writeEntry(mw, i+1, r, cfg.TopKeywords)
		}
		s := section.Summary
		mw.printf("**Section stats**: %d links, %d accessible, %d failed, %d high relevance, success rate %.1f%%, average score %.1f\n\n",
			s.Total, s.Accessible, s.Failed, s.HighRelevance, s.SuccessRate, s.AverageScore)
	}

	s := rep.Summary
	mw.printf("## Overall Statistics\n\n")
	mw.printf("- **Total links**: %d\n", s.Total)
	mw.printf("- **Accessible**: %d\n", s.Accessible)
	mw.printf("- **Failed**: %d\n", s.Failed)
	mw.printf("- **High relevance**: %d (%.1f%%)\n", s.HighRelevance, s.HighRelevanceRate)
	mw.printf("- **Success rate**: %.1f%%\n", s.SuccessRate)
	mw.printf("- **Average score**: %.1f\n\n", s.AverageScore)

	rec := Recommend(rep, cfg)
	mw.printf("## Recommendations\n\n")
	writeBucket(mw, fmt.Sprintf("High relevance (score >= %.0f)", cfg.HighThreshold), rec.High, highLimit)
	writeBucket(mw, fmt.Sprintf("Medium relevance (score >= %.0f)", cfg.MediumThreshold), rec.Medium, mediumLimit)
	writeBucket(mw, "Low relevance", rec.Low, lowLimit)

	if len(rec.Dead) > 0 {
		mw.printf("### Dead links\n\n")
		for i, r := range rec.Dead {
			if i == deadLimit {
				mw.printf("- ... and %d more\n", len(rec.Dead)-deadLimit)
				break
			}
			mw.printf("- %s %s - %s\n", Icon(r.Status), r.URL, failureText(r))
		}
		mw.printf("\n")
	}

	if len(rec.Suggestions) > 0 {
		mw.printf("### Suggestions\n\n")
		for _, s := range rec.Suggestions {
			mw.printf("- %s\n", s)
		}
		mw.printf("\n")
	}

	if len(rec.Domains) > 0 {
		mw.printf("## Domain Distribution\n\n")
		mw.printf("| Domain | Links |\n|---|---|\n")
		for _, d := range rec.Domains {
			mw.printf("| %s | %d |\n", d.Domain, d.Count)
		}
		mw.printf("\n")
	}

	mw.printf("_Relevance scores are a keyword-frequency ranking signal, not a judgement of content quality._\n")
	return mw.err
}

func writeEntry(mw *mdWriter, n int, r models.Record, topN int) {
	label := r.Description
	if label == "" {
		label = r.Title
	}
	if label == "" {
		label = r.URL
	}
	mw.printf("### %d. %s %s\n\n", n, Icon(r.Status), label)
	mw.printf("- **URL**: %s\n", r.URL)
	if r.StatusCode > 0 {
		mw.printf("- **Status**: %s (HTTP %d)\n", r.Status, r.StatusCode)
	} else {
		mw.printf("- **Status**: %s\n", r.Status)
	}
	if r.ErrorMessage != "" {
		mw.printf("- **Error**: %s\n", r.ErrorMessage)
	}
	if r.ExtractionError != "" {
		mw.printf("- **Extraction error**: %s\n", r.ExtractionError)
	}
	if r.Title != "" && r.Title != label {
		mw.printf("- **Title**: %s\n", r.Title)
	}
	mw.printf("- **Response time**: %.2fs\n", r.ResponseTimeSeconds)
	mw.printf("- **Relevance score**: %.1f\n", r.Score)
	if top := relevance.TopKeywords(r.KeywordMatches, topN); len(top) > 0 {
		parts := make([]string, len(top))
		for i, kc := range top {
			parts[i] = fmt.Sprintf("%s (%d)", kc.Keyword, kc.Count)
		}
		mw.printf("- **Top keywords**: %s\n", strings.Join(parts, ", "))
	}
	mw.printf("\n")
}

func writeBucket(mw *mdWriter, heading string, records []models.Record, limit int) {
	mw.printf("### %s\n\n", heading)
	if len(records) == 0 {
		mw.printf("- none\n\n")
		return
	}
	for i, r := range records {
		if i == limit {
			mw.printf("- ... and %d more\n", len(records)-limit)
			break
		}
		label := r.Description
		if label == "" {
			label = r.URL
		}
		mw.printf("- [%s](%s) (score: %.1f)\n", escapeLinkText(label), r.URL, r.Score)
	}
	mw.printf("\n")
}

// PrintSummary writes the end-of-run console summary, including a table
// of dead links.
func PrintSummary(w io.Writer, rep models.Report) {
	separator := "--------------------------------------------------"
	s := rep.Summary

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Validation complete")
	fmt.Fprintf(w, "  Total links:     %d\n", s.Total)
	fmt.Fprintf(w, "  Accessible:      %d\n", s.Accessible)
	fmt.Fprintf(w, "  Failed:          %d\n", s.Failed)
	fmt.Fprintf(w, "  High relevance:  %d\n", s.HighRelevance)
	fmt.Fprintf(w, "  Success rate:    %.1f%%\n", s.SuccessRate)
	fmt.Fprintf(w, "  Average score:   %.1f\n", s.AverageScore)
	if !rep.StartedAt.IsZero() && !rep.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration:        %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	}

	if s.Failed > 0 {
		fmt.Fprintln(w)
		tbl := table.New("Section", "URL", "Status", "Detail").WithWriter(w)
		for _, section := range rep.Sections {
			for _, r := range section.Records {
				if r.Status.Accessible() {
					continue
				}
				tbl.AddRow(section.Name, r.URL, string(r.Status), failureText(r))
			}
		}
		tbl.Print()
	}
	fmt.Fprintln(w, separator)
}

// ProgressLine renders one record as a single console line.
func ProgressLine(r models.Record) string {
	line := fmt.Sprintf("%s %s: %s", Icon(r.Status), r.Status, r.URL)
	switch {
	case r.Status.Accessible():
		return line + fmt.Sprintf(" (score: %.1f)", r.Score)
	default:
		return line + " (" + failureText(r) + ")"
	}
}

func failureText(r models.Record) string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if r.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d", r.StatusCode)
	}
	return string(r.Status)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

// mdWriter keeps the first write error so rendering code stays linear.
type mdWriter struct {
	w   io.Writer
	err error
}

func (m *mdWriter) printf(format string, args ...any) {
	if m.err != nil {
		return
	}
	_, m.err = fmt.Fprintf(m.w, format, args...)
}
