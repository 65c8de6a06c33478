// Package parser turns link lists into validation targets.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-linkcheck/models"
)

// DefaultSection names targets that appear before any heading.
const DefaultSection = "General"

// ErrNoTargets is returned when an input yields no http(s) links.
var ErrNoTargets = errors.New("no targets found")

var (
	markdownLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	markdownHeading = regexp.MustCompile(`^\s{0,3}(#{1,6})\s+(.+?)\s*#*\s*$`)
)

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return parsed, nil
}

// NormalizeTarget trims whitespace and fills the default section.
// Invalid URLs are kept so the batch can report them as malformed.
func NormalizeTarget(t models.Target) models.Target {
	t.URL = strings.TrimSpace(t.URL)
	t.Description = strings.Join(strings.Fields(t.Description), " ")
	t.Section = strings.TrimSpace(t.Section)
	if t.Section == "" {
		t.Section = DefaultSection
	}
	return t
}

// Dedupe normalises targets and drops repeats of the same section and URL,
// keeping the first occurrence.
func Dedupe(targets []models.Target) []models.Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]models.Target, 0, len(targets))
	for _, t := range targets {
		t = NormalizeTarget(t)
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ParseMarkdown extracts [description](url) links. Each link belongs to the
// nearest heading above it; only http and https links are returned.
func ParseMarkdown(r io.Reader) ([]models.Target, error) {
	var targets []models.Target
	section := DefaultSection
	inFence := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := markdownHeading.FindStringSubmatch(line); m != nil {
			section = stripMarkdown(m[2])
			continue
		}
		for _, m := range markdownLink.FindAllStringSubmatch(line, -1) {
			link := strings.TrimSpace(m[2])
			if !isHTTP(link) {
				continue
			}
			targets = append(targets, models.Target{
				URL:         link,
				Description: strings.TrimSpace(m[1]),
				Section:     section,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan markdown: %w", err)
	}
	return Dedupe(targets), nil
}

// ParseHTML extracts anchors from an HTML document such as a bookmarks
// export. Headings start new sections; anchor text is the description.
func ParseHTML(r io.Reader) ([]models.Target, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var targets []models.Target
	section := DefaultSection
	doc.Find("h1, h2, h3, h4, h5, h6, a[href]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "a" {
			if text := strings.TrimSpace(s.Text()); text != "" {
				section = text
			}
			return
		}
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !isHTTP(href) {
			return
		}
		description := strings.TrimSpace(s.Text())
		if description == "" {
			description, _ = s.Attr("title")
		}
		targets = append(targets, models.Target{
			URL:         href,
			Description: description,
			Section:     section,
		})
	})
	return Dedupe(targets), nil
}

// LoadFile reads a Markdown or HTML link list chosen by file extension.
func LoadFile(path string) ([]models.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var targets []models.Target
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		targets, err = ParseHTML(f)
	case ".md", ".markdown", ".txt", "":
		targets, err = ParseMarkdown(f)
	default:
		return nil, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTargets)
	}
	return targets, nil
}

func isHTTP(link string) bool {
	lower := strings.ToLower(link)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func stripMarkdown(heading string) string {
	heading = markdownLink.ReplaceAllString(heading, "$1")
	heading = strings.NewReplacer("**", "", "__", "", "`", "").Replace(heading)
	return strings.TrimSpace(heading)
}
