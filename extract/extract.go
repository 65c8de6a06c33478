// Package extract turns fetched HTML into plain text for scoring.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-linkcheck/config"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// ErrParse is wrapped by extraction failures.
var ErrParse = errors.New("extract: parse failed")

// hiddenSelector matches elements whose text never renders.
const hiddenSelector = "script, style, noscript, template, iframe, svg, head > meta, head > link"

// Page is the text view of one document.
type Page struct {
	Title string
	Text  string
}

// Extractor converts a response body into a Page.
type Extractor interface {
	Extract(body []byte, pageURL string) (Page, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(body []byte, pageURL string) (Page, error)

// Extract calls f.
func (f ExtractorFunc) Extract(body []byte, pageURL string) (Page, error) {
	return f(body, pageURL)
}

// New returns the extractor for mode; unknown modes get plain text.
func New(mode string) Extractor {
	if mode == config.ExtractArticle {
		return ExtractorFunc(Article)
	}
	return ExtractorFunc(func(body []byte, _ string) (Page, error) {
		return Text(body)
	})
}

// Supported reports whether a Content-Type can be read as text. An empty
// type is accepted since many servers omit it.
func Supported(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/xml":
		return true
	default:
		return false
	}
}

// Text returns the visible text of an HTML document with markup, scripts
// and styles removed.
func Text(body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return pageFromDocument(doc), nil
}

// Article keeps only the main content as detected by readability, falling
// back to Text when nothing is found.
func Article(body []byte, pageURL string) (Page, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return Text(body)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return Text(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return Text(body)
	}
	page := pageFromDocument(doc)
	if page.Text == "" {
		return Text(body)
	}
	if title := strings.TrimSpace(article.Title); title != "" {
		page.Title = title
	}
	return page, nil
}

func pageFromDocument(doc *goquery.Document) Page {
	title := collapse(doc.Find("title").First().Text())
	doc.Find(hiddenSelector).Remove()

	var sb strings.Builder
	for _, n := range doc.Nodes {
		writeText(&sb, n)
	}
	return Page{Title: title, Text: collapse(sb.String())}
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if data := strings.TrimSpace(n.Data); data != "" {
			sb.WriteString(data)
			sb.WriteByte(' ')
		}
	case html.CommentNode:
		return
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}

	// separate inline runs that end at a block boundary
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "td", "th", "tr", "article", "section", "header", "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteByte(' ')
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
