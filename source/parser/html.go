package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/c360studio/reportengine/source"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// HTMLParser extracts readable content from saved web pages (social media
// captures, public records lookups) and converts it to markdown.
type HTMLParser struct {
	converter *md.Converter
}

// NewHTMLParser creates a new HTML parser.
func NewHTMLParser() *HTMLParser {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTMLParser{converter: converter}
}

// Parse runs readability over the page and converts the main content to
// markdown. Pages readability cannot score are converted whole.
func (p *HTMLParser) Parse(_ context.Context, filename string, content []byte) (*source.Document, error) {
	doc := &source.Document{
		ID:       source.GenerateDocID("html", filename, content),
		Filename: filepath.Base(filename),
		MimeType: "text/html",
		Content:  string(content),
		Method:   source.MethodHTML,
	}

	mainHTML := string(content)
	pageURL := &url.URL{Scheme: "file", Path: "/" + filepath.Base(filename)}
	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err != nil {
		doc.Warn("readability: %v", err)
	} else {
		doc.Title = strings.TrimSpace(article.Title)
		if strings.TrimSpace(article.Content) != "" {
			mainHTML = article.Content
		}
	}

	markdown, err := p.converter.ConvertString(mainHTML)
	if err != nil {
		return nil, fmt.Errorf("convert HTML: %w", err)
	}
	doc.Body = cleanMarkdown(markdown)

	if doc.Title == "" {
		doc.Title = extractHTMLTitle(content)
	}
	if doc.Title == "" {
		doc.Title = extractMarkdownTitle(doc.Body)
	}

	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *HTMLParser) CanParse(mimeType string) bool {
	return mimeType == "text/html" || mimeType == "application/xhtml+xml"
}

// MimeType returns the primary MIME type for this parser.
func (p *HTMLParser) MimeType() string {
	return "text/html"
}

// extractHTMLTitle extracts the <title> from HTML.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)

	return title
}

// cleanMarkdown trims trailing whitespace and collapses runs of blank lines.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
