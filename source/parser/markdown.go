package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/c360studio/reportengine/source"
	"gopkg.in/yaml.v3"
)

// MarkdownParser parses markdown notes with optional YAML frontmatter.
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse parses a markdown document. Frontmatter is stripped from the body and
// its "title" key, when present, wins over the first H1.
func (p *MarkdownParser) Parse(_ context.Context, filename string, content []byte) (*source.Document, error) {
	str := normalizeNewlines(string(content))
	doc := &source.Document{
		ID:       source.GenerateDocID("md", filename, content),
		Filename: filepath.Base(filename),
		MimeType: "text/markdown",
		Content:  str,
		Body:     str,
		Method:   source.MethodText,
	}

	if strings.HasPrefix(str, "---\n") {
		frontmatter, body, err := extractFrontmatter(str)
		if err != nil {
			doc.Warn("frontmatter ignored: %v", err)
		} else {
			doc.Body = body
			if title, ok := frontmatter["title"].(string); ok {
				doc.Title = title
			}
		}
	}

	if doc.Title == "" {
		doc.Title = extractMarkdownTitle(doc.Body)
	}

	return doc, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *MarkdownParser) CanParse(mimeType string) bool {
	switch mimeType {
	case "text/markdown", "text/x-markdown":
		return true
	default:
		return false
	}
}

// MimeType returns the primary MIME type for this parser.
func (p *MarkdownParser) MimeType() string {
	return "text/markdown"
}

// extractFrontmatter parses YAML frontmatter from markdown content.
// Returns the parsed frontmatter map, the remaining body, and any error.
func extractFrontmatter(content string) (map[string]any, string, error) {
	const delimiter = "---"

	start := len(delimiter) + 1
	closeIdx := strings.Index(content[start:], "\n"+delimiter)
	if closeIdx == -1 {
		return nil, content, fmt.Errorf("no closing frontmatter delimiter")
	}

	yamlContent := content[start : start+closeIdx]

	bodyStart := start + closeIdx + 1 + len(delimiter)
	for bodyStart < len(content) && content[bodyStart] == '\n' {
		bodyStart++
	}

	body := ""
	if bodyStart < len(content) {
		body = content[bodyStart:]
	}

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &frontmatter); err != nil {
		return nil, content, fmt.Errorf("parse YAML frontmatter: %w", err)
	}

	return frontmatter, body, nil
}

// extractMarkdownTitle extracts the first H1 heading from markdown.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
