package report

import (
	"fmt"
	"sort"
	"strings"
)

// Document is a report ready to be written as markdown.
type Document struct {
	// Title is printed as the H1
	Title string

	// Parts are the report sections in print order
	Parts []Part

	// Details is a key-value block printed after the last part
	Details map[string]any

	// Footer is printed below a rule at the end
	Footer string
}

// Part is one section of the report.
type Part struct {
	Heading string
	Body    string

	// Bare parts are printed without a heading (the cover page).
	Bare bool
}

// Transformer converts a Document to markdown.
type Transformer struct{}

// NewTransformer creates a new markdown transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform converts a Document to a markdown string.
func (t *Transformer) Transform(doc Document) string {
	var sb strings.Builder

	if doc.Title != "" {
		sb.WriteString("# ")
		sb.WriteString(doc.Title)
		sb.WriteString("\n\n")
	}

	for i, part := range doc.Parts {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		t.writePart(&sb, part)
	}

	if len(doc.Details) > 0 {
		sb.WriteString("---\n\n## Report Details\n\n")
		t.writeMapAsList(&sb, doc.Details)
		sb.WriteString("\n")
	}

	if doc.Footer != "" {
		sb.WriteString("---\n\n")
		sb.WriteString("_")
		sb.WriteString(doc.Footer)
		sb.WriteString("_\n")
	}

	return sb.String()
}

func (t *Transformer) writePart(sb *strings.Builder, part Part) {
	if !part.Bare {
		sb.WriteString("## ")
		sb.WriteString(part.Heading)
		sb.WriteString("\n\n")
	}
	body := strings.TrimRight(part.Body, "\n")
	if body == "" {
		body = "_No content._"
	}
	sb.WriteString(body)
	sb.WriteString("\n\n")
}

// writeMapAsList writes a map as a markdown list with sorted keys.
func (t *Transformer) writeMapAsList(sb *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		title := t.toTitleCase(k)

		switch val := m[k].(type) {
		case []string:
			sb.WriteString("- **")
			sb.WriteString(title)
			sb.WriteString(":**\n")
			for _, item := range val {
				sb.WriteString("  - ")
				sb.WriteString(item)
				sb.WriteString("\n")
			}
		case string:
			sb.WriteString("- **")
			sb.WriteString(title)
			sb.WriteString(":** ")
			sb.WriteString(val)
			sb.WriteString("\n")
		default:
			sb.WriteString("- **")
			sb.WriteString(title)
			sb.WriteString(":** ")
			sb.WriteString(fmt.Sprintf("%v", val))
			sb.WriteString("\n")
		}
	}
}

// toTitleCase converts snake_case to Title Case.
func (t *Transformer) toTitleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}
