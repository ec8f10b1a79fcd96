package section

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/reportengine/locker"
)

// mdTable renders a GitHub-flavored markdown table.
func mdTable(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(escapeCells(headers), " | ") + " |\n")
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	sb.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, row := range rows {
		sb.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	return sb.String()
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}

// orDefault returns s, or def when s is blank.
func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// hours formats minutes as "2.75 hours".
func hours(minutes int) string {
	h := float64(minutes) / 60
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%.2f hours", h)
}

// joinList joins items as "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// exhibits returns the sorted exhibit labels of items.
func exhibits(items []*locker.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Exhibit)
	}
	sort.Strings(out)
	return out
}

// itemIDs returns the ids of items.
func itemIDs(items []*locker.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

// excerpt returns the first n runes of text on a single line.
func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

// finish stamps provenance and revision notes and normalizes a rendered
// payload.
func finish(p *Payload, in *Input, narrative string) (*Payload, error) {
	narrative = strings.TrimSpace(narrative)
	if len(in.RevisionNotes) > 0 {
		p.RevisionNotes = append([]string(nil), in.RevisionNotes...)
		narrative += "\n\n_Revised to address reviewer notes: " + strings.Join(in.RevisionNotes, "; ") + "._"
	}
	p.Narrative = narrative + "\n"
	for id, up := range in.Upstream {
		if up != nil {
			p.Provenance.Upstream[id] = up.Version
		}
	}
	p.RenderedAt = in.Now
	if p.RenderedAt.IsZero() {
		p.RenderedAt = time.Now().UTC()
	}
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// reportType returns the report type fixed by section 1.
func reportType(in *Input) string {
	if up, ok := in.Upstream[IDCaseInfo]; ok && up != nil {
		return string(up.ReportType)
	}
	return ""
}
