package toolkit

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateCandidateRe finds date-looking tokens in free text.
var dateCandidateRe = regexp.MustCompile(`(?i)\b(?:\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4})\b`)

// DocumentFacts summarises one document.
type DocumentFacts struct {
	ItemID   string   `json:"item_id"`
	Exhibit  string   `json:"exhibit"`
	Filename string   `json:"filename"`
	Section  string   `json:"section"`
	Kind     string   `json:"kind"`
	Method   string   `json:"method"`
	Words    int      `json:"words"`
	Dates    []string `json:"dates,omitempty"`
}

// MetadataResult collects counts and the date range covered by the evidence.
type MetadataResult struct {
	DocumentCount int             `json:"document_count"`
	MediaCount    int             `json:"media_count"`
	WithText      int             `json:"with_text"`
	BySection     map[string]int  `json:"by_section"`
	ByMethod      map[string]int  `json:"by_method"`
	EarliestDate  string          `json:"earliest_date,omitempty"`
	LatestDate    string          `json:"latest_date,omitempty"`
	DatesFound    int             `json:"dates_found"`
	Documents     []DocumentFacts `json:"documents"`
}

// MetadataTool counts documents and finds the dates mentioned in them.
type MetadataTool struct{}

// Name returns the tool name.
func (MetadataTool) Name() string { return ToolMetadata }

// Run collects metadata across all documents.
func (MetadataTool) Run(ctx context.Context, in *Input) (any, error) {
	res := &MetadataResult{
		BySection: map[string]int{},
		ByMethod:  map[string]int{},
		Documents: []DocumentFacts{},
	}

	var earliest, latest time.Time
	for _, doc := range in.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if doc.Kind == "media" {
			res.MediaCount++
		} else {
			res.DocumentCount++
		}
		if doc.Section != "" {
			res.BySection[doc.Section]++
		}
		if doc.Method != "" {
			res.ByMethod[doc.Method]++
		}
		if strings.TrimSpace(doc.Text) != "" {
			res.WithText++
		}

		facts := DocumentFacts{
			ItemID:   doc.ItemID,
			Exhibit:  doc.Exhibit,
			Filename: doc.Filename,
			Section:  doc.Section,
			Kind:     doc.Kind,
			Method:   doc.Method,
			Words:    len(strings.Fields(doc.Text)),
		}
		for _, d := range FindDates(doc.Text) {
			facts.Dates = append(facts.Dates, d.Format("2006-01-02"))
			res.DatesFound++
			if earliest.IsZero() || d.Before(earliest) {
				earliest = d
			}
			if latest.IsZero() || d.After(latest) {
				latest = d
			}
		}
		res.Documents = append(res.Documents, facts)
	}

	if !earliest.IsZero() {
		res.EarliestDate = earliest.Format("2006-01-02")
		res.LatestDate = latest.Format("2006-01-02")
	}
	return res, nil
}

// FindDates returns the distinct dates mentioned in text, in order.
func FindDates(text string) []time.Time {
	seen := map[string]bool{}
	var out []time.Time
	for _, m := range dateCandidateRe.FindAllString(text, -1) {
		t, err := dateparse.ParseIn(strings.TrimSuffix(m, "."), time.UTC)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2200 {
			continue
		}
		key := t.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
