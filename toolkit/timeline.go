package toolkit

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// surveillanceSection is where field logs are classified.
const surveillanceSection = "3"

var (
	// 03/01/2024 08:15 - Subject departed
	// 2024-03-01 8:15 PM | Subject departed
	dateTimeLineRe = regexp.MustCompile(`^\s*(\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2})[ T,]+(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp]\.?[Mm](?:\.|\b))?)\s*(?:[-|:>]|\x{2013}|\x{2014})?\s*(.+)$`)
	// 08:15 - Subject departed, 0815 hrs: Subject departed
	timeLineRe = regexp.MustCompile(`^\s*(\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AaPp]\.?[Mm](?:\.|\b))?|\d{4}\s*(?:hrs|hours))\s*(?:[-|:>]|\x{2013}|\x{2014})\s*(.+)$`)
	militaryRe = regexp.MustCompile(`^(\d{2})(\d{2})(?:HRS|HOURS)$`)
	clockRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?(AM|PM)?$`)
	// Date: March 1, 2024 / 03/01/2024 on a line of its own
	dateHeaderRe = regexp.MustCompile(`(?i)^\s*(?:date\s*[:\-]\s*)?([A-Za-z]+,\s*)?((?:\d{1,2}/\d{1,2}/\d{2,4})|(?:\d{4}-\d{2}-\d{2})|(?:[A-Za-z]+\.? \d{1,2},? \d{4}))\s*$`)
)

// TimelineEntry is one timestamped observation.
type TimelineEntry struct {
	At       time.Time `json:"at"`
	Activity string    `json:"activity"`
	ItemID   string    `json:"item_id"`
	Exhibit  string    `json:"exhibit"`
	Line     int       `json:"line"`
}

// Session is a contiguous block of surveillance on one day.
type Session struct {
	Date     string    `json:"date"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Minutes  int       `json:"minutes"`
	Entries  int       `json:"entries"`
	Exhibits []string  `json:"exhibits"`
}

// TimelineResult is the ordered surveillance log and its sessions.
type TimelineResult struct {
	Entries      []TimelineEntry `json:"entries"`
	Sessions     []Session       `json:"sessions"`
	TotalMinutes int             `json:"total_minutes"`
	Days         int             `json:"days"`
	Skipped      int             `json:"skipped_lines"`
}

// HasEntries reports whether any surveillance entry was found.
func (r *TimelineResult) HasEntries() bool {
	return r != nil && len(r.Entries) > 0
}

// TimelineTool turns surveillance log lines into dated entries and sessions.
type TimelineTool struct{}

// Name returns the tool name.
func (TimelineTool) Name() string { return ToolTimeline }

// Run parses documents classified as surveillance logs. When none are
// classified that way, every text document is scanned.
func (TimelineTool) Run(ctx context.Context, in *Input) (any, error) {
	docs := make([]Document, 0, len(in.Documents))
	for _, d := range in.Documents {
		if d.Section == surveillanceSection && d.Text != "" {
			docs = append(docs, d)
		}
	}
	if len(docs) == 0 {
		for _, d := range in.Documents {
			if d.Text != "" {
				docs = append(docs, d)
			}
		}
	}

	res := &TimelineResult{Entries: []TimelineEntry{}, Sessions: []Session{}}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, skipped := ParseLog(doc.Text)
		res.Skipped += skipped
		for _, e := range entries {
			e.ItemID = doc.ItemID
			e.Exhibit = doc.Exhibit
			res.Entries = append(res.Entries, e)
		}
	}

	sort.SliceStable(res.Entries, func(i, j int) bool {
		return res.Entries[i].At.Before(res.Entries[j].At)
	})

	gap := in.Config.SessionGap
	if gap <= 0 {
		gap = 2 * time.Hour
	}
	res.Sessions = BuildSessions(res.Entries, gap)

	days := map[string]bool{}
	for _, s := range res.Sessions {
		res.TotalMinutes += s.Minutes
		days[s.Date] = true
	}
	res.Days = len(days)
	return res, nil
}

// ParseLog extracts timestamped entries from a surveillance log. Lines with
// only a time take their date from the latest date header. It returns the
// entries and the number of time-stamped lines that could not be dated.
func ParseLog(text string) ([]TimelineEntry, int) {
	var entries []TimelineEntry
	var current time.Time
	skipped := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		if m := dateTimeLineRe.FindStringSubmatch(raw); m != nil {
			at, err := parseDateTime(m[1], m[2])
			if err != nil {
				skipped++
				continue
			}
			current = truncateDay(at)
			entries = append(entries, TimelineEntry{At: at, Activity: strings.TrimSpace(m[3]), Line: line})
			continue
		}

		if m := dateHeaderRe.FindStringSubmatch(raw); m != nil {
			if d, err := dateparse.ParseIn(strings.TrimSuffix(m[2], "."), time.UTC); err == nil {
				current = truncateDay(d)
			}
			continue
		}

		if m := timeLineRe.FindStringSubmatch(raw); m != nil {
			if current.IsZero() {
				skipped++
				continue
			}
			at, err := parseDateTime(current.Format("2006-01-02"), m[1])
			if err != nil {
				skipped++
				continue
			}
			entries = append(entries, TimelineEntry{At: at, Activity: strings.TrimSpace(m[2]), Line: line})
		}
	}
	return entries, skipped
}

func parseDateTime(date, clock string) (time.Time, error) {
	d, err := dateparse.ParseIn(strings.TrimSpace(date), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}

	clock = strings.ToUpper(strings.NewReplacer(".", "", " ", "").Replace(clock))
	if m := militaryRe.FindStringSubmatch(clock); m != nil {
		clock = m[1] + ":" + m[2]
	}
	m := clockRe.FindStringSubmatch(clock)
	if m == nil {
		return time.Time{}, fmt.Errorf("parse time %q", clock)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	switch m[4] {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour < 12 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("time out of range %q", clock)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, second, 0, time.UTC), nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BuildSessions groups sorted entries by day, starting a new session when
// the gap between consecutive entries exceeds gap.
func BuildSessions(entries []TimelineEntry, gap time.Duration) []Session {
	sessions := []Session{}
	var cur *Session
	seen := map[string]bool{}

	flush := func() {
		if cur == nil {
			return
		}
		cur.Minutes = int(cur.End.Sub(cur.Start).Round(time.Minute) / time.Minute)
		sessions = append(sessions, *cur)
		cur = nil
		seen = map[string]bool{}
	}

	for _, e := range entries {
		date := e.At.Format("2006-01-02")
		if cur != nil && (cur.Date != date || e.At.Sub(cur.End) > gap) {
			flush()
		}
		if cur == nil {
			cur = &Session{Date: date, Start: e.At, End: e.At, Exhibits: []string{}}
		}
		cur.End = e.At
		cur.Entries++
		if e.Exhibit != "" && !seen[e.Exhibit] {
			seen[e.Exhibit] = true
			cur.Exhibits = append(cur.Exhibits, e.Exhibit)
		}
	}
	flush()
	return sessions
}
