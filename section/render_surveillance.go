package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/reportengine/toolkit"
)

// SurveillanceRenderer renders section 3, the surveillance log.
type SurveillanceRenderer struct{}

// ID returns the section id.
func (SurveillanceRenderer) ID() ID { return IDSurveillance }

// Render lays out every timeline entry grouped by day.
func (SurveillanceRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	p := NewPayload(IDSurveillance)
	p.Provenance.Toolkit = []string{toolkit.ToolTimeline}

	logs := in.EvidenceFor(IDSurveillance)
	p.Provenance.EvidenceIDs = itemIDs(logs)

	tl := in.Toolkit.Timeline()
	entries := []map[string]any{}
	var sb strings.Builder

	if !tl.HasEntries() {
		if reportType(in) == "investigative" {
			sb.WriteString("No surveillance was conducted for this assignment.\n")
		} else {
			sb.WriteString("No timestamped surveillance entries were found in the submitted logs.\n")
			p.Flag("timeline-empty", SeverityWarning, "no surveillance entries extracted")
		}
	} else {
		day := ""
		var rows [][]string
		flush := func() {
			if day == "" {
				return
			}
			fmt.Fprintf(&sb, "### %s\n\n", day)
			sb.WriteString(mdTable([]string{"Time", "Observation", "Source"}, rows))
			sb.WriteString("\n")
			rows = nil
		}
		for _, e := range tl.Entries {
			d := e.At.Format("Monday, January 2, 2006")
			if d != day {
				flush()
				day = d
			}
			rows = append(rows, []string{e.At.Format("15:04"), e.Activity, e.Exhibit})
			entries = append(entries, map[string]any{
				"at":       e.At.Format("2006-01-02T15:04:05"),
				"activity": e.Activity,
				"exhibit":  e.Exhibit,
			})
		}
		flush()
		if tl.Skipped > 0 {
			p.Flag("timeline-skipped", SeverityWarning, "%d timestamped lines could not be dated", tl.Skipped)
		}
	}

	days := 0
	if tl != nil {
		days = tl.Days
	}
	p.Data = map[string]any{
		"entries":      entries,
		"entry_count":  len(entries),
		"days":         days,
		"log_exhibits": exhibits(logs),
	}

	narrative := sb.String()
	if len(entries) > 0 {
		narrative = fmt.Sprintf("Surveillance was conducted on %d day(s); %d observations were logged.\n\n", days, len(entries)) + narrative
	}
	return finish(p, in, narrative)
}

// SessionsRenderer renders section 4, the review of surveillance sessions.
type SessionsRenderer struct{}

// ID returns the section id.
func (SessionsRenderer) ID() ID { return IDSessions }

// Render summarises each surveillance session.
func (SessionsRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	p := NewPayload(IDSessions)
	p.Provenance.Toolkit = []string{toolkit.ToolTimeline}

	tl := in.Toolkit.Timeline()
	sessions := []map[string]any{}
	var rows [][]string
	total := 0
	if tl != nil {
		for i, s := range tl.Sessions {
			sessions = append(sessions, map[string]any{
				"number":   i + 1,
				"date":     s.Date,
				"start":    s.Start.Format("15:04"),
				"end":      s.End.Format("15:04"),
				"minutes":  s.Minutes,
				"entries":  s.Entries,
				"exhibits": s.Exhibits,
			})
			rows = append(rows, []string{
				fmt.Sprint(i + 1), s.Date, s.Start.Format("15:04"), s.End.Format("15:04"),
				hours(s.Minutes), fmt.Sprint(s.Entries),
			})
			total += s.Minutes
		}
	}

	p.Data = map[string]any{
		"sessions":      sessions,
		"session_count": len(sessions),
		"total_minutes": total,
	}
	if up, ok := in.Upstream[IDSurveillance]; ok && up != nil {
		p.Data["log_entries"] = up.Data["entry_count"]
	}

	var sb strings.Builder
	if len(sessions) == 0 {
		sb.WriteString("No surveillance sessions were recorded.\n")
	} else {
		fmt.Fprintf(&sb, "%d surveillance session(s) totalling %s were reviewed.\n\n", len(sessions), hours(total))
		sb.WriteString(mdTable([]string{"#", "Date", "Start", "End", "Duration", "Entries"}, rows))
		longest := tl.Sessions[0]
		for _, s := range tl.Sessions[1:] {
			if s.Minutes > longest.Minutes {
				longest = s
			}
		}
		fmt.Fprintf(&sb, "\nThe longest session ran %s on %s.\n", hours(longest.Minutes), longest.Date)
	}

	return finish(p, in, sb.String())
}
