package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/reportengine/toolkit"
)

// ConclusionRenderer renders section 7.
type ConclusionRenderer struct{}

// ID returns the section id.
func (ConclusionRenderer) ID() ID { return IDConclusion }

// Render states the findings drawn from the approved upstream sections.
func (ConclusionRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	meta := in.Metadata()
	p := NewPayload(IDConclusion)
	p.Provenance.Toolkit = []string{toolkit.ToolIdentity, toolkit.ToolTimeline}

	rt := reportType(in)
	subject := orDefault(meta.Subject.Name, "the subject")
	var findings []string

	if id := in.Toolkit.Identity(); id != nil {
		switch id.Verdict {
		case toolkit.VerdictConfirmed:
			findings = append(findings, fmt.Sprintf("The identity of %s was confirmed from %s.", subject, id.BestExhibit))
		case toolkit.VerdictPossible:
			findings = append(findings, fmt.Sprintf("The identity of %s was partially corroborated by %s.", subject, id.BestExhibit))
		default:
			findings = append(findings, fmt.Sprintf("The identity of %s could not be confirmed from the submitted material.", subject))
		}
	}

	if up, ok := in.Upstream[IDSessions]; ok && up != nil {
		sessions := intOf(up.Data["session_count"])
		minutes := intOf(up.Data["total_minutes"])
		if sessions > 0 {
			findings = append(findings, fmt.Sprintf("%d surveillance session(s) totalling %s were conducted.", sessions, hours(minutes)))
		} else if rt != "investigative" {
			findings = append(findings, "No surveillance activity was recorded.")
		}
	}
	if tl := in.Toolkit.Timeline(); tl.HasEntries() {
		first, last := tl.Entries[0], tl.Entries[len(tl.Entries)-1]
		findings = append(findings, fmt.Sprintf("The first observation was \"%s\" at %s and the last was \"%s\" at %s.",
			first.Activity, first.At.Format("2006-01-02 15:04"), last.Activity, last.At.Format("2006-01-02 15:04")))
	}

	if up, ok := in.Upstream[IDDocuments]; ok && up != nil {
		if n := intOf(up.Data["document_count"]); n > 0 {
			findings = append(findings, fmt.Sprintf("%d supporting document(s) were reviewed.", n))
		}
	}

	if len(findings) == 0 {
		p.Flag("findings-empty", SeverityWarning, "no findings could be drawn")
		findings = []string{}
	}

	objectives := nonNil(meta.Objectives)
	p.Data = map[string]any{
		"findings":    findings,
		"objectives":  objectives,
		"report_type": rt,
		"subject":     meta.Subject.Name,
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "This %s investigation concerning %s concluded with the following findings:\n\n", orDefault(rt, "case"), subject)
	for _, f := range findings {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	if len(objectives) > 0 {
		sb.WriteString("\nThe findings above address the stated objectives: ")
		sb.WriteString(joinList(objectives))
		sb.WriteString(".\n")
	}

	return finish(p, in, sb.String())
}

// intOf reads a JSON number from normalized payload data.
func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
