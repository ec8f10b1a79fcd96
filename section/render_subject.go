package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/reportengine/toolkit"
)

// SubjectRenderer renders section 2.
type SubjectRenderer struct{}

// ID returns the section id.
func (SubjectRenderer) ID() ID { return IDSubject }

// Render summarises who the subject is and how well the evidence identifies them.
func (SubjectRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	meta := in.Metadata()
	p := NewPayload(IDSubject)
	p.Provenance.Toolkit = []string{toolkit.ToolIdentity}

	sources := in.EvidenceFor(IDSubject)
	p.Provenance.EvidenceIDs = itemIDs(sources)

	identity := map[string]any{
		"verdict":      toolkit.VerdictUnconfirmed,
		"score":        0.0,
		"best_exhibit": "",
		"matches":      []map[string]any{},
	}
	id := in.Toolkit.Identity()
	if id != nil {
		matches := []map[string]any{}
		for _, m := range id.Matches {
			matches = append(matches, map[string]any{
				"exhibit": m.Exhibit,
				"score":   m.Score,
				"variant": m.Variant,
				"dob":     m.DOB,
			})
		}
		identity = map[string]any{
			"verdict":      id.Verdict,
			"score":        id.Score,
			"best_exhibit": id.BestExhibit,
			"matches":      matches,
		}
	} else {
		p.Flag("identity-missing", SeverityWarning, "identity tool produced no result")
	}

	p.Data = map[string]any{
		"subject": map[string]any{
			"name":     meta.Subject.Name,
			"aliases":  nonNil(meta.Subject.Aliases),
			"address":  meta.Subject.Address,
			"dob":      meta.Subject.DOB,
			"vehicles": nonNil(meta.Subject.Vehicles),
		},
		"identity":        identity,
		"source_exhibits": exhibits(sources),
	}

	if id != nil && id.Verdict == toolkit.VerdictUnconfirmed {
		p.Flag("identity-unconfirmed", SeverityWarning, "subject identity not confirmed by any document (best score %.2f)", id.Score)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Prior to surveillance, available records were reviewed to identify %s.", orDefault(meta.Subject.Name, "the subject"))
	if len(meta.Subject.Aliases) > 0 {
		fmt.Fprintf(&sb, " Known aliases: %s.", strings.Join(meta.Subject.Aliases, ", "))
	}
	sb.WriteString("\n\n")

	rows := [][]string{
		{"Name", orDefault(meta.Subject.Name, "-")},
		{"Date of Birth", orDefault(meta.Subject.DOB, "-")},
		{"Address", orDefault(meta.Subject.Address, "-")},
		{"Vehicles", orDefault(strings.Join(meta.Subject.Vehicles, "; "), "-")},
	}
	sb.WriteString(mdTable([]string{"Identifier", "Value"}, rows))
	sb.WriteString("\n")

	if id != nil && id.BestExhibit != "" {
		fmt.Fprintf(&sb, "Identity verdict: **%s** (score %.2f, best source %s).\n", id.Verdict, id.Score, id.BestExhibit)
	} else {
		sb.WriteString("Identity verdict: **unconfirmed**; no reviewed document named the subject.\n")
	}
	if len(sources) > 0 {
		fmt.Fprintf(&sb, "\nSources reviewed: %s.\n", joinList(exhibits(sources)))
	}

	return finish(p, in, sb.String())
}
