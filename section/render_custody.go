package section

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/reportengine/locker"
)

// CustodyRenderer renders section 9.
type CustodyRenderer struct{}

// ID returns the section id.
func (CustodyRenderer) ID() ID { return IDCustody }

// Render lists the custody history of every item and certifies the report.
func (CustodyRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	meta := in.Metadata()
	p := NewPayload(IDCustody)

	verified := true
	if err := locker.VerifyEntries(in.Custody); err != nil {
		verified = false
		p.Flag("custody-tampered", SeverityError, "%v", err)
	}

	byItem := map[string][]locker.Entry{}
	for _, e := range in.Custody {
		if e.ItemID != "" {
			byItem[e.ItemID] = append(byItem[e.ItemID], e)
		}
	}

	evidence := append([]*locker.Item(nil), in.Evidence...)
	sort.Slice(evidence, func(i, j int) bool { return evidence[i].Exhibit < evidence[j].Exhibit })
	p.Provenance.EvidenceIDs = itemIDs(evidence)

	items := []map[string]any{}
	var rows [][]string
	for _, item := range evidence {
		entries := byItem[item.ID]
		var actions []string
		for _, e := range entries {
			actions = append(actions, string(e.Action))
		}
		if len(entries) == 0 {
			p.Flag("custody-gap", SeverityError, "%s has no custody entries", item.Exhibit)
		}
		items = append(items, map[string]any{
			"item_id":  item.ID,
			"exhibit":  item.Exhibit,
			"filename": item.Filename,
			"sha256":   item.SHA256,
			"received": item.AddedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"by":       item.AddedBy,
			"actions":  nonNil(actions),
		})
		rows = append(rows, []string{
			item.Exhibit, item.Filename, item.AddedAt.UTC().Format("2006-01-02 15:04"),
			orDefault(item.AddedBy, "-"), strings.Join(actions, ", "),
		})
	}

	head := ""
	if n := len(in.Custody); n > 0 {
		head = in.Custody[n-1].Hash
	}
	investigator := orDefault(meta.Investigator, "The undersigned investigator")
	certification := fmt.Sprintf("%s certifies that the evidence listed above was received, stored and handled as recorded, "+
		"and that this report accurately reflects the investigation conducted.", investigator)

	p.Data = map[string]any{
		"items":            items,
		"custody_verified": verified,
		"custody_entries":  len(in.Custody),
		"custody_head":     head,
		"certification":    certification,
	}

	var sb strings.Builder
	if len(items) == 0 {
		sb.WriteString("No evidence items were entered into the locker.\n\n")
	} else {
		fmt.Fprintf(&sb, "%d evidence item(s) are held in the locker under a hash-chained custody log of %d entries.\n\n",
			len(items), len(in.Custody))
		sb.WriteString(mdTable([]string{"Exhibit", "File", "Received", "By", "Custody"}, rows))
		sb.WriteString("\n")
	}
	if verified {
		fmt.Fprintf(&sb, "Custody log integrity verified (head %s).\n\n", shortHash(head))
	} else {
		sb.WriteString("**Custody log integrity could not be verified.**\n\n")
	}
	sb.WriteString("### Certification\n\n")
	sb.WriteString(certification)
	sb.WriteString("\n")

	return finish(p, in, sb.String())
}

func shortHash(h string) string {
	if h == "" {
		return "empty"
	}
	return h[:min(12, len(h))]
}
