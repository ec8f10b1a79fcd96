package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/reportengine/toolkit"
)

// BillingRenderer renders section 6.
type BillingRenderer struct{}

// ID returns the section id.
func (BillingRenderer) ID() ID { return IDBilling }

// Render itemises labor, mileage and expenses from the billing tool.
func (BillingRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	p := NewPayload(IDBilling)
	p.Provenance.Toolkit = []string{toolkit.ToolBilling, toolkit.ToolMileage}
	p.Provenance.EvidenceIDs = itemIDs(in.EvidenceFor(IDBilling))

	b := in.Toolkit.Billing()
	if b == nil {
		p.Flag("billing-missing", SeverityError, "billing tool produced no result")
		p.Data = map[string]any{"lines": []map[string]any{}, "total_cents": 0}
		return finish(p, in, "Billing could not be computed for this case.\n")
	}

	lines := []map[string]any{}
	var rows [][]string
	for _, l := range b.Lines {
		lines = append(lines, map[string]any{
			"category":     l.Category,
			"description":  l.Description,
			"quantity":     l.Quantity,
			"amount_cents": l.AmountCents,
		})
		rows = append(rows, []string{l.Category, l.Description, l.Quantity, toolkit.FormatCents(l.AmountCents)})
	}
	rows = append(rows, []string{"**Total**", "", "", "**" + toolkit.FormatCents(b.TotalCents) + "**"})

	p.Data = map[string]any{
		"lines":             lines,
		"hourly_rate_cents": b.HourlyRateCents,
		"increment_minutes": b.IncrementMinutes,
		"actual_minutes":    b.ActualMinutes,
		"billable_minutes":  b.BillableMinutes,
		"labor_cents":       b.LaborCents,
		"mileage_cents":     b.MileageCents,
		"expenses_cents":    b.ExpensesCents,
		"total_cents":       b.TotalCents,
		"total":             toolkit.FormatCents(b.TotalCents),
	}
	if m := in.Toolkit.Mileage(); m != nil {
		p.Data["total_miles"] = m.TotalMiles
		for _, w := range m.Warnings {
			p.Flag("mileage-warning", SeverityWarning, "%s", w)
		}
	}
	if b.HourlyRateCents == 0 && b.ActualMinutes > 0 {
		p.Flag("rate-missing", SeverityWarning, "surveillance time recorded but hourly rate is zero")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Surveillance time of %s was billed as %s in %d-minute increments at %s per hour.\n\n",
		hours(b.ActualMinutes), hours(b.BillableMinutes), b.IncrementMinutes, toolkit.FormatCents(b.HourlyRateCents))
	sb.WriteString(mdTable([]string{"Category", "Description", "Quantity", "Amount"}, rows))
	fmt.Fprintf(&sb, "\nTotal amount due: **%s**.\n", toolkit.FormatCents(b.TotalCents))

	return finish(p, in, sb.String())
}
