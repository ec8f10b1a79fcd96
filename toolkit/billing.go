package toolkit

import (
	"context"
	"fmt"
)

// BillingLine is one line of the billing summary.
type BillingLine struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
}

// BillingResult is the invoice-ready summary. All money is in cents.
type BillingResult struct {
	HourlyRateCents  int64         `json:"hourly_rate_cents"`
	IncrementMinutes int           `json:"increment_minutes"`
	ActualMinutes    int           `json:"actual_minutes"`
	BillableMinutes  int           `json:"billable_minutes"`
	LaborCents       int64         `json:"labor_cents"`
	MileageCents     int64         `json:"mileage_cents"`
	ExpensesCents    int64         `json:"expenses_cents"`
	TotalCents       int64         `json:"total_cents"`
	Lines            []BillingLine `json:"lines"`
}

// BillingTool prices surveillance time, mileage and expenses.
type BillingTool struct{}

// Name returns the tool name.
func (BillingTool) Name() string { return ToolBilling }

// Run computes the billing summary from the timeline and mileage results.
func (BillingTool) Run(ctx context.Context, in *Input) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &BillingResult{
		HourlyRateCents:  in.Config.HourlyRateCents,
		IncrementMinutes: in.Config.BillingIncrementMinutes,
		Lines:            []BillingLine{},
	}
	if in.Metadata.HourlyRateCents > 0 {
		res.HourlyRateCents = in.Metadata.HourlyRateCents
	}
	if res.IncrementMinutes < 1 {
		res.IncrementMinutes = 1
	}

	if tl := in.Results.Timeline(); tl != nil {
		for _, s := range tl.Sessions {
			billable := RoundUpMinutes(s.Minutes, res.IncrementMinutes)
			amount := laborCents(billable, res.HourlyRateCents)
			res.ActualMinutes += s.Minutes
			res.BillableMinutes += billable
			res.LaborCents += amount
			res.Lines = append(res.Lines, BillingLine{
				Category:    "labor",
				Description: fmt.Sprintf("Surveillance %s %s-%s", s.Date, s.Start.Format("15:04"), s.End.Format("15:04")),
				Quantity:    fmt.Sprintf("%.2f h", float64(billable)/60),
				AmountCents: amount,
			})
		}
	}

	if m := in.Results.Mileage(); m != nil && m.TotalMiles > 0 {
		res.MileageCents = m.ReimbursementCents
		res.Lines = append(res.Lines, BillingLine{
			Category:    "mileage",
			Description: fmt.Sprintf("Mileage at %s/mi", FormatCents(m.RateCents)),
			Quantity:    fmt.Sprintf("%.1f mi", m.TotalMiles),
			AmountCents: m.ReimbursementCents,
		})
	}

	for _, e := range in.Metadata.Expenses {
		res.ExpensesCents += e.AmountCents
		desc := e.Description
		if e.Date != "" {
			desc = e.Date + " " + desc
		}
		res.Lines = append(res.Lines, BillingLine{
			Category:    "expense",
			Description: desc,
			Quantity:    "1",
			AmountCents: e.AmountCents,
		})
	}

	res.TotalCents = res.LaborCents + res.MileageCents + res.ExpensesCents
	return res, nil
}

// RoundUpMinutes rounds minutes up to the next multiple of increment.
// A session of zero minutes still bills one increment.
func RoundUpMinutes(minutes, increment int) int {
	if increment < 1 {
		increment = 1
	}
	if minutes <= 0 {
		return increment
	}
	return ((minutes + increment - 1) / increment) * increment
}

// laborCents prices minutes at an hourly rate, rounding half up.
func laborCents(minutes int, hourlyRateCents int64) int64 {
	return (int64(minutes)*hourlyRateCents + 30) / 60
}
