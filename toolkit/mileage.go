package toolkit

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	milesLineRe     = regexp.MustCompile(`(?i)\b(?:mileage|miles(?: driven)?|total miles)\s*[:=]\s*([\d,]+(?:\.\d+)?)`)
	odometerStartRe = regexp.MustCompile(`(?i)\bodometer\s*(?:start|begin|out)\s*[:=]?\s*([\d,]+(?:\.\d+)?)`)
	odometerEndRe   = regexp.MustCompile(`(?i)\bodometer\s*(?:end|finish|in)\s*[:=]?\s*([\d,]+(?:\.\d+)?)`)
)

// MileageLeg is one source of driven miles.
type MileageLeg struct {
	Source      string  `json:"source"`
	Description string  `json:"description"`
	Miles       float64 `json:"miles"`
}

// MileageResult totals the miles driven and their reimbursement.
type MileageResult struct {
	Legs               []MileageLeg `json:"legs"`
	TotalMiles         float64      `json:"total_miles"`
	RateCents          int64        `json:"rate_cents"`
	ReimbursementCents int64        `json:"reimbursement_cents"`
	Warnings           []string     `json:"warnings,omitempty"`
}

// MileageTool reads mileage lines and odometer readings from documents and
// adds the trips recorded on the case.
type MileageTool struct{}

// Name returns the tool name.
func (MileageTool) Name() string { return ToolMileage }

// Run totals mileage.
func (MileageTool) Run(ctx context.Context, in *Input) (any, error) {
	res := &MileageResult{Legs: []MileageLeg{}}

	for i, trip := range in.Metadata.Trips {
		desc := strings.TrimSpace(fmt.Sprintf("%s %s", trip.Date, trip.Purpose))
		if trip.From != "" || trip.To != "" {
			desc = strings.TrimSpace(fmt.Sprintf("%s (%s to %s)", desc, trip.From, trip.To))
		}
		res.Legs = append(res.Legs, MileageLeg{
			Source:      fmt.Sprintf("trip %d", i+1),
			Description: desc,
			Miles:       trip.Miles,
		})
	}

	for _, doc := range in.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.Text == "" {
			continue
		}
		legs, warnings := scanMileage(doc)
		res.Legs = append(res.Legs, legs...)
		res.Warnings = append(res.Warnings, warnings...)
	}

	for _, leg := range res.Legs {
		res.TotalMiles += leg.Miles
	}
	res.TotalMiles = math.Round(res.TotalMiles*10) / 10

	res.RateCents = in.Config.MileageRateCents
	if in.Metadata.MileageRateCents > 0 {
		res.RateCents = in.Metadata.MileageRateCents
	}
	res.ReimbursementCents = mulRound(res.TotalMiles, res.RateCents)
	return res, nil
}

func scanMileage(doc Document) ([]MileageLeg, []string) {
	var legs []MileageLeg
	var warnings []string
	var start *float64

	for n, line := range strings.Split(doc.Text, "\n") {
		where := fmt.Sprintf("%s line %d", doc.Exhibit, n+1)

		if m := odometerStartRe.FindStringSubmatch(line); m != nil {
			v, err := parseNumber(m[1])
			if err == nil {
				start = &v
			}
		}
		if m := odometerEndRe.FindStringSubmatch(line); m != nil {
			end, err := parseNumber(m[1])
			switch {
			case err != nil:
			case start == nil:
				warnings = append(warnings, where+": odometer end without start")
			case end < *start:
				warnings = append(warnings, fmt.Sprintf("%s: odometer end %.1f below start %.1f", where, end, *start))
				start = nil
			default:
				legs = append(legs, MileageLeg{
					Source:      doc.Exhibit,
					Description: fmt.Sprintf("odometer %.1f to %.1f", *start, end),
					Miles:       end - *start,
				})
				start = nil
			}
			continue
		}

		if m := milesLineRe.FindStringSubmatch(line); m != nil {
			if v, err := parseNumber(m[1]); err == nil {
				legs = append(legs, MileageLeg{
					Source:      doc.Exhibit,
					Description: strings.TrimSpace(line),
					Miles:       v,
				})
			}
		}
	}
	if start != nil {
		warnings = append(warnings, doc.Exhibit+": odometer start without end")
	}
	return legs, warnings
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
