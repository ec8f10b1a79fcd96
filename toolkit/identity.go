package toolkit

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Identity verdicts.
const (
	VerdictConfirmed   = "confirmed"
	VerdictPossible    = "possible"
	VerdictUnconfirmed = "unconfirmed"
)

// IdentityMatch is the subject score for one document.
type IdentityMatch struct {
	ItemID  string  `json:"item_id"`
	Exhibit string  `json:"exhibit"`
	Score   float64 `json:"score"`
	Variant string  `json:"variant"`
	DOB     bool    `json:"dob_match"`
}

// IdentityResult scores how well the evidence identifies the subject.
type IdentityResult struct {
	Subject     string          `json:"subject"`
	Variants    []string        `json:"variants"`
	Score       float64         `json:"score"`
	Verdict     string          `json:"verdict"`
	BestItemID  string          `json:"best_item_id,omitempty"`
	BestExhibit string          `json:"best_exhibit,omitempty"`
	Matches     []IdentityMatch `json:"matches"`
}

// IdentityTool matches the subject's name and aliases against document text.
type IdentityTool struct{}

// Name returns the tool name.
func (IdentityTool) Name() string { return ToolIdentity }

// Run scores every document and keeps the best match.
func (IdentityTool) Run(ctx context.Context, in *Input) (any, error) {
	subject := in.Metadata.Subject
	res := &IdentityResult{
		Subject: subject.Name,
		Verdict: VerdictUnconfirmed,
		Matches: []IdentityMatch{},
	}

	for _, v := range append([]string{subject.Name}, subject.Aliases...) {
		if len(tokenize(v)) > 0 {
			res.Variants = append(res.Variants, v)
		}
	}
	if len(res.Variants) == 0 {
		return res, nil
	}

	var dob string
	if subject.DOB != "" {
		if t, err := dateparse.ParseIn(subject.DOB, time.UTC); err == nil {
			dob = t.Format("2006-01-02")
		}
	}

	for _, doc := range in.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.Text == "" {
			continue
		}

		docTokens := tokenize(doc.Text)
		docSet := make(map[string]bool, len(docTokens))
		for _, t := range docTokens {
			docSet[t] = true
		}
		joined := " " + strings.Join(docTokens, " ") + " "

		best := IdentityMatch{ItemID: doc.ItemID, Exhibit: doc.Exhibit}
		for _, variant := range res.Variants {
			score := NameScore(tokenize(variant), docSet, joined)
			if score > best.Score {
				best.Score = score
				best.Variant = variant
			}
		}
		if best.Score == 0 {
			continue
		}
		if dob != "" && mentionsDate(doc.Text, dob) {
			best.DOB = true
			best.Score = min(1, best.Score+0.1)
		}
		res.Matches = append(res.Matches, best)
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Score > res.Matches[j].Score
	})

	if len(res.Matches) > 0 {
		top := res.Matches[0]
		res.Score = top.Score
		res.BestItemID = top.ItemID
		res.BestExhibit = top.Exhibit
	}
	res.Verdict = Verdict(res.Score, in.Config.IdentityConfirmed, in.Config.IdentityPossible)
	return res, nil
}

// Verdict maps a score onto the configured thresholds.
func Verdict(score, confirmed, possible float64) string {
	if confirmed <= 0 {
		confirmed = 0.85
	}
	if possible <= 0 {
		possible = 0.5
	}
	switch {
	case score >= confirmed:
		return VerdictConfirmed
	case score >= possible:
		return VerdictPossible
	default:
		return VerdictUnconfirmed
	}
}

// NameScore is 1 when the name tokens appear contiguously in the document,
// otherwise the fraction of name tokens present, scaled down.
func NameScore(name []string, docSet map[string]bool, joinedDoc string) float64 {
	if len(name) == 0 {
		return 0
	}
	if strings.Contains(joinedDoc, " "+strings.Join(name, " ")+" ") {
		return 1
	}
	found := 0
	for _, t := range name {
		if docSet[t] {
			found++
		}
	}
	return 0.8 * float64(found) / float64(len(name))
}

// tokenize lowercases s and splits it on anything but letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func mentionsDate(text, date string) bool {
	for _, d := range FindDates(text) {
		if d.Format("2006-01-02") == date {
			return true
		}
	}
	return false
}
