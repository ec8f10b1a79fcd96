package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/locker"
)

// investigationTerms in a contract mark tasks beyond surveillance.
var investigationTerms = []string{
	"background check", "background investigation", "records search", "records check",
	"interview", "canvass", "asset search", "social media", "investigate", "investigation",
}

// CaseInfoRenderer renders section 1 and decides the report type.
type CaseInfoRenderer struct{}

// ID returns the section id.
func (CaseInfoRenderer) ID() ID { return IDCaseInfo }

// Render builds the case information section.
func (CaseInfoRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	meta := in.Metadata()
	p := NewPayload(IDCaseInfo)

	rt, reason := DeriveReportType(in)
	p.ReportType = rt

	contracts := in.EvidenceFor(IDCaseInfo)
	p.Provenance.EvidenceIDs = itemIDs(contracts)
	p.Provenance.Toolkit = []string{"timeline"}

	p.Data = map[string]any{
		"case_id":            meta.CaseID,
		"title":              meta.Title,
		"client":             meta.Client,
		"client_contact":     meta.ClientContact,
		"agency":             orDefault(meta.Agency, in.Report.Agency),
		"investigator":       meta.Investigator,
		"license":            orDefault(meta.License, in.Report.License),
		"assignment_date":    meta.AssignmentDate,
		"objectives":         nonNil(meta.Objectives),
		"report_type":        string(rt),
		"report_type_reason": reason,
		"contract_exhibits":  exhibits(contracts),
		"subject": map[string]any{
			"name":    meta.Subject.Name,
			"aliases": nonNil(meta.Subject.Aliases),
			"address": meta.Subject.Address,
			"dob":     meta.Subject.DOB,
		},
	}

	if meta.Client == "" {
		p.Flag("client-missing", SeverityError, "case has no client")
	}
	if meta.Subject.Name == "" {
		p.Flag("subject-missing", SeverityError, "case has no subject name")
	}
	if len(meta.Objectives) == 0 {
		p.Flag("objectives-missing", SeverityWarning, "no investigative objectives recorded")
	}
	if len(contracts) == 0 {
		p.Flag("contract-missing", SeverityWarning, "no contract or assignment document classified to section 1")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s retained %s", orDefault(meta.Client, "The client"), orDefault(p.Data["agency"].(string), "this agency"))
	if meta.AssignmentDate != "" {
		fmt.Fprintf(&sb, " on %s", meta.AssignmentDate)
	}
	fmt.Fprintf(&sb, " to conduct a%s %s investigation", article(string(rt)), rt)
	if meta.Subject.Name != "" {
		fmt.Fprintf(&sb, " concerning %s", meta.Subject.Name)
	}
	fmt.Fprintf(&sb, " (case %s).\n\n", meta.CaseID)

	if len(meta.Objectives) > 0 {
		sb.WriteString("The objectives of the assignment were:\n\n")
		for _, o := range meta.Objectives {
			fmt.Fprintf(&sb, "- %s\n", o)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Report type: **%s** (%s).\n", rt, reason)
	if meta.Investigator != "" {
		fmt.Fprintf(&sb, "\nAssigned investigator: %s.\n", meta.Investigator)
	}

	return finish(p, in, sb.String())
}

// DeriveReportType applies the report type rules: an explicit hint wins;
// otherwise a surveillance timeline makes the report surveillance, or hybrid
// when the contract also asks for investigative work and other documents
// exist; without a timeline it is investigative.
func DeriveReportType(in *Input) (casefile.ReportType, string) {
	meta := in.Metadata()
	if meta.ReportTypeHint.IsValid() {
		return meta.ReportTypeHint, "set on the case"
	}

	hasTimeline := in.Toolkit.Timeline().HasEntries()

	hasDocuments := false
	for _, item := range in.Evidence {
		if item.Kind == locker.KindDocument && item.Section != string(IDSurveillance) {
			hasDocuments = true
			break
		}
	}

	contractAsks := false
	for _, item := range in.EvidenceFor(IDCaseInfo) {
		text := strings.ToLower(in.Texts[item.ID])
		for _, term := range investigationTerms {
			if strings.Contains(text, term) {
				contractAsks = true
				break
			}
		}
	}

	switch {
	case hasTimeline && hasDocuments && contractAsks:
		return casefile.ReportTypeHybrid, "surveillance log and contracted investigative tasks"
	case hasTimeline:
		return casefile.ReportTypeSurveillance, "surveillance log present"
	default:
		return casefile.ReportTypeInvestigative, "documents only"
	}
}

func article(word string) string {
	if word == "" {
		return ""
	}
	if strings.ContainsRune("aeiou", rune(word[0])) {
		return "n"
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CoverRenderer renders the cover page.
type CoverRenderer struct{}

// ID returns the section id.
func (CoverRenderer) ID() ID { return IDCover }

// Render builds the cover page.
func (CoverRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	meta := in.Metadata()
	p := NewPayload(IDCover)

	reportDate := meta.ReportDate
	if reportDate == "" {
		reportDate = in.Now.Format("2006-01-02")
		if in.Now.IsZero() {
			reportDate = ""
		}
	}
	agency := orDefault(meta.Agency, in.Report.Agency)
	license := orDefault(meta.License, in.Report.License)
	rt := reportType(in)

	p.Data = map[string]any{
		"title":        meta.Title,
		"case_id":      meta.CaseID,
		"client":       meta.Client,
		"subject":      meta.Subject.Name,
		"agency":       agency,
		"license":      license,
		"investigator": meta.Investigator,
		"report_date":  reportDate,
		"report_type":  rt,
	}
	if reportDate == "" {
		p.Flag("report-date-missing", SeverityWarning, "no report date set")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n\n", orDefault(meta.Title, "Investigative Report"))
	if rt != "" {
		fmt.Fprintf(&sb, "%s Investigation Report\n\n", strings.ToUpper(rt[:1])+rt[1:])
	}
	rows := [][]string{
		{"Case Number", meta.CaseID},
		{"Client", orDefault(meta.Client, "-")},
		{"Subject", orDefault(meta.Subject.Name, "-")},
		{"Investigator", orDefault(meta.Investigator, "-")},
		{"Agency", orDefault(agency, "-")},
		{"License", orDefault(license, "-")},
		{"Report Date", orDefault(reportDate, "-")},
	}
	sb.WriteString(mdTable([]string{"Field", "Value"}, rows))
	sb.WriteString("\nCONFIDENTIAL: prepared for the exclusive use of the client named above.\n")

	return finish(p, in, sb.String())
}

// DisclosureRenderer renders the disclosure page.
type DisclosureRenderer struct{}

// ID returns the section id.
func (DisclosureRenderer) ID() ID { return IDDisclosure }

// Render builds the disclosure page from configured statements.
func (DisclosureRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	meta := in.Metadata()
	p := NewPayload(IDDisclosure)

	disclosures := nonNil(in.Report.Disclosures)
	agency := orDefault(meta.Agency, in.Report.Agency)
	license := orDefault(meta.License, in.Report.License)

	p.Data = map[string]any{
		"disclosures": disclosures,
		"agency":      agency,
		"license":     license,
	}
	if len(disclosures) == 0 {
		p.Flag("disclosures-missing", SeverityError, "no disclosure statements configured")
	}
	if license == "" {
		p.Flag("license-missing", SeverityWarning, "agency license number not set")
	}

	var sb strings.Builder
	for _, d := range disclosures {
		sb.WriteString(d)
		sb.WriteString("\n\n")
	}
	if agency != "" {
		fmt.Fprintf(&sb, "%s", agency)
		if license != "" {
			fmt.Fprintf(&sb, ", License No. %s", license)
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		sb.WriteString("No disclosures recorded.\n")
	}

	return finish(p, in, sb.String())
}

// TOCRenderer renders the table of contents.
type TOCRenderer struct{}

// ID returns the section id.
func (TOCRenderer) ID() ID { return IDTOC }

// Render lists every section of the report in document order.
func (TOCRenderer) Render(_ context.Context, in *Input) (*Payload, error) {
	p := NewPayload(IDTOC)

	var entries []map[string]any
	var sb strings.Builder
	n := 0
	for _, id := range ReportOrder() {
		if id == IDCover || id == IDTOC {
			continue
		}
		n++
		version := 0
		if up, ok := in.Upstream[id]; ok && up != nil {
			version = up.Version
		}
		entries = append(entries, map[string]any{
			"section": string(id),
			"title":   id.Title(),
			"version": version,
		})
		if label := id.Label(); label != id.Title() {
			fmt.Fprintf(&sb, "%d. %s: %s\n", n, label, id.Title())
		} else {
			fmt.Fprintf(&sb, "%d. %s\n", n, label)
		}
	}
	p.Data = map[string]any{"entries": entries}

	return finish(p, in, sb.String())
}
