// Package report assembles approved section payloads into the final
// case report.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/gateway"
	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/section"
	"github.com/c360studio/reportengine/source"
)

// Output file names inside the case report directory.
const (
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
	ManifestFile = "report-manifest.json"
)

var (
	// ErrIncomplete is returned when a section is unapproved or stale.
	ErrIncomplete = errors.New("report is not ready for assembly")
	// ErrMissingPayload is returned when an approved section has no matching payload.
	ErrMissingPayload = errors.New("approved section has no payload")
)

// Source supplies gateway state and payloads. *gateway.Gateway satisfies it.
type Source interface {
	State() gateway.Snapshot
	Payloads() map[section.ID]*section.Payload
}

// Options configures an Assembler.
type Options struct {
	Workspace *casefile.Workspace
	Bundle    *casefile.Bundle
	Locker    *locker.Locker
	Actor     string
	Logger    *slog.Logger
	Now       func() time.Time
}

// Assembler writes the final report for one case.
type Assembler struct {
	ws          *casefile.Workspace
	bundle      *casefile.Bundle
	locker      *locker.Locker
	actor       string
	logger      *slog.Logger
	now         func() time.Time
	transformer *Transformer
}

// NewAssembler creates an assembler.
func NewAssembler(opts Options) *Assembler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Actor == "" {
		opts.Actor = "assembler"
	}
	return &Assembler{
		ws:          opts.Workspace,
		bundle:      opts.Bundle,
		locker:      opts.Locker,
		actor:       opts.Actor,
		logger:      opts.Logger,
		now:         opts.Now,
		transformer: NewTransformer(),
	}
}

// SectionEntry records one section in the report manifest.
type SectionEntry struct {
	ID         section.ID `json:"id"`
	Title      string     `json:"title"`
	Version    int        `json:"version"`
	Hash       string     `json:"hash"`
	ApprovedBy string     `json:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// Manifest describes an assembled report.
type Manifest struct {
	CaseID         string              `json:"case_id"`
	Title          string              `json:"title"`
	ReportType     casefile.ReportType `json:"report_type"`
	GeneratedAt    time.Time           `json:"generated_at"`
	GeneratedBy    string              `json:"generated_by"`
	Sections       []SectionEntry      `json:"sections"`
	EvidenceCount  int                 `json:"evidence_count"`
	Exhibits       []string            `json:"exhibits"`
	CustodyHead    string              `json:"custody_head"`
	MarkdownSHA256 string              `json:"markdown_sha256"`
	HTMLSHA256     string              `json:"html_sha256"`
}

// Result is the outcome of Assemble.
type Result struct {
	Dir          string
	MarkdownPath string
	HTMLPath     string
	ManifestPath string
	Markdown     string
	Manifest     *Manifest
}

// Assemble checks that every section is approved and current, then writes
// report.md, report.html and report-manifest.json and records an export
// custody entry for every evidence item the sections cite.
func (a *Assembler) Assemble(ctx context.Context, src Source) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := src.State()
	if !snap.Complete() {
		return nil, fmt.Errorf("%w: outstanding sections %v", ErrIncomplete, snap.Outstanding())
	}

	payloads := src.Payloads()
	ordered := make([]*section.Payload, 0, len(payloads))
	for _, id := range section.ReportOrder() {
		p, ok := payloads[id]
		st, _ := snap.Section(id)
		if !ok || p.Status != section.StatusApproved || p.Version != st.Version {
			return nil, fmt.Errorf("%w: %s", ErrMissingPayload, id)
		}
		ordered = append(ordered, p)
	}

	items, err := a.locker.Items(ctx)
	if err != nil {
		return nil, err
	}
	exhibitOf := make(map[string]string, len(items))
	for _, item := range items {
		exhibitOf[item.ID] = item.Exhibit
	}
	cited := citedEvidence(ordered, exhibitOf)

	meta := a.bundle.CaseMetadata
	generated := a.now()
	manifest := &Manifest{
		CaseID:        meta.CaseID,
		Title:         meta.Title,
		ReportType:    snap.ReportType,
		GeneratedAt:   generated,
		GeneratedBy:   a.actor,
		EvidenceCount: len(cited),
		Exhibits:      make([]string, 0, len(cited)),
	}
	for _, id := range cited {
		manifest.Exhibits = append(manifest.Exhibits, exhibitOf[id])
	}
	sort.Strings(manifest.Exhibits)
	for _, p := range ordered {
		manifest.Sections = append(manifest.Sections, SectionEntry{
			ID:         p.SectionID,
			Title:      p.SectionID.Title(),
			Version:    p.Version,
			Hash:       p.Hash(),
			ApprovedBy: p.ApprovedBy,
			ApprovedAt: p.ApprovedAt,
		})
	}

	markdown := a.transformer.Transform(a.document(meta, snap, ordered, manifest))
	html, err := RenderHTML(meta.Title, markdown)
	if err != nil {
		return nil, err
	}
	manifest.MarkdownSHA256 = source.ContentHash([]byte(markdown))
	manifest.HTMLSHA256 = source.ContentHash(html)

	dir := a.ws.ReportPath(meta.CaseID)
	res := &Result{
		Dir:          dir,
		MarkdownPath: filepath.Join(dir, MarkdownFile),
		HTMLPath:     filepath.Join(dir, HTMLFile),
		ManifestPath: filepath.Join(dir, ManifestFile),
		Markdown:     markdown,
		Manifest:     manifest,
	}
	if err := casefile.WriteFile(res.MarkdownPath, []byte(markdown)); err != nil {
		return nil, fmt.Errorf("write report markdown: %w", err)
	}
	if err := casefile.WriteFile(res.HTMLPath, html); err != nil {
		return nil, fmt.Errorf("write report html: %w", err)
	}

	detail := fmt.Sprintf("%s sha256=%s", MarkdownFile, manifest.MarkdownSHA256[:12])
	if err := a.locker.RecordExport(ctx, cited, a.actor, detail); err != nil {
		return nil, fmt.Errorf("record export: %w", err)
	}
	manifest.CustodyHead = a.locker.Custody().Head()

	if err := casefile.WriteJSON(res.ManifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write report manifest: %w", err)
	}

	a.logger.Info("Report assembled",
		"case", meta.CaseID,
		"report_type", snap.ReportType,
		"sections", len(ordered),
		"evidence", len(cited),
		"dir", dir)
	return res, nil
}

func (a *Assembler) document(meta casefile.Metadata, snap gateway.Snapshot, ordered []*section.Payload, m *Manifest) Document {
	doc := Document{Title: meta.Title}
	for _, p := range ordered {
		part := Part{Heading: heading(p.SectionID), Body: p.Narrative}
		if p.SectionID == section.IDCover {
			part.Bare = true
		}
		doc.Parts = append(doc.Parts, part)
	}

	doc.Details = map[string]any{
		"case_id":     meta.CaseID,
		"report_type": string(snap.ReportType),
		"exhibits":    m.Exhibits,
		"generated":   m.GeneratedAt.Format("January 2, 2006 15:04 MST"),
	}
	versions := make([]string, 0, len(ordered))
	for _, p := range ordered {
		versions = append(versions, fmt.Sprintf("%s v%d", p.SectionID.Label(), p.Version))
	}
	doc.Details["section_versions"] = versions

	if meta.Investigator != "" {
		doc.Footer = fmt.Sprintf("Prepared by %s for %s.", meta.Investigator, orDefault(meta.Client, "the client"))
	}
	return doc
}

func heading(id section.ID) string {
	if label := id.Label(); label != id.Title() {
		return label + ": " + id.Title()
	}
	return id.Title()
}

// citedEvidence returns the sorted locker ids cited by any payload.
func citedEvidence(payloads []*section.Payload, known map[string]string) []string {
	seen := make(map[string]bool)
	for _, p := range payloads {
		for _, id := range p.Provenance.EvidenceIDs {
			if _, ok := known[id]; ok {
				seen[id] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
