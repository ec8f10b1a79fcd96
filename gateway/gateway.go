package gateway

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/metrics"
	"github.com/c360studio/reportengine/section"
	"github.com/c360studio/reportengine/toolkit"
)

// Sentinel errors for gateway operations.
var (
	ErrHalted                = errors.New("gateway halted")
	ErrNotHalted             = errors.New("gateway not halted")
	ErrToolkitNotReady       = errors.New("toolkit results not ready")
	ErrToolkitAlreadyRun     = errors.New("toolkit already run")
	ErrDependencyNotApproved = errors.New("dependency not approved")
	ErrInvalidTransition     = errors.New("invalid section transition")
	ErrSectionLocked         = errors.New("section is approved and locked")
	ErrPayloadMismatch       = errors.New("payload does not match section")
	ErrReportTypeOverride    = errors.New("report type is set by section 1 only")
	ErrQAErrors              = errors.New("payload has QA errors")
	ErrStale                 = errors.New("section is stale")
	ErrAuthorizationRequired = errors.New("reopen requires actor and authorization")
	ErrNotApproved           = errors.New("section is not approved")
	ErrRevisionNotes         = errors.New("revision notes are required")
	ErrMaxRevisions          = errors.New("maximum revisions reached")
	ErrNoPayload             = errors.New("section has no payload")
	ErrUnknownSignal         = errors.New("unknown signal code")

	errRenderInterrupted = errors.New("render interrupted before its result was published")
)

const (
	// maxAttempts bounds automatic re-dispatch of a failed section.
	maxAttempts = 3
	historyCap  = 500
)

// Options holds the parts a Gateway is built from. Workspace, Bundle and
// Locker are required.
type Options struct {
	Workspace *casefile.Workspace
	Bundle    *casefile.Bundle
	Locker    *locker.Locker
	Registry  *section.Registry
	Toolkit   *toolkit.Engine
	QA        *section.QA
	Config    *config.Config
	Metrics   *metrics.Metrics
	Observers []Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Gateway sequences the section pipeline of one case. All methods are safe
// for concurrent use; dispatch itself is synchronous.
type Gateway struct {
	mu        sync.Mutex
	ws        *casefile.Workspace
	bundle    *casefile.Bundle
	locker    *locker.Locker
	registry  *section.Registry
	engine    *toolkit.Engine
	qa        *section.QA
	cfg       *config.Config
	metrics   *metrics.Metrics
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	caseID   string
	state    *State
	payloads map[section.ID]*section.Payload
	results  toolkit.Results
}

// New creates a gateway and loads any state persisted for the case.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	if opts.Workspace == nil || opts.Bundle == nil || opts.Locker == nil {
		return nil, errors.New("gateway needs a workspace, bundle and locker")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	g := &Gateway{
		ws:        opts.Workspace,
		bundle:    opts.Bundle,
		locker:    opts.Locker,
		registry:  opts.Registry,
		engine:    opts.Toolkit,
		qa:        opts.QA,
		cfg:       cfg,
		metrics:   opts.Metrics,
		observers: opts.Observers,
		logger:    logger.With("case", opts.Bundle.CaseMetadata.CaseID),
		now:       now,
		caseID:    opts.Bundle.CaseMetadata.CaseID,
		payloads:  map[section.ID]*section.Payload{},
	}

	var err error
	if g.registry == nil {
		if g.registry, err = section.NewRegistry(); err != nil {
			return nil, err
		}
	}
	if g.engine == nil {
		g.engine = toolkit.DefaultEngine(logger)
	}
	if g.metrics != nil {
		g.engine.OnResult(func(r toolkit.Result) { g.metrics.ToolkitRun(r.Tool, r.OK) })
	}
	if g.qa == nil {
		if g.qa, err = section.NewQA(cfg.QA.Rules); err != nil {
			return nil, err
		}
	}

	if err := g.load(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var st State
	err := casefile.ReadJSON(g.ws.GatewayStatePath(g.caseID), &st)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		g.state = newState(g.caseID)
	case err != nil:
		return fmt.Errorf("load gateway state: %w", err)
	default:
		st.ensureSections()
		g.state = &st
	}

	// A render cut short by a restart left no payload behind.
	for _, ss := range g.state.Sections {
		if ss.Status == section.StatusRendering {
			ss.Status = section.StatusFailed
			ss.Error = errRenderInterrupted.Error()
		}
	}

	for id, ss := range g.state.Sections {
		if ss.Version == 0 {
			continue
		}
		var p section.Payload
		if err := casefile.ReadJSON(g.payloadPath(id), &p); err != nil {
			return fmt.Errorf("load section %s payload: %w", id, err)
		}
		g.payloads[id] = &p
	}

	if g.bundle.HasToolkitResults() {
		results, err := toolkit.LoadResults(g.bundle)
		if err != nil {
			return err
		}
		g.results = results
		g.state.ToolkitReady = true
	}
	return nil
}

func (g *Gateway) payloadPath(id section.ID) string {
	return filepath.Join(g.ws.SectionsPath(g.caseID), string(id)+".json")
}

func (g *Gateway) archivePath(id section.ID, version int) string {
	return filepath.Join(g.ws.ArchivePath(g.caseID), fmt.Sprintf("%s.v%d.json", id, version))
}

// saveStateLocked persists the gateway state. Must be called with g.mu held.
func (g *Gateway) saveStateLocked() error {
	g.state.UpdatedAt = g.now()
	if err := casefile.WriteJSON(g.ws.GatewayStatePath(g.caseID), g.state); err != nil {
		return fmt.Errorf("save gateway state: %w", err)
	}
	return nil
}

func (g *Gateway) enqueueLocked(s Signal) {
	g.state.Queue = append(g.state.Queue, s)
}

func (g *Gateway) sectionState(id section.ID) (*SectionState, error) {
	st, ok := g.state.Sections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", section.ErrUnknownSection, id)
	}
	return st, nil
}

// State returns a snapshot of the gateway state.
func (g *Gateway) State() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.snapshot()
}

// Payload returns a copy of the current payload of id.
func (g *Gateway) Payload(id section.ID) (*section.Payload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payloads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPayload, id)
	}
	return p.Clone(), nil
}

// Payloads returns copies of every current payload.
func (g *Gateway) Payloads() map[section.ID]*section.Payload {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[section.ID]*section.Payload, len(g.payloads))
	for id, p := range g.payloads {
		out[id] = p.Clone()
	}
	return out
}

// Bundle returns the case bundle.
func (g *Gateway) Bundle() *casefile.Bundle { return g.bundle }

// Locker returns the evidence locker.
func (g *Gateway) Locker() *locker.Locker { return g.locker }

// RunToolkit runs every tool over the evidence, stores the results and the
// document index on the bundle, and queues 10-6.
func (g *Gateway) RunToolkit(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runToolkitLocked(ctx)
}

func (g *Gateway) runToolkitLocked(ctx context.Context) error {
	if g.state.Halted {
		return ErrHalted
	}
	if g.state.ToolkitReady {
		return ErrToolkitAlreadyRun
	}

	items, texts, err := g.evidenceLocked(ctx)
	if err != nil {
		return err
	}
	docs := make([]toolkit.Document, 0, len(items))
	for _, item := range items {
		if item.Status == locker.StatusFailed {
			continue
		}
		docs = append(docs, toolkit.Document{
			ItemID:   item.ID,
			Exhibit:  item.Exhibit,
			Filename: item.Filename,
			Section:  item.Section,
			Kind:     string(item.Kind),
			MimeType: item.MimeType,
			Method:   item.ExtractMethod,
			Text:     texts[item.ID],
			AddedAt:  item.AddedAt,
		})
	}

	results, err := g.engine.Run(ctx, &toolkit.Input{
		Metadata:  g.bundle.CaseMetadata,
		Documents: docs,
		Config:    g.cfg.Toolkit,
	})
	if err != nil {
		return fmt.Errorf("run toolkit: %w", err)
	}

	for _, d := range docs {
		if g.bundle.Has(casefile.KindDocumentIndex, d.ItemID) {
			continue
		}
		if err := g.bundle.Put(casefile.KindDocumentIndex, d.ItemID, d); err != nil {
			return err
		}
	}
	if !g.bundle.Has(casefile.KindRepositoryMetadata, "locker") {
		manifest, err := g.locker.Manifest(ctx)
		if err != nil {
			return err
		}
		summary := map[string]any{
			"item_count":      manifest.ItemCount,
			"total_bytes":     manifest.TotalBytes,
			"by_section":      manifest.BySection,
			"by_kind":         manifest.ByKind,
			"custody_entries": manifest.CustodyLen,
			"custody_head":    manifest.CustodyHead,
		}
		if err := g.bundle.Put(casefile.KindRepositoryMetadata, "locker", summary); err != nil {
			return err
		}
	}
	if err := g.bundle.SetToolkitResults(results.AsMap()); err != nil {
		return err
	}
	if err := g.ws.Save(ctx, g.bundle); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	g.results = results
	g.state.ToolkitReady = true
	g.enqueueLocked(newSignal(CodeToolkitReady, "", g.cfg.Gateway.Actor,
		fmt.Sprintf("%d tools run, %d failed", len(results), failed), g.now()))
	return g.saveStateLocked()
}

// evidenceLocked returns every locker item and the extracted text by id.
func (g *Gateway) evidenceLocked(ctx context.Context) ([]*locker.Item, map[string]string, error) {
	items, err := g.locker.Items(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list evidence: %w", err)
	}
	texts := make(map[string]string, len(items))
	for _, item := range items {
		if !item.HasText() {
			continue
		}
		text, err := g.locker.Text(ctx, item.ID)
		if err != nil {
			return nil, nil, err
		}
		texts[item.ID] = text
	}
	return items, texts, nil
}

// PrepareSection checks that id may be dispatched, moves it to rendering
// and returns the renderer input built from approved upstream payloads.
func (g *Gateway) PrepareSection(ctx context.Context, id section.ID) (*section.Input, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prepareLocked(ctx, id)
}

func (g *Gateway) prepareLocked(ctx context.Context, id section.ID) (*section.Input, error) {
	def, ok := section.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", section.ErrUnknownSection, id)
	}
	st, err := g.sectionState(id)
	if err != nil {
		return nil, err
	}
	if g.state.Halted {
		return nil, ErrHalted
	}
	if !g.state.ToolkitReady {
		return nil, ErrToolkitNotReady
	}
	switch {
	case st.Status == section.StatusApproved:
		return nil, fmt.Errorf("%w: %s", ErrSectionLocked, id)
	case st.Status != section.StatusRendering && !st.Status.Dispatchable():
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, st.Status)
	}

	upstream := make(map[section.ID]*section.Payload, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		ds := g.state.Sections[dep]
		if ds.Status != section.StatusApproved || ds.Stale {
			return nil, fmt.Errorf("%w: %s needs %s (%s)", ErrDependencyNotApproved, id, dep, ds.Status)
		}
		upstream[dep] = g.payloads[dep].Clone()
	}

	items, texts, err := g.evidenceLocked(ctx)
	if err != nil {
		return nil, err
	}

	in := &section.Input{
		Bundle:   g.bundle,
		Upstream: upstream,
		Toolkit:  g.results,
		Evidence: items,
		Texts:    texts,
		Custody:  g.locker.Custody().Entries(),
		Report:   g.cfg.Report,
		Now:      g.now(),
	}
	if st.Status == section.StatusRevisionRequested || st.Status == section.StatusRendering || st.Status == section.StatusFailed {
		in.RevisionNotes = append([]string(nil), st.RevisionNotes...)
	}

	st.Status = section.StatusRendering
	st.UpdatedAt = g.now()
	if err := g.saveStateLocked(); err != nil {
		return nil, err
	}
	return in, nil
}

// PublishSectionResult validates and stores a rendered payload, runs QA,
// appends the section summary to the bundle and queues 10-8.
func (g *Gateway) PublishSectionResult(ctx context.Context, id section.ID, p *section.Payload) (*section.Payload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.publishLocked(ctx, id, p)
}

func (g *Gateway) publishLocked(ctx context.Context, id section.ID, p *section.Payload) (*section.Payload, error) {
	st, err := g.sectionState(id)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case section.StatusApproved:
		return nil, fmt.Errorf("%w: %s", ErrSectionLocked, id)
	case section.StatusRendering:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, st.Status)
	}
	if p == nil || p.SectionID != id {
		return nil, fmt.Errorf("%w: %s", ErrPayloadMismatch, id)
	}

	if id == section.IDCaseInfo {
		if !p.ReportType.IsValid() {
			return nil, fmt.Errorf("%w: section 1 payload has no valid report type", ErrPayloadMismatch)
		}
	} else if p.ReportType != "" && p.ReportType != g.state.ReportType {
		return nil, fmt.Errorf("%w: %s carries %q, case is %q", ErrReportTypeOverride, id, p.ReportType, g.state.ReportType)
	}

	p = p.Clone()
	if err := p.Normalize(); err != nil {
		return nil, err
	}
	if id != section.IDCaseInfo {
		p.ReportType = g.state.ReportType
	}
	p.Version = st.Version + 1
	p.Status = section.StatusCompleted
	p.Revision = st.Revisions
	p.Stale = false
	p.ApprovedAt = nil
	p.ApprovedBy = ""
	g.qa.Apply(p)

	if err := casefile.WriteJSON(g.payloadPath(id), p); err != nil {
		return nil, fmt.Errorf("save section %s: %w", id, err)
	}
	summary := p.Summarize()
	err = g.bundle.Put(casefile.KindSectionSummaries, casefile.SummaryKey(string(id), p.Version), summary)
	if errors.Is(err, casefile.ErrBundleKeyExists) {
		g.logger.Warn("Section summary already on bundle", "section", id, "version", p.Version)
	} else if err != nil {
		return nil, err
	}
	if err := g.ws.Save(ctx, g.bundle); err != nil {
		return nil, err
	}

	if id == section.IDCaseInfo {
		g.state.ReportType = p.ReportType
	}
	st.Status = section.StatusCompleted
	st.Version = p.Version
	st.Stale = false
	st.Error = ""
	st.Attempts = 0
	st.RevisionNotes = nil
	st.QAErrors, st.QAWarnings = 0, 0
	for _, f := range p.QAFlags {
		if f.Severity == section.SeverityError {
			st.QAErrors++
		} else {
			st.QAWarnings++
		}
	}
	st.UpdatedAt = g.now()
	g.payloads[id] = p

	sig := newSignal(CodeSectionComplete, id, g.cfg.Gateway.Actor, "", g.now())
	sig.Payload = &summary
	g.enqueueLocked(sig)

	if err := g.saveStateLocked(); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Approve locks a completed payload and queues 10-4. A payload with
// error-severity QA flags is only approved with force.
func (g *Gateway) Approve(ctx context.Context, id section.ID, actor string, force bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approveLocked(ctx, id, actor, force)
}

func (g *Gateway) approveLocked(ctx context.Context, id section.ID, actor string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := g.sectionState(id)
	if err != nil {
		return err
	}
	switch st.Status {
	case section.StatusApproved:
		return fmt.Errorf("%w: %s", ErrSectionLocked, id)
	case section.StatusCompleted:
	default:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, st.Status)
	}
	if st.Stale {
		return fmt.Errorf("%w: %s must be revised before approval", ErrStale, id)
	}
	p := g.payloads[id]
	if p.HasErrors() && !force {
		return fmt.Errorf("%w: %s has %d error(s)", ErrQAErrors, id, st.QAErrors)
	}
	if actor == "" {
		actor = g.cfg.Gateway.Actor
	}

	at := g.now()
	p.Status = section.StatusApproved
	p.ApprovedAt = &at
	p.ApprovedBy = actor
	if err := casefile.WriteJSON(g.payloadPath(id), p); err != nil {
		return fmt.Errorf("save section %s: %w", id, err)
	}

	st.Status = section.StatusApproved
	st.ApprovedBy = actor
	st.UpdatedAt = at

	note := ""
	if force && p.HasErrors() {
		note = "approved over QA errors"
	}
	sig := newSignal(CodeApproved, id, actor, note, at)
	summary := p.Summarize()
	sig.Payload = &summary
	g.enqueueLocked(sig)
	return g.saveStateLocked()
}

// RequestRevision sends a completed or failed section back for
// re-rendering with notes and queues 10-9. A failed section gets a fresh
// set of attempts.
func (g *Gateway) RequestRevision(ctx context.Context, id section.ID, actor, notes string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ErrRevisionNotes
	}
	st, err := g.sectionState(id)
	if err != nil {
		return err
	}
	switch st.Status {
	case section.StatusApproved:
		return fmt.Errorf("%w: %s", ErrSectionLocked, id)
	case section.StatusCompleted, section.StatusFailed:
	default:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, st.Status)
	}
	if limit := g.cfg.Gateway.MaxRevisions; limit > 0 && st.Revisions >= limit {
		return fmt.Errorf("%w: %s revised %d times", ErrMaxRevisions, id, st.Revisions)
	}

	st.Revisions++
	st.RevisionNotes = append(st.RevisionNotes, notes)
	st.Status = section.StatusRevisionRequested
	st.Attempts = 0
	st.UpdatedAt = g.now()
	g.enqueueLocked(newSignal(CodeRevisionRequested, id, actor, notes, g.now()))
	return g.saveStateLocked()
}

// Reopen unlocks an approved section. The approved payload is archived,
// the section returns to pending and dependents holding a payload are
// marked stale. It returns the stale dependents.
func (g *Gateway) Reopen(ctx context.Context, id section.ID, actor, authorization string) ([]section.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	actor = strings.TrimSpace(actor)
	authorization = strings.TrimSpace(authorization)
	if actor == "" || authorization == "" {
		return nil, ErrAuthorizationRequired
	}
	st, err := g.sectionState(id)
	if err != nil {
		return nil, err
	}
	if st.Status != section.StatusApproved {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotApproved, id, st.Status)
	}

	p := g.payloads[id]
	if err := casefile.WriteJSON(g.archivePath(id, p.Version), p); err != nil {
		return nil, fmt.Errorf("archive section %s: %w", id, err)
	}

	st.Status = section.StatusPending
	st.Stale = false
	st.ApprovedBy = ""
	st.Attempts = 0
	st.RevisionNotes = nil
	st.UpdatedAt = g.now()

	var stale []section.ID
	for _, dep := range section.Dependents(id) {
		ds := g.state.Sections[dep]
		if ds.Version == 0 || ds.Stale {
			continue
		}
		if ds.Status == section.StatusApproved || ds.Status == section.StatusCompleted {
			ds.Stale = true
			ds.UpdatedAt = g.now()
			stale = append(stale, dep)
		}
	}

	g.logger.Info("Section reopened", "section", id, "actor", actor, "archived_version", p.Version, "stale", stale)
	g.enqueueLocked(newSignal(CodeRevisionRequested, id, actor, "reopened: "+authorization, g.now()))
	if err := g.saveStateLocked(); err != nil {
		return nil, err
	}
	return stale, nil
}

// Halt stops dispatch and queues 10-10.
func (g *Gateway) Halt(ctx context.Context, actor, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if g.state.Halted {
		return nil
	}
	g.state.Halted = true
	g.state.HaltReason = reason
	g.enqueueLocked(newSignal(CodeHalt, "", actor, reason, g.now()))
	return g.saveStateLocked()
}

// Resume lifts a halt.
func (g *Gateway) Resume(ctx context.Context, actor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !g.state.Halted {
		return ErrNotHalted
	}
	g.state.Halted = false
	g.state.HaltReason = ""
	g.logger.Info("Gateway resumed", "actor", actor)
	return g.saveStateLocked()
}

// Step runs one iteration of the dispatch loop: drain queued signals to
// the observers, then run the toolkit, auto-approve, or render the next
// dispatchable section. It reports whether anything happened.
func (g *Gateway) Step(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	drained, err := g.drainLocked(ctx)
	if err != nil {
		return false, err
	}
	progress := drained > 0

	if g.state.Halted {
		return progress, nil
	}
	if !g.state.ToolkitReady {
		return true, g.runToolkitLocked(ctx)
	}

	if g.cfg.Gateway.AutoApprove {
		for _, id := range section.IDs() {
			st := g.state.Sections[id]
			if st.Status == section.StatusCompleted && !st.Stale && !g.payloads[id].HasErrors() {
				return true, g.approveLocked(ctx, id, g.cfg.Gateway.Actor, false)
			}
		}
	}

	id, ok := g.nextDispatchableLocked()
	if !ok {
		return progress, nil
	}
	return true, g.renderLocked(ctx, id)
}

// Run repeats Step until nothing is left to do.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		progress, err := g.Step(ctx)
		if err != nil {
			return err
		}
		if !progress {
			return nil
		}
	}
}

// nextDispatchableLocked returns the first section in pipeline order whose
// dependencies are approved.
func (g *Gateway) nextDispatchableLocked() (section.ID, bool) {
	for _, d := range section.Definitions() {
		st := g.state.Sections[d.ID]
		if !st.Status.Dispatchable() {
			continue
		}
		if st.Status == section.StatusFailed && st.Attempts >= maxAttempts {
			continue
		}
		ready := true
		for _, dep := range d.DependsOn {
			ds := g.state.Sections[dep]
			if ds.Status != section.StatusApproved || ds.Stale {
				ready = false
				break
			}
		}
		if ready {
			return d.ID, true
		}
	}
	return "", false
}

// renderLocked renders one section. A renderer error marks the section
// failed without failing the step.
func (g *Gateway) renderLocked(ctx context.Context, id section.ID) error {
	in, err := g.prepareLocked(ctx, id)
	if err != nil {
		return err
	}
	renderer, err := g.registry.Get(id)
	if err != nil {
		return err
	}

	start := time.Now()
	p, err := renderer.Render(ctx, in)
	elapsed := time.Since(start)
	if err != nil {
		return g.failLocked(id, err, elapsed)
	}

	if _, err := g.publishLocked(ctx, id, p); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if saveErr := g.failLocked(id, err, elapsed); saveErr != nil {
				return saveErr
			}
			return ctxErr
		}
		return g.failLocked(id, fmt.Errorf("publish rejected: %w", err), elapsed)
	}
	g.metrics.SectionRendered(string(id), string(section.StatusCompleted), elapsed)
	g.logger.Debug("Section rendered", "section", id, "elapsed", elapsed)
	return nil
}

// failLocked records a failed render attempt. The section stays
// dispatchable until it reaches maxAttempts.
func (g *Gateway) failLocked(id section.ID, cause error, elapsed time.Duration) error {
	st := g.state.Sections[id]
	st.Status = section.StatusFailed
	st.Error = cause.Error()
	st.Attempts++
	st.UpdatedAt = g.now()
	g.metrics.SectionRendered(string(id), string(section.StatusFailed), elapsed)
	g.logger.Warn("Section render failed", "section", id, "attempt", st.Attempts, "error", cause)
	return g.saveStateLocked()
}

// drainLocked hands every queued signal to the observers.
func (g *Gateway) drainLocked(ctx context.Context) (int, error) {
	queue := g.state.Queue
	if len(queue) == 0 {
		return 0, nil
	}
	g.state.Queue = nil
	for _, s := range queue {
		for _, o := range g.observers {
			if err := o.Observe(ctx, s); err != nil {
				g.logger.Warn("Signal observer failed", "code", s.Code, "section", s.Section, "error", err)
			}
		}
		g.state.History = append(g.state.History, s)
	}
	if n := len(g.state.History); n > historyCap {
		g.state.History = append([]Signal(nil), g.state.History[n-historyCap:]...)
	}
	return len(queue), g.saveStateLocked()
}
