package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/metrics"
	"github.com/c360studio/reportengine/section"
	"github.com/c360studio/reportengine/source"
)

const testCase = "2024-0142"

var fixedNow = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *recorder) Observe(_ context.Context, s Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

func (r *recorder) count(code Code) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.Code == code {
			n++
		}
	}
	return n
}

type harness struct {
	ws       *casefile.Workspace
	bundle   *casefile.Bundle
	locker   *locker.Locker
	cfg      *config.Config
	rec      *recorder
	gw       *Gateway
	metrics  *metrics.Metrics
	registry *section.Registry
}

func newHarness(t *testing.T, modify func(*config.Config), overrides ...section.Renderer) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Report.Agency = "Northgate Investigations"
	if modify != nil {
		modify(cfg)
	}

	ws := casefile.NewWorkspace(t.TempDir())
	bundle, err := ws.Create(ctx, casefile.Metadata{
		CaseID:       testCase,
		Title:        "Whitfield Disability Claim",
		Client:       "Acme Mutual",
		Investigator: "J. Reyes",
		Subject:      casefile.Subject{Name: "Dana Whitfield", DOB: "04/12/1985"},
		Objectives:   []string{"Document physical activity"},
	})
	require.NoError(t, err)

	l, err := locker.Open(ws, testCase, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	files := []struct {
		name string
		text string
	}{
		{"retainer_agreement.txt", "Retainer agreement: conduct surveillance of the claimant."},
		{"field_log.txt", "Date: March 1, 2024\n08:15 - Arrived on site.\n08:47 - Subject departed residence.\n09:31 - Subject arrived at park.\n"},
		{"subject_background.txt", "Dana Whitfield, DOB 04/12/1985, 412 Elm St."},
		{"pharmacy_notes.txt", "Pharmacy pickup logged on 03/01/2024."},
		{"IMG_0001.jpg", ""},
	}
	for _, f := range files {
		content := []byte(f.text)
		if f.text == "" {
			content = []byte{0xff, 0xd8, 0xff, 0xe0}
		}
		item, err := l.Store(ctx, f.name, content, "tester")
		require.NoError(t, err)
		method := source.MethodText
		if f.text == "" {
			method = source.MethodNone
		}
		_, err = l.AttachText(ctx, item.ID, &source.Document{Body: f.text, Method: method}, "tester")
		require.NoError(t, err)
		_, err = l.Classify(ctx, item.ID, "tester")
		require.NoError(t, err)
	}

	registry, err := section.NewRegistry(overrides...)
	require.NoError(t, err)

	h := &harness{ws: ws, bundle: bundle, locker: l, cfg: cfg, rec: &recorder{}, metrics: metrics.New(), registry: registry}
	h.gw = h.open(t)
	return h
}

func (h *harness) open(t *testing.T) *Gateway {
	t.Helper()
	gw, err := New(context.Background(), Options{
		Workspace: h.ws,
		Bundle:    h.bundle,
		Locker:    h.locker,
		Registry:  h.registry,
		Config:    h.cfg,
		Metrics:   h.metrics,
		Observers: []Observer{h.rec, NewLogObserver(nil), NewMetricsObserver(h.metrics)},
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return gw
}

func status(t *testing.T, gw *Gateway, id section.ID) SectionState {
	t.Helper()
	st, ok := gw.State().Section(id)
	require.True(t, ok)
	return st
}

func autoApprove(c *config.Config) { c.Gateway.AutoApprove = true }

func TestGateway_RunWithAutoApprove(t *testing.T) {
	h := newHarness(t, autoApprove)
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))

	snap := h.gw.State()
	require.True(t, snap.Complete(), "outstanding: %v", snap.Outstanding())
	assert.Equal(t, casefile.ReportTypeSurveillance, snap.ReportType)
	assert.True(t, snap.ToolkitReady)
	assert.Zero(t, snap.Pending)

	assert.Equal(t, 1, h.rec.count(CodeToolkitReady))
	assert.Equal(t, 12, h.rec.count(CodeSectionComplete))
	assert.Equal(t, 12, h.rec.count(CodeApproved))
	assert.Equal(t, CodeToolkitReady, h.rec.signals[0].Code)

	for id, p := range h.gw.Payloads() {
		assert.Equal(t, casefile.ReportTypeSurveillance, p.ReportType, "section %s", id)
		assert.Equal(t, section.StatusApproved, p.Status)
		assert.Equal(t, 1, p.Version)
		require.NotNil(t, p.ApprovedAt)
		assert.Equal(t, "gateway", p.ApprovedBy)
	}

	caseDir := h.ws.CasePath(testCase)
	assert.FileExists(t, filepath.Join(caseDir, casefile.GatewayFile))
	assert.FileExists(t, filepath.Join(h.ws.SectionsPath(testCase), "TOC.json"))

	loaded, err := h.ws.Load(ctx, testCase)
	require.NoError(t, err)
	assert.True(t, loaded.HasToolkitResults())
	assert.True(t, loaded.Has(casefile.KindSectionSummaries, "9.v1"))
	assert.True(t, loaded.Has(casefile.KindRepositoryMetadata, "locker"))
	assert.Len(t, loaded.Keys(casefile.KindDocumentIndex), 5)

	var summary section.Summary
	require.NoError(t, loaded.Get(casefile.KindSectionSummaries, "1.v1", &summary))
	assert.Equal(t, casefile.ReportTypeSurveillance, summary.ReportType)
}

func TestGateway_ManualApprovalGatesDispatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.gw.PrepareSection(ctx, section.IDCaseInfo)
	assert.ErrorIs(t, err, ErrToolkitNotReady)

	require.NoError(t, h.gw.Run(ctx))
	assert.Equal(t, section.StatusCompleted, status(t, h.gw, section.IDCaseInfo).Status)
	assert.Equal(t, section.StatusPending, status(t, h.gw, section.IDCover).Status)

	_, err = h.gw.PrepareSection(ctx, section.IDCover)
	assert.ErrorIs(t, err, ErrDependencyNotApproved)

	require.NoError(t, h.gw.Approve(ctx, section.IDCaseInfo, "supervisor", false))
	require.NoError(t, h.gw.Run(ctx))

	for _, id := range []section.ID{section.IDCover, section.IDSubject, section.IDDocuments, section.IDMedia, section.IDDisclosure} {
		assert.Equal(t, section.StatusCompleted, status(t, h.gw, id).Status, "section %s", id)
	}
	for _, id := range []section.ID{section.IDSurveillance, section.IDSessions, section.IDBilling, section.IDConclusion, section.IDCustody, section.IDTOC} {
		assert.Equal(t, section.StatusPending, status(t, h.gw, id).Status, "section %s", id)
	}

	p, err := h.gw.Payload(section.IDCaseInfo)
	require.NoError(t, err)
	assert.Equal(t, "supervisor", p.ApprovedBy)
	assert.Equal(t, section.StatusApproved, p.Status)
}

func TestGateway_ApprovedPayloadIsLocked(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))
	require.NoError(t, h.gw.Approve(ctx, section.IDCaseInfo, "supervisor", false))

	assert.ErrorIs(t, h.gw.Approve(ctx, section.IDCaseInfo, "supervisor", false), ErrSectionLocked)
	assert.ErrorIs(t, h.gw.RequestRevision(ctx, section.IDCaseInfo, "supervisor", "fix"), ErrSectionLocked)

	_, err := h.gw.PrepareSection(ctx, section.IDCaseInfo)
	assert.ErrorIs(t, err, ErrSectionLocked)

	_, err = h.gw.PublishSectionResult(ctx, section.IDCaseInfo, section.NewPayload(section.IDCaseInfo))
	assert.ErrorIs(t, err, ErrSectionLocked)

	p, err := h.gw.Payload(section.IDCaseInfo)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
}

func TestGateway_ReportTypeOwnedBySectionOne(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))
	require.NoError(t, h.gw.Approve(ctx, section.IDCaseInfo, "supervisor", false))

	in, err := h.gw.PrepareSection(ctx, section.IDDocuments)
	require.NoError(t, err)
	assert.Equal(t, section.StatusRendering, status(t, h.gw, section.IDDocuments).Status)

	p, err := section.DocumentsRenderer{}.Render(ctx, in)
	require.NoError(t, err)

	forged := p.Clone()
	forged.ReportType = casefile.ReportTypeInvestigative
	_, err = h.gw.PublishSectionResult(ctx, section.IDDocuments, forged)
	assert.ErrorIs(t, err, ErrReportTypeOverride)

	_, err = h.gw.PublishSectionResult(ctx, section.IDSubject, p)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := h.gw.PublishSectionResult(ctx, section.IDDocuments, p)
	require.NoError(t, err)
	assert.Equal(t, casefile.ReportTypeSurveillance, stored.ReportType)
	assert.Equal(t, section.StatusCompleted, stored.Status)

	bad := section.NewPayload(section.IDCaseInfo)
	_, err = h.gw.PublishSectionResult(ctx, section.IDCaseInfo, bad)
	assert.ErrorIs(t, err, ErrSectionLocked)
}

func TestGateway_RevisionRerendersWithNotes(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Gateway.MaxRevisions = 1 })
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))
	assert.ErrorIs(t, h.gw.RequestRevision(ctx, section.IDCaseInfo, "supervisor", "  "), ErrRevisionNotes)
	require.NoError(t, h.gw.RequestRevision(ctx, section.IDCaseInfo, "supervisor", "state the retainer date"))
	assert.Equal(t, section.StatusRevisionRequested, status(t, h.gw, section.IDCaseInfo).Status)

	require.NoError(t, h.gw.Run(ctx))
	assert.Equal(t, 1, h.rec.count(CodeRevisionRequested))

	st := status(t, h.gw, section.IDCaseInfo)
	assert.Equal(t, section.StatusCompleted, st.Status)
	assert.Equal(t, 2, st.Version)
	assert.Equal(t, 1, st.Revisions)
	assert.Empty(t, st.RevisionNotes)

	p, err := h.gw.Payload(section.IDCaseInfo)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, 1, p.Revision)
	assert.Equal(t, []string{"state the retainer date"}, p.RevisionNotes)
	assert.Contains(t, p.Narrative, "state the retainer date")

	err = h.gw.RequestRevision(ctx, section.IDCaseInfo, "supervisor", "again")
	assert.ErrorIs(t, err, ErrMaxRevisions)
}

func TestGateway_ReopenArchivesAndMarksDependentsStale(t *testing.T) {
	h := newHarness(t, autoApprove)
	ctx := context.Background()
	require.NoError(t, h.gw.Run(ctx))

	_, err := h.gw.Reopen(ctx, section.IDSurveillance, "supervisor", "")
	assert.ErrorIs(t, err, ErrAuthorizationRequired)

	stale, err := h.gw.Reopen(ctx, section.IDSurveillance, "supervisor", "client disputes log times")
	require.NoError(t, err)
	assert.Equal(t, []section.ID{section.IDSessions, section.IDBilling, section.IDConclusion, section.IDTOC}, stale)
	assert.FileExists(t, filepath.Join(h.ws.ArchivePath(testCase), "3.v1.json"))

	snap := h.gw.State()
	assert.False(t, snap.Complete())
	st, _ := snap.Section(section.IDSurveillance)
	assert.Equal(t, section.StatusPending, st.Status)

	before, err := h.gw.Payload(section.IDSessions)
	require.NoError(t, err)

	require.NoError(t, h.gw.Run(ctx))

	st = status(t, h.gw, section.IDSurveillance)
	assert.Equal(t, section.StatusApproved, st.Status)
	assert.Equal(t, 2, st.Version)

	after, err := h.gw.Payload(section.IDSessions)
	require.NoError(t, err)
	assert.Equal(t, before.Hash(), after.Hash(), "stale dependents are not re-rendered silently")
	assert.ElementsMatch(t, stale, h.gw.State().Outstanding())

	_, err = h.gw.Reopen(ctx, section.IDSurveillance, "supervisor", "again")
	require.NoError(t, err)
	_, err = h.gw.Reopen(ctx, section.IDSurveillance, "supervisor", "again")
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestGateway_StaleSectionsRecoverThroughReopen(t *testing.T) {
	h := newHarness(t, autoApprove)
	ctx := context.Background()
	require.NoError(t, h.gw.Run(ctx))

	stale, err := h.gw.Reopen(ctx, section.IDDisclosure, "supervisor", "new license number")
	require.NoError(t, err)
	require.Equal(t, []section.ID{section.IDTOC}, stale)
	require.NoError(t, h.gw.Run(ctx))

	_, err = h.gw.Reopen(ctx, section.IDTOC, "supervisor", "refresh after disclosure change")
	require.NoError(t, err)
	require.NoError(t, h.gw.Run(ctx))

	snap := h.gw.State()
	assert.True(t, snap.Complete(), "outstanding: %v", snap.Outstanding())
	toc, _ := snap.Section(section.IDTOC)
	assert.Equal(t, 2, toc.Version)
}

func TestGateway_HaltAndResume(t *testing.T) {
	h := newHarness(t, autoApprove)
	ctx := context.Background()

	require.NoError(t, h.gw.Halt(ctx, "supervisor", "awaiting client call"))
	assert.True(t, h.gw.State().Halted)

	progress, err := h.gw.Step(ctx)
	require.NoError(t, err)
	assert.True(t, progress, "halt signal is drained")
	assert.Equal(t, 1, h.rec.count(CodeHalt))

	progress, err = h.gw.Step(ctx)
	require.NoError(t, err)
	assert.False(t, progress)

	assert.ErrorIs(t, h.gw.RunToolkit(ctx), ErrHalted)
	_, err = h.gw.PrepareSection(ctx, section.IDCaseInfo)
	assert.ErrorIs(t, err, ErrHalted)

	require.NoError(t, h.gw.Resume(ctx, "supervisor"))
	assert.ErrorIs(t, h.gw.Resume(ctx, "supervisor"), ErrNotHalted)

	require.NoError(t, h.gw.Run(ctx))
	assert.True(t, h.gw.State().Complete())
	assert.ErrorIs(t, h.gw.RunToolkit(ctx), ErrToolkitAlreadyRun)
}

type failingRenderer struct{ id section.ID }

func (f failingRenderer) ID() section.ID { return f.id }

func (f failingRenderer) Render(context.Context, *section.Input) (*section.Payload, error) {
	return nil, errors.New("template missing")
}

func TestGateway_RendererFailureIsIsolated(t *testing.T) {
	h := newHarness(t, autoApprove, failingRenderer{id: section.IDDisclosure})
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))

	dp := status(t, h.gw, section.IDDisclosure)
	assert.Equal(t, section.StatusFailed, dp.Status)
	assert.Equal(t, maxAttempts, dp.Attempts)
	assert.Equal(t, "template missing", dp.Error)

	assert.Equal(t, section.StatusPending, status(t, h.gw, section.IDTOC).Status)
	assert.Equal(t, section.StatusApproved, status(t, h.gw, section.IDCustody).Status)
	assert.ElementsMatch(t, []section.ID{section.IDDisclosure, section.IDTOC}, h.gw.State().Outstanding())
}

// typedRenderer renders a payload that claims its own report type.
type typedRenderer struct{ id section.ID }

func (r typedRenderer) ID() section.ID { return r.id }

func (r typedRenderer) Render(context.Context, *section.Input) (*section.Payload, error) {
	p := section.NewPayload(r.id)
	p.Narrative = "Disclosures."
	p.ReportType = casefile.ReportTypeInvestigative
	return p, nil
}

func TestGateway_RejectedPublishFailsSection(t *testing.T) {
	h := newHarness(t, autoApprove, typedRenderer{id: section.IDDisclosure})
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))

	dp := status(t, h.gw, section.IDDisclosure)
	assert.Equal(t, section.StatusFailed, dp.Status)
	assert.Equal(t, maxAttempts, dp.Attempts)
	assert.Contains(t, dp.Error, ErrReportTypeOverride.Error())
	assert.Equal(t, section.StatusApproved, status(t, h.gw, section.IDCustody).Status)

	require.NoError(t, h.gw.RequestRevision(ctx, section.IDDisclosure, "supervisor", "leave the report type to section 1"))
	dp = status(t, h.gw, section.IDDisclosure)
	assert.Equal(t, section.StatusRevisionRequested, dp.Status)
	assert.Zero(t, dp.Attempts)

	progress, err := h.gw.Step(ctx)
	require.NoError(t, err)
	assert.True(t, progress)
	assert.Equal(t, section.StatusFailed, status(t, h.gw, section.IDDisclosure).Status)
}

func TestGateway_InterruptedRenderRecoversOnLoad(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))
	require.NoError(t, h.gw.Approve(ctx, section.IDCaseInfo, "supervisor", false))
	_, err := h.gw.PrepareSection(ctx, section.IDCover)
	require.NoError(t, err)
	require.Equal(t, section.StatusRendering, status(t, h.gw, section.IDCover).Status)

	bundle, err := h.ws.Load(ctx, testCase)
	require.NoError(t, err)
	h.bundle = bundle
	reopened := h.open(t)

	cp := status(t, reopened, section.IDCover)
	assert.Equal(t, section.StatusFailed, cp.Status)
	assert.Equal(t, errRenderInterrupted.Error(), cp.Error)
	assert.Zero(t, cp.Attempts)

	require.NoError(t, reopened.Run(ctx))
	cp = status(t, reopened, section.IDCover)
	assert.Equal(t, section.StatusCompleted, cp.Status)
	assert.Empty(t, cp.Error)
	assert.Equal(t, 1, cp.Version)
}

func TestGateway_QAErrorsBlockApproval(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Gateway.AutoApprove = true
		c.QA.Rules = []config.QARule{{
			Name: "invoice-cap", Section: "6", Expr: "data.total_cents < 100", Severity: "error", Message: "invoice exceeds cap",
		}}
	})
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))

	billing := status(t, h.gw, section.IDBilling)
	assert.Equal(t, section.StatusCompleted, billing.Status)
	assert.Equal(t, 1, billing.QAErrors)

	assert.ErrorIs(t, h.gw.Approve(ctx, section.IDBilling, "supervisor", false), ErrQAErrors)
	require.NoError(t, h.gw.Approve(ctx, section.IDBilling, "supervisor", true))

	require.NoError(t, h.gw.Run(ctx))
	assert.True(t, h.gw.State().Complete())

	var forced bool
	for _, s := range h.gw.State().History {
		if s.Code == CodeApproved && s.Section == section.IDBilling {
			forced = s.Note == "approved over QA errors"
		}
	}
	assert.True(t, forced)
}

func TestGateway_StatePersists(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.gw.Run(ctx))
	require.NoError(t, h.gw.Approve(ctx, section.IDCaseInfo, "supervisor", false))
	require.NoError(t, h.gw.Halt(ctx, "supervisor", "end of day"))

	bundle, err := h.ws.Load(ctx, testCase)
	require.NoError(t, err)
	h.bundle = bundle
	reopened := h.open(t)

	snap := reopened.State()
	assert.True(t, snap.Halted)
	assert.Equal(t, "end of day", snap.HaltReason)
	assert.True(t, snap.ToolkitReady)
	assert.Equal(t, 2, snap.Pending, "approval and halt signals are still queued")
	st, _ := snap.Section(section.IDCaseInfo)
	assert.Equal(t, section.StatusApproved, st.Status)

	p, err := reopened.Payload(section.IDCaseInfo)
	require.NoError(t, err)
	assert.Equal(t, "supervisor", p.ApprovedBy)

	_, err = reopened.Payload(section.IDTOC)
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestGateway_CorruptStateFailsToLoad(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.WriteFile(h.ws.GatewayStatePath(testCase), []byte("{not json"), 0644))

	_, err := New(context.Background(), Options{Workspace: h.ws, Bundle: h.bundle, Locker: h.locker})
	assert.Error(t, err)
}
