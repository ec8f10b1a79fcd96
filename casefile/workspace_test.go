package casefile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCaseID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr error
	}{
		{"2024-0142", nil},
		{"WC_17.b", nil},
		{"", ErrCaseIDRequired},
		{"../etc", ErrInvalidCaseID},
		{"a/b", ErrInvalidCaseID},
		{`a\b`, ErrInvalidCaseID},
		{"-leading", ErrInvalidCaseID},
		{"has space", ErrInvalidCaseID},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateCaseID(tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMetadata_Validate(t *testing.T) {
	valid := Metadata{CaseID: "c1", Title: "Whitfield surveillance"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Metadata)
		field  string
	}{
		{"missing title", func(m *Metadata) { m.Title = " " }, "title"},
		{"bad case id", func(m *Metadata) { m.CaseID = "a/b" }, "case_id"},
		{"bad hint", func(m *Metadata) { m.ReportTypeHint = "forensic" }, "report_type_hint"},
		{"negative rate", func(m *Metadata) { m.HourlyRateCents = -1 }, "rates"},
		{"negative trip", func(m *Metadata) { m.Trips = []Trip{{Miles: -3}} }, "trips[0].miles"},
		{"expense without description", func(m *Metadata) { m.Expenses = []Expense{{AmountCents: 100}} }, "expenses[0].description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.modify(&m)
			err := m.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestParseReportType(t *testing.T) {
	rt, err := ParseReportType(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, ReportTypeHybrid, rt)

	_, err = ParseReportType("forensic")
	assert.ErrorIs(t, err, ErrInvalidReportType)
}

func TestWorkspace_CreateLoadSave(t *testing.T) {
	ctx := context.Background()
	ws := NewWorkspace(t.TempDir())

	meta := Metadata{
		CaseID:  "2024-0142",
		Title:   "Whitfield surveillance",
		Client:  "Acme Insurance",
		Subject: Subject{Name: "Dana Whitfield", Aliases: []string{"D. Whitfield"}},
	}

	bundle, err := ws.Create(ctx, meta)
	require.NoError(t, err)
	assert.False(t, bundle.CaseMetadata.CreatedAt.IsZero())
	assert.True(t, ws.Exists("2024-0142"))
	assert.DirExists(t, ws.EvidencePath("2024-0142"))
	assert.DirExists(t, ws.ArchivePath("2024-0142"))

	_, err = ws.Create(ctx, meta)
	assert.ErrorIs(t, err, ErrCaseExists)

	require.NoError(t, bundle.Put(KindDocumentIndex, "ev-1", map[string]string{"filename": "log.txt"}))
	require.NoError(t, ws.Save(ctx, bundle))

	loaded, err := ws.Load(ctx, "2024-0142")
	require.NoError(t, err)
	assert.Equal(t, "Dana Whitfield", loaded.CaseMetadata.Subject.Name)
	assert.True(t, loaded.Has(KindDocumentIndex, "ev-1"))

	_, err = ws.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrCaseNotFound)

	// No temp file left behind by the atomic write.
	_, err = os.Stat(filepath.Join(ws.CasePath("2024-0142"), BundleFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspace_List(t *testing.T) {
	ctx := context.Background()
	ws := NewWorkspace(t.TempDir())

	result, err := ws.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Cases)

	for _, id := range []string{"b-case", "a-case"} {
		_, err := ws.Create(ctx, Metadata{CaseID: id, Title: id})
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(ws.CasesPath(), "broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.CasesPath(), "broken", BundleFile), []byte("{"), 0644))

	result, err = ws.List(ctx)
	require.NoError(t, err)
	require.Len(t, result.Cases, 2)
	assert.Equal(t, "a-case", result.Cases[0].CaseID)
	assert.Len(t, result.Errors, 1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ws.List(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
