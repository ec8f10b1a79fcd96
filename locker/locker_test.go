package locker

import (
	"context"
	"os"
	"testing"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, backend string) (*Locker, *casefile.Workspace) {
	t.Helper()
	ctx := context.Background()
	ws := casefile.NewWorkspace(t.TempDir())
	_, err := ws.Create(ctx, casefile.Metadata{CaseID: "2024-0142", Title: "Whitfield"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Locker.Backend = backend
	l, err := Open(ws, "2024-0142", cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, ws
}

func TestLocker_IntakeFlow(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			l, ws := newTestLocker(t, backend)

			content := []byte("SURVEILLANCE LOG\n03/01/2024 08:15 - Subject departed residence")
			item, err := l.Store(ctx, "/uploads/day1.txt", content, "jreyes")
			require.NoError(t, err)
			assert.Equal(t, "E-001", item.Exhibit)
			assert.Equal(t, "day1.txt", item.Filename)
			assert.Equal(t, KindDocument, item.Kind)
			assert.Equal(t, source.ContentHash(content), item.SHA256)
			assert.FileExists(t, item.StoredPath)

			dup, err := l.Store(ctx, "copy-of-day1.txt", content, "jreyes")
			assert.ErrorIs(t, err, ErrDuplicateItem)
			assert.Equal(t, item.ID, dup.ID)

			doc := &source.Document{Body: string(content), Method: source.MethodText, Title: "Day 1"}
			item, err = l.AttachText(ctx, item.ID, doc, "intake")
			require.NoError(t, err)
			assert.Equal(t, StatusExtracted, item.Status)
			assert.True(t, item.HasText())

			item, err = l.Classify(ctx, item.ID, "intake")
			require.NoError(t, err)
			assert.Equal(t, "3", item.Section)
			assert.Equal(t, StatusClassified, item.Status)

			photo, err := l.Store(ctx, "IMG_0001.jpg", []byte{0xff, 0xd8, 0xff}, "jreyes")
			require.NoError(t, err)
			assert.Equal(t, KindMedia, photo.Kind)
			photo, err = l.Classify(ctx, photo.ID, "intake")
			require.NoError(t, err)
			assert.Equal(t, "8", photo.Section)

			moved, err := l.Reclassify(ctx, photo.ID, "2", "jreyes", "shows subject vehicle")
			require.NoError(t, err)
			assert.Equal(t, "manual", moved.Rule)
			_, err = l.Reclassify(ctx, photo.ID, "", "jreyes", "")
			assert.ErrorIs(t, err, ErrInvalidSection)

			inTwo, err := l.ItemsForSection(ctx, "2")
			require.NoError(t, err)
			require.Len(t, inTwo, 1)
			assert.Equal(t, photo.ID, inTwo[0].ID)

			text, err := l.Text(ctx, item.ID)
			require.NoError(t, err)
			assert.Contains(t, text, "Subject departed")
			_, err = l.Text(ctx, photo.ID)
			assert.ErrorIs(t, err, ErrNoText)

			resolved, err := l.Resolve(ctx, "e-002")
			require.NoError(t, err)
			assert.Equal(t, photo.ID, resolved.ID)
			resolved, err = l.Resolve(ctx, item.ID[:8])
			require.NoError(t, err)
			assert.Equal(t, item.ID, resolved.ID)
			_, err = l.Resolve(ctx, "E-999")
			assert.ErrorIs(t, err, ErrItemNotFound)

			require.NoError(t, l.RecordAccess(ctx, item.ID, "auditor", "viewed in CLI"))
			require.NoError(t, l.RecordExport(ctx, []string{photo.ID, item.ID}, "assembler", "report v1"))

			actions := []Action{}
			for _, e := range l.Custody().EntriesFor(item.ID) {
				actions = append(actions, e.Action)
			}
			assert.Equal(t, []Action{ActionReceived, ActionExtracted, ActionClassified, ActionAccessed, ActionExported}, actions)
			require.NoError(t, l.Custody().Verify())

			var m Manifest
			require.NoError(t, casefile.ReadJSON(ws.ManifestPath("2024-0142"), &m))
			assert.Equal(t, 2, m.ItemCount)
			assert.Equal(t, 1, m.BySection["3"])
			assert.Equal(t, 1, m.ByKind[KindMedia])
			assert.Equal(t, l.Custody().Head(), m.CustodyHead)
		})
	}
}

func TestLocker_MarkFailed(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLocker(t, "file")

	item, err := l.Store(ctx, "scan.pdf", []byte("%PDF-broken"), "jreyes")
	require.NoError(t, err)

	item, err = l.MarkFailed(ctx, item.ID, os.ErrInvalid)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status)
	assert.NotEmpty(t, item.Error)

	item, err = l.Classify(ctx, item.ID, "intake")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status)
	assert.Equal(t, "5", item.Section)
}

func TestOpen_Errors(t *testing.T) {
	ws := casefile.NewWorkspace(t.TempDir())
	cfg := config.DefaultConfig()

	_, err := Open(ws, "missing", cfg, nil)
	assert.ErrorIs(t, err, casefile.ErrCaseNotFound)

	_, err = Open(ws, "../x", cfg, nil)
	assert.ErrorIs(t, err, casefile.ErrInvalidCaseID)

	_, err = ws.Create(context.Background(), casefile.Metadata{CaseID: "c1", Title: "t"})
	require.NoError(t, err)
	cfg.Locker.Backend = "mongo"
	_, err = Open(ws, "c1", cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
