package locker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, l *CustodyLog, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.Append(context.Background(), Entry{Action: ActionReceived, ItemID: "item", Actor: "intake"})
		require.NoError(t, err)
	}
}

func TestCustodyLog_AppendChains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.jsonl")
	l, err := OpenCustodyLog(path)
	require.NoError(t, err)
	assert.Equal(t, "", l.Head())

	first, err := l.Append(context.Background(), Entry{Action: ActionReceived, ItemID: "a", Actor: "jr"})
	require.NoError(t, err)
	second, err := l.Append(context.Background(), Entry{Action: ActionExtracted, ItemID: "a", Actor: "jr"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, "", first.PrevHash)
	assert.Equal(t, first.Hash, second.PrevHash)
	assert.Equal(t, second.Hash, l.Head())
	assert.Len(t, l.EntriesFor("a"), 2)
	require.NoError(t, l.Verify())

	reopened, err := OpenCustodyLog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, second.Hash, reopened.Head())
}

func TestCustodyLog_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(t *testing.T, path string)
	}{
		{
			name: "altered field",
			tamper: func(t *testing.T, path string) {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data = bytes.Replace(data, []byte(`"actor":"intake"`), []byte(`"actor":"someone"`), 1)
				require.NoError(t, os.WriteFile(path, data, 0644))
			},
		},
		{
			name: "removed middle entry",
			tamper: func(t *testing.T, path string) {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
				kept := append([][]byte{lines[0]}, lines[2:]...)
				require.NoError(t, os.WriteFile(path, append(bytes.Join(kept, []byte("\n")), '\n'), 0644))
			},
		},
		{
			name: "truncated tail",
			tamper: func(t *testing.T, path string) {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
				require.NoError(t, os.WriteFile(path, append(bytes.Join(lines[:2], []byte("\n")), '\n'), 0644))
			},
		},
		{
			name: "garbage line",
			tamper: func(t *testing.T, path string) {
				f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
				require.NoError(t, err)
				_, err = f.WriteString("not json\n")
				require.NoError(t, err)
				require.NoError(t, f.Close())
			},
		},
		{
			name: "file deleted",
			tamper: func(t *testing.T, path string) {
				require.NoError(t, os.Remove(path))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "custody.jsonl")
			l, err := OpenCustodyLog(path)
			require.NoError(t, err)
			appendN(t, l, 3)
			require.NoError(t, l.Verify())

			tt.tamper(t, path)
			assert.ErrorIs(t, l.Verify(), ErrCustodyTampered)
		})
	}
}

func TestOpenCustodyLog_ReportsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.jsonl")
	l, err := OpenCustodyLog(path)
	require.NoError(t, err)
	appendN(t, l, 2)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bytes.Replace(data, []byte(`"seq":2`), []byte(`"seq":7`), 1), 0644))

	reopened, err := OpenCustodyLog(path)
	assert.ErrorIs(t, err, ErrCustodyTampered)
	assert.NotNil(t, reopened)
}

func TestCustodyLog_CancelledContext(t *testing.T) {
	l, err := OpenCustodyLog(filepath.Join(t.TempDir(), "custody.jsonl"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Append(ctx, Entry{Action: ActionAccessed})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, l.Len())
}
