package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.DocumentProcessed("ok", "pdf")
	m.DocumentProcessed("ok", "pdf")
	m.DocumentProcessed("failed", "")
	m.Signal("10-8")
	m.SectionRendered("3", "completed", 20*time.Millisecond)
	m.ToolkitRun("timeline", true)
	m.ToolkitRun("billing", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documentsProcessed.WithLabelValues("ok", "pdf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentsProcessed.WithLabelValues("failed", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signals.WithLabelValues("10-8")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sectionsRendered.WithLabelValues("3", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolkitRuns.WithLabelValues("billing", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.renderSeconds))

	expected := `
# HELP reportengine_signals_total Gateway signals dispatched, by code.
# TYPE reportengine_signals_total counter
reportengine_signals_total{code="10-8"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "reportengine_signals_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.DocumentProcessed("ok", "text")
	m.Signal("10-4")
	m.SectionRendered("1", "failed", time.Second)
	m.ToolkitRun("identity", true)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Signal("10-10")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `reportengine_signals_total{code="10-10"} 1`)
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := New()
	m.Signal("10-6")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, m, nil) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, `reportengine_signals_total{code="10-6"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
