package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/report"
)

const testCase = "2024-0142"

type cli struct {
	root string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &cli{root: t.TempDir()}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--root", c.root, "--actor", "j.reyes"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func writeUploads(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range map[string]string{
		"retainer_agreement.txt": "Retainer agreement: conduct surveillance of the claimant.",
		"field_log.txt":          "Date: March 1, 2024\n08:15 - Arrived on site.\n08:47 - Subject departed residence.\n",
		"receipt_notes.txt":      "Parking receipt for $12.00 on 03/01/2024.",
		".DS_Store":              "junk",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0644))
	}
	return dir
}

func initCase(t *testing.T, c *cli) {
	t.Helper()
	c.mustRun(t, "init", testCase,
		"--title", "Whitfield Disability Claim",
		"--client", "Acme Mutual",
		"--investigator", "J. Reyes",
		"--subject", "Dana Whitfield",
		"--objective", "Document physical activity",
		"--assigned", "March 1, 2024",
		"--report-type", "surveillance",
	)
}

func TestCLI_FullCase(t *testing.T) {
	c := newCLI(t)
	initCase(t, c)

	ws := casefile.NewWorkspace(c.root)
	bundle, err := ws.Load(context.Background(), testCase)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", bundle.CaseMetadata.AssignmentDate)
	assert.FileExists(t, filepath.Join(c.root, config.ProjectConfigFile))

	out := c.mustRun(t, "intake", testCase, writeUploads(t))
	assert.Contains(t, out, "3 processed, 0 failed, 0 duplicate")
	assert.NotContains(t, out, ".DS_Store")

	out = c.mustRun(t, "run", testCase, "--auto-approve")
	assert.Contains(t, out, "10-6")
	assert.Contains(t, out, "ready to assemble")

	out = c.mustRun(t, "status", testCase, "--history")
	assert.Contains(t, out, "Whitfield Disability Claim")
	assert.Contains(t, out, "Report type: surveillance")
	assert.Contains(t, out, "10-4")

	out = c.mustRun(t, "assemble", testCase)
	md := filepath.Join(ws.ReportPath(testCase), report.MarkdownFile)
	assert.Contains(t, out, md)
	assert.FileExists(t, filepath.Join(ws.ReportPath(testCase), report.HTMLFile))
	assert.Contains(t, out, "3 exhibits cited")

	out = c.mustRun(t, "custody", testCase, "--verify")
	assert.Contains(t, out, "Custody chain intact")

	out = c.mustRun(t, "custody", testCase, "--item", "E-002")
	assert.Contains(t, out, "exported")

	out = c.mustRun(t, "evidence", "list", testCase)
	assert.Contains(t, out, "3 items")
	assert.Contains(t, out, "E-003")

	out = c.mustRun(t, "intake", testCase, writeUploads(t))
	assert.Contains(t, out, "0 processed, 0 failed, 3 duplicate")
}

func TestCLI_ApprovalCycle(t *testing.T) {
	c := newCLI(t)
	initCase(t, c)
	c.mustRun(t, "intake", testCase, writeUploads(t))

	out := c.mustRun(t, "run", testCase)
	assert.Contains(t, out, "Outstanding:")

	_, err := c.run(t, "assemble", testCase)
	assert.ErrorIs(t, err, report.ErrIncomplete)

	out = c.mustRun(t, "approve", testCase, "1")
	assert.Contains(t, out, "10-4")

	out = c.mustRun(t, "revise", testCase, "cp", "--notes", "use agency letterhead")
	assert.Contains(t, out, "10-9")

	out = c.mustRun(t, "halt", testCase, "--reason", "client call")
	assert.Contains(t, out, "HALTED")

	out = c.mustRun(t, "resume", testCase)
	assert.NotContains(t, out, "HALTED")

	out = c.mustRun(t, "resume", testCase)
	assert.Contains(t, out, "not halted")

	_, err = c.run(t, "reopen", testCase, "1")
	assert.Error(t, err, "authorization flag is required")

	out = c.mustRun(t, "reopen", testCase, "1", "--authorization", "supervisor ok")
	assert.Contains(t, out, "Marked stale")
}

func TestCLI_Evidence(t *testing.T) {
	c := newCLI(t)
	initCase(t, c)
	c.mustRun(t, "intake", testCase, writeUploads(t))

	out := c.mustRun(t, "evidence", "show", testCase, "E-001", "--text")
	assert.Contains(t, out, "E-001")
	assert.Contains(t, out, "received")

	out = c.mustRun(t, "evidence", "reclassify", testCase, "E-001", "5", "--reason", "misfiled")
	assert.Contains(t, out, "Section 5")

	out = c.mustRun(t, "custody", testCase, "--item", "E-001")
	assert.Contains(t, out, "reclassified")
	assert.Contains(t, out, "accessed")

	_, err := c.run(t, "evidence", "reclassify", testCase, "E-001", "12")
	assert.Error(t, err)
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "status", testCase)
	assert.ErrorIs(t, err, casefile.ErrCaseNotFound)

	_, err = c.run(t, "init", testCase)
	assert.Error(t, err)

	_, err = c.run(t, "init", "../escape", "--title", "x")
	var verr *casefile.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = c.run(t, "init", testCase, "--title", "x", "--report-type", "forensic")
	assert.ErrorIs(t, err, casefile.ErrInvalidReportType)

	initCase(t, c)
	_, err = c.run(t, "init", testCase, "--title", "again")
	assert.ErrorIs(t, err, casefile.ErrCaseExists)

	_, err = c.run(t, "approve", testCase, "13")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "version")
	assert.Equal(t, "reportengine version "+Version+" (build: "+BuildTime+")\n", out)
}
