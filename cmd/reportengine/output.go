package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/c360studio/reportengine/gateway"
	"github.com/c360studio/reportengine/section"
)

var (
	boldStyle   = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	signalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
)

func newTable(out io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row(header))
	return t
}

// signalPrinter echoes drained gateway signals to out.
func signalPrinter(out io.Writer) gateway.Observer {
	return gateway.ObserverFunc(func(_ context.Context, s gateway.Signal) error {
		line := signalStyle.Render(string(s.Code)) + " " + s.Code.Meaning()
		if s.Section != "" {
			line += " " + boldStyle.Render(s.Section.Label())
		}
		if s.Note != "" {
			line += faintStyle.Render(": " + s.Note)
		}
		_, err := fmt.Fprintln(out, line)
		return err
	})
}

func statusText(st gateway.SectionState) string {
	text := string(st.Status)
	switch {
	case st.Stale:
		return errStyle.Render(text + " (stale)")
	case st.Status == section.StatusApproved:
		return okStyle.Render(text)
	case st.Status == section.StatusFailed:
		return errStyle.Render(text)
	case st.Status == section.StatusCompleted, st.Status == section.StatusRevisionRequested:
		return warnStyle.Render(text)
	default:
		return text
	}
}

func qaText(st gateway.SectionState) string {
	switch {
	case st.QAErrors > 0:
		return errStyle.Render(fmt.Sprintf("%d err / %d warn", st.QAErrors, st.QAWarnings))
	case st.QAWarnings > 0:
		return warnStyle.Render(fmt.Sprintf("%d warn", st.QAWarnings))
	default:
		return faintStyle.Render("-")
	}
}
