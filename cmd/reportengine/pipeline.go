package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/c360studio/reportengine/gateway"
	"github.com/c360studio/reportengine/section"
)

func parseSections(args []string) ([]section.ID, error) {
	ids := make([]section.ID, 0, len(args))
	for _, a := range args {
		id, err := section.ParseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// gatewayCommand opens the case gateway, applies fn and then runs the
// dispatch loop so queued signals drain and newly unblocked sections render.
func gatewayCommand(g *globalOptions, fn func(ctx context.Context, out io.Writer, app *caseApp, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		app, err := openCase(ctx, g, args[0], out)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := fn(ctx, out, app, args[1:]); err != nil {
			return err
		}
		if err := app.gateway.Run(ctx); err != nil {
			return err
		}
		printStatus(out, app.gateway.State())
		return nil
	}
}

func runCmd(g *globalOptions) *cobra.Command {
	var autoApprove bool
	cmd := &cobra.Command{
		Use:   "run <case-id>",
		Short: "Run the toolkit and render every dispatchable section",
		Args:  cobra.ExactArgs(1),
		RunE: gatewayCommand(g, func(_ context.Context, _ io.Writer, app *caseApp, _ []string) error {
			if autoApprove {
				app.cfg.Gateway.AutoApprove = true
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Approve completed sections without QA errors")
	return cmd
}

func statusCmd(g *globalOptions) *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "status <case-id>",
		Short: "Show section status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			app, err := openCase(cmd.Context(), g, args[0], io.Discard)
			if err != nil {
				return err
			}
			defer app.Close()

			snap := app.gateway.State()
			meta := app.bundle.CaseMetadata
			fmt.Fprintf(out, "%s %s\n", boldStyle.Render(meta.CaseID), meta.Title)
			printStatus(out, snap)
			if history {
				printHistory(out, snap.History)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "Show drained signal history")
	return cmd
}

func printStatus(out io.Writer, snap gateway.Snapshot) {
	t := newTable(out, "Section", "Title", "Status", "Ver", "QA", "Updated")
	for _, st := range snap.Sections {
		updated := "-"
		if !st.UpdatedAt.IsZero() {
			updated = humanize.Time(st.UpdatedAt)
		}
		t.AppendRow([]any{string(st.ID), st.ID.Title(), statusText(st), st.Version, qaText(st), updated})
	}
	t.Render()

	if snap.ReportType != "" {
		fmt.Fprintf(out, "Report type: %s\n", snap.ReportType)
	}
	if snap.Halted {
		fmt.Fprintln(out, errStyle.Render("HALTED")+" "+snap.HaltReason)
	}
	switch {
	case snap.Complete():
		fmt.Fprintln(out, okStyle.Render("All sections approved; ready to assemble."))
	default:
		var ids []string
		for _, id := range snap.Outstanding() {
			ids = append(ids, string(id))
		}
		fmt.Fprintf(out, "Outstanding: %s\n", strings.Join(ids, ", "))
	}
}

func printHistory(out io.Writer, history []gateway.Signal) {
	t := newTable(out, "At", "Signal", "Section", "Actor", "Note")
	for _, s := range history {
		t.AppendRow([]any{s.At.Format("2006-01-02 15:04:05"), string(s.Code), string(s.Section), s.Actor, s.Note})
	}
	t.Render()
}

func approveCmd(g *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "approve <case-id> <section>...",
		Short: "Approve completed sections (10-4)",
		Args:  cobra.MinimumNArgs(2),
		RunE: gatewayCommand(g, func(ctx context.Context, _ io.Writer, app *caseApp, args []string) error {
			ids, err := parseSections(args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := app.gateway.Approve(ctx, id, g.actor, force); err != nil {
					return fmt.Errorf("approve %s: %w", id.Label(), err)
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "Approve over error-level QA flags")
	return cmd
}

func reviseCmd(g *globalOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "revise <case-id> <section>",
		Short: "Request a revision of a completed section (10-9)",
		Args:  cobra.ExactArgs(2),
		RunE: gatewayCommand(g, func(ctx context.Context, _ io.Writer, app *caseApp, args []string) error {
			id, err := section.ParseID(args[0])
			if err != nil {
				return err
			}
			return app.gateway.RequestRevision(ctx, id, g.actor, notes)
		}),
	}
	cmd.Flags().StringVar(&notes, "notes", "", "Revision notes passed to the renderer (required)")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func reopenCmd(g *globalOptions) *cobra.Command {
	var authorization string
	cmd := &cobra.Command{
		Use:   "reopen <case-id> <section>",
		Short: "Reopen an approved section and mark its dependents stale",
		Args:  cobra.ExactArgs(2),
		RunE: gatewayCommand(g, func(ctx context.Context, out io.Writer, app *caseApp, args []string) error {
			id, err := section.ParseID(args[0])
			if err != nil {
				return err
			}
			stale, err := app.gateway.Reopen(ctx, id, g.actor, authorization)
			if err != nil {
				return err
			}
			if len(stale) > 0 {
				labels := make([]string, len(stale))
				for i, s := range stale {
					labels[i] = s.Label()
				}
				fmt.Fprintln(out, warnStyle.Render("Marked stale: "+strings.Join(labels, ", ")))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&authorization, "authorization", "", "Authorization reference for reopening (required)")
	_ = cmd.MarkFlagRequired("authorization")
	return cmd
}

func haltCmd(g *globalOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "halt <case-id>",
		Short: "Halt dispatch for the case (10-10)",
		Args:  cobra.ExactArgs(1),
		RunE: gatewayCommand(g, func(ctx context.Context, _ io.Writer, app *caseApp, _ []string) error {
			return app.gateway.Halt(ctx, g.actor, reason)
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the halt")
	return cmd
}

func resumeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <case-id>",
		Short: "Resume dispatch after a halt",
		Args:  cobra.ExactArgs(1),
		RunE: gatewayCommand(g, func(ctx context.Context, out io.Writer, app *caseApp, _ []string) error {
			err := app.gateway.Resume(ctx, g.actor)
			if errors.Is(err, gateway.ErrNotHalted) {
				fmt.Fprintln(out, faintStyle.Render("Case was not halted."))
				return nil
			}
			return err
		}),
	}
}
