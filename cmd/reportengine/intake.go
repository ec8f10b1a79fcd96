package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/c360studio/reportengine/casefile"
	"github.com/c360studio/reportengine/config"
	"github.com/c360studio/reportengine/processor/intake"
	"github.com/c360studio/reportengine/source/ocr"
	"github.com/c360studio/reportengine/source/parser"
)

func initCmd(g *globalOptions) *cobra.Command {
	var (
		meta       casefile.Metadata
		reportType string
		assigned   string
	)

	cmd := &cobra.Command{
		Use:   "init <case-id>",
		Short: "Create a case workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(g.logLevel)
			cfg, err := g.loadConfig(logger)
			if err != nil {
				return err
			}

			meta.CaseID = args[0]
			if reportType != "" {
				rt, err := casefile.ParseReportType(reportType)
				if err != nil {
					return err
				}
				meta.ReportTypeHint = rt
			}
			if assigned != "" {
				t, err := dateparse.ParseIn(assigned, time.UTC)
				if err != nil {
					return fmt.Errorf("parse --assigned %q: %w", assigned, err)
				}
				meta.AssignmentDate = t.Format(time.DateOnly)
			}

			ws := casefile.NewWorkspace(cfg.Workspace.Root)
			if _, err := ws.Create(cmd.Context(), meta); err != nil {
				return err
			}
			path, err := config.NewLoader(logger).EnsureProjectConfig(cfg.Workspace.Root)
			if err != nil {
				logger.Warn("Failed to write project config", "error", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s case %s at %s\n", okStyle.Render("Created"), boldStyle.Render(meta.CaseID), ws.CasePath(meta.CaseID))
			if path != "" {
				fmt.Fprintln(out, faintStyle.Render("config: "+path))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&meta.Title, "title", "", "Case title (required)")
	f.StringVar(&meta.Client, "client", "", "Client name")
	f.StringVar(&meta.ClientContact, "client-contact", "", "Client contact")
	f.StringVar(&meta.Agency, "agency", "", "Investigating agency")
	f.StringVar(&meta.Investigator, "investigator", "", "Lead investigator")
	f.StringVar(&meta.License, "license", "", "Investigator license number")
	f.StringVar(&meta.Subject.Name, "subject", "", "Subject name")
	f.StringVar(&meta.Subject.Address, "subject-address", "", "Subject address")
	f.StringSliceVar(&meta.Subject.Vehicles, "vehicle", nil, "Subject vehicle (repeatable)")
	f.StringArrayVar(&meta.Objectives, "objective", nil, "Case objective (repeatable)")
	f.StringVar(&reportType, "report-type", "", "Report type hint (surveillance, investigative, hybrid)")
	f.StringVar(&assigned, "assigned", "", "Assignment date")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newProcessor(app *caseApp) (*intake.Processor, error) {
	engine := ocr.FromConfig(app.cfg.OCR, app.logger)
	return intake.NewProcessor(intake.Options{
		Locker:  app.locker,
		Parsers: parser.NewRegistry(engine, app.logger),
		Config:  app.cfg.Intake,
		Metrics: app.metrics,
		Logger:  app.logger,
	})
}

func intakeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "intake <case-id> <path>...",
		Short: "Take files or directories into the evidence locker",
		Long: `Stores each file in the case locker, extracts its text and classifies it
to a report section. Directories are walked with the configured include and
exclude patterns; files named explicitly are always taken in.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			app, err := openCase(ctx, g, args[0], io.Discard)
			if err != nil {
				return err
			}
			defer app.Close()

			p, err := newProcessor(app)
			if err != nil {
				return err
			}
			res, err := p.Process(ctx, args[0], args[1:], g.actor)
			if err != nil {
				return err
			}
			printIntake(out, res)

			if app.gateway.State().ToolkitReady && res.Processed > 0 {
				fmt.Fprintln(out, warnStyle.Render("The toolkit has already run for this case; new evidence is not summarized until affected sections are reopened."))
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d file(s) failed intake", res.Failed)
			}
			return nil
		},
	}
}

func watchCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <case-id> <dir>",
		Short: "Watch an upload directory and take new files in as they settle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			app, err := openCase(ctx, g, args[0], nil)
			if err != nil {
				return err
			}
			defer app.Close()

			p, err := newProcessor(app)
			if err != nil {
				return err
			}
			w, err := intake.NewWatcher(args[1], p.Filter(), app.cfg.Intake.Debounce, app.logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			fmt.Fprintf(out, "Watching %s for case %s (Ctrl-C to stop)\n", args[1], boldStyle.Render(args[0]))
			return watchLoop(ctx, out, w, p, args[0], g.actor)
		},
	}
}

func watchLoop(ctx context.Context, out io.Writer, w *intake.Watcher, p *intake.Processor, caseID, actor string) error {
	for ev := range w.Events() {
		res, err := p.Process(ctx, caseID, []string{ev.AbsPath}, actor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintf(out, "%s %s\n", faintStyle.Render(string(ev.Op)), ev.Path)
		printIntake(out, res)
	}
	return nil
}

func printIntake(out io.Writer, res *intake.Result) {
	if len(res.Items) > 0 {
		t := newTable(out, "Exhibit", "File", "Section", "Method", "Status")
		for _, item := range res.Items {
			t.AppendRow([]any{item.Exhibit, item.Filename, item.Section, item.ExtractMethod, item.Status})
		}
		t.Render()
	}
	for _, fe := range res.Errors {
		fmt.Fprintln(out, errStyle.Render("! ")+fe.Error())
	}
	fmt.Fprintf(out, "%d processed, %d failed, %d duplicate\n", res.Processed, res.Failed, res.Duplicates)
}
