package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/c360studio/reportengine/locker"
	"github.com/c360studio/reportengine/report"
	"github.com/c360studio/reportengine/section"
)

func evidenceCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Inspect and reclassify locker evidence",
	}
	cmd.AddCommand(evidenceListCmd(g), evidenceShowCmd(g), evidenceReclassifyCmd(g))
	return cmd
}

func evidenceListCmd(g *globalOptions) *cobra.Command {
	var sectionFilter string
	cmd := &cobra.Command{
		Use:   "list <case-id>",
		Short: "List evidence items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			app, err := openCase(ctx, g, args[0], nil)
			if err != nil {
				return err
			}
			defer app.Close()

			var items []*locker.Item
			if sectionFilter != "" {
				id, err := section.ParseID(sectionFilter)
				if err != nil {
					return err
				}
				items, err = app.locker.ItemsForSection(ctx, string(id))
				if err != nil {
					return err
				}
			} else if items, err = app.locker.Items(ctx); err != nil {
				return err
			}

			var total int64
			t := newTable(out, "Exhibit", "ID", "File", "Kind", "Section", "Status", "Size", "Added")
			for _, item := range items {
				total += item.Size
				t.AppendRow([]any{
					item.Exhibit, item.ID[:12], item.Filename, item.Kind, item.Section,
					item.Status, humanize.Bytes(uint64(item.Size)), humanize.Time(item.AddedAt),
				})
			}
			t.AppendFooter([]any{"", "", fmt.Sprintf("%d items", len(items)), "", "", "", humanize.Bytes(uint64(total)), ""})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&sectionFilter, "section", "", "Only items classified to this section")
	return cmd
}

func evidenceShowCmd(g *globalOptions) *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "show <case-id> <ref>",
		Short: "Show one item by exhibit, id or id prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			app, err := openCase(ctx, g, args[0], nil)
			if err != nil {
				return err
			}
			defer app.Close()

			item, err := app.locker.Resolve(ctx, args[1])
			if err != nil {
				return err
			}
			printItem(out, item)
			for _, e := range app.locker.Custody().EntriesFor(item.ID) {
				fmt.Fprintf(out, "  %s %-12s %s %s\n", faintStyle.Render(fmt.Sprintf("#%d", e.Seq)), e.Action, e.Actor, e.Detail)
			}

			if !showText {
				return nil
			}
			text, err := app.locker.Text(ctx, item.ID)
			if err != nil {
				return err
			}
			if err := app.locker.RecordAccess(ctx, item.ID, g.actor, "text viewed"); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "Print the extracted text (recorded as an access)")
	return cmd
}

func printItem(out io.Writer, item *locker.Item) {
	fmt.Fprintf(out, "%s %s\n", boldStyle.Render(item.Exhibit), item.Filename)
	fmt.Fprintf(out, "  id:       %s\n", item.ID)
	fmt.Fprintf(out, "  sha256:   %s\n", item.SHA256)
	fmt.Fprintf(out, "  size:     %s (%s)\n", humanize.Bytes(uint64(item.Size)), item.MimeType)
	fmt.Fprintf(out, "  section:  %s (rule %s)\n", item.Section, item.Rule)
	fmt.Fprintf(out, "  status:   %s\n", item.Status)
	if item.ExtractMethod != "" {
		fmt.Fprintf(out, "  method:   %s\n", item.ExtractMethod)
	}
	if item.Error != "" {
		fmt.Fprintf(out, "  error:    %s\n", errStyle.Render(item.Error))
	}
	for _, w := range item.Warnings {
		fmt.Fprintf(out, "  warning:  %s\n", warnStyle.Render(w))
	}
}

func evidenceReclassifyCmd(g *globalOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reclassify <case-id> <ref> <section>",
		Short: "Move an item to another section",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openCase(ctx, g, args[0], nil)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := section.ParseID(args[2])
			if err != nil {
				return err
			}
			item, err := app.locker.Resolve(ctx, args[1])
			if err != nil {
				return err
			}
			item, err = app.locker.Reclassify(ctx, item.ID, string(id), g.actor, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", okStyle.Render("Reclassified"), item.Exhibit, id.Label())
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the custody log")
	return cmd
}

func custodyCmd(g *globalOptions) *cobra.Command {
	var (
		verify bool
		ref    string
	)
	cmd := &cobra.Command{
		Use:   "custody <case-id>",
		Short: "Print or verify the chain-of-custody log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			app, err := openCase(ctx, g, args[0], nil)
			if err != nil {
				return err
			}
			defer app.Close()

			log := app.locker.Custody()
			if verify {
				if err := log.Verify(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %d entries, head %s\n", okStyle.Render("Custody chain intact:"), log.Len(), log.Head())
				return nil
			}

			entries := log.Entries()
			if ref != "" {
				item, err := app.locker.Resolve(ctx, ref)
				if err != nil {
					return err
				}
				entries = log.EntriesFor(item.ID)
			}
			exhibits := map[string]string{}
			if items, err := app.locker.Items(ctx); err == nil {
				for _, item := range items {
					exhibits[item.ID] = item.Exhibit
				}
			}

			t := newTable(out, "Seq", "At", "Action", "Exhibit", "Actor", "Detail", "Hash")
			for _, e := range entries {
				t.AppendRow([]any{e.Seq, e.At.Format("2006-01-02 15:04:05"), e.Action, exhibits[e.ItemID], e.Actor, e.Detail, e.Hash[:12]})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the hash chain instead of printing it")
	cmd.Flags().StringVar(&ref, "item", "", "Only entries for this exhibit or id")
	return cmd
}

func assembleCmd(g *globalOptions) *cobra.Command {
	var (
		preview bool
		width   int
	)
	cmd := &cobra.Command{
		Use:   "assemble <case-id>",
		Short: "Assemble report.md and report.html from the approved sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			app, err := openCase(ctx, g, args[0], io.Discard)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := report.NewAssembler(report.Options{
				Workspace: app.ws,
				Bundle:    app.bundle,
				Locker:    app.locker,
				Actor:     g.actor,
				Logger:    app.logger,
			}).Assemble(ctx, app.gateway)
			if err != nil {
				return err
			}

			if preview {
				rendered, err := report.Preview(res.Markdown, width)
				if err != nil {
					return err
				}
				fmt.Fprint(out, rendered)
			}
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("Wrote"), res.MarkdownPath)
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("Wrote"), res.HTMLPath)
			fmt.Fprintf(out, "%s %s (%d exhibits cited)\n", okStyle.Render("Wrote"), res.ManifestPath, len(res.Manifest.Exhibits))
			return nil
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Render the report to the terminal")
	cmd.Flags().IntVar(&width, "width", 80, "Preview word-wrap width")
	return cmd
}
