// Package main provides the reportengine binary entry point.
// Reportengine takes case evidence in, renders the report sections through
// the approval gateway and assembles the final investigative report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "reportengine"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath  string
	root        string
	logLevel    string
	metricsAddr string
	actor       string
}

func rootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Investigative case report engine",
		Long: `Reportengine builds investigative case reports.

Evidence is taken into a per-case locker with a hash-chained custody log,
classified to report sections and summarized by the toolkit. Sections are
rendered in dependency order through an approval gateway and assembled
into report.md and report.html once every section is approved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	f.StringVar(&g.root, "root", "", "Workspace root (default: project config directory or cwd)")
	f.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.StringVar(&g.actor, "actor", defaultActor(), "Name recorded in custody and approval entries")

	cmd.AddCommand(
		initCmd(g),
		intakeCmd(g),
		watchCmd(g),
		runCmd(g),
		statusCmd(g),
		approveCmd(g),
		reviseCmd(g),
		reopenCmd(g),
		haltCmd(g),
		resumeCmd(g),
		evidenceCmd(g),
		custodyCmd(g),
		assembleCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "investigator"
}
