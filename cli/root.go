package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the toolbridge command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "toolbridge",
		Short: "Discover and call protocol-described tools",
		Long: "toolbridge loads tool manuals (text, OpenAPI, MCP), translates their descriptors " +
			"into callable tools, and lets you list, search, inspect and call them.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to source config (default: ./toolbridge.yaml, then ~/.toolbridge/config.yaml)")
	flags.String("store-path", "", "Path to SQLite store (default: ~/.toolbridge/toolbridge.db)")
	flags.Bool("verbose", false, "Enable verbose/debug logging and print a metrics summary")
	flags.Bool("quiet", false, "Suppress all output except errors")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint URL for trace export")
	flags.Bool("json", false, "Print machine-readable JSON")

	if version != "" {
		root.Version = version
		root.SetVersionTemplate(fmt.Sprintf("toolbridge version %s\n", version))
	}

	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewSourcesCmd())
	root.AddCommand(NewWatchCmd())
	return root
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	if verbose && quiet {
		return exitError(exitValidation, "--verbose and --quiet are mutually exclusive")
	}

	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}
