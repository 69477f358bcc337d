// Package cli wires the conformance engine into a cobra command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is the tool version, overridable at build time via -ldflags.
var Version = "dev"

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the conformance CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "arp-conformance",
		Short:         "Conformance checker for ARP platform services",
		Long:          "Validates a live runtime, tool registry, or daemon against the versioned ARP wire contract, in tiers from read-only smoke checks to full workflow exercises.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}
