package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arp-standard/arp-conformance/internal/spec"
)

// NewVersionCommand creates `version`: tool version plus the fingerprint
// of the embedded contract snapshot.
func NewVersionCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print tool version and contract snapshot fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := spec.Load("v1")
			if err != nil {
				return WrapExitError(ExitCommandError, "load contract snapshot", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "arp-conformance %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "contract %s\n", index.Ref())
			return nil
		},
	}
}
