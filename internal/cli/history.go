package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arp-standard/arp-conformance/internal/history"
)

// NewHistoryCommand creates `history`: inspection of recorded runs.
func NewHistoryCommand(root *RootOptions) *cobra.Command {
	var (
		db      string
		service string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conformance runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if db == "" {
				return NewExitError(ExitCommandError, "--db is required")
			}
			store, err := history.Open(db)
			if err != nil {
				return WrapExitError(ExitCommandError, "open history database", err)
			}
			defer store.Close()

			entries, err := store.ListRuns(cmd.Context(), service, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "list runs", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
				return nil
			}
			for _, e := range entries {
				started := time.UnixMilli(e.StartedAtMS).UTC().Format(time.RFC3339)
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s service=%s tier=%s spec=%s ok=%t pass=%d fail=%d warn=%d skip=%d\n",
					e.ID, started, e.Service, e.Tier, e.SpecRef, e.OK,
					e.Counts.Pass, e.Counts.Fail, e.Counts.Warn, e.Counts.Skip,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "SQLite history file (required)")
	cmd.Flags().StringVar(&service, "service", "", "filter by service kind")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to list")
	return cmd
}
