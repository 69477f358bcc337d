package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/arp-standard/arp-conformance/internal/engine"
	"github.com/arp-standard/arp-conformance/internal/history"
	"github.com/arp-standard/arp-conformance/internal/registry"
	"github.com/arp-standard/arp-conformance/internal/report"
)

// checkOptions holds the flags shared by every check subcommand.
type checkOptions struct {
	URL            string
	Tier           string
	Headers        []string
	HeadersFile    string
	Timeout        time.Duration
	Retries        int
	PollTimeout    time.Duration
	PollInterval   time.Duration
	AllowMutations bool
	NoCleanup      bool
	Strict         bool
	Format         string
	Out            string
	ToolID         string
	ToolName       string
	RuntimeProfile string
	SpecVersion    string
	ConfigFile     string
	DB             string

	// fileHeaders is the headers map loaded from --config, merged under
	// flag-provided headers.
	fileHeaders map[string]string
}

// NewCheckCommand creates `check` with one subcommand per service kind
// plus `all`.
func NewCheckCommand(root *RootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run conformance checks against a live service",
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.URL, "url", "", "base URL of the service under test (required)")
	pf.StringVar(&opts.Tier, "tier", "smoke", "check tier (smoke|surface|core|deep)")
	pf.StringArrayVarP(&opts.Headers, "header", "H", nil, "request header KEY=VALUE (repeatable)")
	pf.StringVar(&opts.HeadersFile, "headers-file", "", "file with one KEY=VALUE header per line")
	pf.DurationVar(&opts.Timeout, "timeout", engine.DefaultTimeout, "per-request timeout")
	pf.IntVar(&opts.Retries, "retries", 0, "transport-level retries per request")
	pf.DurationVar(&opts.PollTimeout, "poll-timeout", engine.DefaultPollTimeout, "max wait for an async run to reach a terminal state")
	pf.DurationVar(&opts.PollInterval, "poll-interval", engine.DefaultPollInterval, "pause between status polls")
	pf.BoolVar(&opts.AllowMutations, "allow-mutations", false, "permit tiers that create real resources on the target")
	pf.BoolVar(&opts.NoCleanup, "no-cleanup", false, "leave created resources behind instead of deleting them")
	pf.BoolVar(&opts.Strict, "strict", false, "treat WARN and SKIP as failures")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json|junit)")
	pf.StringVar(&opts.Out, "out", "", "write rendered output to a file instead of stdout")
	pf.StringVar(&opts.ToolID, "tool-id", "", "tool id to invoke in the tool-registry workflow")
	pf.StringVar(&opts.ToolName, "tool-name", "", "tool name to invoke when --tool-id is not given")
	pf.StringVar(&opts.RuntimeProfile, "runtime-profile", "", "runtime profile for the daemon workflow")
	pf.StringVar(&opts.SpecVersion, "spec", "", "contract snapshot version (default v1)")
	pf.StringVar(&opts.ConfigFile, "config", "", "YAML file with defaults for these flags")
	pf.StringVar(&opts.DB, "db", "", "SQLite file to record run history in")

	for _, kind := range registry.ServiceKinds() {
		cmd.AddCommand(newServiceCommand(opts, kind))
	}
	cmd.AddCommand(newAllCommand(opts))
	return cmd
}

func newServiceCommand(opts *checkOptions, kind registry.ServiceKind) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Check a %s service", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, []registry.ServiceKind{kind}, nil)
		},
	}
}

func newAllCommand(opts *checkOptions) *cobra.Command {
	urls := make(map[registry.ServiceKind]*string)
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Check runtime, tool-registry, and daemon concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, registry.ServiceKinds(), urls)
		},
	}
	for _, kind := range registry.ServiceKinds() {
		urls[kind] = cmd.Flags().String(string(kind)+"-url",
			"", fmt.Sprintf("base URL of the %s service (overrides --url)", kind))
	}
	return cmd
}

// runCheck builds one runner per service kind, runs them, and renders the
// collected reports. urls, when non-nil, holds per-service base URL
// overrides; a kind with an empty override falls back to --url.
func runCheck(cmd *cobra.Command, opts *checkOptions, kinds []registry.ServiceKind, urls map[registry.ServiceKind]*string) error {
	if err := opts.applyConfigFile(cmd.Flags()); err != nil {
		return WrapExitError(ExitCommandError, "load config file", err)
	}
	if !isValidFormat(opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	headers, err := opts.buildHeaders()
	if err != nil {
		return WrapExitError(ExitCommandError, "parse headers", err)
	}

	// Build every runner before sending anything: invalid configuration
	// must surface before the first request.
	runners := make([]*engine.Runner, len(kinds))
	for i, kind := range kinds {
		baseURL := opts.URL
		if urls != nil && *urls[kind] != "" {
			baseURL = *urls[kind]
		}
		r, err := engine.New(engine.Config{
			Service:        kind,
			Tier:           registry.Tier(opts.Tier),
			BaseURL:        baseURL,
			Headers:        headers,
			Timeout:        opts.Timeout,
			Retries:        opts.Retries,
			PollTimeout:    opts.PollTimeout,
			PollInterval:   opts.PollInterval,
			AllowMutations: opts.AllowMutations,
			NoCleanup:      opts.NoCleanup,
			Strict:         opts.Strict,
			ToolID:         opts.ToolID,
			ToolName:       opts.ToolName,
			RuntimeProfile: opts.RuntimeProfile,
			SpecVersion:    opts.SpecVersion,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, string(kind), err)
		}
		runners[i] = r
	}

	// Each run owns its config, resources, and report; runs share
	// nothing, so they execute concurrently and are collected in the
	// fixed declaration order.
	ctx := cmd.Context()
	reports := make([]*report.Report, len(runners))
	runErrs := make([]error, len(runners))
	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func(i int, r *engine.Runner) {
			defer wg.Done()
			reports[i], runErrs[i] = r.Run(ctx)
		}(i, r)
	}
	wg.Wait()
	for i, err := range runErrs {
		if err != nil {
			return WrapExitError(ExitCommandError, string(kinds[i]), err)
		}
	}

	rendered, err := renderReports(opts.Format, reports)
	if err != nil {
		return WrapExitError(ExitCommandError, "render report", err)
	}
	if err := writeOutput(cmd.OutOrStdout(), opts.Out, rendered); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}

	if opts.DB != "" {
		if err := saveHistory(cmd, opts.DB, reports); err != nil {
			return WrapExitError(ExitCommandError, "record history", err)
		}
	}

	for _, rep := range reports {
		if !rep.OK() {
			return NewExitError(ExitFailure, "conformance checks failed")
		}
	}
	return nil
}

func saveHistory(cmd *cobra.Command, path string, reports []*report.Report) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	for _, rep := range reports {
		if _, err := store.SaveReport(cmd.Context(), rep); err != nil {
			return err
		}
	}
	return nil
}
