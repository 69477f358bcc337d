// Package engine orchestrates one conformance run: it executes the
// registry's ordered checks and workflow steps against a live service,
// records outcomes into a report, and cleans up whatever the workflow
// created.
//
// Execution within a run is single-threaded. Checks are recorded in
// declaration order; a failed step skips its transitive dependents but
// never aborts the run. The only error that stops a run before it starts
// is ConfigError, raised before any request is sent.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arp-standard/arp-conformance/internal/probe"
	"github.com/arp-standard/arp-conformance/internal/registry"
	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/schema"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Runner executes conformance runs for one configuration. A Runner is
// immutable after New and may be reused for repeated runs.
type Runner struct {
	cfg    Config
	index  *spec.Index
	check  *schema.Validator
	client *probe.Client
	ids    TokenSource
	log    *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithTokenSource overrides identifier generation, for deterministic
// tests.
func WithTokenSource(ts TokenSource) Option {
	return func(r *Runner) { r.ids = ts }
}

// New validates cfg and builds a Runner. Validation happens here, before
// any network I/O: a mutation tier without AllowMutations, a bad URL, or
// an unknown service/tier returns a ConfigError and no request is ever
// sent.
func New(cfg Config, opts ...Option) (*Runner, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	index, err := spec.Load(cfg.SpecVersion)
	if err != nil {
		return nil, fmt.Errorf("load contract snapshot: %w", err)
	}
	r := &Runner{
		cfg:    cfg,
		index:  index,
		check:  schema.NewValidator(index),
		client: probe.New(probe.Config{
			BaseURL: cfg.BaseURL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout,
			Retries: cfg.Retries,
		}),
		ids: NewTokenSource(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SpecRef returns the fingerprint of the contract snapshot the Runner
// validates against.
func (r *Runner) SpecRef() string {
	return r.index.Ref()
}

// Run executes the configured tier and returns the report. The report is
// always complete: per-check failures become check outcomes, never
// returned errors.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(string(r.cfg.Service), string(r.cfg.Tier), r.index.Ref(), r.cfg.Strict)
	rn := &run{
		r:        r,
		rep:      rep,
		vars:     make(map[string]string),
		outcomes: make(map[string]report.Outcome),
	}

	r.log.Info("starting conformance run",
		"service", r.cfg.Service,
		"tier", r.cfg.Tier,
		"url", r.cfg.BaseURL,
		"spec", r.index.Ref(),
	)

	for _, def := range registry.SmokeChecks() {
		rn.simple(ctx, def)
	}
	if r.cfg.Tier.Includes(registry.TierSurface) {
		rn.surface(ctx)
	}
	if r.cfg.Tier.RequiresMutations() {
		for _, def := range registry.Steps(r.cfg.Service, r.cfg.Tier) {
			rn.step(ctx, def)
		}
		rn.cleanup()
	}

	rep.Finish()
	counts := rep.Counts()
	r.log.Info("conformance run finished",
		"ok", rep.OK(),
		"pass", counts.Pass,
		"fail", counts.Fail,
		"warn", counts.Warn,
		"skip", counts.Skip,
	)
	return rep, nil
}

// run is the mutable state of one Run invocation: accumulated report,
// workflow variables, created resources, and per-check outcomes for
// dependency resolution.
type run struct {
	r   *Runner
	rep *report.Report

	vars     map[string]string
	tools    []map[string]any
	tool     map[string]any
	version  map[string]any
	profiles []any

	// prereqMissing is set when the tool workflow found nothing to
	// invoke; it downgrades the invocation step from SKIP to WARN.
	prereqMissing bool

	handles  []resourceHandle
	outcomes map[string]report.Outcome
}

func (rn *run) record(c report.Check) {
	rn.outcomes[c.ID] = c.Outcome
	rn.rep.Append(c)
	rn.r.log.Debug("check recorded", "id", c.ID, "outcome", c.Outcome, "duration_ms", c.DurationMS)
}

// simple executes one dependency-free check.
func (rn *run) simple(ctx context.Context, def registry.CheckDef) {
	chk := report.Check{ID: def.ID, Name: def.Name}
	start := time.Now()
	switch def.Op {
	case registry.OpHealth:
		rn.checkHealth(ctx, &chk)
	case registry.OpVersion:
		rn.checkVersion(ctx, &chk)
	case registry.OpVersionCompat:
		rn.checkVersionCompat(&chk)
	default:
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("No handler for op %q", def.Op)
	}
	chk.DurationMS = time.Since(start).Milliseconds()
	rn.record(chk)
}

// step executes one workflow step, honoring dependency edges: a step
// whose dependency did not pass is recorded as SKIP without touching the
// network, and the skip cascades to its own dependents the same way.
func (rn *run) step(ctx context.Context, def registry.StepDef) {
	chk := report.Check{ID: def.ID, Name: def.Name}
	if dep, blocked := rn.blockedBy(def); blocked {
		if def.Op == registry.OpInvokeTool && rn.prereqMissing {
			chk.Outcome = report.OutcomeWarn
			chk.Message = "Skipping invocation because no tools were available"
		} else {
			chk.Outcome = report.OutcomeSkip
			chk.Message = fmt.Sprintf("Dependency %s did not succeed", dep)
		}
		rn.record(chk)
		return
	}

	start := time.Now()
	switch def.Op {
	case registry.OpCreateRun:
		rn.stepCreateRun(ctx, &chk)
	case registry.OpPollRun:
		rn.stepPollRun(ctx, &chk)
	case registry.OpFetchRunResult:
		rn.stepFetchRunResult(ctx, &chk)
	case registry.OpListTools:
		rn.stepListTools(ctx, &chk)
	case registry.OpSelectTool:
		rn.stepSelectTool(&chk)
	case registry.OpGetTool:
		rn.stepGetTool(ctx, &chk)
	case registry.OpInvokeTool:
		rn.stepInvokeTool(ctx, &chk)
	case registry.OpListProfiles:
		rn.stepListProfiles(ctx, &chk)
	case registry.OpEnsureProfile:
		rn.stepEnsureProfile(ctx, &chk)
	case registry.OpCreateInstance:
		rn.stepCreateInstance(ctx, &chk)
	case registry.OpSubmitRun:
		rn.stepSubmitRun(ctx, &chk)
	case registry.OpCancelRun:
		rn.stepCancelRun(ctx, &chk)
	case registry.OpStreamEvents:
		rn.stepStreamEvents(ctx, &chk)
	case registry.OpFetchTrace:
		rn.stepFetchTrace(ctx, &chk)
	default:
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("No handler for op %q", def.Op)
	}
	chk.DurationMS = time.Since(start).Milliseconds()
	rn.record(chk)
}

func (rn *run) blockedBy(def registry.StepDef) (string, bool) {
	for _, dep := range def.DependsOn {
		if rn.outcomes[dep] != report.OutcomePass {
			return dep, true
		}
	}
	return "", false
}

// newExchange captures request/response evidence for a check.
func newExchange(method string, body any, resp *probe.Response) *report.Exchange {
	ex := &report.Exchange{
		Method:      method,
		URL:         resp.URL,
		Status:      resp.Status,
		ContentType: resp.ContentType,
		BodyExcerpt: resp.Excerpt(512),
	}
	if body != nil {
		if raw, err := json.Marshal(body); err == nil {
			ex.RequestBody = raw
		}
	}
	return ex
}

// transportFail records a request that produced no HTTP response.
// Optional endpoints degrade to WARN: an unreachable optional endpoint
// is consistent with "not implemented".
func transportFail(chk *report.Check, err error, optional bool) {
	if optional {
		chk.Outcome = report.OutcomeWarn
		chk.Message = "Optional endpoint unreachable"
	} else {
		chk.Outcome = report.OutcomeFail
		chk.Message = "Request failed before an HTTP response was received"
	}
	chk.Evidence = append(chk.Evidence, err.Error())
}

// authRejected handles 401/403 dispositions: WARN when the run carried
// no credentials, FAIL when credentials were supplied and still
// rejected. Returns true when it consumed the response.
func (rn *run) authRejected(chk *report.Check, resp *probe.Response) bool {
	if resp.Status != http.StatusUnauthorized && resp.Status != http.StatusForbidden {
		return false
	}
	if rn.r.hasCredentials() {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Credentials were supplied but rejected (%d)", resp.Status)
	} else {
		chk.Outcome = report.OutcomeWarn
		chk.Message = fmt.Sprintf("Endpoint requires authentication (%d); supply credentials to exercise it", resp.Status)
	}
	return true
}

func (r *Runner) hasCredentials() bool {
	for k := range r.cfg.Headers {
		switch http.CanonicalHeaderKey(k) {
		case "Authorization", "X-Api-Key":
			return true
		}
	}
	return false
}

// checkBody validates a response body against a named schema, filling
// chk and returning false on parse failure or violations.
func (rn *run) checkBody(chk *report.Check, body []byte, schemaName, what string) bool {
	violations, err := rn.r.check.Validate(schemaName, body)
	if err != nil {
		chk.Outcome = report.OutcomeFail
		chk.Message = what + " JSON parse failed"
		chk.Evidence = append(chk.Evidence, err.Error())
		return false
	}
	if len(violations) > 0 {
		chk.Outcome = report.OutcomeFail
		chk.Message = what + " did not match schema"
		chk.Evidence = append(chk.Evidence, schema.Strings(violations)...)
		return false
	}
	return true
}

// checkArrayBody validates each element of a JSON array body against a
// named schema.
func (rn *run) checkArrayBody(chk *report.Check, body []byte, schemaName, what string) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		chk.Outcome = report.OutcomeFail
		chk.Message = "Expected JSON array"
		chk.Evidence = append(chk.Evidence, err.Error())
		return false
	}
	var evidence []string
	for i, item := range items {
		violations, err := rn.r.check.Validate(schemaName, item)
		if err != nil {
			evidence = append(evidence, fmt.Sprintf("[%d] %v", i, err))
			continue
		}
		for _, v := range violations {
			evidence = append(evidence, fmt.Sprintf("[%d] %s", i, v))
		}
	}
	if len(evidence) > 0 {
		chk.Outcome = report.OutcomeFail
		chk.Message = what + " did not match schema"
		chk.Evidence = append(chk.Evidence, evidence...)
		return false
	}
	return true
}

// envelopeEvidence validates an error response against the error
// envelope schema and returns the violations as evidence lines. Used to
// enrich FAIL checks caused by unexpected error statuses.
func (rn *run) envelopeEvidence(body []byte) []string {
	violations, err := rn.r.check.Validate(spec.SchemaError, body)
	if err != nil {
		return []string{"error response was not valid JSON: " + err.Error()}
	}
	return schema.Strings(violations)
}
