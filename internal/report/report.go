// Package report defines conformance check outcomes and their aggregation
// into a per-run report, plus text, JSON, and JUnit renderings.
package report

import (
	"encoding/json"
	"time"
)

// Outcome is the terminal state of a single check.
// A check is assigned exactly one outcome, exactly once.
type Outcome string

const (
	OutcomePass Outcome = "PASS"
	OutcomeFail Outcome = "FAIL"
	OutcomeWarn Outcome = "WARN"
	OutcomeSkip Outcome = "SKIP"
)

// Exchange captures the HTTP request/response pair a check is based on.
// Attached to checks as evidence; response bodies are excerpted, never
// stored whole.
type Exchange struct {
	Method      string          `json:"method,omitempty"`
	URL         string          `json:"url,omitempty"`
	Status      int             `json:"status,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	BodyExcerpt string          `json:"body_excerpt,omitempty"`
}

// Check is one recorded verification unit. Immutable once appended to a
// report.
type Check struct {
	ID         string    `json:"check_id"`
	Name       string    `json:"name"`
	Outcome    Outcome   `json:"outcome"`
	Message    string    `json:"message"`
	Exchange   *Exchange `json:"exchange,omitempty"`
	Evidence   []string  `json:"evidence,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// Counts holds per-outcome totals for a report.
type Counts struct {
	Pass int `json:"pass"`
	Fail int `json:"fail"`
	Warn int `json:"warn"`
	Skip int `json:"skip"`
}

// Report is the result of one service/tier run.
//
// Checks are appended in declaration order by the single orchestrator
// goroutine that owns the report; the slice order is the output order.
// A report is never mutated after the run completes.
type Report struct {
	Service       string
	Tier          string
	SpecRef       string
	Strict        bool
	StartedAtMS   int64
	FinishedAtMS  int64
	Checks        []Check
	CleanupErrors []string
}

// New creates an empty report stamped with the current time.
func New(service, tier, specRef string, strict bool) *Report {
	return &Report{
		Service:     service,
		Tier:        tier,
		SpecRef:     specRef,
		Strict:      strict,
		StartedAtMS: time.Now().UnixMilli(),
	}
}

// Append records a check outcome. Declaration order is preserved: the
// orchestrator appends checks in the order the registry declares them.
func (r *Report) Append(c Check) {
	r.Checks = append(r.Checks, c)
}

// AddCleanupError records a non-fatal cleanup failure. Cleanup errors
// never alter check outcomes.
func (r *Report) AddCleanupError(msg string) {
	r.CleanupErrors = append(r.CleanupErrors, msg)
}

// Finish stamps the completion time. Call once, when the run ends.
func (r *Report) Finish() {
	r.FinishedAtMS = time.Now().UnixMilli()
}

// Counts tallies outcomes across all checks.
func (r *Report) Counts() Counts {
	var c Counts
	for _, chk := range r.Checks {
		switch chk.Outcome {
		case OutcomePass:
			c.Pass++
		case OutcomeFail:
			c.Fail++
		case OutcomeWarn:
			c.Warn++
		case OutcomeSkip:
			c.Skip++
		}
	}
	return c
}

// OK reports overall success: no FAIL, and under strict also no WARN
// and no SKIP.
func (r *Report) OK() bool {
	c := r.Counts()
	if c.Fail > 0 {
		return false
	}
	if r.Strict && (c.Warn > 0 || c.Skip > 0) {
		return false
	}
	return true
}

// reportJSON is the wire view of a report. Counts and ok are derived
// fields, included so consumers never have to recompute them.
type reportJSON struct {
	Service       string   `json:"service"`
	Tier          string   `json:"tier"`
	SpecRef       string   `json:"spec_ref"`
	Strict        bool     `json:"strict"`
	StartedAtMS   int64    `json:"started_at_epoch_ms"`
	FinishedAtMS  int64    `json:"finished_at_epoch_ms"`
	Counts        Counts   `json:"counts"`
	OK            bool     `json:"ok"`
	Checks        []Check  `json:"checks"`
	CleanupErrors []string `json:"cleanup_errors,omitempty"`
}

// MarshalJSON serializes the report with derived counts and ok.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Service:       r.Service,
		Tier:          r.Tier,
		SpecRef:       r.SpecRef,
		Strict:        r.Strict,
		StartedAtMS:   r.StartedAtMS,
		FinishedAtMS:  r.FinishedAtMS,
		Counts:        r.Counts(),
		OK:            r.OK(),
		Checks:        r.Checks,
		CleanupErrors: r.CleanupErrors,
	})
}

// UnmarshalJSON restores a report from its wire view. Derived fields are
// recomputed, not trusted.
func (r *Report) UnmarshalJSON(data []byte) error {
	var v reportJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.Service = v.Service
	r.Tier = v.Tier
	r.SpecRef = v.SpecRef
	r.Strict = v.Strict
	r.StartedAtMS = v.StartedAtMS
	r.FinishedAtMS = v.FinishedAtMS
	r.Checks = v.Checks
	r.CleanupErrors = v.CleanupErrors
	return nil
}
