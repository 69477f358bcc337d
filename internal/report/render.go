package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderText renders a one-line-per-check summary.
//
// Format is stable: golden tests compare it byte for byte, and CI logs
// grep it. Evidence lines are indented under FAIL and WARN checks only.
func RenderText(r *Report) string {
	var b strings.Builder
	c := r.Counts()
	fmt.Fprintf(&b, "service=%s tier=%s spec=%s ok=%t\n", r.Service, r.Tier, r.SpecRef, r.OK())
	fmt.Fprintf(&b, "counts pass=%d fail=%d warn=%d skip=%d\n", c.Pass, c.Fail, c.Warn, c.Skip)
	for _, chk := range r.Checks {
		fmt.Fprintf(&b, "- %s %s: %s\n", chk.Outcome, chk.ID, chk.Message)
		if chk.Outcome == OutcomeFail || chk.Outcome == OutcomeWarn {
			for _, ev := range chk.Evidence {
				fmt.Fprintf(&b, "    - %s\n", ev)
			}
		}
	}
	for _, ce := range r.CleanupErrors {
		fmt.Fprintf(&b, "! cleanup: %s\n", ce)
	}
	return b.String()
}

// RenderMultiText concatenates text renderings of several reports,
// separated by blank lines, in the order given.
func RenderMultiText(reports []*Report) string {
	parts := make([]string, len(reports))
	for i, r := range reports {
		parts[i] = RenderText(r)
	}
	return strings.Join(parts, "\n")
}

// RenderJSON renders a single report as indented JSON.
func RenderJSON(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data) + "\n", nil
}

// multiJSON is the combined wire shape for `check all` output.
type multiJSON struct {
	Reports []*Report `json:"reports"`
	OK      bool      `json:"ok"`
}

// RenderMultiJSON renders several reports as one JSON document with a
// combined ok flag.
func RenderMultiJSON(reports []*Report) (string, error) {
	ok := true
	for _, r := range reports {
		if !r.OK() {
			ok = false
		}
	}
	data, err := json.MarshalIndent(multiJSON{Reports: reports, OK: ok}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal reports: %w", err)
	}
	return string(data) + "\n", nil
}
