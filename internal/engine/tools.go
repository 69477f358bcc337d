package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arp-standard/arp-conformance/internal/report"
	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Tool registry workflow: list the catalog, pick a tool, fetch its
// definition, then invoke it with arguments synthesized from its own
// input schema.

func (rn *run) stepListTools(ctx context.Context, chk *report.Check) {
	resp, err := rn.r.client.Send(ctx, http.MethodGet, "/v1/tools", nil)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status >= 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200 tool list, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	var tools []map[string]any
	if err := json.Unmarshal(resp.Body, &tools); err != nil {
		chk.Outcome = report.OutcomeFail
		chk.Message = "Expected JSON array"
		chk.Evidence = append(chk.Evidence, err.Error())
		return
	}
	if !rn.checkArrayBody(chk, resp.Body, spec.SchemaToolDefinition, "Tool list") {
		return
	}
	rn.tools = tools
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

// stepSelectTool picks the tool the invocation step will exercise. No
// I/O. Pinned tool id wins, then pinned name, then the first listed
// tool. An empty catalog is a missing prerequisite, not a failure.
func (rn *run) stepSelectTool(chk *report.Check) {
	var selected map[string]any
	if want := rn.r.cfg.ToolID; want != "" {
		for _, t := range rn.tools {
			if id, _ := t["tool_id"].(string); id == want {
				selected = t
				break
			}
		}
	}
	if selected == nil && rn.r.cfg.ToolName != "" {
		for _, t := range rn.tools {
			if name, _ := t["name"].(string); name == rn.r.cfg.ToolName {
				selected = t
				break
			}
		}
	}
	if selected == nil && len(rn.tools) > 0 {
		selected = rn.tools[0]
	}

	if selected == nil {
		rn.prereqMissing = true
		chk.Outcome = report.OutcomeSkip
		chk.Message = "No tools available to invoke (provide --tool-id/--tool-name or configure registry)"
		return
	}
	toolID, _ := selected["tool_id"].(string)
	if toolID == "" {
		chk.Outcome = report.OutcomeFail
		chk.Message = "Selected tool missing tool_id"
		return
	}
	rn.vars["tool_id"] = toolID
	chk.Outcome = report.OutcomePass
	chk.Message = fmt.Sprintf("Selected tool %q", toolID)
}

func (rn *run) stepGetTool(ctx context.Context, chk *report.Check) {
	path := "/v1/tools/" + rn.vars["tool_id"]
	resp, err := rn.r.client.Send(ctx, http.MethodGet, path, nil)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodGet, nil, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status >= 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200 ToolDefinition, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaToolDefinition, "ToolDefinition") {
		return
	}
	var def map[string]any
	if err := json.Unmarshal(resp.Body, &def); err == nil {
		rn.tool = def
	}
	chk.Outcome = report.OutcomePass
	chk.Message = "OK"
}

func (rn *run) stepInvokeTool(ctx context.Context, chk *report.Check) {
	var args any = map[string]any{}
	if rn.tool != nil {
		if inputSchema, ok := rn.tool["input_schema"]; ok {
			args = argsFromSchema(inputSchema)
		}
	}
	body := map[string]any{
		"invocation_id": rn.r.ids.Token("inv_conformance_"),
		"tool_id":       rn.vars["tool_id"],
		"args":          args,
	}
	resp, err := rn.r.client.Send(ctx, http.MethodPost, "/v1/tool-invocations", body)
	if err != nil {
		transportFail(chk, err, false)
		return
	}
	chk.Exchange = newExchange(http.MethodPost, body, resp)
	if rn.authRejected(chk, resp) {
		return
	}
	if resp.Status >= 400 {
		chk.Outcome = report.OutcomeFail
		chk.Message = fmt.Sprintf("Expected 200 ToolInvocationResult, got %d", resp.Status)
		chk.Evidence = append(chk.Evidence, rn.envelopeEvidence(resp.Body)...)
		return
	}
	if !rn.checkBody(chk, resp.Body, spec.SchemaToolInvocationResult, "ToolInvocationResult") {
		return
	}
	var result struct {
		OK *bool `json:"ok"`
	}
	_ = json.Unmarshal(resp.Body, &result)
	if result.OK != nil && *result.OK {
		chk.Outcome = report.OutcomePass
		chk.Message = "OK"
		return
	}
	chk.Outcome = report.OutcomeWarn
	chk.Message = "Invocation returned ok=false (schema-valid, but tool may not be configured)"
}

// argsFromSchema synthesizes a minimal argument value satisfying a tool
// input schema: first enum member, zero-ish scalars, and required object
// properties filled recursively.
func argsFromSchema(s any) any {
	obj, ok := s.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	if enum, ok := obj["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}
	switch obj["type"] {
	case "string":
		return "conformance"
	case "integer", "number":
		return 0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		props, _ := obj["properties"].(map[string]any)
		required, _ := obj["required"].([]any)
		out := map[string]any{}
		for _, key := range required {
			name, ok := key.(string)
			if !ok {
				continue
			}
			if prop, ok := props[name]; ok {
				out[name] = argsFromSchema(prop)
			}
		}
		return out
	}
	return map[string]any{}
}
