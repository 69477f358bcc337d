// Package registry declares, as plain ordered data, which checks and
// workflow steps apply to each (service kind, tier) pair. It contains no
// executable logic: the engine interprets these tables. Declaration
// order here is report order.
package registry

import (
	"fmt"
)

// ServiceKind identifies one of the three conformable service kinds.
type ServiceKind string

const (
	ServiceRuntime      ServiceKind = "runtime"
	ServiceToolRegistry ServiceKind = "tool-registry"
	ServiceDaemon       ServiceKind = "daemon"
)

// ServiceKinds returns all kinds in their fixed reporting order.
func ServiceKinds() []ServiceKind {
	return []ServiceKind{ServiceRuntime, ServiceToolRegistry, ServiceDaemon}
}

// ParseServiceKind validates a service kind string.
func ParseServiceKind(s string) (ServiceKind, error) {
	switch ServiceKind(s) {
	case ServiceRuntime, ServiceToolRegistry, ServiceDaemon:
		return ServiceKind(s), nil
	}
	return "", fmt.Errorf("unsupported service kind: %q", s)
}

// Tier is an ordered strictness level.
type Tier string

const (
	TierSmoke   Tier = "smoke"
	TierSurface Tier = "surface"
	TierCore    Tier = "core"
	TierDeep    Tier = "deep"
)

var tierOrder = map[Tier]int{
	TierSmoke:   0,
	TierSurface: 1,
	TierCore:    2,
	TierDeep:    3,
}

// ParseTier validates a tier string.
func ParseTier(s string) (Tier, error) {
	if _, ok := tierOrder[Tier(s)]; !ok {
		return "", fmt.Errorf("unsupported tier: %q (want smoke, surface, core, or deep)", s)
	}
	return Tier(s), nil
}

// Includes reports whether running tier t also runs the checks of other.
// Tiers are cumulative: deep runs everything.
func (t Tier) Includes(other Tier) bool {
	return tierOrder[t] >= tierOrder[other]
}

// RequiresMutations reports whether the tier executes state-mutating
// workflows and therefore needs the allow-mutations safety switch.
func (t Tier) RequiresMutations() bool {
	return t == TierCore || t == TierDeep
}

// Op names one probe routine the engine knows how to execute. The
// registry binds ops to check ids; the engine binds ops to code.
type Op string

const (
	// Smoke ops.
	OpHealth        Op = "health"
	OpVersion       Op = "version"
	OpVersionCompat Op = "version-compat"

	// Surface op: one required-route probe per profile endpoint.
	OpSurfaceEndpoint Op = "surface-endpoint"

	// Runtime workflow ops.
	OpCreateRun      Op = "create-run"
	OpPollRun        Op = "poll-run"
	OpFetchRunResult Op = "fetch-run-result"

	// Tool registry workflow ops.
	OpListTools  Op = "list-tools"
	OpSelectTool Op = "select-tool"
	OpGetTool    Op = "get-tool"
	OpInvokeTool Op = "invoke-tool"

	// Daemon workflow ops.
	OpListProfiles   Op = "list-profiles"
	OpEnsureProfile  Op = "ensure-profile"
	OpCreateInstance Op = "create-instance"
	OpSubmitRun      Op = "submit-run"

	// Deep-tier optional endpoint ops.
	OpCancelRun    Op = "cancel-run"
	OpStreamEvents Op = "stream-events"
	OpFetchTrace   Op = "fetch-trace"
)

// CheckDef declares one simple, dependency-free check.
type CheckDef struct {
	ID   string
	Name string
	Op   Op
}

// StepDef declares one workflow step. DependsOn lists the step ids whose
// success this step requires; a failed dependency skips this step and,
// transitively, everything depending on it.
type StepDef struct {
	ID        string
	Name      string
	Op        Op
	DependsOn []string

	// Optional marks deep-tier probes of endpoints a service may omit:
	// absence is SKIP (FAIL under strict) rather than FAIL.
	Optional bool
}

// Endpoint declares one required route of a service profile.
type Endpoint struct {
	Method       string
	PathTemplate string

	// ExpectsNoContent marks endpoints whose success response is 204.
	ExpectsNoContent bool
}

// ServiceProfile is the static description of the routes a service kind
// must expose. Loaded once; immutable.
type ServiceProfile struct {
	Kind      ServiceKind
	Endpoints []Endpoint
}

// commonEndpoints are required of every service kind.
var commonEndpoints = []Endpoint{
	{Method: "GET", PathTemplate: "/v1/health"},
	{Method: "GET", PathTemplate: "/v1/version"},
}

var profiles = map[ServiceKind]ServiceProfile{
	ServiceRuntime: {
		Kind: ServiceRuntime,
		Endpoints: append(commonEndpoints[:len(commonEndpoints):len(commonEndpoints)],
			Endpoint{Method: "POST", PathTemplate: "/v1/runs"},
			Endpoint{Method: "GET", PathTemplate: "/v1/runs/{run_id}"},
			Endpoint{Method: "GET", PathTemplate: "/v1/runs/{run_id}/result"},
		),
	},
	ServiceToolRegistry: {
		Kind: ServiceToolRegistry,
		Endpoints: append(commonEndpoints[:len(commonEndpoints):len(commonEndpoints)],
			Endpoint{Method: "GET", PathTemplate: "/v1/tools"},
			Endpoint{Method: "GET", PathTemplate: "/v1/tools/{tool_id}"},
			Endpoint{Method: "POST", PathTemplate: "/v1/tool-invocations"},
		),
	},
	ServiceDaemon: {
		Kind: ServiceDaemon,
		Endpoints: append(commonEndpoints[:len(commonEndpoints):len(commonEndpoints)],
			Endpoint{Method: "GET", PathTemplate: "/v1/instances"},
			Endpoint{Method: "POST", PathTemplate: "/v1/instances"},
			Endpoint{Method: "DELETE", PathTemplate: "/v1/instances/{instance_id}", ExpectsNoContent: true},
			Endpoint{Method: "POST", PathTemplate: "/v1/instances:register"},
			Endpoint{Method: "GET", PathTemplate: "/v1/admin/runtime-profiles"},
			Endpoint{Method: "PUT", PathTemplate: "/v1/admin/runtime-profiles/{runtime_profile}"},
			Endpoint{Method: "DELETE", PathTemplate: "/v1/admin/runtime-profiles/{runtime_profile}", ExpectsNoContent: true},
			Endpoint{Method: "GET", PathTemplate: "/v1/runs"},
			Endpoint{Method: "POST", PathTemplate: "/v1/runs"},
			Endpoint{Method: "GET", PathTemplate: "/v1/runs/{run_id}"},
			Endpoint{Method: "GET", PathTemplate: "/v1/runs/{run_id}/result"},
		),
	},
}

// Profile returns the service profile for a kind.
func Profile(kind ServiceKind) (ServiceProfile, bool) {
	p, ok := profiles[kind]
	return p, ok
}

// smokeChecks run for every service kind, in this order.
var smokeChecks = []CheckDef{
	{ID: "smoke.health", Name: "GET /v1/health", Op: OpHealth},
	{ID: "smoke.version", Name: "GET /v1/version", Op: OpVersion},
	{ID: "smoke.version.compat", Name: "VersionInfo.supported_api_versions contains v1", Op: OpVersionCompat},
}

// SmokeChecks returns the universal smoke-tier check list.
func SmokeChecks() []CheckDef {
	return smokeChecks
}

var coreSteps = map[ServiceKind][]StepDef{
	ServiceRuntime: {
		{ID: "core.runtime.create_run", Name: "POST /v1/runs (minimal success-path)", Op: OpCreateRun},
		{ID: "core.runtime.poll_status", Name: "GET /v1/runs/{run_id} (poll)", Op: OpPollRun, DependsOn: []string{"core.runtime.create_run"}},
		{ID: "core.runtime.get_result", Name: "GET /v1/runs/{run_id}/result", Op: OpFetchRunResult, DependsOn: []string{"core.runtime.poll_status"}},
	},
	ServiceToolRegistry: {
		{ID: "core.tool_registry.list_tools", Name: "GET /v1/tools", Op: OpListTools},
		{ID: "core.tool_registry.select_tool", Name: "Select tool for invocation", Op: OpSelectTool, DependsOn: []string{"core.tool_registry.list_tools"}},
		{ID: "core.tool_registry.get_tool", Name: "GET /v1/tools/{tool_id}", Op: OpGetTool, DependsOn: []string{"core.tool_registry.select_tool"}},
		{ID: "core.tool_registry.invoke_tool", Name: "POST /v1/tool-invocations", Op: OpInvokeTool, DependsOn: []string{"core.tool_registry.get_tool"}},
	},
	ServiceDaemon: {
		{ID: "core.daemon.list_runtime_profiles", Name: "GET /v1/admin/runtime-profiles", Op: OpListProfiles},
		{ID: "core.daemon.create_runtime_profile", Name: "PUT /v1/admin/runtime-profiles/{runtime_profile}", Op: OpEnsureProfile, DependsOn: []string{"core.daemon.list_runtime_profiles"}},
		{ID: "core.daemon.create_instance", Name: "POST /v1/instances", Op: OpCreateInstance, DependsOn: []string{"core.daemon.create_runtime_profile"}},
		{ID: "core.daemon.submit_run", Name: "POST /v1/runs", Op: OpSubmitRun, DependsOn: []string{"core.daemon.create_instance"}},
		{ID: "core.daemon.poll_status", Name: "GET /v1/runs/{run_id} (poll)", Op: OpPollRun, DependsOn: []string{"core.daemon.submit_run"}},
		{ID: "core.daemon.get_result", Name: "GET /v1/runs/{run_id}/result", Op: OpFetchRunResult, DependsOn: []string{"core.daemon.poll_status"}},
	},
}

var deepSteps = map[ServiceKind][]StepDef{
	ServiceRuntime: {
		{ID: "deep.runtime.cancel", Name: "POST /v1/runs/{run_id}:cancel (optional)", Op: OpCancelRun, Optional: true},
		{ID: "deep.runtime.events", Name: "GET /v1/runs/{run_id}/events (optional)", Op: OpStreamEvents, Optional: true},
	},
	ServiceToolRegistry: nil,
	ServiceDaemon: {
		{ID: "deep.daemon.trace", Name: "GET /v1/runs/{run_id}/trace (optional)", Op: OpFetchTrace, Optional: true},
	},
}

// Steps returns the ordered workflow steps a tier runs for a service
// kind. The deep tier builds on core: its step list is core followed by
// the deep-only probes.
func Steps(kind ServiceKind, tier Tier) []StepDef {
	if !tier.RequiresMutations() {
		return nil
	}
	steps := append([]StepDef(nil), coreSteps[kind]...)
	if tier == TierDeep {
		steps = append(steps, deepSteps[kind]...)
	}
	return steps
}
