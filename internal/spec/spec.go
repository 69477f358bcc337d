// Package spec loads the pinned v1 contract snapshot: JSON schemas keyed
// by name with all cross-file references resolved, plus operation
// metadata keyed by (method, path template). The resulting Index is
// immutable and safe to share across concurrent runs.
package spec

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed all:snapshot
var snapshotFS embed.FS

// Schema names are the paths of the snapshot files, relative to the
// version root. The registry and engine refer to schemas only through
// these constants.
const (
	SchemaHealth               = "common/health.schema.json"
	SchemaVersionInfo          = "common/version_info.schema.json"
	SchemaError                = "common/error.schema.json"
	SchemaErrorObject          = "common/error_object.schema.json"
	SchemaToolDefinition       = "tool_registry/tools/tool_definition.schema.json"
	SchemaToolInvocationResult = "tool_registry/tools/tool_invocation_result.schema.json"
	SchemaRunStatus            = "runtime/runs/run_status.schema.json"
	SchemaRunResult            = "runtime/runs/run_result.schema.json"
	SchemaRunEvent             = "runtime/runs/run_event.schema.json"
	SchemaRuntimeInstance      = "daemon/instances/runtime_instance.schema.json"
	SchemaInstanceList         = "daemon/instances/instance_list_response.schema.json"
	SchemaInstanceCreate       = "daemon/instances/instance_create_response.schema.json"
	SchemaInstanceRegister     = "daemon/instances/instance_register_response.schema.json"
	SchemaRuntimeProfile       = "daemon/runtime_profiles/runtime_profile.schema.json"
	SchemaRuntimeProfileList   = "daemon/runtime_profiles/runtime_profile_list_response.schema.json"
	SchemaRunList              = "daemon/runs/run_list_response.schema.json"
	SchemaTraceResponse        = "daemon/runs/trace_response.schema.json"
)

// Operation describes one contract endpoint: its schemas and security
// requirement. Service-specific expectations (which endpoints a service
// kind must implement, expected status codes) live in the registry.
type Operation struct {
	Method       string
	PathTemplate string

	// ResponseSchema names the success-body schema. Empty for 204
	// responses.
	ResponseSchema string

	// ResponseIsArray marks endpoints whose success body is a JSON array
	// of ResponseSchema items.
	ResponseIsArray bool

	// RequiresAuth is false only for the universal unauthenticated
	// endpoints (health, version).
	RequiresAuth bool

	// Mutating marks operations that create or change server-side state.
	Mutating bool
}

var v1Operations = []Operation{
	{Method: "GET", PathTemplate: "/v1/health", ResponseSchema: SchemaHealth},
	{Method: "GET", PathTemplate: "/v1/version", ResponseSchema: SchemaVersionInfo},
	{Method: "GET", PathTemplate: "/v1/tools", ResponseSchema: SchemaToolDefinition, ResponseIsArray: true, RequiresAuth: true},
	{Method: "GET", PathTemplate: "/v1/tools/{tool_id}", ResponseSchema: SchemaToolDefinition, RequiresAuth: true},
	{Method: "POST", PathTemplate: "/v1/tool-invocations", ResponseSchema: SchemaToolInvocationResult, RequiresAuth: true, Mutating: true},
	{Method: "POST", PathTemplate: "/v1/runs", ResponseSchema: SchemaRunStatus, RequiresAuth: true, Mutating: true},
	{Method: "GET", PathTemplate: "/v1/runs", ResponseSchema: SchemaRunList, RequiresAuth: true},
	{Method: "GET", PathTemplate: "/v1/runs/{run_id}", ResponseSchema: SchemaRunStatus, RequiresAuth: true},
	{Method: "GET", PathTemplate: "/v1/runs/{run_id}/result", ResponseSchema: SchemaRunResult, RequiresAuth: true},
	{Method: "POST", PathTemplate: "/v1/runs/{run_id}:cancel", ResponseSchema: SchemaRunStatus, RequiresAuth: true, Mutating: true},
	{Method: "GET", PathTemplate: "/v1/runs/{run_id}/events", ResponseSchema: SchemaRunEvent, RequiresAuth: true},
	{Method: "GET", PathTemplate: "/v1/runs/{run_id}/trace", ResponseSchema: SchemaTraceResponse, RequiresAuth: true},
	{Method: "GET", PathTemplate: "/v1/instances", ResponseSchema: SchemaInstanceList, RequiresAuth: true},
	{Method: "POST", PathTemplate: "/v1/instances", ResponseSchema: SchemaInstanceCreate, RequiresAuth: true, Mutating: true},
	{Method: "DELETE", PathTemplate: "/v1/instances/{instance_id}", RequiresAuth: true, Mutating: true},
	{Method: "POST", PathTemplate: "/v1/instances:register", ResponseSchema: SchemaInstanceRegister, RequiresAuth: true, Mutating: true},
	{Method: "GET", PathTemplate: "/v1/admin/runtime-profiles", ResponseSchema: SchemaRuntimeProfileList, RequiresAuth: true},
	{Method: "PUT", PathTemplate: "/v1/admin/runtime-profiles/{runtime_profile}", ResponseSchema: SchemaRuntimeProfile, RequiresAuth: true, Mutating: true},
	{Method: "DELETE", PathTemplate: "/v1/admin/runtime-profiles/{runtime_profile}", RequiresAuth: true, Mutating: true},
}

// LoadError reports a snapshot that could not be loaded or resolved.
type LoadError struct {
	Version string
	Name    string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("spec %s: schema %s: %v", e.Version, e.Name, e.Err)
	}
	return fmt.Sprintf("spec %s: %v", e.Version, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Index is the loaded, immutable view of one snapshot version.
type Index struct {
	version string
	ref     string
	schemas map[string]map[string]any
	raw     map[string][]byte
	ops     map[string]Operation
}

// Load reads and resolves the embedded snapshot for a version.
// Currently only "v1" is pinned.
func Load(version string) (*Index, error) {
	if version != "v1" {
		return nil, &LoadError{Version: version, Err: fmt.Errorf("unknown spec version")}
	}

	root := "snapshot/" + version
	docs := make(map[string]map[string]any)
	err := fs.WalkDir(snapshotFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".schema.json") {
			return nil
		}
		data, err := snapshotFS.ReadFile(path)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		docs[strings.TrimPrefix(path, root+"/")] = doc
		return nil
	})
	if err != nil {
		return nil, &LoadError{Version: version, Err: err}
	}

	resolved := make(map[string]map[string]any, len(docs))
	raw := make(map[string][]byte, len(docs))
	for name := range docs {
		doc, err := resolveDoc(docs, name, map[string]bool{})
		if err != nil {
			return nil, &LoadError{Version: version, Name: name, Err: err}
		}
		resolved[name] = doc
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, &LoadError{Version: version, Name: name, Err: err}
		}
		raw[name] = data
	}

	ref, err := fingerprint(version, resolved)
	if err != nil {
		return nil, &LoadError{Version: version, Err: err}
	}

	ops := make(map[string]Operation, len(v1Operations))
	for _, op := range v1Operations {
		if op.ResponseSchema != "" {
			if _, ok := resolved[op.ResponseSchema]; !ok {
				return nil, &LoadError{Version: version, Name: op.ResponseSchema, Err: fmt.Errorf("operation %s %s references unknown schema", op.Method, op.PathTemplate)}
			}
		}
		ops[opKey(op.Method, op.PathTemplate)] = op
	}

	return &Index{
		version: version,
		ref:     ref,
		schemas: resolved,
		raw:     raw,
		ops:     ops,
	}, nil
}

func opKey(method, pathTemplate string) string {
	return method + " " + pathTemplate
}

// Version returns the snapshot version, e.g. "v1".
func (i *Index) Version() string { return i.version }

// Ref returns the pinned snapshot identifier, e.g. "v1@sha256:0a1b2c3d4e5f".
func (i *Index) Ref() string { return i.ref }

// Schema returns the resolved, self-contained schema document.
func (i *Index) Schema(name string) (map[string]any, error) {
	doc, ok := i.schemas[name]
	if !ok {
		return nil, &LoadError{Version: i.version, Name: name, Err: fmt.Errorf("schema not found")}
	}
	return doc, nil
}

// SchemaJSON returns the resolved schema serialized as JSON.
func (i *Index) SchemaJSON(name string) ([]byte, error) {
	data, ok := i.raw[name]
	if !ok {
		return nil, &LoadError{Version: i.version, Name: name, Err: fmt.Errorf("schema not found")}
	}
	return data, nil
}

// SchemaNames returns all schema names in sorted order.
func (i *Index) SchemaNames() []string {
	names := make([]string, 0, len(i.schemas))
	for name := range i.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operation looks up metadata by method and path template.
func (i *Index) Operation(method, pathTemplate string) (Operation, bool) {
	op, ok := i.ops[opKey(method, pathTemplate)]
	return op, ok
}
