// Package schema validates JSON payloads against named schemas from the
// spec snapshot. Schemas are compiled to CUE once and cached; validation
// unifies the payload with the compiled schema and renders CUE errors as
// JSON-pointer violations.
package schema

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"cuelang.org/go/encoding/jsonschema"

	"github.com/arp-standard/arp-conformance/internal/spec"
)

// Violation is one schema failure: a JSON-pointer-style path into the
// payload and a human-readable message.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Strings renders violations for use as check evidence.
func Strings(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.String()
	}
	return out
}

// Validator validates payloads against schemas resolved through a spec
// index. Compiled schemas are cached per name; safe for concurrent use.
type Validator struct {
	index *spec.Index
	cctx  *cue.Context

	mu       sync.Mutex
	compiled map[string]cue.Value
}

// NewValidator creates a validator over one spec index.
func NewValidator(index *spec.Index) *Validator {
	return &Validator{
		index:    index,
		cctx:     cuecontext.New(),
		compiled: make(map[string]cue.Value),
	}
}

// Validate checks a JSON payload against the named schema. An empty
// violation list means the payload conforms. A non-nil error means the
// schema itself could not be compiled or the payload is not valid JSON;
// that is a harness problem, not a conformance violation.
func (v *Validator) Validate(schemaName string, payload []byte) ([]Violation, error) {
	sch, err := v.schemaValue(schemaName)
	if err != nil {
		return nil, err
	}

	expr, err := cuejson.Extract("payload", payload)
	if err != nil {
		return nil, fmt.Errorf("parse payload JSON: %w", err)
	}
	data := v.cctx.BuildExpr(expr)
	if data.Err() != nil {
		return nil, fmt.Errorf("build payload value: %w", data.Err())
	}

	unified := sch.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toViolations(err), nil
	}
	return nil, nil
}

// schemaValue returns the compiled CUE schema, compiling and caching it
// on first use.
func (v *Validator) schemaValue(name string) (cue.Value, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[name]; ok {
		return sch, nil
	}

	raw, err := v.index.SchemaJSON(name)
	if err != nil {
		return cue.Value{}, err
	}

	expr, err := cuejson.Extract(name, raw)
	if err != nil {
		return cue.Value{}, fmt.Errorf("parse schema %s: %w", name, err)
	}
	schemaDoc := v.cctx.BuildExpr(expr)
	if schemaDoc.Err() != nil {
		return cue.Value{}, fmt.Errorf("build schema %s: %w", name, schemaDoc.Err())
	}

	file, err := jsonschema.Extract(schemaDoc, &jsonschema.Config{})
	if err != nil {
		return cue.Value{}, fmt.Errorf("extract schema %s: %w", name, err)
	}
	sch := v.cctx.BuildFile(file)
	if sch.Err() != nil {
		return cue.Value{}, fmt.Errorf("compile schema %s: %w", name, sch.Err())
	}

	v.compiled[name] = sch
	return sch, nil
}

// toViolations flattens a CUE validation error into violations with
// JSON-pointer paths.
func toViolations(err error) []Violation {
	var out []Violation
	for _, e := range cueerrors.Errors(err) {
		out = append(out, Violation{
			Path:    pointerPath(e.Path()),
			Message: errMessage(e),
		})
	}
	return out
}

// pointerPath renders a CUE error path as "$.a.b[2]"-style pointer.
func pointerPath(parts []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, p := range parts {
		if isIndex(p) {
			b.WriteString("[" + p + "]")
		} else {
			b.WriteString("." + p)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func errMessage(e cueerrors.Error) string {
	format, args := e.Msg()
	return fmt.Sprintf(format, args...)
}
