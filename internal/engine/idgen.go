package engine

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// TokenSource mints the unique identifiers probe requests carry, such as
// run and invocation ids. Implementations must be safe for concurrent
// use.
type TokenSource interface {
	// Token returns prefix followed by a fresh 12-hex-digit suffix.
	Token(prefix string) string
}

type uuidSource struct{}

// NewTokenSource returns the production TokenSource, backed by random
// UUIDs.
func NewTokenSource() TokenSource {
	return uuidSource{}
}

func (uuidSource) Token(prefix string) string {
	id := uuid.New()
	return prefix + hex.EncodeToString(id[:6])
}

// SequentialSource is a deterministic TokenSource for tests: suffixes
// count up from zero.
type SequentialSource struct {
	n atomic.Int64
}

func (s *SequentialSource) Token(prefix string) string {
	return fmt.Sprintf("%s%012x", prefix, s.n.Add(1)-1)
}

// fillPath substitutes every path parameter in a template with a fresh
// identifier that cannot collide with real resources on the target.
func fillPath(ts TokenSource, template string) string {
	replacements := []struct{ key, prefix string }{
		{"{run_id}", "run_conformance_"},
		{"{tool_id}", "tool_conformance_"},
		{"{instance_id}", "inst_conformance_"},
		{"{runtime_profile}", "profile_conformance_"},
	}
	out := template
	for _, r := range replacements {
		if strings.Contains(out, r.key) {
			out = strings.ReplaceAll(out, r.key, ts.Token(r.prefix))
		}
	}
	return out
}
