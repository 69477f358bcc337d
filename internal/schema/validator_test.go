package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arp-standard/arp-conformance/internal/spec"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	idx, err := spec.Load("v1")
	require.NoError(t, err)
	return NewValidator(idx)
}

func TestValidateConformingPayload(t *testing.T) {
	v := newValidator(t)

	violations, err := v.Validate(spec.SchemaHealth, []byte(`{"status":"ok","time":"2026-08-31T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateOptionalFieldsAccepted(t *testing.T) {
	v := newValidator(t)

	payload := `{
		"status": "degraded",
		"time": "2026-08-31T00:00:00Z",
		"checks": [{"name": "db", "status": "down", "message": "unreachable"}]
	}`
	violations, err := v.Validate(spec.SchemaHealth, []byte(payload))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateMissingRequiredField(t *testing.T) {
	v := newValidator(t)

	violations, err := v.Validate(spec.SchemaRunStatus, []byte(`{"run_id":"run_x"}`))
	require.NoError(t, err)
	require.NotEmpty(t, violations)

	joined := strings.Join(Strings(violations), "\n")
	assert.Contains(t, joined, "state")
}

func TestValidateWrongType(t *testing.T) {
	v := newValidator(t)

	violations, err := v.Validate(spec.SchemaRunStatus, []byte(`{"run_id":42,"state":"running"}`))
	require.NoError(t, err)
	require.NotEmpty(t, violations)

	found := false
	for _, viol := range violations {
		if strings.Contains(viol.Path, "run_id") {
			found = true
		}
		assert.True(t, strings.HasPrefix(viol.Path, "$"), "path %q must be pointer-style", viol.Path)
	}
	assert.True(t, found, "expected a violation at run_id, got: %v", Strings(violations))
}

func TestValidateEnumViolation(t *testing.T) {
	v := newValidator(t)

	violations, err := v.Validate(spec.SchemaRunStatus, []byte(`{"run_id":"run_x","state":"exploded"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, violations)
}

func TestValidateInvalidJSONIsAnError(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate(spec.SchemaHealth, []byte(`{"status": "ok"`))
	require.Error(t, err)
}

func TestValidateUnknownSchemaIsAnError(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate("common/nope.schema.json", []byte(`{}`))
	require.Error(t, err)
}

func TestValidatorIsConcurrencySafe(t *testing.T) {
	v := newValidator(t)
	payload := []byte(`{"status":"ok","time":"2026-08-31T00:00:00Z"}`)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			violations, err := v.Validate(spec.SchemaHealth, payload)
			if err == nil && len(violations) > 0 {
				err = assert.AnError
			}
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
}

func TestViolationString(t *testing.T) {
	v := Violation{Path: "$.error.code", Message: "field is required"}
	assert.Equal(t, "$.error.code: field is required", v.String())
	assert.Equal(t, []string{"$.error.code: field is required"}, Strings([]Violation{v}))
}
