package spec

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadV1(t *testing.T) {
	idx, err := Load("v1")
	require.NoError(t, err)

	assert.Equal(t, "v1", idx.Version())
	assert.Regexp(t, regexp.MustCompile(`^v1@sha256:[0-9a-f]{12}$`), idx.Ref())
}

func TestLoadUnknownVersion(t *testing.T) {
	_, err := Load("v2")
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "v2", le.Version)
	assert.Contains(t, le.Error(), "unknown spec version")
}

func TestLoadIsDeterministic(t *testing.T) {
	a, err := Load("v1")
	require.NoError(t, err)
	b, err := Load("v1")
	require.NoError(t, err)
	assert.Equal(t, a.Ref(), b.Ref())
}

func TestSchemasAreFullyResolved(t *testing.T) {
	idx, err := Load("v1")
	require.NoError(t, err)

	names := idx.SchemaNames()
	require.NotEmpty(t, names)
	for _, name := range names {
		data, err := idx.SchemaJSON(name)
		require.NoError(t, err, name)
		assert.NotContains(t, string(data), `"$ref"`, "%s still carries unresolved references", name)
	}
}

func TestSchemaLookups(t *testing.T) {
	idx, err := Load("v1")
	require.NoError(t, err)

	for _, name := range []string{
		SchemaHealth,
		SchemaVersionInfo,
		SchemaError,
		SchemaRunStatus,
		SchemaRunResult,
		SchemaToolDefinition,
		SchemaToolInvocationResult,
		SchemaRuntimeProfile,
		SchemaInstanceCreate,
		SchemaTraceResponse,
	} {
		doc, err := idx.Schema(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, doc, name)
	}

	_, err = idx.Schema("common/nope.schema.json")
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "common/nope.schema.json", le.Name)
}

func TestSchemaJSONIsValidJSON(t *testing.T) {
	idx, err := Load("v1")
	require.NoError(t, err)

	data, err := idx.SchemaJSON(SchemaRunStatus)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "properties")
}

func TestOperationLookup(t *testing.T) {
	idx, err := Load("v1")
	require.NoError(t, err)

	op, ok := idx.Operation("POST", "/v1/runs")
	require.True(t, ok)
	assert.Equal(t, SchemaRunStatus, op.ResponseSchema)
	assert.True(t, op.Mutating)
	assert.True(t, op.RequiresAuth)

	op, ok = idx.Operation("GET", "/v1/health")
	require.True(t, ok)
	assert.False(t, op.RequiresAuth)

	op, ok = idx.Operation("GET", "/v1/tools")
	require.True(t, ok)
	assert.True(t, op.ResponseIsArray)

	op, ok = idx.Operation("DELETE", "/v1/instances/{instance_id}")
	require.True(t, ok)
	assert.Empty(t, op.ResponseSchema, "204 responses have no body schema")

	_, ok = idx.Operation("PATCH", "/v1/runs")
	assert.False(t, ok)
}

func TestMarshalCanonicalSortsAndNormalizes(t *testing.T) {
	got, err := marshalCanonical(map[string]any{
		"b": []any{float64(1), float64(2.5), true, nil},
		"a": "café", // NFD "café"
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"café\",\"b\":[1,2.5,true,null]}", string(got))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	got, err := marshalCanonical(map[string]any{"op": "a<b&c>d"})
	require.NoError(t, err)
	assert.Equal(t, `{"op":"a<b&c>d"}`, string(got))
}
