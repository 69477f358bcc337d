package report

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderText(t *testing.T) {
	g := newGoldie(t)
	g.Assert(t, "report_text", []byte(RenderText(sampleReport())))
}

func TestRenderJSON(t *testing.T) {
	out, err := RenderJSON(sampleReport())
	require.NoError(t, err)
	g := newGoldie(t)
	g.Assert(t, "report_json", []byte(out))
}

func TestRenderJUnit(t *testing.T) {
	out, err := RenderJUnit([]*Report{sampleReport()})
	require.NoError(t, err)
	g := newGoldie(t)
	g.Assert(t, "report_junit", []byte(out))
}

func TestRenderJUnitStrictMapsWarnAndSkipToFailures(t *testing.T) {
	r := sampleReport()
	r.Strict = true
	out, err := RenderJUnit([]*Report{r})
	require.NoError(t, err)

	// FAIL plus promoted WARN and SKIP.
	assert.Contains(t, out, `failures="3"`)
	assert.Contains(t, out, `skipped="0"`)
}

func TestRenderMultiText(t *testing.T) {
	a := sampleReport()
	b := New("daemon", "smoke", "v1@sha256:0123456789ab", false)
	b.Append(Check{ID: "smoke.health", Outcome: OutcomePass, Message: "OK"})

	out := RenderMultiText([]*Report{a, b})
	assert.Contains(t, out, "service=runtime tier=surface")
	assert.Contains(t, out, "service=daemon tier=smoke")
	assert.Less(t,
		strings.Index(out, "service=runtime"),
		strings.Index(out, "service=daemon"),
		"reports must render in the order given",
	)
}

func TestRenderMultiJSONCombinedOK(t *testing.T) {
	failing := sampleReport()
	passing := New("daemon", "smoke", "v1@sha256:0123456789ab", false)
	passing.Append(Check{ID: "smoke.health", Outcome: OutcomePass, Message: "OK"})

	out, err := RenderMultiJSON([]*Report{failing, passing})
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": false`)

	out, err = RenderMultiJSON([]*Report{passing})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "\"ok\": true\n}"))
}
