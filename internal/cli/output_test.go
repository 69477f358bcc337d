package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arp-standard/arp-conformance/internal/report"
)

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", NewExitError(ExitFailure, "boom").Error())

	wrapped := WrapExitError(ExitCommandError, "load config", errors.New("no such file"))
	assert.Equal(t, "load config: no such file", wrapped.Error())
	assert.Equal(t, "no such file", wrapped.Unwrap().Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "checks failed")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("outer: %w", NewExitError(ExitFailure, "inner"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unclassified")))
}

func TestIsValidFormat(t *testing.T) {
	for _, f := range ValidFormats {
		assert.True(t, isValidFormat(f), f)
	}
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func sampleReport() *report.Report {
	rep := &report.Report{
		Service:      "runtime",
		Tier:         "smoke",
		SpecRef:      "v1@sha256:0123456789ab",
		StartedAtMS:  1700000000000,
		FinishedAtMS: 1700000001000,
	}
	rep.Append(report.Check{ID: "smoke.health", Name: "GET /v1/health", Outcome: report.OutcomePass, Message: "OK"})
	return rep
}

func TestRenderReportsFormats(t *testing.T) {
	reports := []*report.Report{sampleReport()}

	text, err := renderReports("text", reports)
	require.NoError(t, err)
	assert.Contains(t, text, "smoke.health")

	jsonOut, err := renderReports("json", reports)
	require.NoError(t, err)
	assert.Contains(t, jsonOut, `"service": "runtime"`)

	junit, err := renderReports("junit", reports)
	require.NoError(t, err)
	assert.Contains(t, junit, "<testsuites")

	_, err = renderReports("yaml", reports)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRenderReportsMulti(t *testing.T) {
	second := sampleReport()
	second.Service = "daemon"
	out, err := renderReports("text", []*report.Report{sampleReport(), second})
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "runtime"), strings.Index(out, "daemon"))
}

func TestWriteOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeOutput(io.Discard, path, `{"ok":true}`))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}
