package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arp-standard/arp-conformance/internal/history"
)

// fakeService answers the smoke-tier endpoints for any service kind.
func fakeService() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok","time":"2026-08-31T00:00:00Z"}`)
	})
	mux.HandleFunc("GET /v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"service_name":"fake","service_version":"1.0.0","supported_api_versions":["v1"]}`)
	})
	return httptest.NewServer(mux)
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func TestCheckCommandWritesReport(t *testing.T) {
	srv := fakeService()
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "report.json")

	err := execute(t, "check", "runtime", "--url", srv.URL, "--format", "json", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service": "runtime"`)
	assert.Contains(t, string(data), `"tier": "smoke"`)
	assert.Contains(t, string(data), `"ok": true`)
}

func TestCheckCommandFailureExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"code":"internal","message":"broken"}}`)
	}))
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "report.txt")

	err := execute(t, "check", "runtime", "--url", srv.URL, "--out", out)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "conformance checks failed")
}

func TestCheckCommandMissingURL(t *testing.T) {
	err := execute(t, "check", "runtime")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCheckCommandInvalidFormat(t *testing.T) {
	err := execute(t, "check", "runtime", "--url", "http://localhost:1", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestCheckCommandCoreWithoutAllowMutations(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	err := execute(t, "check", "runtime", "--url", srv.URL, "--tier", "core")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, int32(0), requests.Load(), "configuration errors surface before any request")
}

func TestCheckAllCommand(t *testing.T) {
	srv := fakeService()
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "report.json")

	err := execute(t, "check", "all", "--url", srv.URL, "--format", "json", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	body := string(data)
	// Fixed reporting order, regardless of completion order.
	assert.Less(t, strings.Index(body, `"service": "runtime"`), strings.Index(body, `"service": "tool-registry"`))
	assert.Less(t, strings.Index(body, `"service": "tool-registry"`), strings.Index(body, `"service": "daemon"`))
}

func TestCheckAllCommandPerServiceURL(t *testing.T) {
	shared := fakeService()
	defer shared.Close()

	var daemonHits atomic.Int32
	daemonMux := fakeService()
	defer daemonMux.Close()
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		daemonHits.Add(1)
		daemonMux.Config.Handler.ServeHTTP(w, r)
	}))
	defer daemon.Close()
	out := filepath.Join(t.TempDir(), "report.json")

	err := execute(t, "check", "all", "--url", shared.URL, "--daemon-url", daemon.URL,
		"--format", "json", "--out", out)
	require.NoError(t, err)

	assert.Equal(t, int32(2), daemonHits.Load(), "daemon smoke checks should hit the override URL")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service": "daemon"`)
}

func TestCheckCommandRecordsHistory(t *testing.T) {
	srv := fakeService()
	defer srv.Close()
	db := filepath.Join(t.TempDir(), "history.db")
	out := filepath.Join(t.TempDir(), "report.txt")

	err := execute(t, "check", "runtime", "--url", srv.URL, "--out", out, "--db", db)
	require.NoError(t, err)

	store, err := history.Open(db)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "runtime", entries[0].Service)
	assert.Equal(t, "smoke", entries[0].Tier)
	assert.True(t, entries[0].OK)
}

func TestCheckCommandConfigFile(t *testing.T) {
	srv := fakeService()
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "report.json")

	cfg := filepath.Join(t.TempDir(), "conformance.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("url: "+srv.URL+"\nformat: json\n"), 0o644))

	err := execute(t, "check", "runtime", "--config", cfg, "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service": "runtime"`)
}

func TestHistoryCommandRequiresDB(t *testing.T) {
	err := execute(t, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db is required")
}

func TestVersionCommand(t *testing.T) {
	require.NoError(t, execute(t, "version"))
}
