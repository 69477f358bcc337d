package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitHeader(t *testing.T) {
	k, v, err := splitHeader("Authorization=Bearer tok")
	require.NoError(t, err)
	assert.Equal(t, "Authorization", k)
	assert.Equal(t, "Bearer tok", v)

	k, v, err = splitHeader(" X-Api-Key = secret=with=equals ")
	require.NoError(t, err)
	assert.Equal(t, "X-Api-Key", k)
	assert.Equal(t, "secret=with=equals", v)

	_, _, err = splitHeader("no-separator")
	require.Error(t, err)
	_, _, err = splitHeader("=value-only")
	require.Error(t, err)
}

func TestBuildHeadersPrecedence(t *testing.T) {
	headersFile := filepath.Join(t.TempDir(), "headers")
	require.NoError(t, os.WriteFile(headersFile, []byte(
		"# credentials\n"+
			"Authorization=Bearer from-file\n"+
			"\n"+
			"X-Trace=file\n",
	), 0o644))

	opts := &checkOptions{
		fileHeaders: map[string]string{"Authorization": "Bearer from-config", "X-Config": "yes"},
		HeadersFile: headersFile,
		Headers:     []string{"X-Trace=flag"},
	}
	headers, err := opts.buildHeaders()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Authorization": "Bearer from-file",
		"X-Config":      "yes",
		"X-Trace":       "flag",
	}, headers)
}

func TestBuildHeadersEmpty(t *testing.T) {
	headers, err := (&checkOptions{}).buildHeaders()
	require.NoError(t, err)
	assert.Nil(t, headers)
}

func TestBuildHeadersBadFlag(t *testing.T) {
	_, err := (&checkOptions{Headers: []string{"broken"}}).buildHeaders()
	require.Error(t, err)
}

// configFlagSet registers the flags applyConfigFile consults, bound to
// opts the way the check command binds them.
func configFlagSet(opts *checkOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	fs.StringVar(&opts.URL, "url", "", "")
	fs.StringVar(&opts.Tier, "tier", "smoke", "")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "")
	fs.IntVar(&opts.Retries, "retries", 0, "")
	fs.BoolVar(&opts.AllowMutations, "allow-mutations", false, "")
	fs.BoolVar(&opts.Strict, "strict", false, "")
	fs.StringVar(&opts.Format, "format", "text", "")
	return fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conformance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestApplyConfigFileDefaults(t *testing.T) {
	opts := &checkOptions{Tier: "smoke", Timeout: 10 * time.Second, Format: "text"}
	fs := configFlagSet(opts)
	opts.ConfigFile = writeConfig(t, `
url: http://svc.internal:8080
tier: core
timeout: 30s
retries: 2
allow_mutations: true
strict: true
headers:
  Authorization: Bearer from-config
`)

	require.NoError(t, opts.applyConfigFile(fs))

	assert.Equal(t, "http://svc.internal:8080", opts.URL)
	assert.Equal(t, "core", opts.Tier)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.Retries)
	assert.True(t, opts.AllowMutations)
	assert.True(t, opts.Strict)
	assert.Equal(t, map[string]string{"Authorization": "Bearer from-config"}, opts.fileHeaders)
}

func TestApplyConfigFileFlagWins(t *testing.T) {
	opts := &checkOptions{}
	fs := configFlagSet(opts)
	require.NoError(t, fs.Set("url", "http://flag:1234"))
	require.NoError(t, fs.Set("tier", "surface"))
	opts.ConfigFile = writeConfig(t, "url: http://file:8080\ntier: deep\nformat: json\n")

	require.NoError(t, opts.applyConfigFile(fs))

	assert.Equal(t, "http://flag:1234", opts.URL, "explicit flags beat the config file")
	assert.Equal(t, "surface", opts.Tier)
	assert.Equal(t, "json", opts.Format, "unset flags take file values")
}

func TestApplyConfigFileBadDuration(t *testing.T) {
	opts := &checkOptions{}
	fs := configFlagSet(opts)
	opts.ConfigFile = writeConfig(t, "timeout: not-a-duration\n")

	err := opts.applyConfigFile(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestApplyConfigFileMissing(t *testing.T) {
	opts := &checkOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}
	require.Error(t, opts.applyConfigFile(configFlagSet(opts)))
}

func TestApplyConfigFileNoFileConfigured(t *testing.T) {
	opts := &checkOptions{}
	require.NoError(t, opts.applyConfigFile(configFlagSet(opts)))
}
