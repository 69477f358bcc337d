package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of --config. Every field defaults a
// flag; explicitly set flags win over the file.
type fileConfig struct {
	URL            string            `yaml:"url"`
	Tier           string            `yaml:"tier"`
	Headers        map[string]string `yaml:"headers"`
	Timeout        string            `yaml:"timeout"`
	Retries        *int              `yaml:"retries"`
	PollTimeout    string            `yaml:"poll_timeout"`
	PollInterval   string            `yaml:"poll_interval"`
	AllowMutations *bool             `yaml:"allow_mutations"`
	NoCleanup      *bool             `yaml:"no_cleanup"`
	Strict         *bool             `yaml:"strict"`
	Format         string            `yaml:"format"`
	ToolID         string            `yaml:"tool_id"`
	ToolName       string            `yaml:"tool_name"`
	RuntimeProfile string            `yaml:"runtime_profile"`
	SpecVersion    string            `yaml:"spec"`
	DB             string            `yaml:"db"`
}

// applyConfigFile merges file defaults into opts for every flag the
// user did not set on the command line.
func (o *checkOptions) applyConfigFile(flags *pflag.FlagSet) error {
	if o.ConfigFile == "" {
		return nil
	}
	raw, err := os.ReadFile(o.ConfigFile)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", o.ConfigFile, err)
	}

	setString := func(flag string, dst *string, v string) {
		if v != "" && !flags.Changed(flag) {
			*dst = v
		}
	}
	setBool := func(flag string, dst *bool, v *bool) {
		if v != nil && !flags.Changed(flag) {
			*dst = *v
		}
	}
	setDuration := func(flag string, dst *time.Duration, v string) error {
		if v == "" || flags.Changed(flag) {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", flag, v, err)
		}
		*dst = d
		return nil
	}

	setString("url", &o.URL, fc.URL)
	setString("tier", &o.Tier, fc.Tier)
	setString("format", &o.Format, fc.Format)
	setString("tool-id", &o.ToolID, fc.ToolID)
	setString("tool-name", &o.ToolName, fc.ToolName)
	setString("runtime-profile", &o.RuntimeProfile, fc.RuntimeProfile)
	setString("spec", &o.SpecVersion, fc.SpecVersion)
	setString("db", &o.DB, fc.DB)
	setBool("allow-mutations", &o.AllowMutations, fc.AllowMutations)
	setBool("no-cleanup", &o.NoCleanup, fc.NoCleanup)
	setBool("strict", &o.Strict, fc.Strict)
	if fc.Retries != nil && !flags.Changed("retries") {
		o.Retries = *fc.Retries
	}
	if err := setDuration("timeout", &o.Timeout, fc.Timeout); err != nil {
		return err
	}
	if err := setDuration("poll-timeout", &o.PollTimeout, fc.PollTimeout); err != nil {
		return err
	}
	if err := setDuration("poll-interval", &o.PollInterval, fc.PollInterval); err != nil {
		return err
	}

	// File headers are the base layer; flag and headers-file entries are
	// merged on top by buildHeaders.
	if len(fc.Headers) > 0 {
		o.fileHeaders = fc.Headers
	}
	return nil
}

// buildHeaders merges header sources: config file, then --headers-file,
// then repeated --header flags, later sources winning.
func (o *checkOptions) buildHeaders() (map[string]string, error) {
	out := make(map[string]string, len(o.fileHeaders))
	for k, v := range o.fileHeaders {
		out[k] = v
	}
	if o.HeadersFile != "" {
		raw, err := os.ReadFile(o.HeadersFile)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			k, v, err := splitHeader(line)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", o.HeadersFile, err)
			}
			out[k] = v
		}
	}
	for _, h := range o.Headers {
		k, v, err := splitHeader(h)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func splitHeader(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", fmt.Errorf("header %q must be KEY=VALUE", s)
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), nil
}
