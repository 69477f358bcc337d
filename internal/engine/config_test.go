package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arp-standard/arp-conformance/internal/registry"
)

func validConfig() Config {
	return Config{
		Service: registry.ServiceRuntime,
		Tier:    registry.TierSmoke,
		BaseURL: "http://localhost:8080",
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := validConfig().withDefaults()
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultPollTimeout, cfg.PollTimeout)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, "v1", cfg.SpecVersion)

	cfg = validConfig()
	cfg.Timeout = time.Second
	cfg.SpecVersion = "v1"
	cfg = cfg.withDefaults()
	assert.Equal(t, time.Second, cfg.Timeout, "explicit values survive defaulting")
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown service", func(c *Config) { c.Service = "gateway" }, "service"},
		{"unknown tier", func(c *Config) { c.Tier = "paranoid" }, "tier"},
		{"empty url", func(c *Config) { c.BaseURL = "" }, "url"},
		{"non-http url", func(c *Config) { c.BaseURL = "ftp://host" }, "url"},
		{"url without host", func(c *Config) { c.BaseURL = "http://" }, "url"},
		{"core without allow-mutations", func(c *Config) { c.Tier = registry.TierCore }, "allow-mutations"},
		{"deep without allow-mutations", func(c *Config) { c.Tier = registry.TierDeep }, "allow-mutations"},
		{"core with allow-mutations", func(c *Config) { c.Tier = registry.TierCore; c.AllowMutations = true }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.validate()
			if tc.wantField == "" {
				require.NoError(t, err)
				return
			}
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.wantField, ce.Field)
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "url", Message: "base URL is required"}
	assert.Equal(t, "invalid configuration: url: base URL is required", err.Error())
	assert.Equal(t, "invalid configuration: broken", (&ConfigError{Message: "broken"}).Error())
}

func TestIsConfigError(t *testing.T) {
	err := &ConfigError{Field: "tier", Message: "nope"}
	assert.True(t, IsConfigError(err))
	assert.True(t, IsConfigError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsConfigError(errors.New("something else")))
	assert.False(t, IsConfigError(nil))
}
