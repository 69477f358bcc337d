package engine

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/arp-standard/arp-conformance/internal/registry"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultPollTimeout    = 60 * time.Second
	DefaultPollInterval   = time.Second
	DefaultCleanupTimeout = 30 * time.Second
)

// Config describes one conformance run: the target service, the tier to
// execute, and the knobs controlling probing and cleanup.
type Config struct {
	// Service is the kind of service under test.
	Service registry.ServiceKind

	// Tier selects how deep the run goes.
	Tier registry.Tier

	// BaseURL is the service root (scheme://host[:port]), without the
	// versioned API prefix.
	BaseURL string

	// Headers are sent on every request. Credentials go here.
	Headers map[string]string

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration

	// Retries is the transport-level retry count per request.
	Retries int

	// PollTimeout bounds waiting for an asynchronous run to reach a
	// terminal state. PollInterval is the pause between poll requests.
	PollTimeout  time.Duration
	PollInterval time.Duration

	// AllowMutations must be set for the core and deep tiers, which
	// create real resources on the service under test.
	AllowMutations bool

	// NoCleanup leaves created resources behind instead of deleting
	// them when the workflow ends.
	NoCleanup bool

	// Strict makes WARN and SKIP count against overall success.
	Strict bool

	// ToolID and ToolName pin the tool the registry workflow invokes.
	// When neither matches, the first listed tool is used.
	ToolID   string
	ToolName string

	// RuntimeProfile pins the profile the daemon workflow schedules
	// onto. Empty means reuse the first listed profile, or create one.
	RuntimeProfile string

	// SpecVersion selects the embedded contract snapshot. Empty means v1.
	SpecVersion string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SpecVersion == "" {
		c.SpecVersion = "v1"
	}
	return c
}

// validate rejects unusable configurations. It performs no I/O: a
// ConfigError is always raised before the first request is sent.
func (c Config) validate() error {
	if _, err := registry.ParseServiceKind(string(c.Service)); err != nil {
		return &ConfigError{Field: "service", Message: err.Error()}
	}
	if _, err := registry.ParseTier(string(c.Tier)); err != nil {
		return &ConfigError{Field: "tier", Message: err.Error()}
	}
	if c.BaseURL == "" {
		return &ConfigError{Field: "url", Message: "base URL is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "url", Message: fmt.Sprintf("base URL %q must be http(s)://host[:port]", c.BaseURL)}
	}
	if c.Tier.RequiresMutations() && !c.AllowMutations {
		return &ConfigError{
			Field:   "allow-mutations",
			Message: fmt.Sprintf("tier %q creates real resources on the target; pass allow-mutations to proceed", c.Tier),
		}
	}
	return nil
}

// ConfigError is an invalid-invocation error. It is raised before any
// network I/O and is never recorded as a check outcome.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
