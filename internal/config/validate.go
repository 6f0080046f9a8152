package config

import (
	"fmt"
	"net"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

// ValidationResult separates validation problems that must block startup
// (Fatals) from ones that were auto-corrected or are merely suspicious
// (Warnings).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just
// want to log or display everything found.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Structurally
// invalid values (an address that can't be parsed, a plugin suffix
// missing its dot) are fatal. Out-of-range numeric values are clamped to
// a safe default and reported as warnings rather than blocking startup.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			result.Fatals = append(result.Fatals, fmt.Errorf("listen_addr %q is not a valid host:port: %w", c.ListenAddr, err))
		}
	}

	if c.PluginSuffix != "" && !strings.HasPrefix(c.PluginSuffix, ".") {
		result.Fatals = append(result.Fatals, fmt.Errorf("plugin_suffix %q must start with \".\"", c.PluginSuffix))
	}

	// Clamp the lag threshold to a safe range to prevent a pathological
	// value from thrashing the suspend/resume state machine.
	if c.LagThresholdMS < 50 {
		result.Warnings = append(result.Warnings, fmt.Errorf("lag_threshold_ms %d is below minimum 50, clamping", c.LagThresholdMS))
		c.LagThresholdMS = 50
	} else if c.LagThresholdMS > 60000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("lag_threshold_ms %d exceeds maximum 60000, clamping", c.LagThresholdMS))
		c.LagThresholdMS = 60000
	}

	if c.MaxConcurrentBackends < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_concurrent_backends %d is below minimum 1, clamping", c.MaxConcurrentBackends))
		c.MaxConcurrentBackends = 1
	} else if c.MaxConcurrentBackends > 100 {
		result.Warnings = append(result.Warnings, fmt.Errorf("max_concurrent_backends %d exceeds maximum 100, clamping", c.MaxConcurrentBackends))
		c.MaxConcurrentBackends = 100
	}

	if c.BackendQueueSize < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("backend_queue_size %d is below minimum 1, clamping", c.BackendQueueSize))
		c.BackendQueueSize = 1
	} else if c.BackendQueueSize > 10000 {
		result.Warnings = append(result.Warnings, fmt.Errorf("backend_queue_size %d exceeds maximum 10000, clamping", c.BackendQueueSize))
		c.BackendQueueSize = 10000
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	return result
}
