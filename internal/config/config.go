// Package config loads and validates the sysinventory YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cboxdk/sysinventory/internal/logging"
	"github.com/cboxdk/sysinventory/internal/platform"
	"github.com/cboxdk/sysinventory/internal/telemetry"
	"github.com/cboxdk/sysinventory/pkg/memo"
)

// Config represents the application configuration
type Config struct {
	Platform  platform.Config  `yaml:"platform"`
	Cache     CacheConfig      `yaml:"cache"`
	Processes ProcessesConfig  `yaml:"processes"`
	Logging   logging.Config   `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// CacheConfig overrides cache policy presets by name. Values accept Go
// durations as well as "never" and "always".
type CacheConfig struct {
	Policies map[string]memo.TTL `yaml:"policies"`
}

// ProcessesConfig contains process table settings
type ProcessesConfig struct {
	// RootPID is the pid treated as the top of the process tree
	RootPID int `yaml:"root_pid"`

	// DescribeConcurrency bounds parallel per-process lookups
	DescribeConcurrency int `yaml:"describe_concurrency"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Overrides returns the configured policy TTLs as plain durations
func (c CacheConfig) Overrides() map[string]time.Duration {
	if len(c.Policies) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.Policies))
	for name, ttl := range c.Policies {
		out[name] = ttl.Duration()
	}
	return out
}

// Registry builds the cache policy registry described by the configuration
func (c CacheConfig) Registry() (*memo.Registry, error) {
	return memo.NewRegistry(c.Overrides())
}

// Default returns a configuration with every default applied. Unlike
// LoadDefault it does not validate.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

// Validate checks an in-memory configuration, typically one built from
// Default and then modified
func (c *Config) Validate() error {
	return validate(c)
}

// LoadDefault creates a zero-configuration setup with all defaults
func LoadDefault() (*Config, error) {
	var config Config

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid default configuration: %w", err)
	}

	return &config, nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Create the log directory before validation checks it
	if err := ensureConfigDirectories(&config); err != nil {
		return nil, fmt.Errorf("directory creation failed: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Platform defaults
	if cfg.Platform.TimeoutDuration == 0 {
		cfg.Platform.TimeoutDuration = platform.DefaultTimeout
	}
	if cfg.Platform.ProcRoot == "" {
		cfg.Platform.ProcRoot = platform.DefaultProcRoot
	}

	// Process defaults
	if cfg.Processes.DescribeConcurrency == 0 {
		cfg.Processes.DescribeConcurrency = runtime.NumCPU()
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = "stderr"
	}

	// Telemetry defaults
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "dev"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = EnvDevelopment
	}
	if cfg.Telemetry.Exporter.Type == "" {
		cfg.Telemetry.Exporter.Type = ExporterTypeStdout
	}
	if cfg.Telemetry.Sampling.Rate == 0 {
		cfg.Telemetry.Sampling.Rate = DefaultSamplingRate
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultNamespace
	}
}

// ValidationError represents a structured validation error
type ValidationError struct {
	Field      string      // Configuration field path (e.g., "cache.policies.static")
	Value      interface{} // Invalid value
	Message    string      // Human-readable error message
	Suggestion string      // Suggested fix
}

// ValidationResult contains the results of configuration validation
type ValidationResult struct {
	Valid    bool              // Overall validation status
	Errors   []ValidationError // List of validation errors
	Warnings []ValidationError // List of validation warnings
}

// Error implements the error interface for ValidationResult
func (vr *ValidationResult) Error() string {
	if len(vr.Errors) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(vr.Errors)))

	for i, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s", i+1, err.Field, err.Message))
		if err.Suggestion != "" {
			sb.WriteString(fmt.Sprintf(" (suggestion: %s)", err.Suggestion))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// validate checks the configuration for required fields and consistency
func validate(cfg *Config) error {
	result := validateConfiguration(cfg)
	if !result.Valid {
		return result
	}
	return nil
}

// validateConfiguration performs comprehensive validation and returns detailed results
func validateConfiguration(cfg *Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	validatePlatformConfig(&cfg.Platform, result)
	validateCacheConfig(&cfg.Cache, result)
	validateProcessesConfig(&cfg.Processes, result)
	validateLoggingConfig(&cfg.Logging, result)
	validateTelemetryConfig(&cfg.Telemetry, result)
	validateMetricsConfig(&cfg.Metrics, result)

	result.Valid = len(result.Errors) == 0

	return result
}

// GetValidationResult returns detailed validation results for external use
func GetValidationResult(cfg *Config) *ValidationResult {
	return validateConfiguration(cfg)
}

// validatePlatformConfig validates platform provider configuration
func validatePlatformConfig(cfg *platform.Config, result *ValidationResult) {
	if err := validateDuration(cfg.TimeoutDuration, MinPlatformTimeout, MaxPlatformTimeout, "platform.timeout"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	switch cfg.PreferredPlatform {
	case "", platform.PlatformLinux, platform.PlatformPortable, platform.PlatformMock:
	default:
		// Any GOOS name is routed to the portable provider
		result.Warnings = append(result.Warnings, ValidationError{
			Field:      "platform.preferred_platform",
			Value:      cfg.PreferredPlatform,
			Message:    "platform is served by the portable provider",
			Suggestion: "use 'linux', 'portable' or leave empty to auto-detect",
		})
	}

	usesProcFS := cfg.PreferredPlatform == platform.PlatformLinux ||
		(cfg.PreferredPlatform == "" && runtime.GOOS == "linux")
	if usesProcFS && !cfg.EnableMockProvider {
		if err := validateDirectoryPath(cfg.ProcRoot); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:      "platform.proc_root",
				Value:      cfg.ProcRoot,
				Message:    fmt.Sprintf("proc filesystem not usable: %v", err),
				Suggestion: "point proc_root at a mounted proc filesystem",
			})
		}
	}

	if cfg.EnableMockProvider {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:      "platform.enable_mock_provider",
			Value:      true,
			Message:    "mock provider returns synthetic data",
			Suggestion: "disable outside of tests",
		})
	}
}

// validateCacheConfig validates cache policy overrides
func validateCacheConfig(cfg *CacheConfig, result *ValidationResult) {
	names := make([]string, 0, len(cfg.Policies))
	for name := range cfg.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	known := memo.DefaultRegistry()
	for _, name := range names {
		field := "cache.policies." + name
		ttl := cfg.Policies[name].Duration()

		if _, err := known.Policy(name); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:      field,
				Value:      name,
				Message:    "unknown cache policy",
				Suggestion: fmt.Sprintf("use one of %s", strings.Join(known.Names(), ", ")),
			})
			continue
		}

		if ttl < 0 && ttl != memo.Never {
			result.Errors = append(result.Errors, ValidationError{
				Field:      field,
				Value:      ttl.String(),
				Message:    "TTL cannot be negative",
				Suggestion: "use 'never' to cache forever",
			})
			continue
		}

		if ttl > memo.Always && ttl < MinUsefulTTL {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:      field,
				Value:      ttl.String(),
				Message:    fmt.Sprintf("TTL below %s is effectively uncached", MinUsefulTTL),
				Suggestion: "use 'always' to disable caching explicitly",
			})
		}
	}
}

// validateProcessesConfig validates process table settings
func validateProcessesConfig(cfg *ProcessesConfig, result *ValidationResult) {
	if cfg.RootPID < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:      "processes.root_pid",
			Value:      cfg.RootPID,
			Message:    "root pid cannot be negative",
			Suggestion: "use 0, the scheduler or idle process",
		})
	}

	if err := validatePositiveInt(cfg.DescribeConcurrency, "processes.describe_concurrency"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
}

// validateLoggingConfig validates logging configuration
func validateLoggingConfig(cfg *logging.Config, result *ValidationResult) {
	if _, err := logging.ParseLevel(cfg.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:      "logging.level",
			Value:      cfg.Level,
			Message:    "invalid log level",
			Suggestion: "use 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{
		"json": true, "console": true,
	}

	if !validFormats[strings.ToLower(cfg.Format)] {
		result.Errors = append(result.Errors, ValidationError{
			Field:      "logging.format",
			Value:      cfg.Format,
			Message:    "invalid log format",
			Suggestion: "use 'json' or 'console'",
		})
	}

	if cfg.OutputPath != "" && cfg.OutputPath != "stdout" && cfg.OutputPath != "stderr" {
		dir := filepath.Dir(cfg.OutputPath)
		if dir != "." && dir != "/" {
			if err := validateDirectoryPath(dir); err != nil {
				result.Warnings = append(result.Warnings, ValidationError{
					Field:      "logging.output_path",
					Value:      cfg.OutputPath,
					Message:    fmt.Sprintf("log directory issue: %v", err),
					Suggestion: "ensure parent directory exists and is writable",
				})
			}
		}
	}
}

// validateTelemetryConfig validates telemetry configuration
func validateTelemetryConfig(cfg *telemetry.Config, result *ValidationResult) {
	if !cfg.Enabled {
		return
	}

	if err := validateStringNotEmpty(cfg.ServiceName, "telemetry.service_name"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	validTypes := map[string]bool{
		ExporterTypeStdout: true, ExporterTypeOTLP: true,
	}

	if !validTypes[cfg.Exporter.Type] {
		result.Errors = append(result.Errors, ValidationError{
			Field:      "telemetry.exporter.type",
			Value:      cfg.Exporter.Type,
			Message:    "invalid exporter type",
			Suggestion: "use 'stdout' or 'otlp'",
		})
	}

	if cfg.Exporter.Type == ExporterTypeOTLP {
		if cfg.Exporter.Endpoint == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:      "telemetry.exporter.endpoint",
				Value:      cfg.Exporter.Endpoint,
				Message:    "endpoint is required for otlp exporter",
				Suggestion: "provide the collector host:port, e.g. 'localhost:4318'",
			})
		} else if strings.Contains(cfg.Exporter.Endpoint, "://") {
			// otlptracehttp takes host:port
			if err := validateURL(cfg.Exporter.Endpoint, "telemetry.exporter.endpoint"); err != nil {
				result.Errors = append(result.Errors, *err)
			} else {
				result.Warnings = append(result.Warnings, ValidationError{
					Field:      "telemetry.exporter.endpoint",
					Value:      cfg.Exporter.Endpoint,
					Message:    "endpoint should be host:port without scheme",
					Suggestion: "drop the scheme and set insecure for plain http",
				})
			}
		}
	}

	if cfg.Sampling.Rate < 0 || cfg.Sampling.Rate > 1.0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:      "telemetry.sampling.rate",
			Value:      cfg.Sampling.Rate,
			Message:    "sampling rate must be between 0 and 1",
			Suggestion: "use 0.1 for 10% sampling or 1.0 for all traces",
		})
	}
}

// validateMetricsConfig validates Prometheus settings
func validateMetricsConfig(cfg *MetricsConfig, result *ValidationResult) {
	if !cfg.Enabled {
		return
	}

	if err := validateStringNotEmpty(cfg.Namespace, "metrics.namespace"); err != nil {
		result.Errors = append(result.Errors, *err)
		return
	}

	for _, r := range cfg.Namespace {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			result.Errors = append(result.Errors, ValidationError{
				Field:      "metrics.namespace",
				Value:      cfg.Namespace,
				Message:    "namespace may only contain letters, digits and underscores",
				Suggestion: "use a name like 'sysinventory'",
			})
			return
		}
	}
}

// validateDuration validates a duration is within acceptable bounds
func validateDuration(d time.Duration, min, max time.Duration, fieldName string) *ValidationError {
	if d < min {
		return &ValidationError{
			Field:      fieldName,
			Value:      d.String(),
			Message:    fmt.Sprintf("duration %s is below minimum %s", d, min),
			Suggestion: fmt.Sprintf("use a value >= %s", min),
		}
	}

	if max > 0 && d > max {
		return &ValidationError{
			Field:      fieldName,
			Value:      d.String(),
			Message:    fmt.Sprintf("duration %s is above maximum %s", d, max),
			Suggestion: fmt.Sprintf("use a value <= %s", max),
		}
	}

	return nil
}

// validatePositiveInt validates a positive integer
func validatePositiveInt(value int, fieldName string) *ValidationError {
	if value <= 0 {
		return &ValidationError{
			Field:      fieldName,
			Value:      value,
			Message:    "value must be positive",
			Suggestion: "use a value > 0",
		}
	}
	return nil
}

// validateStringNotEmpty validates a string is not empty
func validateStringNotEmpty(value, fieldName string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:      fieldName,
			Value:      value,
			Message:    "value cannot be empty",
			Suggestion: "provide a non-empty value",
		}
	}
	return nil
}

// validateURL validates a URL format
func validateURL(urlStr, fieldName string) *ValidationError {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return &ValidationError{
			Field:      fieldName,
			Value:      urlStr,
			Message:    fmt.Sprintf("invalid URL format: %v", err),
			Suggestion: "use format like 'localhost:4318'",
		}
	}

	if parsedURL.Host == "" {
		return &ValidationError{
			Field:      fieldName,
			Value:      urlStr,
			Message:    "URL must include a host",
			Suggestion: "use format like 'localhost:4318'",
		}
	}

	return nil
}

// validateDirectoryPath checks that path is an existing directory
func validateDirectoryPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// ensureConfigDirectories creates the parent directory of a file log output
func ensureConfigDirectories(cfg *Config) error {
	path := cfg.Logging.OutputPath
	if path == "" || path == "stdout" || path == "stderr" {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s for path %s: %w", dir, path, err)
		}
	}

	return nil
}
