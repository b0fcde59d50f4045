package config

import "time"

// Configuration defaults
const (
	DefaultConfigPath   = "configs/sysinventory.yaml" // Default configuration file path
	DefaultServiceName  = "sysinventory"              // Default telemetry service name
	DefaultSamplingRate = 0.1                         // Default telemetry sampling rate (10%)
	DefaultNamespace    = "sysinventory"              // Default Prometheus metric namespace

	DefaultShutdownTimeout = 5 * time.Second // Telemetry provider shutdown timeout

	// Platform query timeout bounds
	MinPlatformTimeout = 100 * time.Millisecond
	MaxPlatformTimeout = 5 * time.Minute

	// Finite cache TTLs below this are reported as validation warnings
	MinUsefulTTL = 10 * time.Millisecond
)

// Environment-specific constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Telemetry exporter types
const (
	ExporterTypeStdout = "stdout"
	ExporterTypeOTLP   = "otlp"
)
