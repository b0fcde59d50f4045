// Package telemetry wires OpenTelemetry tracing for sysinventory.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Exporter types
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// shutdownTimeout bounds the final span flush
const shutdownTimeout = 5 * time.Second

// Config represents telemetry configuration
type Config struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	// SetGlobal installs the tracer provider as the otel global
	SetGlobal bool `yaml:"set_global"`

	// Exporter configuration
	Exporter ExporterConfig `yaml:"exporter"`

	// Sampling configuration
	Sampling SamplingConfig `yaml:"sampling"`
}

// ExporterConfig configures telemetry exporters
type ExporterConfig struct {
	Type     string            `yaml:"type"` // "stdout" or "otlp"
	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Insecure bool              `yaml:"insecure,omitempty"`
}

// SamplingConfig configures trace sampling
type SamplingConfig struct {
	Rate float64 `yaml:"rate"` // 0.0 to 1.0
}

// ServiceOption customizes a Service
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	exporter trace.SpanExporter
	syncer   bool
}

// WithExporter replaces the configured exporter. Spans are exported
// synchronously, which keeps tests deterministic.
func WithExporter(exporter trace.SpanExporter) ServiceOption {
	return func(o *serviceOptions) {
		o.exporter = exporter
		o.syncer = true
	}
}

// Service manages OpenTelemetry telemetry
type Service struct {
	config   Config
	logger   *zap.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

// NewService creates a new telemetry service
func NewService(config Config, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !config.Enabled {
		logger.Debug("Telemetry disabled")
		return &Service{
			config: config,
			logger: logger,
		}, nil
	}

	var options serviceOptions
	for _, opt := range opts {
		opt(&options)
	}

	// Create resource with service information
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter := options.exporter
	if exporter == nil {
		exporter, err = createExporter(config.Exporter)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
	}

	spanProcessor := trace.WithBatcher(exporter)
	if options.syncer {
		spanProcessor = trace.WithSyncer(exporter)
	}

	// Respect the parent decision so a sampled caller keeps its children
	sampler := trace.ParentBased(trace.TraceIDRatioBased(config.Sampling.Rate))
	provider := trace.NewTracerProvider(
		spanProcessor,
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)

	if config.SetGlobal {
		otel.SetTracerProvider(provider)
	}

	tracer := provider.Tracer(config.ServiceName)

	logger.Info("Telemetry initialized",
		zap.String("service", config.ServiceName),
		zap.String("version", config.ServiceVersion),
		zap.String("environment", config.Environment),
		zap.String("exporter", config.Exporter.Type),
		zap.Float64("sampling_rate", config.Sampling.Rate))

	return &Service{
		config:   config,
		logger:   logger,
		provider: provider,
		tracer:   tracer,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration
func createExporter(config ExporterConfig) (trace.SpanExporter, error) {
	switch config.Type {
	case ExporterStdout:
		return stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	case ExporterOTLP:
		if config.Endpoint == "" {
			return nil, fmt.Errorf("OTLP endpoint is required")
		}

		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(config.Endpoint),
		}

		if len(config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}

		return otlptracehttp.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.Type)
	}
}

// Stop flushes remaining spans and shuts the provider down
func (s *Service) Stop(ctx context.Context) error {
	if !s.config.Enabled || s.provider == nil {
		return nil
	}

	s.logger.Debug("Stopping telemetry service")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.provider.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shutdown telemetry provider", zap.Error(err))
		return err
	}

	s.logger.Debug("Telemetry service stopped")
	return nil
}

// Tracer returns the OpenTelemetry tracer, or a noop tracer when telemetry is
// disabled
func (s *Service) Tracer() oteltrace.Tracer {
	if s.tracer == nil {
		return noop.NewTracerProvider().Tracer("noop")
	}
	return s.tracer
}

// IsEnabled returns true if telemetry is enabled
func (s *Service) IsEnabled() bool {
	return s.config.Enabled
}
