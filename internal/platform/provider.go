package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider defaults
const (
	DefaultTimeout  = 10 * time.Second
	DefaultProcRoot = "/proc"

	// skippedLogInterval throttles logging of per-item read failures, which
	// are routine while processes come and go
	skippedLogInterval = 30 * time.Second
)

// DefaultProvider creates a platform provider using the current runtime
func DefaultProvider(logger *zap.Logger) (Provider, error) {
	return NewProvider(&Config{
		TimeoutDuration: DefaultTimeout,
		ProcRoot:        DefaultProcRoot,
	}, logger)
}

// NewProvider creates a platform provider with the specified configuration
func NewProvider(config *Config, logger *zap.Logger) (Provider, error) {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid platform config: %w", err)
	}

	// Apply defaults
	if config.TimeoutDuration == 0 {
		config.TimeoutDuration = DefaultTimeout
	}
	if config.ProcRoot == "" {
		config.ProcRoot = DefaultProcRoot
	}

	// Enable mock provider for testing if requested
	if config.EnableMockProvider {
		return NewMockProvider(config), nil
	}

	// Select platform implementation
	platformName := config.PreferredPlatform
	if platformName == "" {
		platformName = runtime.GOOS
	}

	switch platformName {
	case PlatformLinux:
		return newLinuxProvider(config, logger.Named("linux"))
	case PlatformMock:
		return NewMockProvider(config), nil
	default:
		// darwin, windows, the BSDs, solaris and aix are all covered by gopsutil
		return newPortableProvider(config, logger.Named("portable")), nil
	}
}

// Validate validates the platform configuration
func (c *Config) Validate() error {
	if c.TimeoutDuration < 0 {
		return fmt.Errorf("timeout duration cannot be negative")
	}
	return nil
}

// withTimeout bounds a single native query
func withTimeout(ctx context.Context, config *Config) (context.Context, context.CancelFunc) {
	if config.TimeoutDuration <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, config.TimeoutDuration)
}

// newPlatformError wraps err and classifies it into an ErrorCode
func newPlatformError(platform, operation string, err error) *PlatformError {
	code := ErrorCodeUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrorCodeTimeout
	case errors.Is(err, fs.ErrPermission):
		code = ErrorCodePermissionDenied
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrProcessNotFound):
		code = ErrorCodeResourceNotFound
	case errors.Is(err, errors.ErrUnsupported):
		code = ErrorCodeNotSupported
	}

	return &PlatformError{
		Platform:  platform,
		Operation: operation,
		Err:       err,
		Code:      code,
	}
}

// skipLogger reports items dropped from an enumeration. A process that exits
// between listing and reading is expected, so only one report per interval
// reaches the log.
type skipLogger struct {
	logger    *zap.Logger
	sometimes *rate.Sometimes
}

func newSkipLogger(logger *zap.Logger) *skipLogger {
	return &skipLogger{
		logger:    logger,
		sometimes: &rate.Sometimes{First: 1, Interval: skippedLogInterval},
	}
}

func (s *skipLogger) skipped(what string, id interface{}, err error) {
	s.sometimes.Do(func() {
		s.logger.Debug("Skipping unreadable entry",
			zap.String("kind", what),
			zap.Any("id", id),
			zap.Error(err))
	})
}
