//go:build !linux

package platform

import (
	"go.uber.org/zap"
)

// newLinuxProvider falls back to the portable provider when the proc
// filesystem reader is not compiled in
func newLinuxProvider(config *Config, logger *zap.Logger) (Provider, error) {
	logger.Warn("Linux provider requested on a non-Linux build, using portable provider")
	return newPortableProvider(config, logger), nil
}
