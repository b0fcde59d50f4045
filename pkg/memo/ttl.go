package memo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Never computes a value once and keeps it for the lifetime of the Value.
	Never time.Duration = -1

	// Always recomputes on every access.
	Always time.Duration = 0
)

// ErrInvalidTTL is returned when a TTL string or value cannot be used.
var ErrInvalidTTL = errors.New("invalid ttl")

// ParseTTL parses "never", "always" or a Go duration string.
func ParseTTL(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "static":
		return Never, nil
	case "always", "0":
		return Always, nil
	case "":
		return 0, fmt.Errorf("%w: empty value", ErrInvalidTTL)
	}

	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTTL, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %q is negative, use \"never\"", ErrInvalidTTL, s)
	}
	return d, nil
}

// FormatTTL is the inverse of ParseTTL.
func FormatTTL(ttl time.Duration) string {
	switch {
	case ttl < 0:
		return "never"
	case ttl == 0:
		return "always"
	default:
		return ttl.String()
	}
}

// normalizeTTL folds every negative duration into Never.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return Never
	}
	return ttl
}

// TTL is a time.Duration that reads and writes the "never" and "always"
// sentinels in YAML documents.
type TTL time.Duration

// Duration returns the TTL as a time.Duration
func (t TTL) Duration() time.Duration {
	return time.Duration(t)
}

// String implements fmt.Stringer
func (t TTL) String() string {
	return FormatTTL(time.Duration(t))
}

// UnmarshalYAML implements yaml.Unmarshaler
func (t *TTL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: expected a scalar", ErrInvalidTTL, node.Line)
	}

	d, err := ParseTTL(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = TTL(d)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (t TTL) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}
