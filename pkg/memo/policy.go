package memo

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Preset names recognized by a Registry
const (
	PolicyShortLivedStat = "short-lived-stat"
	PolicyDefault        = "default"
	PolicyInstalledApps  = "installed-apps"
	PolicyStatic         = "static"
)

// Default preset TTLs
const (
	DefaultShortLivedTTL    = 300 * time.Millisecond
	DefaultInstalledAppsTTL = time.Minute
)

// ErrUnknownPolicy is returned for a preset name the Registry does not know.
var ErrUnknownPolicy = errors.New("unknown cache policy")

// Policy is a named TTL preset.
type Policy struct {
	Name string
	TTL  time.Duration
}

// String implements fmt.Stringer
func (p Policy) String() string {
	return p.Name + "=" + FormatTTL(p.TTL)
}

// Registry holds the cache policy presets for one owner. It is immutable once
// built, so it can be shared freely.
type Registry struct {
	policies map[string]Policy
}

func defaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyShortLivedStat: {Name: PolicyShortLivedStat, TTL: DefaultShortLivedTTL},
		PolicyDefault:        {Name: PolicyDefault, TTL: DefaultShortLivedTTL},
		PolicyInstalledApps:  {Name: PolicyInstalledApps, TTL: DefaultInstalledAppsTTL},
		PolicyStatic:         {Name: PolicyStatic, TTL: Never},
	}
}

// DefaultRegistry returns the built-in presets.
func DefaultRegistry() *Registry {
	return &Registry{policies: defaultPolicies()}
}

// NewRegistry returns the built-in presets with the given TTLs replaced.
// Only known preset names may be overridden.
func NewRegistry(overrides map[string]time.Duration) (*Registry, error) {
	policies := defaultPolicies()

	for name, ttl := range overrides {
		if _, ok := policies[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
		}
		if ttl < 0 && ttl != Never {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTTL, name, ttl)
		}
		policies[name] = Policy{Name: name, TTL: ttl}
	}

	return &Registry{policies: policies}, nil
}

// Policy looks up a preset by name
func (r *Registry) Policy(name string) (Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// TTL returns the TTL of the named preset, or of the default preset when the
// name is unknown.
func (r *Registry) TTL(name string) time.Duration {
	if p, ok := r.policies[name]; ok {
		return p.TTL
	}
	return r.policies[PolicyDefault].TTL
}

// Names returns the preset names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
