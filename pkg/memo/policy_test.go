package memo

import (
	"errors"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		expected time.Duration
	}{
		{PolicyShortLivedStat, DefaultShortLivedTTL},
		{PolicyDefault, DefaultShortLivedTTL},
		{PolicyInstalledApps, DefaultInstalledAppsTTL},
		{PolicyStatic, Never},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Policy(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.TTL != tt.expected {
				t.Errorf("expected ttl %v, got %v", tt.expected, p.TTL)
			}
			if p.Name != tt.name {
				t.Errorf("expected name %q, got %q", tt.name, p.Name)
			}
		})
	}

	expectedNames := []string{PolicyDefault, PolicyInstalledApps, PolicyShortLivedStat, PolicyStatic}
	names := r.Names()
	if len(names) != len(expectedNames) {
		t.Fatalf("expected %d names, got %v", len(expectedNames), names)
	}
	for i := range expectedNames {
		if names[i] != expectedNames[i] {
			t.Errorf("names[%d]: expected %q, got %q", i, expectedNames[i], names[i])
		}
	}
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name        string
		overrides   map[string]time.Duration
		expectedErr error
		check       string
		expectedTTL time.Duration
	}{
		{
			name:        "no overrides",
			check:       PolicyInstalledApps,
			expectedTTL: DefaultInstalledAppsTTL,
		},
		{
			name:        "override installed apps",
			overrides:   map[string]time.Duration{PolicyInstalledApps: 5 * time.Minute},
			check:       PolicyInstalledApps,
			expectedTTL: 5 * time.Minute,
		},
		{
			name:        "override short-lived stat to always",
			overrides:   map[string]time.Duration{PolicyShortLivedStat: Always},
			check:       PolicyShortLivedStat,
			expectedTTL: Always,
		},
		{
			name:        "override default to never",
			overrides:   map[string]time.Duration{PolicyDefault: Never},
			check:       PolicyDefault,
			expectedTTL: Never,
		},
		{
			name:        "unknown policy",
			overrides:   map[string]time.Duration{"installed-fonts": time.Minute},
			expectedErr: ErrUnknownPolicy,
		},
		{
			name:        "negative ttl",
			overrides:   map[string]time.Duration{PolicyDefault: -2 * time.Second},
			expectedErr: ErrInvalidTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.overrides)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := r.TTL(tt.check); got != tt.expectedTTL {
				t.Errorf("expected ttl %v, got %v", tt.expectedTTL, got)
			}
		})
	}
}

func TestRegistryUnknownLookup(t *testing.T) {
	r := DefaultRegistry()

	if _, err := r.Policy("nope"); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
	if got := r.TTL("nope"); got != DefaultShortLivedTTL {
		t.Errorf("expected fallback to default ttl, got %v", got)
	}
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		input     string
		expected  time.Duration
		expectErr bool
	}{
		{input: "never", expected: Never},
		{input: "NEVER", expected: Never},
		{input: "static", expected: Never},
		{input: "always", expected: Always},
		{input: "0", expected: Always},
		{input: "250ms", expected: 250 * time.Millisecond},
		{input: " 2m ", expected: 2 * time.Minute},
		{input: "", expectErr: true},
		{input: "-1s", expectErr: true},
		{input: "soon", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTTL(tt.input)
			if tt.expectErr {
				if !errors.Is(err, ErrInvalidTTL) {
					t.Errorf("expected ErrInvalidTTL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
			if back, err := ParseTTL(FormatTTL(got)); err != nil || back != got {
				t.Errorf("FormatTTL(%v) = %q does not parse back", got, FormatTTL(got))
			}
		})
	}
}

func TestTTLYAML(t *testing.T) {
	var doc struct {
		Policies map[string]TTL `yaml:"policies"`
	}

	input := `
policies:
  static: never
  short-lived-stat: always
  installed-apps: 10m
`
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Policies[PolicyStatic].Duration() != Never {
		t.Errorf("expected never, got %v", doc.Policies[PolicyStatic])
	}
	if doc.Policies[PolicyShortLivedStat].Duration() != Always {
		t.Errorf("expected always, got %v", doc.Policies[PolicyShortLivedStat])
	}
	if doc.Policies[PolicyInstalledApps].Duration() != 10*time.Minute {
		t.Errorf("expected 10m, got %v", doc.Policies[PolicyInstalledApps])
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	if err := yaml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("marshalled document does not parse: %v", err)
	}

	bad := "policies:\n  static: [1, 2]\n"
	if err := yaml.Unmarshal([]byte(bad), &doc); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("expected ErrInvalidTTL for sequence value, got %v", err)
	}
}
