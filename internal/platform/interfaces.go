// Package platform provides the native-call collaborators behind the
// inventory package. Each provider reads one kind of host information
// (process table, memory, file stores, CPU topology, network counters,
// operating system identity) straight from the platform and returns plain
// records. Providers never cache; callers wrap them in memo values.
//
// Linux is served from the proc filesystem. Every other platform goes through
// gopsutil, which wraps sysctl, IOKit, WMI, perfstat and friends.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/cboxdk/sysinventory/pkg/proctree"
)

// ProcessProvider abstracts process table access across platforms
type ProcessProvider interface {
	// ListProcesses returns a (pid, parent pid) pair for every process
	// visible right now, ordered by pid
	ListProcesses(ctx context.Context) ([]proctree.ProcessRecord, error)

	// GetProcessInfo returns detailed information about a specific process
	GetProcessInfo(ctx context.Context, pid int) (*ProcessInfo, error)

	// Platform returns the platform identifier for this provider
	Platform() string

	// IsSupported returns true if process enumeration is supported
	IsSupported() bool
}

// MemoryProvider abstracts system memory information across platforms
type MemoryProvider interface {
	// GetMemoryInfo returns comprehensive memory statistics
	GetMemoryInfo(ctx context.Context) (*MemoryInfo, error)

	// Platform returns the platform identifier for this provider
	Platform() string

	// IsSupported returns true if memory detection is supported on this platform
	IsSupported() bool
}

// FileStoreProvider lists mounted file systems and their capacity
type FileStoreProvider interface {
	GetFileStores(ctx context.Context) ([]*FileStore, error)
	Platform() string
}

// CPUProvider reports processor topology
type CPUProvider interface {
	GetCPUInfo(ctx context.Context) (*CPUInfo, error)
	Platform() string
}

// NetworkProvider reports per-interface traffic counters
type NetworkProvider interface {
	GetInterfaceStats(ctx context.Context) ([]*InterfaceStats, error)
	Platform() string
}

// OSProvider reports operating system identity
type OSProvider interface {
	GetOSInfo(ctx context.Context) (*OSInfo, error)
	Platform() string
}

// Provider is a unified interface for all platform collaborators
type Provider interface {
	Process() ProcessProvider
	Memory() MemoryProvider
	FileStores() FileStoreProvider
	CPU() CPUProvider
	Network() NetworkProvider
	OS() OSProvider
	Platform() string
	IsSupported() bool
}

// ProcessInfo represents detailed process information
type ProcessInfo struct {
	PID           int       `json:"pid"`
	PPID          int       `json:"ppid"`
	Name          string    `json:"name"`
	Command       string    `json:"command"`
	State         string    `json:"state"`
	VirtualBytes  uint64    `json:"virtual_bytes,omitempty"`
	ResidentBytes uint64    `json:"resident_bytes,omitempty"`
	StartTime     time.Time `json:"start_time"`
	UserTime      float64   `json:"user_time_seconds"`
	SystemTime    float64   `json:"system_time_seconds"`
	ThreadCount   int       `json:"thread_count,omitempty"`
	Platform      string    `json:"platform"`
}

// MemoryInfo represents comprehensive memory statistics
type MemoryInfo struct {
	TotalBytes     uint64    `json:"total_bytes"`
	AvailableBytes uint64    `json:"available_bytes"`
	UsedBytes      uint64    `json:"used_bytes"`
	FreeBytes      uint64    `json:"free_bytes"`
	CachedBytes    uint64    `json:"cached_bytes,omitempty"`   // Linux/macOS specific
	BufferedBytes  uint64    `json:"buffered_bytes,omitempty"` // Linux specific
	SwapTotalBytes uint64    `json:"swap_total_bytes,omitempty"`
	SwapUsedBytes  uint64    `json:"swap_used_bytes,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Platform       string    `json:"platform"`
}

// FileStore describes one mounted file system
type FileStore struct {
	Device      string   `json:"device"`
	Mount       string   `json:"mount"`
	Type        string   `json:"type"`
	Options     []string `json:"options,omitempty"`
	TotalBytes  uint64   `json:"total_bytes"`
	FreeBytes   uint64   `json:"free_bytes"`
	UsedBytes   uint64   `json:"used_bytes"`
	TotalInodes uint64   `json:"total_inodes,omitempty"`
	FreeInodes  uint64   `json:"free_inodes,omitempty"`
	Platform    string   `json:"platform"`
}

// CPUInfo describes processor topology
type CPUInfo struct {
	LogicalProcessors int     `json:"logical_processors"`
	PhysicalCores     int     `json:"physical_cores"`
	Packages          int     `json:"packages"`
	MaxFrequencyMHz   float64 `json:"max_frequency_mhz,omitempty"`
	Platform          string  `json:"platform"`
}

// InterfaceStats holds traffic counters for one network interface
type InterfaceStats struct {
	Name        string    `json:"name"`
	BytesRecv   uint64    `json:"bytes_recv"`
	BytesSent   uint64    `json:"bytes_sent"`
	PacketsRecv uint64    `json:"packets_recv"`
	PacketsSent uint64    `json:"packets_sent"`
	ErrorsIn    uint64    `json:"errors_in"`
	ErrorsOut   uint64    `json:"errors_out"`
	DropsIn     uint64    `json:"drops_in"`
	DropsOut    uint64    `json:"drops_out"`
	Timestamp   time.Time `json:"timestamp"`
	Platform    string    `json:"platform"`
}

// OSInfo describes the running operating system
type OSInfo struct {
	Family        string    `json:"family"`
	Distribution  string    `json:"distribution,omitempty"`
	Version       string    `json:"version,omitempty"`
	KernelVersion string    `json:"kernel_version,omitempty"`
	Architecture  string    `json:"architecture"`
	Hostname      string    `json:"hostname,omitempty"`
	BootTime      time.Time `json:"boot_time"`
	Platform      string    `json:"platform"`
}

// ErrProcessNotFound is returned when a pid does not exist (any more)
var ErrProcessNotFound = errors.New("process not found")

// PlatformError represents platform-specific errors
type PlatformError struct {
	Platform  string
	Operation string
	Err       error
	Code      ErrorCode
}

func (e *PlatformError) Error() string {
	return e.Platform + " " + e.Operation + ": " + e.Err.Error()
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// ErrorCode represents platform-specific error categories
type ErrorCode int

const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeNotSupported
	ErrorCodePermissionDenied
	ErrorCodeResourceNotFound
	ErrorCodeTimeout
	ErrorCodeInvalidArgument
)

// String returns the string representation of the error code
func (e ErrorCode) String() string {
	switch e {
	case ErrorCodeNotSupported:
		return "not_supported"
	case ErrorCodePermissionDenied:
		return "permission_denied"
	case ErrorCodeResourceNotFound:
		return "resource_not_found"
	case ErrorCodeTimeout:
		return "timeout"
	case ErrorCodeInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Platform identifiers
const (
	PlatformLinux    = "linux"
	PlatformPortable = "portable"
	PlatformMock     = "mock"
)

// Config represents platform provider configuration
type Config struct {
	// PreferredPlatform overrides runtime.GOOS when selecting a provider
	PreferredPlatform string `yaml:"preferred_platform,omitempty" json:"preferred_platform,omitempty"`

	// EnableMockProvider enables mock provider for testing
	EnableMockProvider bool `yaml:"enable_mock_provider,omitempty" json:"enable_mock_provider,omitempty"`

	// TimeoutDuration bounds every native query
	TimeoutDuration time.Duration `yaml:"timeout" json:"timeout_duration,omitempty"`

	// ProcRoot is the proc filesystem mount point on Linux
	ProcRoot string `yaml:"proc_root,omitempty" json:"proc_root,omitempty"`

	// AllFileStores includes pseudo and virtual file systems
	AllFileStores bool `yaml:"all_file_stores,omitempty" json:"all_file_stores,omitempty"`
}
