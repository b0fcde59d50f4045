package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cboxdk/sysinventory/pkg/proctree"
)

// Mock operation names accepted by SetError, SetDelay and Calls
const (
	OpListProcesses     = "ListProcesses"
	OpGetProcessInfo    = "GetProcessInfo"
	OpGetMemoryInfo     = "GetMemoryInfo"
	OpGetFileStores     = "GetFileStores"
	OpGetCPUInfo        = "GetCPUInfo"
	OpGetInterfaceStats = "GetInterfaceStats"
	OpGetOSInfo         = "GetOSInfo"
)

// MockProvider is an in-memory Provider for tests. A single value implements
// every collaborator interface and counts how often each one is queried.
type MockProvider struct {
	config *Config

	mu         sync.RWMutex
	processes  map[int]*ProcessInfo
	memory     *MemoryInfo
	filestores []*FileStore
	cpu        *CPUInfo
	interfaces []*InterfaceStats
	os         *OSInfo
	errors     map[string]error
	delays     map[string]time.Duration
	calls      map[string]int
}

// NewMockProvider creates a mock platform provider with a small default host
func NewMockProvider(config *Config) *MockProvider {
	if config == nil {
		config = &Config{}
	}

	now := time.Now()
	return &MockProvider{
		config: config,
		processes: map[int]*ProcessInfo{
			1: {
				PID:           1,
				PPID:          0,
				Name:          "mock-init",
				Command:       "/sbin/mock-init",
				State:         "S",
				VirtualBytes:  50 * 1024 * 1024,
				ResidentBytes: 10 * 1024 * 1024,
				StartTime:     now.Add(-1 * time.Hour),
				UserTime:      0.5,
				SystemTime:    0.2,
				ThreadCount:   1,
				Platform:      PlatformMock,
			},
			100: {
				PID:           100,
				PPID:          1,
				Name:          "mock-service",
				Command:       "/usr/bin/mock-service --foreground",
				State:         "S",
				VirtualBytes:  128 * 1024 * 1024,
				ResidentBytes: 64 * 1024 * 1024,
				StartTime:     now.Add(-30 * time.Minute),
				UserTime:      15.0,
				SystemTime:    5.0,
				ThreadCount:   4,
				Platform:      PlatformMock,
			},
		},
		memory: &MemoryInfo{
			TotalBytes:     4 * 1024 * 1024 * 1024, // 4GB
			AvailableBytes: 2 * 1024 * 1024 * 1024,
			UsedBytes:      2 * 1024 * 1024 * 1024,
			FreeBytes:      2 * 1024 * 1024 * 1024,
			Platform:       PlatformMock,
		},
		filestores: []*FileStore{
			{
				Device:     "/dev/mock0",
				Mount:      "/",
				Type:       "ext4",
				TotalBytes: 100 * 1024 * 1024 * 1024,
				FreeBytes:  60 * 1024 * 1024 * 1024,
				UsedBytes:  40 * 1024 * 1024 * 1024,
				Platform:   PlatformMock,
			},
		},
		cpu: &CPUInfo{
			LogicalProcessors: 4,
			PhysicalCores:     2,
			Packages:          1,
			Platform:          PlatformMock,
		},
		interfaces: []*InterfaceStats{
			{Name: "lo", Platform: PlatformMock},
		},
		os: &OSInfo{
			Family:        "mock",
			Version:       "1.0",
			KernelVersion: "1.0.0-mock",
			Architecture:  "x86_64",
			Hostname:      "mockhost",
			BootTime:      now.Add(-24 * time.Hour),
			Platform:      PlatformMock,
		},
		errors: make(map[string]error),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

// Process returns the mock itself
func (m *MockProvider) Process() ProcessProvider { return m }

// Memory returns the mock itself
func (m *MockProvider) Memory() MemoryProvider { return m }

// FileStores returns the mock itself
func (m *MockProvider) FileStores() FileStoreProvider { return m }

// CPU returns the mock itself
func (m *MockProvider) CPU() CPUProvider { return m }

// Network returns the mock itself
func (m *MockProvider) Network() NetworkProvider { return m }

// OS returns the mock itself
func (m *MockProvider) OS() OSProvider { return m }

// Platform returns the platform identifier
func (m *MockProvider) Platform() string {
	return PlatformMock
}

// IsSupported always returns true
func (m *MockProvider) IsSupported() bool {
	return true
}

// SetProcesses replaces the process table
func (m *MockProvider) SetProcesses(processes []*ProcessInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processes = make(map[int]*ProcessInfo, len(processes))
	for _, proc := range processes {
		procCopy := *proc
		m.processes[proc.PID] = &procCopy
	}
}

// SetProcessTable replaces the process table with bare (pid, ppid) pairs
func (m *MockProvider) SetProcessTable(records []proctree.ProcessRecord) {
	processes := make([]*ProcessInfo, 0, len(records))
	for _, rec := range records {
		processes = append(processes, &ProcessInfo{
			PID:      rec.PID,
			PPID:     rec.ParentPID,
			Name:     fmt.Sprintf("proc-%d", rec.PID),
			Platform: PlatformMock,
		})
	}
	m.SetProcesses(processes)
}

// SetMemoryInfo replaces the memory statistics
func (m *MockProvider) SetMemoryInfo(info *MemoryInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = info
}

// SetFileStores replaces the mount list
func (m *MockProvider) SetFileStores(stores []*FileStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filestores = stores
}

// SetCPUInfo replaces the processor topology
func (m *MockProvider) SetCPUInfo(info *CPUInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpu = info
}

// SetInterfaceStats replaces the interface counters
func (m *MockProvider) SetInterfaceStats(stats []*InterfaceStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interfaces = stats
}

// SetOSInfo replaces the operating system identity
func (m *MockProvider) SetOSInfo(info *OSInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.os = info
}

// SetError makes op fail with err until cleared with a nil error
func (m *MockProvider) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, op)
		return
	}
	m.errors[op] = err
}

// SetDelay makes op sleep before answering. The sleep honours ctx.
func (m *MockProvider) SetDelay(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// Calls returns how many times op has been invoked
func (m *MockProvider) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// enter records a call and applies the configured delay and error
func (m *MockProvider) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	delay := m.delays[op]
	err := m.errors[op]
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return newPlatformError(PlatformMock, op, ctx.Err())
		}
	}

	if err != nil {
		return newPlatformError(PlatformMock, op, err)
	}
	return nil
}

// ListProcesses returns the configured process table ordered by pid
func (m *MockProvider) ListProcesses(ctx context.Context) ([]proctree.ProcessRecord, error) {
	if err := m.enter(ctx, OpListProcesses); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]proctree.ProcessRecord, 0, len(m.processes))
	for _, proc := range m.processes {
		records = append(records, proctree.ProcessRecord{PID: proc.PID, ParentPID: proc.PPID})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	return records, nil
}

// GetProcessInfo returns a copy of the configured process
func (m *MockProvider) GetProcessInfo(ctx context.Context, pid int) (*ProcessInfo, error) {
	if err := m.enter(ctx, OpGetProcessInfo); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	proc, exists := m.processes[pid]
	if !exists {
		return nil, newPlatformError(PlatformMock, OpGetProcessInfo, fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid))
	}

	procCopy := *proc
	return &procCopy, nil
}

// GetMemoryInfo returns a copy of the configured memory statistics
func (m *MockProvider) GetMemoryInfo(ctx context.Context) (*MemoryInfo, error) {
	if err := m.enter(ctx, OpGetMemoryInfo); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	memCopy := *m.memory
	memCopy.Timestamp = time.Now()
	return &memCopy, nil
}

// GetFileStores returns copies of the configured mounts
func (m *MockProvider) GetFileStores(ctx context.Context) ([]*FileStore, error) {
	if err := m.enter(ctx, OpGetFileStores); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*FileStore, len(m.filestores))
	for i, fs := range m.filestores {
		fsCopy := *fs
		out[i] = &fsCopy
	}
	return out, nil
}

// GetCPUInfo returns a copy of the configured topology
func (m *MockProvider) GetCPUInfo(ctx context.Context) (*CPUInfo, error) {
	if err := m.enter(ctx, OpGetCPUInfo); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cpuCopy := *m.cpu
	return &cpuCopy, nil
}

// GetInterfaceStats returns copies of the configured counters
func (m *MockProvider) GetInterfaceStats(ctx context.Context) ([]*InterfaceStats, error) {
	if err := m.enter(ctx, OpGetInterfaceStats); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := make([]*InterfaceStats, len(m.interfaces))
	for i, stat := range m.interfaces {
		statCopy := *stat
		statCopy.Timestamp = now
		out[i] = &statCopy
	}
	return out, nil
}

// GetOSInfo returns a copy of the configured identity
func (m *MockProvider) GetOSInfo(ctx context.Context) (*OSInfo, error) {
	if err := m.enter(ctx, OpGetOSInfo); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	osCopy := *m.os
	return &osCopy, nil
}
