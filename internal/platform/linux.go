//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/v4/host"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/cboxdk/sysinventory/pkg/proctree"
)

// userHZ is the kernel's USER_HZ, the unit of the time fields in /proc/[pid]/stat
const userHZ = 100

// LinuxProvider implements the Provider interface for Linux systems
type LinuxProvider struct {
	config     *Config
	fs         procfs.FS
	process    *linuxProcessProvider
	memory     *linuxMemoryProvider
	cpu        *linuxCPUProvider
	network    *linuxNetworkProvider
	os         *linuxOSProvider
	filestores *fileStoreProvider
}

// newLinuxProvider creates a platform provider for Linux
func newLinuxProvider(config *Config, logger *zap.Logger) (Provider, error) {
	procFS, err := procfs.NewFS(config.ProcRoot)
	if err != nil {
		return nil, newPlatformError(PlatformLinux, "open "+config.ProcRoot, err)
	}

	skip := newSkipLogger(logger)
	return &LinuxProvider{
		config:     config,
		fs:         procFS,
		process:    &linuxProcessProvider{config: config, fs: procFS, skip: skip},
		memory:     &linuxMemoryProvider{config: config, fs: procFS},
		cpu:        &linuxCPUProvider{config: config, fs: procFS},
		network:    &linuxNetworkProvider{config: config, fs: procFS},
		os:         &linuxOSProvider{config: config, fs: procFS},
		filestores: newFileStoreProvider(PlatformLinux, config, skip),
	}, nil
}

// Process returns the Linux process provider
func (p *LinuxProvider) Process() ProcessProvider { return p.process }

// Memory returns the Linux memory provider
func (p *LinuxProvider) Memory() MemoryProvider { return p.memory }

// FileStores returns the file store provider
func (p *LinuxProvider) FileStores() FileStoreProvider { return p.filestores }

// CPU returns the Linux CPU provider
func (p *LinuxProvider) CPU() CPUProvider { return p.cpu }

// Network returns the Linux network provider
func (p *LinuxProvider) Network() NetworkProvider { return p.network }

// OS returns the Linux OS provider
func (p *LinuxProvider) OS() OSProvider { return p.os }

// Platform returns the platform identifier
func (p *LinuxProvider) Platform() string {
	return PlatformLinux
}

// IsSupported returns true if Linux platform features are available
func (p *LinuxProvider) IsSupported() bool {
	return p.process.IsSupported() && p.memory.IsSupported()
}

// linuxProcessProvider implements ProcessProvider using /proc/[pid]/stat
type linuxProcessProvider struct {
	config *Config
	fs     procfs.FS
	skip   *skipLogger
}

// ListProcesses reads the parent pid of every numeric /proc entry. Entries
// that vanish or cannot be read while the table is walked are skipped.
func (p *linuxProcessProvider) ListProcesses(ctx context.Context) ([]proctree.ProcessRecord, error) {
	ctx, cancel := withTimeout(ctx, p.config)
	defer cancel()

	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, newPlatformError(PlatformLinux, "list processes", err)
	}

	records := make([]proctree.ProcessRecord, 0, len(procs))
	for _, proc := range procs {
		if err := ctx.Err(); err != nil {
			return nil, newPlatformError(PlatformLinux, "list processes", err)
		}

		stat, err := proc.Stat()
		if err != nil {
			p.skip.skipped("process", proc.PID, err)
			continue
		}
		records = append(records, proctree.ProcessRecord{PID: proc.PID, ParentPID: stat.PPID})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	return records, nil
}

// GetProcessInfo returns detailed information about a specific process
func (p *linuxProcessProvider) GetProcessInfo(ctx context.Context, pid int) (*ProcessInfo, error) {
	if pid < 0 {
		return nil, &PlatformError{Platform: PlatformLinux, Operation: "get process", Err: fmt.Errorf("invalid pid %d", pid), Code: ErrorCodeInvalidArgument}
	}

	proc, err := p.fs.Proc(pid)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return nil, newPlatformError(PlatformLinux, "get process", err)
	}

	stat, err := proc.Stat()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return nil, newPlatformError(PlatformLinux, fmt.Sprintf("read /proc/%d/stat", pid), err)
	}

	info := &ProcessInfo{
		PID:           pid,
		PPID:          stat.PPID,
		Name:          stat.Comm,
		Command:       stat.Comm,
		State:         stat.State,
		VirtualBytes:  uint64(stat.VirtualMemory()),
		ResidentBytes: uint64(stat.ResidentMemory()),
		UserTime:      float64(stat.UTime) / userHZ,
		SystemTime:    float64(stat.STime) / userHZ,
		ThreadCount:   stat.NumThreads,
		Platform:      PlatformLinux,
	}

	// Kernel threads have an empty command line
	if cmdline, err := proc.CmdLine(); err == nil && len(cmdline) > 0 {
		info.Command = strings.Join(cmdline, " ")
	}

	if started, err := stat.StartTime(); err == nil {
		info.StartTime = time.Unix(0, int64(started*float64(time.Second)))
	}

	return info, nil
}

// Platform returns the platform identifier
func (p *linuxProcessProvider) Platform() string {
	return PlatformLinux
}

// IsSupported returns true if the proc filesystem is available
func (p *linuxProcessProvider) IsSupported() bool {
	_, err := os.Stat(p.config.ProcRoot)
	return err == nil
}

// linuxMemoryProvider implements MemoryProvider using /proc/meminfo
type linuxMemoryProvider struct {
	config *Config
	fs     procfs.FS
}

// GetMemoryInfo returns comprehensive memory statistics from /proc/meminfo
func (m *linuxMemoryProvider) GetMemoryInfo(ctx context.Context) (*MemoryInfo, error) {
	meminfo, err := m.fs.Meminfo()
	if err != nil {
		return nil, newPlatformError(PlatformLinux, "read meminfo", err)
	}

	memInfo := &MemoryInfo{
		TotalBytes:     kib(meminfo.MemTotal),
		FreeBytes:      kib(meminfo.MemFree),
		AvailableBytes: kib(meminfo.MemAvailable),
		CachedBytes:    kib(meminfo.Cached),
		BufferedBytes:  kib(meminfo.Buffers),
		SwapTotalBytes: kib(meminfo.SwapTotal),
		Timestamp:      time.Now(),
		Platform:       PlatformLinux,
	}
	if swapFree := kib(meminfo.SwapFree); memInfo.SwapTotalBytes >= swapFree {
		memInfo.SwapUsedBytes = memInfo.SwapTotalBytes - swapFree
	}

	// Calculate used memory (Total - Available is more accurate than Total - Free)
	if memInfo.AvailableBytes > 0 {
		memInfo.UsedBytes = memInfo.TotalBytes - memInfo.AvailableBytes
	} else {
		// Fallback calculation if MemAvailable is not available (older kernels)
		memInfo.AvailableBytes = memInfo.FreeBytes + memInfo.CachedBytes + memInfo.BufferedBytes
		if memInfo.TotalBytes >= memInfo.AvailableBytes {
			memInfo.UsedBytes = memInfo.TotalBytes - memInfo.AvailableBytes
		}
	}

	return memInfo, nil
}

// Platform returns the platform identifier
func (m *linuxMemoryProvider) Platform() string {
	return PlatformLinux
}

// IsSupported returns true if /proc/meminfo is readable
func (m *linuxMemoryProvider) IsSupported() bool {
	_, err := m.fs.Meminfo()
	return err == nil
}

// kib converts an optional /proc/meminfo kB value to bytes
func kib(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v * 1024
}

// linuxCPUProvider implements CPUProvider using /proc/cpuinfo
type linuxCPUProvider struct {
	config *Config
	fs     procfs.FS
}

// GetCPUInfo derives processor topology from /proc/cpuinfo
func (c *linuxCPUProvider) GetCPUInfo(ctx context.Context) (*CPUInfo, error) {
	cpus, err := c.fs.CPUInfo()
	if err != nil {
		return nil, newPlatformError(PlatformLinux, "read cpuinfo", err)
	}

	info := &CPUInfo{
		LogicalProcessors: len(cpus),
		Platform:          PlatformLinux,
	}

	packages := make(map[string]struct{})
	cores := make(map[string]struct{})
	for _, cpu := range cpus {
		packages[cpu.PhysicalID] = struct{}{}
		cores[cpu.PhysicalID+"/"+cpu.CoreID] = struct{}{}
		if cpu.CPUMHz > info.MaxFrequencyMHz {
			info.MaxFrequencyMHz = cpu.CPUMHz
		}
	}
	info.Packages = len(packages)
	info.PhysicalCores = len(cores)

	// Some architectures (arm64 in particular) omit the topology fields
	if info.LogicalProcessors == 0 {
		info.LogicalProcessors = runtime.NumCPU()
	}
	if info.PhysicalCores <= 1 && info.LogicalProcessors > 1 && cpusLackTopology(cpus) {
		info.PhysicalCores = info.LogicalProcessors
	}
	if info.Packages == 0 {
		info.Packages = 1
	}

	return info, nil
}

func cpusLackTopology(cpus []procfs.CPUInfo) bool {
	for _, cpu := range cpus {
		if cpu.CoreID != "" || cpu.PhysicalID != "" {
			return false
		}
	}
	return true
}

// Platform returns the platform identifier
func (c *linuxCPUProvider) Platform() string {
	return PlatformLinux
}

// linuxNetworkProvider implements NetworkProvider using /proc/net/dev
type linuxNetworkProvider struct {
	config *Config
	fs     procfs.FS
}

// GetInterfaceStats returns counters for every interface, sorted by name
func (n *linuxNetworkProvider) GetInterfaceStats(ctx context.Context) ([]*InterfaceStats, error) {
	netDev, err := n.fs.NetDev()
	if err != nil {
		return nil, newPlatformError(PlatformLinux, "read net/dev", err)
	}

	now := time.Now()
	stats := make([]*InterfaceStats, 0, len(netDev))
	for name, line := range netDev {
		stats = append(stats, &InterfaceStats{
			Name:        name,
			BytesRecv:   line.RxBytes,
			BytesSent:   line.TxBytes,
			PacketsRecv: line.RxPackets,
			PacketsSent: line.TxPackets,
			ErrorsIn:    line.RxErrors,
			ErrorsOut:   line.TxErrors,
			DropsIn:     line.RxDropped,
			DropsOut:    line.TxDropped,
			Timestamp:   now,
			Platform:    PlatformLinux,
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, nil
}

// Platform returns the platform identifier
func (n *linuxNetworkProvider) Platform() string {
	return PlatformLinux
}

// linuxOSProvider implements OSProvider using uname(2) and /proc/stat
type linuxOSProvider struct {
	config *Config
	fs     procfs.FS
}

// GetOSInfo returns kernel identity, boot time and distribution
func (o *linuxOSProvider) GetOSInfo(ctx context.Context) (*OSInfo, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return nil, newPlatformError(PlatformLinux, "uname", err)
	}

	info := &OSInfo{
		Family:        strings.ToLower(unix.ByteSliceToString(uts.Sysname[:])),
		KernelVersion: unix.ByteSliceToString(uts.Release[:]),
		Architecture:  unix.ByteSliceToString(uts.Machine[:]),
		Hostname:      unix.ByteSliceToString(uts.Nodename[:]),
		Platform:      PlatformLinux,
	}

	stat, err := o.fs.Stat()
	if err != nil {
		return nil, newPlatformError(PlatformLinux, "read stat", err)
	}
	info.BootTime = time.Unix(int64(stat.BootTime), 0)

	// Distribution comes from os-release and is best effort
	ctx, cancel := withTimeout(ctx, o.config)
	defer cancel()
	if distro, _, version, err := host.PlatformInformationWithContext(ctx); err == nil {
		info.Distribution = distro
		info.Version = version
	}

	return info, nil
}

// Platform returns the platform identifier
func (o *linuxOSProvider) Platform() string {
	return PlatformLinux
}
