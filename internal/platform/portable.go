package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/cboxdk/sysinventory/pkg/proctree"
)

// PortableProvider implements the Provider interface on top of gopsutil. It
// serves darwin, windows, the BSDs and any other platform gopsutil knows.
type PortableProvider struct {
	config     *Config
	process    *portableProcessProvider
	memory     *portableMemoryProvider
	cpu        *portableCPUProvider
	network    *portableNetworkProvider
	os         *portableOSProvider
	filestores *fileStoreProvider
}

func newPortableProvider(config *Config, logger *zap.Logger) Provider {
	skip := newSkipLogger(logger)
	return &PortableProvider{
		config:     config,
		process:    &portableProcessProvider{config: config, skip: skip},
		memory:     &portableMemoryProvider{config: config},
		cpu:        &portableCPUProvider{config: config},
		network:    &portableNetworkProvider{config: config},
		os:         &portableOSProvider{config: config},
		filestores: newFileStoreProvider(PlatformPortable, config, skip),
	}
}

// Process returns the process provider
func (p *PortableProvider) Process() ProcessProvider { return p.process }

// Memory returns the memory provider
func (p *PortableProvider) Memory() MemoryProvider { return p.memory }

// FileStores returns the file store provider
func (p *PortableProvider) FileStores() FileStoreProvider { return p.filestores }

// CPU returns the CPU provider
func (p *PortableProvider) CPU() CPUProvider { return p.cpu }

// Network returns the network provider
func (p *PortableProvider) Network() NetworkProvider { return p.network }

// OS returns the OS provider
func (p *PortableProvider) OS() OSProvider { return p.os }

// Platform returns the platform identifier
func (p *PortableProvider) Platform() string {
	return PlatformPortable
}

// IsSupported returns true if the process table can be enumerated
func (p *PortableProvider) IsSupported() bool {
	return p.process.IsSupported()
}

type portableProcessProvider struct {
	config *Config
	skip   *skipLogger
}

// ListProcesses enumerates pids and resolves each parent. Processes that
// exit during the walk are skipped.
func (p *portableProcessProvider) ListProcesses(ctx context.Context) ([]proctree.ProcessRecord, error) {
	ctx, cancel := withTimeout(ctx, p.config)
	defer cancel()

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, newPlatformError(PlatformPortable, "list processes", err)
	}

	records := make([]proctree.ProcessRecord, 0, len(pids))
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, newPlatformError(PlatformPortable, "list processes", err)
		}

		proc := &process.Process{Pid: pid}
		ppid, err := proc.PpidWithContext(ctx)
		if err != nil {
			p.skip.skipped("process", pid, err)
			continue
		}
		records = append(records, proctree.ProcessRecord{PID: int(pid), ParentPID: int(ppid)})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	return records, nil
}

// GetProcessInfo returns detailed information about a specific process.
// Optional attributes that cannot be read are left at their zero value.
func (p *portableProcessProvider) GetProcessInfo(ctx context.Context, pid int) (*ProcessInfo, error) {
	ctx, cancel := withTimeout(ctx, p.config)
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			err = fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return nil, newPlatformError(PlatformPortable, "get process", err)
	}

	ppid, err := proc.PpidWithContext(ctx)
	if err != nil {
		return nil, newPlatformError(PlatformPortable, "get parent", err)
	}

	info := &ProcessInfo{
		PID:      pid,
		PPID:     int(ppid),
		Platform: PlatformPortable,
	}

	if name, err := proc.NameWithContext(ctx); err == nil {
		info.Name = name
		info.Command = name
	}
	if cmdline, err := proc.CmdlineWithContext(ctx); err == nil && cmdline != "" {
		info.Command = cmdline
	}
	if status, err := proc.StatusWithContext(ctx); err == nil && len(status) > 0 {
		info.State = strings.Join(status, ",")
	}
	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		info.VirtualBytes = memInfo.VMS
		info.ResidentBytes = memInfo.RSS
	}
	if created, err := proc.CreateTimeWithContext(ctx); err == nil {
		info.StartTime = time.UnixMilli(created)
	}
	if times, err := proc.TimesWithContext(ctx); err == nil && times != nil {
		info.UserTime = times.User
		info.SystemTime = times.System
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		info.ThreadCount = int(threads)
	}

	return info, nil
}

// Platform returns the platform identifier
func (p *portableProcessProvider) Platform() string {
	return PlatformPortable
}

// IsSupported returns true if pids can be listed
func (p *portableProcessProvider) IsSupported() bool {
	ctx, cancel := withTimeout(context.Background(), p.config)
	defer cancel()
	_, err := process.PidsWithContext(ctx)
	return err == nil
}

type portableMemoryProvider struct {
	config *Config
}

// GetMemoryInfo returns physical and swap memory statistics
func (m *portableMemoryProvider) GetMemoryInfo(ctx context.Context) (*MemoryInfo, error) {
	ctx, cancel := withTimeout(ctx, m.config)
	defer cancel()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, newPlatformError(PlatformPortable, "virtual memory", err)
	}

	info := &MemoryInfo{
		TotalBytes:     vm.Total,
		AvailableBytes: vm.Available,
		UsedBytes:      vm.Used,
		FreeBytes:      vm.Free,
		CachedBytes:    vm.Cached,
		BufferedBytes:  vm.Buffers,
		Timestamp:      time.Now(),
		Platform:       PlatformPortable,
	}

	// Swap is optional; some sandboxes refuse to report it
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		info.SwapTotalBytes = swap.Total
		info.SwapUsedBytes = swap.Used
	}

	return info, nil
}

// Platform returns the platform identifier
func (m *portableMemoryProvider) Platform() string {
	return PlatformPortable
}

// IsSupported returns true if memory statistics can be read
func (m *portableMemoryProvider) IsSupported() bool {
	_, err := mem.VirtualMemory()
	return err == nil
}

type portableCPUProvider struct {
	config *Config
}

// GetCPUInfo returns processor topology
func (c *portableCPUProvider) GetCPUInfo(ctx context.Context) (*CPUInfo, error) {
	ctx, cancel := withTimeout(ctx, c.config)
	defer cancel()

	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, newPlatformError(PlatformPortable, "count logical cpus", err)
	}

	info := &CPUInfo{
		LogicalProcessors: logical,
		PhysicalCores:     logical,
		Packages:          1,
		Platform:          PlatformPortable,
	}

	if physical, err := cpu.CountsWithContext(ctx, false); err == nil && physical > 0 {
		info.PhysicalCores = physical
	}

	if stats, err := cpu.InfoWithContext(ctx); err == nil && len(stats) > 0 {
		packages := make(map[string]struct{})
		for _, stat := range stats {
			packages[stat.PhysicalID] = struct{}{}
			if stat.Mhz > info.MaxFrequencyMHz {
				info.MaxFrequencyMHz = stat.Mhz
			}
		}
		info.Packages = len(packages)
	}

	return info, nil
}

// Platform returns the platform identifier
func (c *portableCPUProvider) Platform() string {
	return PlatformPortable
}

type portableNetworkProvider struct {
	config *Config
}

// GetInterfaceStats returns per-interface counters, sorted by name
func (n *portableNetworkProvider) GetInterfaceStats(ctx context.Context) ([]*InterfaceStats, error) {
	ctx, cancel := withTimeout(ctx, n.config)
	defer cancel()

	counters, err := gnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, newPlatformError(PlatformPortable, "io counters", err)
	}

	now := time.Now()
	stats := make([]*InterfaceStats, 0, len(counters))
	for _, c := range counters {
		stats = append(stats, &InterfaceStats{
			Name:        c.Name,
			BytesRecv:   c.BytesRecv,
			BytesSent:   c.BytesSent,
			PacketsRecv: c.PacketsRecv,
			PacketsSent: c.PacketsSent,
			ErrorsIn:    c.Errin,
			ErrorsOut:   c.Errout,
			DropsIn:     c.Dropin,
			DropsOut:    c.Dropout,
			Timestamp:   now,
			Platform:    PlatformPortable,
		})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, nil
}

// Platform returns the platform identifier
func (n *portableNetworkProvider) Platform() string {
	return PlatformPortable
}

type portableOSProvider struct {
	config *Config
}

// GetOSInfo returns operating system identity
func (o *portableOSProvider) GetOSInfo(ctx context.Context) (*OSInfo, error) {
	ctx, cancel := withTimeout(ctx, o.config)
	defer cancel()

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, newPlatformError(PlatformPortable, "host info", err)
	}

	return &OSInfo{
		Family:        hi.OS,
		Distribution:  hi.Platform,
		Version:       hi.PlatformVersion,
		KernelVersion: hi.KernelVersion,
		Architecture:  hi.KernelArch,
		Hostname:      hi.Hostname,
		BootTime:      time.Unix(int64(hi.BootTime), 0),
		Platform:      PlatformPortable,
	}, nil
}

// Platform returns the platform identifier
func (o *portableOSProvider) Platform() string {
	return PlatformPortable
}
