// Package inventory answers questions about the running host: operating
// system identity, the process table and its family tree, memory, file
// stores, processor topology and network counters.
//
// Every query is backed by a memoized value whose TTL comes from a named
// cache policy, so callers may poll freely; the host is read at most once
// per TTL window no matter how many goroutines ask.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cboxdk/sysinventory/internal/metrics"
	"github.com/cboxdk/sysinventory/internal/platform"
	"github.com/cboxdk/sysinventory/internal/telemetry"
	"github.com/cboxdk/sysinventory/pkg/memo"
	"github.com/cboxdk/sysinventory/pkg/proctree"
)

// Records returned by the inventory
type (
	OSInfo         = platform.OSInfo
	ProcessInfo    = platform.ProcessInfo
	MemoryInfo     = platform.MemoryInfo
	FileStore      = platform.FileStore
	CPUInfo        = platform.CPUInfo
	InterfaceStats = platform.InterfaceStats
)

// Names of the memoized values, used in logs, spans and metric labels
const (
	ValueOSInfo     = "os-info"
	ValueProcesses  = "processes"
	ValueMemory     = "memory"
	ValueFileStores = "filestores"
	ValueProcessor  = "processor"
	ValueNetwork    = "network"
)

// ErrClosed is returned by queries on a closed inventory
var ErrClosed = errors.New("inventory closed")

// OperatingSystem is the host inventory. All methods are safe for concurrent
// use.
type OperatingSystem interface {
	// Platform names the provider serving this inventory
	Platform() string

	// Info returns operating system identity. Cached with the static policy.
	Info(ctx context.Context) (*OSInfo, error)

	// Processes returns the current process table snapshot
	Processes(ctx context.Context) (*proctree.Snapshot, error)

	// ProcessTree returns a resolver over the current snapshot
	ProcessTree(ctx context.Context) (*proctree.Resolver, error)

	// ChildProcesses returns the direct children of pid. Unknown pids yield
	// an empty slice.
	ChildProcesses(ctx context.Context, pid int) ([]int, error)

	// DescendantProcesses returns every transitive child of pid, breadth
	// first. Unknown pids yield an empty slice.
	DescendantProcesses(ctx context.Context, pid int) ([]int, error)

	// Process reads details of a single process. Not cached.
	Process(ctx context.Context, pid int) (*ProcessInfo, error)

	// DescribeProcesses reads details of several processes in parallel,
	// skipping those that exit before they are read
	DescribeProcesses(ctx context.Context, pids []int) ([]*ProcessInfo, error)

	Memory(ctx context.Context) (*MemoryInfo, error)
	FileStores(ctx context.Context) ([]*FileStore, error)
	Processor(ctx context.Context) (*CPUInfo, error)
	NetworkInterfaces(ctx context.Context) ([]*InterfaceStats, error)

	// Close releases telemetry and metric registrations
	Close(ctx context.Context) error
}

var (
	_ OperatingSystem    = (*System)(nil)
	_ metrics.HostSource = (*System)(nil)
)

// Option configures a System
type Option func(*options)

type options struct {
	provider   platform.Provider
	clock      memo.Clock
	registerer prometheus.Registerer
	tracer     trace.Tracer
}

// WithProvider replaces the platform provider selected from configuration
func WithProvider(provider platform.Provider) Option {
	return func(o *options) { o.provider = provider }
}

// WithClock replaces the clock used for TTL checks and snapshot timestamps
func WithClock(clock memo.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRegisterer registers cache and host metrics with registerer. Without
// it metrics are only registered, with the default registerer, when enabled
// in configuration.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *options) { o.registerer = registerer }
}

// WithTracer replaces the tracer built from the telemetry configuration
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// System is the OperatingSystem implementation. It owns its memoized values;
// two Systems never share cached state.
type System struct {
	config   *Config
	logger   *zap.Logger
	provider platform.Provider
	registry *memo.Registry
	clock    memo.Clock

	telemetry  *telemetry.Service
	traces     *telemetry.TraceHelper
	registerer prometheus.Registerer
	host       *metrics.HostCollector

	info       *memo.Value[*OSInfo]
	tree       *memo.Value[*proctree.Resolver]
	memory     *memo.Value[*MemoryInfo]
	fileStores *memo.Value[[]*FileStore]
	processor  *memo.Value[*CPUInfo]
	network    *memo.Value[[]*InterfaceStats]

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates an inventory for the running host. A nil cfg means
// DefaultConfig and a nil logger disables logging.
func New(cfg *Config, logger *zap.Logger, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := options{clock: memo.SystemClock}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = memo.SystemClock
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := cfg.Cache.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid cache policies: %w", err)
	}

	provider := o.provider
	if provider == nil {
		provider, err = platform.NewProvider(&cfg.Platform, logger.Named("platform"))
		if err != nil {
			return nil, fmt.Errorf("failed to create platform provider: %w", err)
		}
	}

	telemetryService, err := telemetry.NewService(cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tracer := o.tracer
	if tracer == nil {
		tracer = telemetryService.Tracer()
	}

	s := &System{
		config:    cfg,
		logger:    logger,
		provider:  provider,
		registry:  registry,
		clock:     o.clock,
		telemetry: telemetryService,
		traces:    telemetry.NewTraceHelper(tracer),
		closed:    make(chan struct{}),
	}

	memoOpts := []memo.Option{
		memo.WithClock(o.clock),
		memo.WithLogger(logger.Named("memo")),
		memo.WithTracer(tracer),
	}

	registerer := o.registerer
	if registerer == nil && cfg.Metrics.Enabled {
		registerer = prometheus.DefaultRegisterer
	}
	if registerer != nil {
		cacheMetrics, err := metrics.NewCacheMetrics(cfg.Metrics.Namespace, registerer)
		if err != nil {
			_ = telemetryService.Stop(context.Background())
			return nil, err
		}
		memoOpts = append(memoOpts, memo.WithObserver(cacheMetrics))
	}

	s.info = newValue(s.loadOSInfo, registry, memo.PolicyStatic, ValueOSInfo, memoOpts)
	s.tree = newValue(s.loadProcessTree, registry, memo.PolicyShortLivedStat, ValueProcesses, memoOpts)
	s.memory = newValue(s.loadMemory, registry, memo.PolicyShortLivedStat, ValueMemory, memoOpts)
	s.fileStores = newValue(s.loadFileStores, registry, memo.PolicyDefault, ValueFileStores, memoOpts)
	s.processor = newValue(s.loadProcessor, registry, memo.PolicyStatic, ValueProcessor, memoOpts)
	s.network = newValue(s.loadNetwork, registry, memo.PolicyShortLivedStat, ValueNetwork, memoOpts)

	if registerer != nil {
		host := metrics.NewHostCollector(cfg.Metrics.Namespace, s, logger.Named("metrics"))
		if err := registerer.Register(host); err != nil {
			_ = telemetryService.Stop(context.Background())
			return nil, fmt.Errorf("failed to register host metrics: %w", err)
		}
		s.registerer = registerer
		s.host = host
	}

	logger.Info("Inventory initialized",
		zap.String("platform", provider.Platform()),
		zap.Int("root_pid", cfg.Processes.RootPID),
		zap.Strings("policies", policyList(registry)),
		zap.Bool("metrics", registerer != nil),
		zap.Bool("telemetry", telemetryService.IsEnabled()))

	return s, nil
}

func newValue[T any](supplier memo.Supplier[T], registry *memo.Registry, policy, name string, opts []memo.Option) *memo.Value[T] {
	all := make([]memo.Option, 0, len(opts)+1)
	all = append(all, opts...)
	all = append(all, memo.WithName(name))
	return memo.New(supplier, registry.TTL(policy), all...)
}

func policyList(registry *memo.Registry) []string {
	names := registry.Names()
	out := make([]string, 0, len(names))
	for _, name := range names {
		if p, err := registry.Policy(name); err == nil {
			out = append(out, p.String())
		}
	}
	return out
}

// Registry returns the cache policies in effect
func (s *System) Registry() *memo.Registry {
	return s.registry
}

// Platform names the provider serving this inventory
func (s *System) Platform() string {
	return s.provider.Platform()
}

func (s *System) checkOpen() error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
		return nil
	}
}

// Info returns operating system identity
func (s *System) Info(ctx context.Context) (*OSInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	info, err := s.info.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := *info
	return &out, nil
}

// Processes returns the current process table snapshot
func (s *System) Processes(ctx context.Context) (*proctree.Snapshot, error) {
	tree, err := s.ProcessTree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Snapshot(), nil
}

// ProcessTree returns a resolver over the current snapshot. The resolver is
// built once per snapshot and shared by all callers.
func (s *System) ProcessTree(ctx context.Context) (*proctree.Resolver, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.tree.Get(ctx)
}

// ChildProcesses returns the direct children of pid
func (s *System) ChildProcesses(ctx context.Context, pid int) ([]int, error) {
	return s.treeQuery(ctx, "children", pid, (*proctree.Resolver).Children)
}

// DescendantProcesses returns every transitive child of pid
func (s *System) DescendantProcesses(ctx context.Context, pid int) ([]int, error) {
	return s.treeQuery(ctx, "descendants", pid, (*proctree.Resolver).Descendants)
}

func (s *System) treeQuery(ctx context.Context, operation string, pid int, query func(*proctree.Resolver, int) []int) ([]int, error) {
	var out []int
	err := s.traces.TraceQueryFunc(ctx, operation,
		[]attribute.KeyValue{attribute.Int(telemetry.AttrPID, pid)},
		func(ctx context.Context) (int, error) {
			tree, err := s.ProcessTree(ctx)
			if err != nil {
				return 0, err
			}
			out = query(tree, pid)
			return len(out), nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Process reads details of a single process
func (s *System) Process(ctx context.Context, pid int) (*ProcessInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.provider.Process().GetProcessInfo(ctx, pid)
}

// DescribeProcesses reads details of pids in parallel. The result keeps the
// order of pids; processes that no longer exist are left out. Any other
// failure cancels the remaining lookups and is returned.
func (s *System) DescribeProcesses(ctx context.Context, pids []int) ([]*ProcessInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []*ProcessInfo
	err := s.traces.TraceDescribeProcessesFunc(ctx, len(pids), func(ctx context.Context) (int, error) {
		results := make([]*ProcessInfo, len(pids))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.Processes.DescribeConcurrency)

		for i, pid := range pids {
			i, pid := i, pid
			g.Go(func() error {
				info, err := s.provider.Process().GetProcessInfo(gctx, pid)
				if err != nil {
					if errors.Is(err, platform.ErrProcessNotFound) {
						return nil
					}
					return fmt.Errorf("describe process %d: %w", pid, err)
				}
				results[i] = info
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return 0, err
		}

		out = make([]*ProcessInfo, 0, len(results))
		for _, info := range results {
			if info != nil {
				out = append(out, info)
			}
		}
		return len(out), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Memory returns memory statistics
func (s *System) Memory(ctx context.Context) (*MemoryInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	mem, err := s.memory.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := *mem
	return &out, nil
}

// FileStores returns mounted file systems, sorted by mount point
func (s *System) FileStores(ctx context.Context) ([]*FileStore, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stores, err := s.fileStores.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*FileStore, len(stores))
	for i, fs := range stores {
		c := *fs
		c.Options = append([]string(nil), fs.Options...)
		out[i] = &c
	}
	return out, nil
}

// Processor returns processor topology
func (s *System) Processor(ctx context.Context) (*CPUInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	cpu, err := s.processor.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := *cpu
	return &out, nil
}

// NetworkInterfaces returns per-interface traffic counters
func (s *System) NetworkInterfaces(ctx context.Context) ([]*InterfaceStats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	stats, err := s.network.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*InterfaceStats, len(stats))
	for i, st := range stats {
		c := *st
		out[i] = &c
	}
	return out, nil
}

// Close stops telemetry and unregisters host metrics. Later queries fail
// with ErrClosed. Close is idempotent.
func (s *System) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		if s.registerer != nil && s.host != nil {
			s.registerer.Unregister(s.host)
		}
		err = s.telemetry.Stop(ctx)

		s.logger.Info("Inventory closed")
	})
	return err
}

func (s *System) loadOSInfo(ctx context.Context) (*OSInfo, error) {
	return s.provider.OS().GetOSInfo(ctx)
}

func (s *System) loadProcessTree(ctx context.Context) (*proctree.Resolver, error) {
	records, err := s.provider.Process().ListProcesses(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := proctree.NewSnapshot(records, s.clock.Now())
	return proctree.NewResolver(snapshot, proctree.WithRootPID(s.config.Processes.RootPID)), nil
}

func (s *System) loadMemory(ctx context.Context) (*MemoryInfo, error) {
	return s.provider.Memory().GetMemoryInfo(ctx)
}

func (s *System) loadFileStores(ctx context.Context) ([]*FileStore, error) {
	return s.provider.FileStores().GetFileStores(ctx)
}

func (s *System) loadProcessor(ctx context.Context) (*CPUInfo, error) {
	return s.provider.CPU().GetCPUInfo(ctx)
}

func (s *System) loadNetwork(ctx context.Context) ([]*InterfaceStats, error) {
	return s.provider.Network().GetInterfaceStats(ctx)
}
