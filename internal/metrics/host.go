package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cboxdk/sysinventory/internal/platform"
	"github.com/cboxdk/sysinventory/pkg/proctree"
)

// DefaultScrapeTimeout bounds one Collect call
const DefaultScrapeTimeout = 5 * time.Second

// Scrape sources reported through the scrape_success gauge
const (
	SourceMemory     = "memory"
	SourceProcesses  = "processes"
	SourceFileStores = "filestores"
	SourceNetwork    = "network"
)

// HostSource is the read side of an inventory. Reads are expected to be
// cached, so a scrape never costs more than one native query per source.
type HostSource interface {
	Memory(ctx context.Context) (*platform.MemoryInfo, error)
	ProcessTree(ctx context.Context) (*proctree.Resolver, error)
	FileStores(ctx context.Context) ([]*platform.FileStore, error)
	NetworkInterfaces(ctx context.Context) ([]*platform.InterfaceStats, error)
}

// HostCollector is a prometheus.Collector that reads host state from a
// HostSource on every scrape
type HostCollector struct {
	source  HostSource
	logger  *zap.Logger
	timeout time.Duration

	memoryTotal     *prometheus.Desc
	memoryAvailable *prometheus.Desc
	swapUsed        *prometheus.Desc
	processes       *prometheus.Desc
	processRoots    *prometheus.Desc
	fsSize          *prometheus.Desc
	fsFree          *prometheus.Desc
	netReceive      *prometheus.Desc
	netTransmit     *prometheus.Desc
	scrapeSuccess   *prometheus.Desc
}

// NewHostCollector creates a collector for source
func NewHostCollector(namespace string, source HostSource, logger *zap.Logger) *HostCollector {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HostCollector{
		source:  source,
		logger:  logger,
		timeout: DefaultScrapeTimeout,

		memoryTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "total_bytes"),
			"Total physical memory", nil, nil),
		memoryAvailable: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "available_bytes"),
			"Memory available for new allocations", nil, nil),
		swapUsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "memory", "swap_used_bytes"),
			"Swap space in use", nil, nil),
		processes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "processes"),
			"Number of processes in the current snapshot", nil, nil),
		processRoots: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "process_tree_roots"),
			"Number of processes without a discoverable parent", nil, nil),
		fsSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "filestore", "size_bytes"),
			"File store capacity", []string{"mount", "device", "type"}, nil),
		fsFree: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "filestore", "free_bytes"),
			"File store free space", []string{"mount", "device", "type"}, nil),
		netReceive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "receive_bytes_total"),
			"Bytes received per interface", []string{"interface"}, nil),
		netTransmit: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "network", "transmit_bytes_total"),
			"Bytes transmitted per interface", []string{"interface"}, nil),
		scrapeSuccess: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "scrape", "success"),
			"Whether the last read of a source succeeded", []string{"source"}, nil),
	}
}

// Describe implements prometheus.Collector
func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.memoryTotal
	ch <- c.memoryAvailable
	ch <- c.swapUsed
	ch <- c.processes
	ch <- c.processRoots
	ch <- c.fsSize
	ch <- c.fsFree
	ch <- c.netReceive
	ch <- c.netTransmit
	ch <- c.scrapeSuccess
}

// Collect implements prometheus.Collector
func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.report(ch, SourceMemory, c.collectMemory(ctx, ch))
	c.report(ch, SourceProcesses, c.collectProcesses(ctx, ch))
	c.report(ch, SourceFileStores, c.collectFileStores(ctx, ch))
	c.report(ch, SourceNetwork, c.collectNetwork(ctx, ch))
}

func (c *HostCollector) report(ch chan<- prometheus.Metric, source string, err error) {
	value := 1.0
	if err != nil {
		value = 0
		c.logger.Warn("Host metrics source failed",
			zap.String("source", source),
			zap.Error(err))
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, value, source)
}

func (c *HostCollector) collectMemory(ctx context.Context, ch chan<- prometheus.Metric) error {
	mem, err := c.source.Memory(ctx)
	if err != nil {
		return err
	}
	ch <- prometheus.MustNewConstMetric(c.memoryTotal, prometheus.GaugeValue, float64(mem.TotalBytes))
	ch <- prometheus.MustNewConstMetric(c.memoryAvailable, prometheus.GaugeValue, float64(mem.AvailableBytes))
	ch <- prometheus.MustNewConstMetric(c.swapUsed, prometheus.GaugeValue, float64(mem.SwapUsedBytes))
	return nil
}

func (c *HostCollector) collectProcesses(ctx context.Context, ch chan<- prometheus.Metric) error {
	tree, err := c.source.ProcessTree(ctx)
	if err != nil {
		return err
	}
	ch <- prometheus.MustNewConstMetric(c.processes, prometheus.GaugeValue, float64(tree.Snapshot().Len()))
	ch <- prometheus.MustNewConstMetric(c.processRoots, prometheus.GaugeValue, float64(len(tree.Roots())))
	return nil
}

func (c *HostCollector) collectFileStores(ctx context.Context, ch chan<- prometheus.Metric) error {
	stores, err := c.source.FileStores(ctx)
	if err != nil {
		return err
	}
	for _, fs := range stores {
		ch <- prometheus.MustNewConstMetric(c.fsSize, prometheus.GaugeValue, float64(fs.TotalBytes), fs.Mount, fs.Device, fs.Type)
		ch <- prometheus.MustNewConstMetric(c.fsFree, prometheus.GaugeValue, float64(fs.FreeBytes), fs.Mount, fs.Device, fs.Type)
	}
	return nil
}

func (c *HostCollector) collectNetwork(ctx context.Context, ch chan<- prometheus.Metric) error {
	stats, err := c.source.NetworkInterfaces(ctx)
	if err != nil {
		return err
	}
	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(c.netReceive, prometheus.CounterValue, float64(s.BytesRecv), s.Name)
		ch <- prometheus.MustNewConstMetric(c.netTransmit, prometheus.CounterValue, float64(s.BytesSent), s.Name)
	}
	return nil
}
