package platform

import (
	"context"
	"sort"

	"github.com/shirou/gopsutil/v4/disk"
)

// fileStoreProvider lists mounts through gopsutil on every platform
type fileStoreProvider struct {
	platform string
	config   *Config
	skip     *skipLogger
}

func newFileStoreProvider(platform string, config *Config, skip *skipLogger) *fileStoreProvider {
	return &fileStoreProvider{platform: platform, config: config, skip: skip}
}

// GetFileStores returns every mounted file system with its capacity, sorted
// by mount point. Mounts whose usage cannot be read are skipped.
func (f *fileStoreProvider) GetFileStores(ctx context.Context) ([]*FileStore, error) {
	ctx, cancel := withTimeout(ctx, f.config)
	defer cancel()

	partitions, err := disk.PartitionsWithContext(ctx, f.config.AllFileStores)
	if err != nil {
		return nil, newPlatformError(f.platform, "list partitions", err)
	}

	seen := make(map[string]struct{}, len(partitions))
	stores := make([]*FileStore, 0, len(partitions))
	for _, part := range partitions {
		// Bind mounts show up once per target; keep the first
		if _, dup := seen[part.Mountpoint]; dup {
			continue
		}
		seen[part.Mountpoint] = struct{}{}

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, newPlatformError(f.platform, "read usage", ctx.Err())
			}
			f.skip.skipped("file store", part.Mountpoint, err)
			continue
		}

		stores = append(stores, &FileStore{
			Device:      part.Device,
			Mount:       part.Mountpoint,
			Type:        part.Fstype,
			Options:     append([]string(nil), part.Opts...),
			TotalBytes:  usage.Total,
			FreeBytes:   usage.Free,
			UsedBytes:   usage.Used,
			TotalInodes: usage.InodesTotal,
			FreeInodes:  usage.InodesFree,
			Platform:    f.platform,
		})
	}

	sort.Slice(stores, func(i, j int) bool { return stores[i].Mount < stores[j].Mount })
	return stores, nil
}

// Platform returns the platform identifier
func (f *fileStoreProvider) Platform() string {
	return f.platform
}
