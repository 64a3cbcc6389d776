// Package hostmetrics samples CPU, memory, disk and uptime of the host.
package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type MemoryStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"usedPercent"`
}

type DiskStats struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

type DiskIOStats struct {
	ReadBytes  uint64 `json:"readBytes"`
	WriteBytes uint64 `json:"writeBytes"`
}

// Snapshot is one sample. A section that could not be read is nil.
type Snapshot struct {
	Timestamp     time.Time    `json:"timestamp"`
	CPUPercent    *float64     `json:"cpuPercent"`
	Memory        *MemoryStats `json:"memory"`
	Disk          *DiskStats   `json:"disk"`
	DiskIO        *DiskIOStats `json:"diskIO"`
	UptimeSeconds *uint64      `json:"uptimeSeconds"`
}

// String renders the snapshot for log lines.
func (s Snapshot) String() string {
	parts := make([]string, 0, 5)

	if s.CPUPercent != nil {
		parts = append(parts, fmt.Sprintf("cpu %.1f%%", *s.CPUPercent))
	}
	if s.Memory != nil {
		parts = append(parts, fmt.Sprintf("mem %s / %s", humanize.Bytes(s.Memory.Used), humanize.Bytes(s.Memory.Total)))
	}
	if s.Disk != nil {
		parts = append(parts, fmt.Sprintf("disk %s free of %s", humanize.Bytes(s.Disk.Free), humanize.Bytes(s.Disk.Total)))
	}
	if s.DiskIO != nil {
		parts = append(parts, fmt.Sprintf("io %s read, %s written", humanize.Bytes(s.DiskIO.ReadBytes), humanize.Bytes(s.DiskIO.WriteBytes)))
	}
	if s.UptimeSeconds != nil {
		boot := s.Timestamp.Add(-time.Duration(*s.UptimeSeconds) * time.Second)
		parts = append(parts, "up "+strings.TrimSpace(humanize.RelTime(boot, s.Timestamp, "", "")))
	}

	if len(parts) == 0 {
		return "no metrics"
	}
	return strings.Join(parts, " | ")
}

// Collector reads host metrics through gopsutil. The source funcs are
// swapped out in tests.
type Collector struct {
	diskPath string
	now      func() time.Time

	cpuPercent func(ctx context.Context) (float64, error)
	memory     func(ctx context.Context) (*MemoryStats, error)
	disk       func(ctx context.Context, path string) (*DiskStats, error)
	diskIO     func(ctx context.Context) (*DiskIOStats, error)
	uptime     func(ctx context.Context) (uint64, error)
}

func NewCollector(diskPath string) *Collector {
	return &Collector{
		diskPath:   diskPath,
		now:        time.Now,
		cpuPercent: readCPU,
		memory:     readMemory,
		disk:       readDisk,
		diskIO:     readDiskIO,
		uptime:     host.UptimeWithContext,
	}
}

// Collect takes a sample. Sections that fail are left nil and their
// errors joined into the returned error; the snapshot is always usable.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Timestamp: c.now()}
	var errs []error

	if v, err := c.cpuPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else {
		snap.CPUPercent = &v
	}

	if v, err := c.memory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		snap.Memory = v
	}

	if v, err := c.disk(ctx, c.diskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk %s: %w", c.diskPath, err))
	} else {
		snap.Disk = v
	}

	if v, err := c.diskIO(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disk io: %w", err))
	} else {
		snap.DiskIO = v
	}

	if v, err := c.uptime(ctx); err != nil {
		errs = append(errs, fmt.Errorf("uptime: %w", err))
	} else {
		snap.UptimeSeconds = &v
	}

	return snap, errors.Join(errs...)
}

func readCPU(ctx context.Context) (float64, error) {
	// Zero interval compares against the previous call
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu data")
	}
	return percents[0], nil
}

func readMemory(ctx context.Context) (*MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &MemoryStats{
		Total:       vm.Total,
		Used:        vm.Used,
		Available:   vm.Available,
		UsedPercent: vm.UsedPercent,
	}, nil
}

func readDisk(ctx context.Context, path string) (*DiskStats, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, err
	}
	return &DiskStats{
		Path:        usage.Path,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

func readDiskIO(ctx context.Context) (*DiskIOStats, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var stats DiskIOStats
	for _, c := range counters {
		stats.ReadBytes += c.ReadBytes
		stats.WriteBytes += c.WriteBytes
	}
	return &stats, nil
}
