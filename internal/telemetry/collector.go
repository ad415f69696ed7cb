package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Collector gathers one metrics sample.
type Collector interface {
	Collect(ctx context.Context) (Metrics, error)
}

// HostCollector samples the local machine.
type HostCollector struct {
	AgentID     string
	CPUInterval time.Duration // CPU sampling window, defaults to one second
	DiskPath    string        // filesystem to report, defaults to "/"
}

// Collect implements Collector.
func (c *HostCollector) Collect(ctx context.Context) (Metrics, error) {
	interval := c.CPUInterval
	if interval <= 0 {
		interval = time.Second
	}
	diskPath := c.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read memory: %w", err)
	}
	cpuPercents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read cpu: %w", err)
	}
	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}
	users, err := host.UsersWithContext(ctx)
	if err != nil {
		// Containers often lack utmp; report zero users rather than failing.
		users = nil
	}
	usage, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read disk usage for %s: %w", diskPath, err)
	}

	return Metrics{
		AgentID:          c.AgentID,
		RAMPercent:       vm.UsedPercent,
		CPUPercent:       cpuPercent,
		Users:            len(users),
		RootUsagePercent: usage.UsedPercent,
		ReportedAt:       time.Now(),
	}, nil
}
