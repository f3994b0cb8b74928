package host

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/nirspec-go/internal/logging"
)

// systemSampleInterval paces the local resource samples.
const systemSampleInterval = 10 * time.Second

// runSystemMonitor samples local CPU and memory utilization, feeding the
// gauges and the trace log until ctx ends.
func (c *Controller) runSystemMonitor(ctx context.Context) {
	ticker := time.NewTicker(systemSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cpuPercent := 0.0
		if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
			cpuPercent = percents[0]
		}

		memPercent := 0.0
		if vm, err := mem.VirtualMemory(); err == nil {
			memPercent = vm.UsedPercent
		}

		if c.metrics != nil {
			c.metrics.SetSystemUsage(cpuPercent, memPercent)
		}
		if c.log != nil {
			c.log.Log(ctx, logging.LevelTrace, "system sample",
				"cpu_percent", cpuPercent, "memory_percent", memPercent)
		}
	}
}
