package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage contains resource usage information
type ResourceUsage struct {
	CPUPercent     float64 // average since the monitor started
	MemoryRSS      uint64
	MemoryVMS      uint64
	GoroutineCount int
	ThreadCount    int32
}

// ResourceMonitor samples the resource usage of the current process.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.Mutex
}

// NewResourceMonitor creates a resource monitor for this process.
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	m := &ResourceMonitor{process: proc, startTime: time.Now()}
	if cpuTime, err := proc.Times(); err == nil {
		m.startCPUTime = cpuTime.Total()
	}
	return m, nil
}

// Sample returns the current resource usage. Fields the platform cannot
// report are left zero.
func (m *ResourceMonitor) Sample() ResourceUsage {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage := ResourceUsage{GoroutineCount: runtime.NumGoroutine()}

	if cpuTime, err := m.process.Times(); err == nil {
		if elapsed := time.Since(m.startTime).Seconds(); elapsed > 0 {
			usage.CPUPercent = (cpuTime.Total() - m.startCPUTime) / elapsed * 100
		}
	}
	if memInfo, err := m.process.MemoryInfo(); err == nil {
		usage.MemoryRSS = memInfo.RSS
		usage.MemoryVMS = memInfo.VMS
	}
	usage.ThreadCount, _ = m.process.NumThreads()

	return usage
}

// ObserveResources publishes u on the collector's resource gauges.
func (c *Collector) ObserveResources(u ResourceUsage) {
	if c == nil {
		return
	}
	c.CPUPercent.Set(u.CPUPercent)
	c.MemoryRSS.Set(float64(u.MemoryRSS))
}
