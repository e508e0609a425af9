// Package stats snapshots host resource usage for the operator
// dashboard.
package stats

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is one point-in-time host reading.
type Snapshot struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	MemUsed     uint64  `json:"mem_used_bytes"`
	MemTotal    uint64  `json:"mem_total_bytes"`
	DiskPercent float64 `json:"disk_percent"`
	DiskFree    uint64  `json:"disk_free_bytes"`
	DiskTotal   uint64  `json:"disk_total_bytes"`
}

// Collect samples the host. The CPU reading averages over a short
// window; failures of individual probes leave zeros rather than
// failing the whole snapshot.
func Collect(storageRoot string) Snapshot {
	var s Snapshot

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemPercent = vm.UsedPercent
		s.MemUsed = vm.Used
		s.MemTotal = vm.Total
	}
	if du, err := disk.Usage(storageRoot); err == nil {
		s.DiskPercent = du.UsedPercent
		s.DiskFree = du.Free
		s.DiskTotal = du.Total
	}
	return s
}
