package system

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const gib = 1 << 30

// HostInfo is what tier detection looked at.
type HostInfo struct {
	LogicalCores int
	TotalMemory  uint64
}

// ProbeHost reads the logical core count and total memory.
func ProbeHost() (HostInfo, error) {
	cores, err := cpu.Counts(true)
	if err != nil {
		return HostInfo{}, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return HostInfo{LogicalCores: cores}, err
	}
	return HostInfo{LogicalCores: cores, TotalMemory: vm.Total}, nil
}

// Tier maps host capacity to a quality tier name: "high", "medium" or "low".
func (h HostInfo) Tier() string {
	switch {
	case h.LogicalCores >= 8 && h.TotalMemory >= 8*gib:
		return "high"
	case h.LogicalCores >= 4 && h.TotalMemory >= 4*gib:
		return "medium"
	}
	return "low"
}
