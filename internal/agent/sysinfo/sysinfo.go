// Package sysinfo collects the capacity snapshot an agent reports to
// the master.
package sysinfo

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is the node capacity as observed locally. Nil fields mean
// the dimension could not be determined and should not overwrite
// whatever the master already knows.
type Snapshot struct {
	CPUCount       *int
	MemoryTotalGB  *int
	GPUCount       *int
	GPUInfo        *string
	StorageTotalGB *int
	StorageUsedGB  *int
}

type gpuDevice struct {
	Name          string `json:"name"`
	MemoryTotalMB int    `json:"memory_total_mb"`
}

// Collect gathers cpu, memory, storage and GPU capacity. Failures on
// one dimension leave that field nil; collection itself never fails.
func Collect(ctx context.Context, storagePath string) Snapshot {
	var snap Snapshot

	if count, err := cpu.CountsWithContext(ctx, true); err == nil && count > 0 {
		snap.CPUCount = &count
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		totalGB := int(vm.Total >> 30)
		snap.MemoryTotalGB = &totalGB
	}

	if storagePath != "" {
		if usage, err := disk.UsageWithContext(ctx, storagePath); err == nil {
			totalGB := int(usage.Total >> 30)
			usedGB := int(usage.Used >> 30)
			snap.StorageTotalGB = &totalGB
			snap.StorageUsedGB = &usedGB
		}
	}

	if devices := queryGPUs(ctx); len(devices) > 0 {
		count := len(devices)
		snap.GPUCount = &count
		if raw, err := json.Marshal(devices); err == nil {
			info := string(raw)
			snap.GPUInfo = &info
		}
	}

	return snap
}

// queryGPUs shells out to nvidia-smi. Nodes without NVIDIA tooling just
// report zero GPUs.
func queryGPUs(ctx context.Context) []gpuDevice {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}
	return parseGPUList(string(out))
}

func parseGPUList(out string) []gpuDevice {
	var devices []gpuDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, memStr, found := strings.Cut(line, ",")
		if !found {
			continue
		}
		memMB, err := strconv.Atoi(strings.TrimSpace(memStr))
		if err != nil {
			memMB = 0
		}
		devices = append(devices, gpuDevice{
			Name:          strings.TrimSpace(name),
			MemoryTotalMB: memMB,
		})
	}
	return devices
}
