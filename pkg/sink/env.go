package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// environmentInfo is the host snapshot written beside the results so the
// persisted evidence records where it was produced.
type environmentInfo struct {
	Hostname        string `json:"hostname,omitempty"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	Arch            string `json:"arch"`
	CPUCount        int    `json:"cpu_count,omitempty"`
	MemoryTotal     uint64 `json:"memory_total_bytes,omitempty"`
}

// writeEnvironment collects host information and writes environment.json
// into the output directory. Collection failures degrade to a partial
// snapshot rather than failing the sink.
func writeEnvironment(ctx context.Context, dir string) error {
	info := environmentInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
		info.PlatformVersion = hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
	}

	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = count
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling environment info: %w", err)
	}

	path := filepath.Join(dir, "environment.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing environment file: %w", err)
	}

	return nil
}
