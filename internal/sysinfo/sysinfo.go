// Package sysinfo collects host facts for the provisioning preflight.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// ErrUnsupportedHost is returned by Check when the host cannot be
// provisioned.
var ErrUnsupportedHost = errors.New("unsupported host")

// HostFacts describes the machine being provisioned.
type HostFacts struct {
	OS              string    `json:"os"`
	Platform        string    `json:"platform"`
	PlatformFamily  string    `json:"platform_family"`
	PlatformVersion string    `json:"platform_version"`
	KernelVersion   string    `json:"kernel_version"`
	Uptime          uint64    `json:"uptime"`
	Cores           int       `json:"cores"`
	MemoryTotal     uint64    `json:"memory_total"`
	MemoryAvailable uint64    `json:"memory_available"`
	DiskPath        string    `json:"disk_path"`
	DiskFree        uint64    `json:"disk_free"`
	LoadAvg         []float64 `json:"load_avg"`
}

// Requirements is what Check enforces.
type Requirements struct {
	OS            string
	Families      []string
	MinFreeDiskMB uint64
}

// DefaultRequirements is a debian-family Linux host with apt.
func DefaultRequirements(minFreeDiskMB uint64) Requirements {
	return Requirements{
		OS:            "linux",
		Families:      []string{"debian"},
		MinFreeDiskMB: minFreeDiskMB,
	}
}

// Collect gathers host facts. Free disk is measured on the filesystem that
// holds diskPath, or its nearest existing parent.
func Collect(ctx context.Context, diskPath string) (*HostFacts, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	facts := &HostFacts{DiskPath: nearestExisting(diskPath)}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var hostErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		info, err := host.InfoWithContext(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			hostErr = err
			return
		}
		facts.OS = info.OS
		facts.Platform = info.Platform
		facts.PlatformFamily = info.PlatformFamily
		facts.PlatformVersion = info.PlatformVersion
		facts.KernelVersion = info.KernelVersion
		facts.Uptime = info.Uptime
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cores, err := cpu.CountsWithContext(ctx, true)
		if err == nil {
			mu.Lock()
			facts.Cores = cores
			mu.Unlock()
		}
		avg, err := load.AvgWithContext(ctx)
		if err == nil {
			mu.Lock()
			facts.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
			mu.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		vmem, err := mem.VirtualMemoryWithContext(ctx)
		if err == nil {
			mu.Lock()
			facts.MemoryTotal = vmem.Total
			facts.MemoryAvailable = vmem.Available
			mu.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		usage, err := disk.UsageWithContext(ctx, facts.DiskPath)
		if err == nil {
			mu.Lock()
			facts.DiskFree = usage.Free
			mu.Unlock()
		}
	}()

	wg.Wait()

	if hostErr != nil {
		return nil, fmt.Errorf("failed to read host info: %w", hostErr)
	}
	return facts, nil
}

// Check returns ErrUnsupportedHost when facts fall short of req.
func (f *HostFacts) Check(req Requirements) error {
	if req.OS != "" && f.OS != req.OS {
		return fmt.Errorf("%w: os is %q, need %q", ErrUnsupportedHost, f.OS, req.OS)
	}
	if len(req.Families) > 0 && !contains(req.Families, f.PlatformFamily) {
		return fmt.Errorf("%w: platform family is %q, need one of %v", ErrUnsupportedHost, f.PlatformFamily, req.Families)
	}
	if req.MinFreeDiskMB > 0 {
		freeMB := f.DiskFree / (1024 * 1024)
		if freeMB < req.MinFreeDiskMB {
			return fmt.Errorf("%w: %d MB free on %s, need %d MB", ErrUnsupportedHost, freeMB, f.DiskPath, req.MinFreeDiskMB)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func nearestExisting(path string) string {
	if path == "" {
		return "/"
	}
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
