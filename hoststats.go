package main

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

// HostStats folds into the status snapshot so a client can tell a busy
// host from a stuck session. CPUCores is resolved once at startup via
// gopsutil; Load1/5/15 are re-read from /proc/loadavg on every status
// call since they change constantly and cost nothing to re-read.
type HostStats struct {
	CPUCores int     `json:"cpu_cores"`
	Load1    float64 `json:"load1"`
	Load5    float64 `json:"load5"`
	Load15   float64 `json:"load15"`
}

var (
	hostCPUCoresOnce sync.Once
	hostCPUCores     int
)

func cpuCoreCount() int {
	hostCPUCoresOnce.Do(func() {
		info, err := cpu.Info()
		if err != nil {
			return
		}
		for _, c := range info {
			hostCPUCores += int(c.Cores)
		}
	})
	return hostCPUCores
}

// readLoadAvg parses /proc/loadavg; on platforms without it (or on any
// read error) it returns zeros rather than failing the status call.
func readLoadAvg() (load1, load5, load15 float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	load1, _ = strconv.ParseFloat(fields[0], 64)
	load5, _ = strconv.ParseFloat(fields[1], 64)
	load15, _ = strconv.ParseFloat(fields[2], 64)
	return load1, load5, load15
}

// currentHostStats builds one HostStats reading.
func currentHostStats() HostStats {
	load1, load5, load15 := readLoadAvg()
	return HostStats{
		CPUCores: cpuCoreCount(),
		Load1:    load1,
		Load5:    load5,
		Load15:   load15,
	}
}
