//go:build linux

package engine

import (
	"io"
	"os"
	"syscall"
	"time"
)

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// cpuTimeMs returns user+system CPU time for the finished process tree.
func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return (state.UserTime() + state.SystemTime()).Milliseconds()
}

// memoryPeakKB prefers the cgroup's memory.peak and falls back to the
// rusage max RSS reported by wait4.
func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if kb := memoryPeakCgroupKB(cgroupPath); kb > 0 {
		return kb
	}
	if state == nil {
		return 0
	}
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return 0
	}
	return rusage.Maxrss
}

// readLimitedFile reads at most maxBytes from path. Missing files read as
// empty: candidate code may exit before writing anything.
func readLimitedFile(path string, maxBytes int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}
