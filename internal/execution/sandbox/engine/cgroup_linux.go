//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gradex/internal/execution/sandbox/spec"
)

const defaultCgroupRoot = "/sys/fs/cgroup/gradex"

// createRunCgroup creates a per-run cgroup v2 directory and returns its path
// plus a cleanup func that removes it once the run is over.
func createRunCgroup(root, runID string) (string, func(), error) {
	if root == "" {
		root = defaultCgroupRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", nil, fmt.Errorf("create cgroup root: %w", err)
	}
	// Delegate cpu and memory controllers to per-run children. Failure is
	// tolerated when the controllers are already delegated.
	_ = os.WriteFile(filepath.Join(root, "cgroup.subtree_control"), []byte("+cpu +memory +pids"), 0o644)

	path := filepath.Join(root, "run-"+runID)
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", nil, fmt.Errorf("create run cgroup: %w", err)
	}
	cleanup := func() {
		_ = killCgroup(path)
		_ = os.Remove(path)
	}
	return path, cleanup, nil
}

func applyCgroupLimits(path string, limits spec.ResourceLimit) error {
	if limits.MemoryMB > 0 {
		memBytes := limits.MemoryMB * 1024 * 1024
		if err := writeCgroupFile(path, "memory.max", strconv.FormatInt(memBytes, 10)); err != nil {
			return err
		}
		// Disable swap so the memory cap is a real ceiling.
		_ = writeCgroupFile(path, "memory.swap.max", "0")
	}
	if limits.PIDs > 0 {
		if err := writeCgroupFile(path, "pids.max", strconv.FormatInt(limits.PIDs, 10)); err != nil {
			return err
		}
	}
	if limits.CPUTimeMs > 0 {
		// One full CPU; the rlimit enforces total CPU seconds.
		if err := writeCgroupFile(path, "cpu.max", "100000 100000"); err != nil {
			return err
		}
	}
	return nil
}

func addProcessToCgroup(path string, pid int) error {
	return writeCgroupFile(path, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(path string) error {
	return writeCgroupFile(path, "cgroup.kill", "1")
}

func writeCgroupFile(dir, name, value string) error {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// memoryPeakCgroupKB reads memory.peak for the run cgroup; returns 0 when the
// file is absent (older kernels) or the cgroup is disabled.
func memoryPeakCgroupKB(path string) int64 {
	if path == "" {
		return 0
	}
	data, err := os.ReadFile(filepath.Join(path, "memory.peak"))
	if err != nil {
		return 0
	}
	val, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return val / 1024
}

// wasOomKilled reports whether the cgroup's oom_kill counter is non-zero.
func wasOomKilled(path string) bool {
	if path == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(path, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			n, _ := strconv.ParseInt(fields[1], 10, 64)
			return n > 0
		}
	}
	return false
}
