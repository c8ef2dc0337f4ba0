// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUTimeMs  int64
	WallTimeMs int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the unified execution specification for one process run.
type RunSpec struct {
	// RunID scopes cgroup and log naming; unique per invocation.
	RunID string
	// WorkDir is the host-side scratch directory for this run.
	WorkDir string
	// RootDir, when set, becomes the process root after the bind mounts
	// are in place. Mount targets are interpreted relative to it.
	RootDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []MountSpec
	Limits     ResourceLimit
}
