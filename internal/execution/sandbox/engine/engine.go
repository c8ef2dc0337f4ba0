package engine

import (
	"context"

	"gradex/internal/execution/sandbox/spec"
)

// RunResult captures raw sandbox execution data for one process run.
type RunResult struct {
	ExitCode   int
	TimeMs     int64 // CPU time
	WallTimeMs int64
	MemoryKB   int64
	Stdout     string
	Stderr     string
	TimedOut   bool
	OomKilled  bool
}

// Engine executes a RunSpec inside an isolated environment. Run returns a
// non-nil error only for infrastructure failures; candidate-code outcomes
// (non-zero exit, timeout, OOM kill) are reported through RunResult.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (RunResult, error)
}
