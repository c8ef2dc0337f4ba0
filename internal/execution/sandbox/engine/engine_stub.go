//go:build !linux

package engine

import (
	"context"

	"gradex/internal/execution/sandbox/spec"
	appErr "gradex/pkg/errors"
)

type stubEngine struct{}

// NewEngine on non-Linux platforms returns an engine that refuses to run.
// Isolation depends on namespaces, cgroups and seccomp, none of which exist
// off Linux.
func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (e *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (RunResult, error) {
	return RunResult{}, appErr.New(appErr.SandboxUnavailable).WithMessage("sandbox requires linux")
}
