// Package runner turns one execution request into per-test-case results.
// It materializes a scratch workspace, compiles once when the language
// needs it, then fans the test cases out across bounded sandbox slots.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gradex/internal/execution/model"
	"gradex/internal/execution/registry"
	"gradex/internal/execution/sandbox/engine"
	"gradex/internal/execution/sandbox/pool"
	"gradex/internal/execution/sandbox/spec"
	"gradex/internal/execution/value"
	appErr "gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

const (
	// stderrReportMaxBytes caps how much of a crashing program's stderr is
	// surfaced in a test case result.
	stderrReportMaxBytes = 1000

	consoleOutputMaxBytes = 4000

	compileTimeLimitMs  = 30000
	compileMemoryMb     = 1024
	compilePIDs         = 128
	runPIDs             = 64
	stackLimitMb        = 64
	outputLimitMb       = 16
	// Wall slack keeps a program that hits its deadline returning within
	// a few hundred ms of the configured limit.
	wallClockSlackMs    = 500
	compileWallSlackMs  = 5000
	workspaceFilePerm   = 0o644
	workspaceDirPerm    = 0o755
	workspaceDirPattern = "grading-*"

	// sandboxWorkTarget is where the scratch workspace appears inside the
	// confined filesystem.
	sandboxWorkTarget = "/box"
)

// systemMountDirs are host trees the language toolchains need inside the
// sandbox, bound read-only. Entries missing on the host are skipped.
var systemMountDirs = []string{"/usr", "/bin", "/lib", "/lib64", "/etc"}

var deviceMountFiles = []string{"/dev/null", "/dev/zero", "/dev/urandom"}

// Outcome is the raw result of running a request, before scoring.
type Outcome struct {
	// CompilationError is non-empty when the candidate code failed to
	// compile. Results is empty in that case.
	CompilationError string
	Results          []model.TestCaseResult
	ConsoleOutput    string
	WallTimeMs       int64
}

// Runner executes grading requests against the sandbox engine.
type Runner struct {
	engine   engine.Engine
	pool     *pool.Pool
	workRoot string
}

// New creates a Runner. workRoot is the parent directory for per-run
// scratch workspaces; empty means the system temp dir.
func New(eng engine.Engine, p *pool.Pool, workRoot string) *Runner {
	return &Runner{engine: eng, pool: p, workRoot: workRoot}
}

// Execute runs every test case of the request and returns results in
// request order. The context controls setup and queueing only; a sandbox
// run that already started always runs to its own deadline.
func (r *Runner) Execute(ctx context.Context, runID string, req *model.ExecutionRequest) (Outcome, error) {
	rt, err := registry.Resolve(req.Language)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()

	ws, err := newWorkspace(r.workRoot)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if rmErr := os.RemoveAll(ws.base); rmErr != nil {
			logger.Warn(ctx, "remove workspace failed", zap.String("workDir", ws.base), zap.Error(rmErr))
		}
	}()

	if err := r.materialize(ws.box, rt, req.Code); err != nil {
		return Outcome{}, err
	}

	if rt.CompileEnabled {
		compileErr, err := r.compile(ctx, runID, ws, rt)
		if err != nil {
			return Outcome{}, err
		}
		if compileErr != "" {
			return Outcome{
				CompilationError: compileErr,
				WallTimeMs:       time.Since(start).Milliseconds(),
			}, nil
		}
	}

	memoryMb := req.EffectiveMemoryLimitMb(rt.BaseMemoryLimitMb)
	runCmd, err := rt.RunCommand(memoryMb)
	if err != nil {
		return Outcome{}, err
	}

	results := make([]model.TestCaseResult, len(req.TestCases))
	errs := make([]error, len(req.TestCases))
	var wg sync.WaitGroup
	for i := range req.TestCases {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = r.runCase(ctx, runID, ws, rt, req, runCmd, memoryMb, idx)
		}(i)
	}
	wg.Wait()

	// An infrastructure failure on any case fails the whole request: a
	// partially sandboxed run must never be graded as a candidate outcome.
	for _, caseErr := range errs {
		if caseErr != nil {
			return Outcome{}, caseErr
		}
	}

	return Outcome{
		Results:       results,
		ConsoleOutput: consoleOutput(ws.box, req.TestCases),
		WallTimeMs:    time.Since(start).Milliseconds(),
	}, nil
}

// workspace is the on-disk layout for one run: the scratch box holding the
// candidate's files and an empty directory the sandbox assembles its
// confined root in. Everything lives under base and is removed with it.
type workspace struct {
	base   string
	box    string
	root   string
	mounts []spec.MountSpec
}

func newWorkspace(workRoot string) (workspace, error) {
	base, err := os.MkdirTemp(workRoot, workspaceDirPattern)
	if err != nil {
		return workspace{}, appErr.Wrapf(err, appErr.SandboxSetupFailed, "create workspace failed")
	}
	box := filepath.Join(base, "box")
	root := filepath.Join(base, "rootfs")
	for _, dir := range []string{box, root} {
		if err := os.Mkdir(dir, workspaceDirPerm); err != nil {
			_ = os.RemoveAll(base)
			return workspace{}, appErr.Wrapf(err, appErr.SandboxSetupFailed, "create workspace failed")
		}
	}
	return workspace{base: base, box: box, root: root, mounts: sandboxMounts(box)}, nil
}

// sandboxMounts describes the filesystem a confined run sees: its scratch
// box writable, the host toolchains read-only, and a few device files.
func sandboxMounts(box string) []spec.MountSpec {
	mounts := []spec.MountSpec{{Source: box, Target: sandboxWorkTarget}}
	for _, dir := range systemMountDirs {
		if _, err := os.Stat(dir); err == nil {
			mounts = append(mounts, spec.MountSpec{Source: dir, Target: dir, ReadOnly: true})
		}
	}
	for _, dev := range deviceMountFiles {
		if _, err := os.Stat(dev); err == nil {
			mounts = append(mounts, spec.MountSpec{Source: dev, Target: dev})
		}
	}
	return mounts
}

// materialize writes the candidate source and, for harnessed languages, the
// generated entry file into the workspace.
func (r *Runner) materialize(workDir string, rt registry.RuntimeSpec, code string) error {
	if err := os.WriteFile(filepath.Join(workDir, rt.SourceFile), []byte(code), workspaceFilePerm); err != nil {
		return appErr.Wrapf(err, appErr.SandboxSetupFailed, "write source failed")
	}
	if harness := registry.HarnessSource(rt.ID); harness != "" {
		if err := os.WriteFile(filepath.Join(workDir, rt.EntryFile), []byte(harness), workspaceFilePerm); err != nil {
			return appErr.Wrapf(err, appErr.SandboxSetupFailed, "write entry file failed")
		}
	}
	return nil
}

// compile runs the language's compile step once for the whole request.
// A non-empty first return value is the candidate-visible compiler output.
func (r *Runner) compile(ctx context.Context, runID string, ws workspace, rt registry.RuntimeSpec) (string, error) {
	cmd, err := rt.CompileCommand()
	if err != nil {
		return "", err
	}

	if err := r.pool.Acquire(ctx); err != nil {
		return "", err
	}
	defer r.pool.Release()

	stderrPath := filepath.Join(ws.box, "compile.err")
	res, err := r.engine.Run(ctx, spec.RunSpec{
		RunID:      runID + "-compile",
		WorkDir:    ws.box,
		RootDir:    ws.root,
		Cmd:        cmd,
		Env:        append(baseEnv(), rt.RenderEnv(compileMemoryMb)...),
		StdoutPath: filepath.Join(ws.box, "compile.out"),
		StderrPath: stderrPath,
		BindMounts: ws.mounts,
		Limits: spec.ResourceLimit{
			CPUTimeMs:  compileTimeLimitMs,
			WallTimeMs: compileTimeLimitMs + compileWallSlackMs,
			MemoryMB:   compileMemoryMb,
			StackMB:    stackLimitMb,
			OutputMB:   outputLimitMb,
			PIDs:       compilePIDs,
		},
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode == 0 && !res.TimedOut {
		return "", nil
	}

	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	if res.TimedOut {
		msg = "compilation timed out"
	}
	if msg == "" {
		msg = fmt.Sprintf("compiler exited with code %d", res.ExitCode)
	}
	return truncateBytes(msg, stderrReportMaxBytes), nil
}

// runCase executes one test case. Candidate-code outcomes (wrong answer,
// crash, timeout, OOM) are folded into the TestCaseResult; infrastructure
// failures return an error and fail the whole request instead of being
// graded.
func (r *Runner) runCase(ctx context.Context, runID string, ws workspace, rt registry.RuntimeSpec, req *model.ExecutionRequest, runCmd []string, memoryMb int64, idx int) (model.TestCaseResult, error) {
	tc := req.TestCases[idx]
	result := model.TestCaseResult{TestCaseID: tc.ID, ActualOutput: value.Null()}
	limitMs := req.EffectiveTimeLimitMs(tc, rt.BaseTimeLimitMs)

	stdinPath := filepath.Join(ws.box, caseFile(idx, "in"))
	stdoutPath := filepath.Join(ws.box, caseFile(idx, "out"))
	stderrPath := filepath.Join(ws.box, caseFile(idx, "err"))

	inputJSON, err := json.Marshal(tc.Input)
	if err != nil {
		return result, appErr.Wrapf(err, appErr.InternalServerError, "encode test case input failed")
	}
	if err := os.WriteFile(stdinPath, inputJSON, workspaceFilePerm); err != nil {
		return result, appErr.Wrapf(err, appErr.SandboxSetupFailed, "write test case input failed")
	}

	if err := r.pool.Acquire(ctx); err != nil {
		return result, err
	}
	defer r.pool.Release()

	res, err := r.engine.Run(ctx, spec.RunSpec{
		RunID:      runID + "-c" + strconv.Itoa(idx),
		WorkDir:    ws.box,
		RootDir:    ws.root,
		Cmd:        runCmd,
		Env:        append(baseEnv(), rt.RenderEnv(memoryMb)...),
		StdinPath:  stdinPath,
		StdoutPath: stdoutPath,
		StderrPath: stderrPath,
		BindMounts: ws.mounts,
		Limits: spec.ResourceLimit{
			CPUTimeMs:  limitMs,
			WallTimeMs: limitMs + wallClockSlackMs,
			MemoryMB:   memoryMb,
			StackMB:    stackLimitMb,
			OutputMB:   outputLimitMb,
			PIDs:       runPIDs,
		},
	})
	if err != nil {
		logger.Error(ctx, "sandbox run failed", zap.String("testCaseId", tc.ID), zap.Error(err))
		if _, ok := err.(*appErr.Error); !ok {
			err = appErr.Wrap(err, appErr.SandboxUnavailable)
		}
		return result, err
	}

	result.MemoryUsedMb = res.MemoryKB / 1024

	switch {
	case res.TimedOut:
		// The reported time is the deadline itself: the run was cut off,
		// so its own clock never reflects how long it was allowed.
		result.ExecutionTimeMs = limitMs
		result.Error = "Time limit exceeded"
	case res.OomKilled:
		result.ExecutionTimeMs = executionTime(res)
		result.Error = "Memory limit exceeded"
	case res.ExitCode != 0:
		result.ExecutionTimeMs = executionTime(res)
		result.Error = crashMessage(res)
	default:
		result.ExecutionTimeMs = executionTime(res)
		result.ActualOutput = value.ParseOutput([]byte(res.Stdout))
		result.Passed = value.Equal(result.ActualOutput, tc.ExpectedOutput)
	}
	return result, nil
}

func executionTime(res engine.RunResult) int64 {
	if res.TimeMs > 0 {
		return res.TimeMs
	}
	return res.WallTimeMs
}

func crashMessage(res engine.RunResult) string {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		return fmt.Sprintf("Runtime error (exit code %d)", res.ExitCode)
	}
	return truncateBytes(msg, stderrReportMaxBytes)
}

// consoleOutput collects the candidate's diagnostic output from the first
// visible test case: stdout lines before the final result line, plus stderr.
func consoleOutput(workDir string, cases []model.TestCase) string {
	for i, tc := range cases {
		if !tc.IsVisible {
			continue
		}
		var parts []string
		if out := readWorkspaceFile(workDir, caseFile(i, "out")); out != "" {
			if idx := strings.LastIndexByte(strings.TrimRight(out, "\n"), '\n'); idx >= 0 {
				parts = append(parts, out[:idx])
			}
		}
		if errOut := readWorkspaceFile(workDir, caseFile(i, "err")); errOut != "" {
			parts = append(parts, errOut)
		}
		return truncateBytes(strings.TrimSpace(strings.Join(parts, "\n")), consoleOutputMaxBytes)
	}
	return ""
}

func readWorkspaceFile(workDir, name string) string {
	data, err := os.ReadFile(filepath.Join(workDir, name))
	if err != nil {
		return ""
	}
	return string(data)
}

func caseFile(idx int, ext string) string {
	return "case-" + strconv.Itoa(idx) + "." + ext
}

// baseEnv is the candidate process environment. HOME and TMPDIR are set by
// the sandbox helper once the final working directory is known.
func baseEnv() []string {
	return []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"LANG=C.UTF-8",
	}
}

func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
