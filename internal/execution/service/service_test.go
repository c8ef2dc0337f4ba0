package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gradex/internal/common/cache"
	"gradex/internal/execution/model"
	"gradex/internal/execution/quota"
	"gradex/internal/execution/repository"
	"gradex/internal/execution/runner"
	"gradex/internal/execution/sandbox/engine"
	"gradex/internal/execution/sandbox/pool"
	"gradex/internal/execution/sandbox/spec"
	"gradex/internal/execution/service"
	"gradex/internal/execution/value"
	appErr "gradex/pkg/errors"
)

// sumEngine pretends to be candidate code that adds the numbers on stdin.
type sumEngine struct{}

func (sumEngine) Run(ctx context.Context, rs spec.RunSpec) (engine.RunResult, error) {
	var input []float64
	if data, err := os.ReadFile(rs.StdinPath); err == nil {
		_ = json.Unmarshal(data, &input)
	}
	sum := 0.0
	for _, n := range input {
		sum += n
	}
	return engine.RunResult{ExitCode: 0, TimeMs: 7, Stdout: fmt.Sprintf("%g\n", sum)}, nil
}

func newService(t *testing.T, quotaLimit int) *service.ExecutionService {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewRedisCacheFromClient(client)

	r := runner.New(sumEngine{}, pool.New(4), t.TempDir())
	guard := quota.NewGuard(quota.NewMemoryStore(), quota.RealClock(), quota.Config{
		Limit:  quotaLimit,
		Window: time.Hour,
	})
	runs := repository.NewRedisRunStore(redisCache, time.Hour)
	return service.New(r, guard, runs)
}

func sumRequest() *model.ExecutionRequest {
	return &model.ExecutionRequest{
		Code:     "function solution(input) { return input[0] + input[1]; }",
		Language: model.LanguageJavaScript,
		TestCases: []model.TestCase{
			{ID: "vis-1", Input: value.Array(value.Number(1), value.Number(2)), ExpectedOutput: value.Number(3), IsVisible: true, Weight: 1},
			{ID: "hid-1", Input: value.Array(value.Number(10), value.Number(20)), ExpectedOutput: value.Number(30), IsVisible: false, Weight: 1},
		},
	}
}

func TestExecuteGradesAndRedacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(t, 50)

	runID, result, err := svc.Execute(ctx, "user-1", sumRequest())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if runID == "" {
		t.Fatalf("run id must be set")
	}
	if !result.Success {
		t.Fatalf("infrastructure succeeded, result.Success must be true")
	}
	if result.Score != 100 || result.TotalPassed != 2 || result.TotalTests != 2 {
		t.Fatalf("unexpected grading summary: %+v", result)
	}

	var hidden *model.TestCaseResult
	for i := range result.TestResults {
		if result.TestResults[i].TestCaseID == "hid-1" {
			hidden = &result.TestResults[i]
		}
	}
	if hidden == nil {
		t.Fatalf("hidden case missing from results")
	}
	if !hidden.ActualOutput.IsNull() {
		t.Fatalf("hidden case output must be redacted, got %s", hidden.ActualOutput)
	}
	if !hidden.Passed {
		t.Fatalf("hidden case pass flag must survive redaction")
	}
}

func TestExecutePersistsRunRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(t, 50)

	runID, result, err := svc.Execute(ctx, "user-1", sumRequest())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	rec, err := svc.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if rec.Result.Score != result.Score || rec.Language != model.LanguageJavaScript {
		t.Fatalf("stored record mismatch: %+v", rec)
	}
	// The stored copy is the redacted one.
	for _, tr := range rec.Result.TestResults {
		if tr.TestCaseID == "hid-1" && !tr.ActualOutput.IsNull() {
			t.Fatalf("stored hidden output must be redacted")
		}
	}

	if _, err := svc.GetRun(ctx, "no-such-run"); !appErr.Is(err, appErr.ExecutionNotFound) {
		t.Fatalf("expected ExecutionNotFound, got %v", err)
	}
}

func TestExecuteEnforcesQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(t, 1)

	if _, _, err := svc.Execute(ctx, "user-1", sumRequest()); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	_, _, err := svc.Execute(ctx, "user-1", sumRequest())
	if !appErr.Is(err, appErr.QuotaExceeded) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}

	// Another user is unaffected.
	if _, _, err := svc.Execute(ctx, "user-2", sumRequest()); err != nil {
		t.Fatalf("other user should be admitted: %v", err)
	}
}

func TestExecuteInvalidRequestDoesNotConsumeQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(t, 1)

	bad := sumRequest()
	bad.Code = ""
	if _, _, err := svc.Execute(ctx, "user-1", bad); err == nil {
		t.Fatalf("invalid request must fail")
	}

	// The failed validation left the single quota slot untouched.
	if _, _, err := svc.Execute(ctx, "user-1", sumRequest()); err != nil {
		t.Fatalf("valid request after rejection: %v", err)
	}
}

func TestGradeSkipsQuotaAndRedaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(t, 1)

	// Exhaust the interactive quota first.
	if _, _, err := svc.Execute(ctx, "user-1", sumRequest()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	result, err := svc.Grade(ctx, sumRequest())
	if err != nil {
		t.Fatalf("trusted grading must bypass quota: %v", err)
	}
	for _, tr := range result.TestResults {
		if tr.TestCaseID == "hid-1" && tr.ActualOutput.IsNull() {
			t.Fatalf("trusted grading must keep hidden outputs")
		}
	}
}

// flakyEngine errors for the first failures runs, then behaves like
// sumEngine.
type flakyEngine struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (e *flakyEngine) Run(ctx context.Context, rs spec.RunSpec) (engine.RunResult, error) {
	e.mu.Lock()
	e.calls++
	failing := e.calls <= e.failures
	e.mu.Unlock()
	if failing {
		return engine.RunResult{}, errors.New("cgroup root unavailable")
	}
	return sumEngine{}.Run(ctx, rs)
}

func newServiceWithEngine(t *testing.T, eng engine.Engine, quotaLimit int) *service.ExecutionService {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewRedisCacheFromClient(client)

	r := runner.New(eng, pool.New(4), t.TempDir())
	guard := quota.NewGuard(quota.NewMemoryStore(), quota.RealClock(), quota.Config{
		Limit:  quotaLimit,
		Window: time.Hour,
	})
	return service.New(r, guard, repository.NewRedisRunStore(redisCache, time.Hour))
}

func TestExecuteRetriesTransientSandboxFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newServiceWithEngine(t, &flakyEngine{failures: 1}, 50)

	_, result, err := svc.Execute(ctx, "user-1", sumRequest())
	if err != nil {
		t.Fatalf("one transient failure must be retried away: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("expected full score after retry, got %g", result.Score)
	}
}

func TestExecuteSandboxOutageIsNotGraded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// More consecutive failures than the retry budget.
	svc := newServiceWithEngine(t, &flakyEngine{failures: 100}, 50)

	_, result, err := svc.Execute(ctx, "user-1", sumRequest())
	if err == nil {
		t.Fatalf("sandbox outage must fail the request, got graded result %+v", result)
	}
	if !appErr.GetCode(err).Retryable() {
		t.Fatalf("outage error must be retryable, got %v", err)
	}
	if result.Success {
		t.Fatalf("no success envelope on infrastructure failure")
	}
}

// brokenCompilerEngine fails every compiler invocation and would pass
// anything that somehow reached the run phase.
type brokenCompilerEngine struct{}

func (brokenCompilerEngine) Run(ctx context.Context, rs spec.RunSpec) (engine.RunResult, error) {
	if len(rs.Cmd) > 0 && rs.Cmd[0] == "go" {
		return engine.RunResult{ExitCode: 2, Stderr: "main.go:3:1: syntax error: unexpected }"}, nil
	}
	return engine.RunResult{ExitCode: 0, Stdout: "null\n"}, nil
}

func TestExecuteCompileFailureFailsEveryCase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewRedisCacheFromClient(client)

	r := runner.New(brokenCompilerEngine{}, pool.New(4), t.TempDir())
	guard := quota.NewGuard(quota.NewMemoryStore(), quota.RealClock(), quota.Config{Limit: 10, Window: time.Hour})
	svc := service.New(r, guard, repository.NewRedisRunStore(redisCache, time.Hour))

	req := sumRequest()
	req.Language = model.LanguageGo
	req.Code = "package main\nfunc main() {}"

	_, result, err := svc.Execute(ctx, "user-1", req)
	if err != nil {
		t.Fatalf("compile failure is a graded outcome, not an error: %v", err)
	}
	if result.CompilationError == "" {
		t.Fatalf("compilationError must carry the compiler output")
	}
	if result.Score != 0 {
		t.Fatalf("expected score 0, got %g", result.Score)
	}
	if len(result.TestResults) != len(req.TestCases) {
		t.Fatalf("expected %d results, got %d", len(req.TestCases), len(result.TestResults))
	}
	for _, tr := range result.TestResults {
		if tr.Passed {
			t.Fatalf("no case can pass when compilation failed: %+v", tr)
		}
	}
}

func TestLanguagesCatalogExposed(t *testing.T) {
	t.Parallel()
	svc := newService(t, 50)
	if got := len(svc.Languages()); got != 4 {
		t.Fatalf("expected 4 languages, got %d", got)
	}
}
