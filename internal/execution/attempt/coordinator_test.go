package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gradex/internal/common/cache"
	"gradex/internal/execution/model"
	"gradex/internal/execution/value"
	appErr "gradex/pkg/errors"
)

type fakeStore struct {
	mu       sync.Mutex
	attempts map[string]model.Attempt
	claimed  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attempts: make(map[string]model.Attempt),
		claimed:  make(map[string]bool),
	}
}

func (s *fakeStore) Get(ctx context.Context, id string) (model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.attempts[id]
	if !ok {
		return model.Attempt{}, appErr.New(appErr.AttemptNotFound)
	}
	return att, nil
}

func (s *fakeStore) Put(ctx context.Context, att model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[att.ID] = att
	return nil
}

func (s *fakeStore) ClaimSubmit(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[id] {
		return false, nil
	}
	s.claimed[id] = true
	return true, nil
}

func (s *fakeStore) ReleaseSubmit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, id)
	return nil
}

type gradeCall struct {
	caseIDs []string
}

// fakeGrader passes every case and reports the expected output as the
// actual one, like a correct solution would.
type fakeGrader struct {
	mu    sync.Mutex
	calls []gradeCall
	fail  error
}

func (g *fakeGrader) Grade(ctx context.Context, req *model.ExecutionRequest) (model.ExecutionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return model.ExecutionResult{}, g.fail
	}
	ids := make([]string, 0, len(req.TestCases))
	results := make([]model.TestCaseResult, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		ids = append(ids, tc.ID)
		results = append(results, model.TestCaseResult{
			TestCaseID:   tc.ID,
			Passed:       true,
			ActualOutput: tc.ExpectedOutput,
		})
	}
	g.calls = append(g.calls, gradeCall{caseIDs: ids})
	return model.ExecutionResult{
		Success:     true,
		TestResults: results,
		TotalPassed: len(results),
		TotalTests:  len(results),
		Score:       100,
	}, nil
}

func (g *fakeGrader) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func submitRequest() SubmitRequest {
	return SubmitRequest{
		Code:     "function solution(input) { return input; }",
		Language: model.LanguageJavaScript,
		TestCases: []model.TestCase{
			{ID: "vis-1", Input: value.Number(1), ExpectedOutput: value.Number(1), IsVisible: true, Weight: 1},
			{ID: "vis-2", Input: value.Number(2), ExpectedOutput: value.Number(2), IsVisible: true, Weight: 1},
			{ID: "hid-1", Input: value.Number(3), ExpectedOutput: value.Number(3), IsVisible: false, Weight: 2},
		},
	}
}

func TestSaveCreatesAndUpdatesDraft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coord := NewCoordinator(newFakeStore(), &fakeGrader{})

	att, err := coord.Save(ctx, "att-1", SaveRequest{Code: "a", Language: model.LanguagePython})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if att.Status != model.AttemptStatusInProgress {
		t.Fatalf("expected in_progress, got %s", att.Status)
	}
	if att.LastSaved == nil {
		t.Fatalf("lastSaved must be set")
	}

	// Saving again with the same payload succeeds and only moves lastSaved.
	again, err := coord.Save(ctx, "att-1", SaveRequest{Code: "a", Language: model.LanguagePython})
	if err != nil {
		t.Fatalf("repeat save: %v", err)
	}
	if again.Code != "a" || again.Status != model.AttemptStatusInProgress {
		t.Fatalf("repeat save changed the document: %+v", again)
	}
}

func TestSaveValidatesInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	coord := NewCoordinator(newFakeStore(), &fakeGrader{})

	if _, err := coord.Save(ctx, "", SaveRequest{Language: model.LanguagePython}); err == nil {
		t.Fatalf("empty attempt id must be rejected")
	}
	if _, err := coord.Save(ctx, "att-1", SaveRequest{Language: "fortran"}); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestSubmitHappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	grader := &fakeGrader{}
	coord := NewCoordinator(store, grader)

	att, err := coord.Submit(ctx, "att-1", submitRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if att.Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected submitted, got %s", att.Status)
	}
	if att.SubmittedAt == nil {
		t.Fatalf("submittedAt must be set")
	}
	if att.ExecutionResult == nil || att.ExecutionResult.TotalTests != 2 {
		t.Fatalf("provisional result must cover the 2 visible cases: %+v", att.ExecutionResult)
	}

	// The synchronous grade saw visible cases only.
	grader.mu.Lock()
	first := grader.calls[0]
	grader.mu.Unlock()
	for _, id := range first.caseIDs {
		if id == "hid-1" {
			t.Fatalf("hidden case graded synchronously")
		}
	}

	waitForFinal(t, store, "att-1")
}

func TestSubmitReusesProvidedResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	grader := &fakeGrader{}
	coord := NewCoordinator(store, grader)

	req := submitRequest()
	req.ExecutionResult = &model.ExecutionResult{
		Success:     true,
		TotalPassed: 1,
		TotalTests:  2,
		Score:       50,
		TestResults: []model.TestCaseResult{
			{TestCaseID: "vis-1", Passed: true, ActualOutput: value.Number(1)},
			{TestCaseID: "hid-1", Passed: true, ActualOutput: value.Number(3)},
		},
	}

	att, err := coord.Submit(ctx, "att-1", req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if att.ExecutionResult == nil || att.ExecutionResult.Score != 50 {
		t.Fatalf("provided result must become the provisional result: %+v", att.ExecutionResult)
	}
	// Even a caller-provided result is stored with hidden outputs withheld.
	for _, tr := range att.ExecutionResult.TestResults {
		if tr.TestCaseID == "hid-1" && !tr.ActualOutput.IsNull() {
			t.Fatalf("hidden output survived in the stored provisional result: %s", tr.ActualOutput)
		}
	}

	// No synchronous grade; the only grader call is the deferred full pass.
	waitForFinal(t, store, "att-1")
	if grader.callCount() != 1 {
		t.Fatalf("expected 1 grade call, got %d", grader.callCount())
	}
}

func TestSubmitFailureReleasesClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()

	broken := NewCoordinator(store, &fakeGrader{fail: errors.New("sandbox down")})
	if _, err := broken.Submit(ctx, "att-1", submitRequest()); !appErr.Is(err, appErr.AttemptSubmitFailed) {
		t.Fatalf("expected AttemptSubmitFailed, got %v", err)
	}
	if _, err := store.Get(ctx, "att-1"); !appErr.Is(err, appErr.AttemptNotFound) {
		t.Fatalf("failed submit must not store the attempt as submitted")
	}

	// The claim was handed back, so a retry can succeed.
	working := NewCoordinator(store, &fakeGrader{})
	att, err := working.Submit(ctx, "att-1", submitRequest())
	if err != nil {
		t.Fatalf("retry after failed submit: %v", err)
	}
	if att.Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected submitted after retry, got %s", att.Status)
	}
}

func TestStoredResultsHideHiddenOutputs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	coord := NewCoordinator(store, &fakeGrader{})

	if _, err := coord.Submit(ctx, "att-1", submitRequest()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	final := waitForFinal(t, store, "att-1")

	for _, tr := range final.FinalResult.TestResults {
		switch tr.TestCaseID {
		case "hid-1":
			// The grader echoed the expected output; the stored copy
			// must not carry it.
			if !tr.ActualOutput.IsNull() {
				t.Fatalf("hidden output stored in finalResult: %s", tr.ActualOutput)
			}
			if !tr.Passed {
				t.Fatalf("pass flag must survive redaction")
			}
		case "vis-1", "vis-2":
			if tr.ActualOutput.IsNull() {
				t.Fatalf("visible output must survive: %+v", tr)
			}
		}
	}
	if final.FinalResult.Score != 100 {
		t.Fatalf("score must survive redaction, got %g", final.FinalResult.Score)
	}
}

func TestSubmitIsNotIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	coord := NewCoordinator(store, &fakeGrader{})

	if _, err := coord.Submit(ctx, "att-1", submitRequest()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := coord.Submit(ctx, "att-1", submitRequest())
	if !appErr.Is(err, appErr.AttemptAlreadySubmitted) {
		t.Fatalf("second submit must fail with AttemptAlreadySubmitted, got %v", err)
	}
}

func TestSaveAfterSubmitRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	coord := NewCoordinator(store, &fakeGrader{})

	if _, err := coord.Submit(ctx, "att-1", submitRequest()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := coord.Save(ctx, "att-1", SaveRequest{Code: "late", Language: model.LanguageJavaScript})
	if !appErr.Is(err, appErr.AttemptAlreadySubmitted) {
		t.Fatalf("save after submit must fail with AttemptAlreadySubmitted, got %v", err)
	}
}

func TestFinalGradeCoversAllCases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	grader := &fakeGrader{}
	coord := NewCoordinator(store, grader)

	submitted, err := coord.Submit(ctx, "att-1", submitRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	provisional := *submitted.ExecutionResult

	final := waitForFinal(t, store, "att-1")
	if final.FinalResult.TotalTests != 3 {
		t.Fatalf("final grade must cover all 3 cases, got %d", final.FinalResult.TotalTests)
	}
	if final.FinalScoredAt == nil {
		t.Fatalf("finalScoredAt must be set")
	}
	// The provisional result captured at submit time is immutable.
	if final.ExecutionResult.TotalTests != provisional.TotalTests {
		t.Fatalf("provisional result changed after final grading")
	}
	if grader.callCount() != 2 {
		t.Fatalf("expected 2 grade calls, got %d", grader.callCount())
	}
}

func waitForFinal(t *testing.T, store Store, id string) model.Attempt {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		att, err := store.Get(context.Background(), id)
		if err == nil && att.FinalResult != nil {
			return att
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("final result never arrived for %s", id)
	return model.Attempt{}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(cache.NewRedisCacheFromClient(client))

	if _, err := store.Get(ctx, "missing"); !appErr.Is(err, appErr.AttemptNotFound) {
		t.Fatalf("expected AttemptNotFound, got %v", err)
	}

	now := time.Now().UTC()
	att := model.Attempt{
		ID:        "att-1",
		Status:    model.AttemptStatusInProgress,
		Code:      "print(1)",
		Language:  model.LanguagePython,
		LastSaved: &now,
	}
	if err := store.Put(ctx, att); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "att-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != att.Code || got.Status != att.Status || got.Language != att.Language {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	ok, err := store.ClaimSubmit(ctx, "att-1")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = store.ClaimSubmit(ctx, "att-1")
	if err != nil || ok {
		t.Fatalf("second claim should fail: ok=%v err=%v", ok, err)
	}

	// A released claim can be taken again.
	if err := store.ReleaseSubmit(ctx, "att-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = store.ClaimSubmit(ctx, "att-1")
	if err != nil || !ok {
		t.Fatalf("claim after release should succeed: ok=%v err=%v", ok, err)
	}
}
