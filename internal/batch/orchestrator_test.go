package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"caseforge/internal/config"
	"caseforge/internal/provider"
	"caseforge/internal/types"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (a transitive dependency) starts this worker goroutine
	// in package init; it is not stoppable from the code under test.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func testConfig() *config.UserConfig {
	// Ollama needs no credential, so resolution always succeeds.
	cfg := config.Default()
	cfg.Provider = config.ProviderOllama
	return cfg
}

// scriptedRunner fails features whose name it is told to fail and returns
// one canned case per feature otherwise. Thread safe; records run counts.
type scriptedRunner struct {
	mu       sync.Mutex
	failing  map[string]bool
	runCount map[string]int
}

func newScriptedRunner(failNames ...string) *scriptedRunner {
	failing := make(map[string]bool)
	for _, n := range failNames {
		failing[n] = true
	}
	return &scriptedRunner{failing: failing, runCount: make(map[string]int)}
}

func (r *scriptedRunner) run(ctx context.Context, client provider.Client, fc types.FeatureConfig, modelProfile string) ([]types.TestCase, error) {
	r.mu.Lock()
	r.runCount[fc.FeatureName]++
	shouldFail := r.failing[fc.FeatureName]
	r.mu.Unlock()

	if shouldFail {
		return nil, fmt.Errorf("generation blew up for %s", fc.FeatureName)
	}
	return []types.TestCase{{
		Scenario:       fc.FeatureName + " happy path",
		Description:    "Checks " + fc.FeatureName,
		Precondition:   "none",
		TestData:       "none",
		Steps:          []string{"1. Run " + fc.FeatureName},
		ExpectedResult: "Works",
	}}, nil
}

func (r *scriptedRunner) setFailing(name string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[name] = fail
}

func (r *scriptedRunner) runs(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runCount[name]
}

func features(names ...string) []types.FeatureConfig {
	out := make([]types.FeatureConfig, len(names))
	for i, n := range names {
		out[i] = types.FeatureConfig{
			FeatureName:        n,
			FeatureDescription: n + " description",
			CoverageLevel:      types.CoverageLow,
		}
	}
	return out
}

func TestBatchAllFeaturesComplete(t *testing.T) {
	runner := newScriptedRunner()
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	batchID, err := orc.StartBatch(context.Background(), "", features("Login", "Signup", "Checkout"), "")
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	if !orc.Wait(batchID) {
		t.Fatal("Wait returned false for a known batch")
	}

	snap, ok := orc.BatchStatus(batchID)
	if !ok {
		t.Fatal("BatchStatus returned false for a known batch")
	}
	if snap.Status != types.BatchCompleted {
		t.Errorf("expected completed, got %s", snap.Status)
	}
	if len(snap.Features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(snap.Features))
	}
	for _, fr := range snap.Features {
		if fr.Status != types.FeatureCompleted {
			t.Errorf("feature %s: expected completed, got %s", fr.FeatureName, fr.Status)
		}
		if len(fr.Items) != 1 {
			t.Errorf("feature %s: expected 1 case, got %d", fr.FeatureName, len(fr.Items))
		}
		if fr.Error != "" {
			t.Errorf("feature %s: unexpected error %q", fr.FeatureName, fr.Error)
		}
	}
}

func TestBatchPartialFailure(t *testing.T) {
	runner := newScriptedRunner("Signup")
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	batchID, err := orc.StartBatch(context.Background(), "", features("Login", "Signup", "Checkout"), "")
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	orc.Wait(batchID)

	snap, _ := orc.BatchStatus(batchID)
	if snap.Status != types.BatchPartial {
		t.Errorf("one failed feature must yield partial, got %s", snap.Status)
	}

	var completed, failed int
	for _, fr := range snap.Features {
		switch fr.Status {
		case types.FeatureCompleted:
			completed++
			if len(fr.Items) != 1 {
				t.Errorf("completed feature %s lost its items", fr.FeatureName)
			}
		case types.FeatureFailed:
			failed++
			if fr.FeatureName != "Signup" {
				t.Errorf("unexpected failed feature %s", fr.FeatureName)
			}
			if !strings.Contains(fr.Error, "blew up") {
				t.Errorf("failed feature missing error detail: %q", fr.Error)
			}
			if len(fr.Items) != 0 {
				t.Errorf("failed feature must carry no items, got %d", len(fr.Items))
			}
		default:
			t.Errorf("feature %s stuck in %s", fr.FeatureName, fr.Status)
		}
	}
	if completed != 2 || failed != 1 {
		t.Errorf("expected 2 completed / 1 failed, got %d / %d", completed, failed)
	}
}

func TestRetryFeatureDoesNotTouchSiblings(t *testing.T) {
	runner := newScriptedRunner("Signup")
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	batchID, _ := orc.StartBatch(context.Background(), "", features("Login", "Signup"), "")
	orc.Wait(batchID)

	before, _ := orc.BatchStatus(batchID)
	var failedID string
	siblingItems := make(map[string]int)
	for _, fr := range before.Features {
		if fr.Status == types.FeatureFailed {
			failedID = fr.FeatureID
		} else {
			siblingItems[fr.FeatureID] = len(fr.Items)
		}
	}
	if failedID == "" {
		t.Fatal("no failed feature to retry")
	}

	runner.setFailing("Signup", false)
	if !orc.RetryFeature(context.Background(), batchID, failedID, "") {
		t.Fatal("RetryFeature returned false for valid ids")
	}

	after, _ := orc.BatchStatus(batchID)
	if after.Status != types.BatchCompleted {
		t.Errorf("batch should complete after successful retry, got %s", after.Status)
	}
	for _, fr := range after.Features {
		if fr.FeatureID == failedID {
			if fr.Status != types.FeatureCompleted || fr.Error != "" {
				t.Errorf("retried feature not cleanly completed: status=%s error=%q", fr.Status, fr.Error)
			}
			continue
		}
		if got := len(fr.Items); got != siblingItems[fr.FeatureID] {
			t.Errorf("sibling %s item count changed: %d -> %d", fr.FeatureName, siblingItems[fr.FeatureID], got)
		}
	}
	if runner.runs("Login") != 1 {
		t.Errorf("sibling re-ran during retry: %d runs", runner.runs("Login"))
	}
	if runner.runs("Signup") != 2 {
		t.Errorf("expected 2 runs for retried feature, got %d", runner.runs("Signup"))
	}
}

func TestRetryFeatureUnknownIDs(t *testing.T) {
	runner := newScriptedRunner()
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	batchID, _ := orc.StartBatch(context.Background(), "", features("Login"), "")
	orc.Wait(batchID)

	if orc.RetryFeature(context.Background(), "no-such-batch", "x", "") {
		t.Error("retry must return false for unknown batch")
	}
	if orc.RetryFeature(context.Background(), batchID, "no-such-feature", "") {
		t.Error("retry must return false for unknown feature")
	}
}

func TestRetryFeatureBadProviderOverrideMarksFailed(t *testing.T) {
	runner := newScriptedRunner()
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	batchID, _ := orc.StartBatch(context.Background(), "", features("Login"), "")
	orc.Wait(batchID)

	snap, _ := orc.BatchStatus(batchID)
	featureID := snap.Features[0].FeatureID

	// Gemini has no key in the test config; resolution fails and the
	// failure lands on the feature, not the caller.
	if !orc.RetryFeature(context.Background(), batchID, featureID, config.ProviderGemini) {
		t.Fatal("retry with valid ids must return true even when resolution fails")
	}
	after, _ := orc.BatchStatus(batchID)
	if after.Features[0].Status != types.FeatureFailed {
		t.Errorf("expected failed after bad provider override, got %s", after.Features[0].Status)
	}
	if after.Features[0].Error == "" {
		t.Error("resolution failure must be recorded on the feature")
	}
}

func TestStartBatchConfigErrorSurfacesEarly(t *testing.T) {
	cfg := config.Default() // default provider is gemini, no key set
	cfg.GeminiAPIKey = ""
	orc := NewOrchestrator(Options{Config: cfg, Runner: newScriptedRunner().run})

	_, err := orc.StartBatch(context.Background(), "", features("Login"), "")
	var cfgErr *provider.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *provider.ConfigError, got %v", err)
	}
}

func TestStartBatchRejectsEmptyFeatureList(t *testing.T) {
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: newScriptedRunner().run})
	if _, err := orc.StartBatch(context.Background(), "", nil, ""); err == nil {
		t.Fatal("empty feature list must be rejected")
	}
}

func TestBatchStatusUnknownBatch(t *testing.T) {
	orc := NewOrchestrator(Options{Config: testConfig()})
	if _, ok := orc.BatchStatus("nope"); ok {
		t.Error("unknown batch id must report ok=false")
	}
	if orc.Wait("nope") {
		t.Error("Wait on unknown batch must return false")
	}
	if got := orc.MergedCases("nope", true); got != nil {
		t.Errorf("MergedCases on unknown batch must return nil, got %v", got)
	}
}

func TestMergedCasesDedupeAcrossFeatures(t *testing.T) {
	// Both features yield a case with the same title to exercise the
	// cross-feature dedupe.
	cross := func(ctx context.Context, client provider.Client, fc types.FeatureConfig, modelProfile string) ([]types.TestCase, error) {
		return []types.TestCase{{
			Scenario:       "Shared happy path",
			Description:    "From " + fc.FeatureName,
			Steps:          []string{"1. Run " + fc.FeatureName},
			ExpectedResult: strings.Repeat(fc.FeatureName, 3),
		}}, nil
	}

	orc := NewOrchestrator(Options{Config: testConfig(), Runner: cross})
	batchID, _ := orc.StartBatch(context.Background(), "", features("Login", "Signup"), "")
	orc.Wait(batchID)

	raw := orc.MergedCases(batchID, false)
	if len(raw) != 2 {
		t.Fatalf("expected 2 raw merged cases, got %d", len(raw))
	}
	deduped := orc.MergedCases(batchID, true)
	if len(deduped) != 1 {
		t.Errorf("expected 1 case after cross-feature dedupe, got %d", len(deduped))
	}
}

func TestRunSingleFeature(t *testing.T) {
	runner := newScriptedRunner()
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	cases, err := orc.RunSingleFeature(context.Background(), features("Login")[0], "", "")
	if err != nil {
		t.Fatalf("RunSingleFeature failed: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("expected 1 case, got %d", len(cases))
	}

	runner.setFailing("Login", true)
	if _, err := orc.RunSingleFeature(context.Background(), features("Login")[0], "", ""); err == nil {
		t.Fatal("runner failure must propagate from RunSingleFeature")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	runner := newScriptedRunner()
	orc := NewOrchestrator(Options{Config: testConfig(), Runner: runner.run})

	batchID, _ := orc.StartBatch(context.Background(), "", features("Login"), "")
	orc.Wait(batchID)

	snap, _ := orc.BatchStatus(batchID)
	snap.Features[0].Items[0].Scenario = "mutated"

	again, _ := orc.BatchStatus(batchID)
	if again.Features[0].Items[0].Scenario == "mutated" {
		t.Error("snapshot must not share backing arrays with batch state")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if s.Len() != 0 {
		t.Fatalf("new store not empty: %d", s.Len())
	}

	b := &Batch{ID: "b1", Status: types.BatchRunning}
	s.Put(b)
	got, ok := s.Get("b1")
	if !ok || got.ID != "b1" {
		t.Fatal("Put/Get round trip failed")
	}

	s.Delete("b1")
	if _, ok := s.Get("b1"); ok {
		t.Error("Delete left the batch behind")
	}
	s.Delete("b1") // deleting twice is a no-op
}
