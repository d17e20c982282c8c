// Package batch orchestrates concurrent test case generation for multiple
// independent features. Each feature runs in its own goroutine; a failure in
// one never aborts or affects the others, and partial success is a
// first-class batch status.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"caseforge/internal/config"
	"caseforge/internal/dedup"
	"caseforge/internal/logging"
	"caseforge/internal/pipeline"
	"caseforge/internal/provider"
	"caseforge/internal/types"
)

// Runner executes the generation pipeline for one feature. Injectable so the
// orchestrator is testable without live providers.
type Runner func(ctx context.Context, client provider.Client, featureCfg types.FeatureConfig, modelProfile string) ([]types.TestCase, error)

// Options configures an Orchestrator. Zero-value fields get defaults.
type Options struct {
	Config  *config.UserConfig
	Store   Store               // default: NewMemoryStore()
	Deduper *dedup.Deduplicator // default: no embedding engine
	Runner  Runner              // default: the real generation pipeline
}

// Orchestrator runs generation batches and tracks their state.
type Orchestrator struct {
	cfg     *config.UserConfig
	store   Store
	deduper *dedup.Deduplicator
	runner  Runner
}

// NewOrchestrator creates an orchestrator from options.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:     opts.Config,
		store:   opts.Store,
		deduper: opts.Deduper,
		runner:  opts.Runner,
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if o.store == nil {
		o.store = NewMemoryStore()
	}
	if o.deduper == nil {
		o.deduper = dedup.New(nil)
	}
	if o.runner == nil {
		o.runner = func(ctx context.Context, client provider.Client, featureCfg types.FeatureConfig, modelProfile string) ([]types.TestCase, error) {
			return pipeline.New(client, o.deduper).Run(ctx, featureCfg, modelProfile)
		}
	}
	return o
}

// Store exposes the batch store, e.g. for retention decisions by the owner.
func (o *Orchestrator) Store() Store {
	return o.store
}

// StartBatch creates a batch for the given features and launches one
// goroutine per feature, returning the batch id immediately. The caller
// polls BatchStatus (or joins via Wait). Provider resolution happens
// eagerly; a configuration problem surfaces here as *provider.ConfigError
// before any feature starts.
func (o *Orchestrator) StartBatch(ctx context.Context, providerName string, features []types.FeatureConfig, modelProfile string) (string, error) {
	if len(features) == 0 {
		return "", fmt.Errorf("batch requires at least one feature")
	}

	client, err := provider.Resolve(o.cfg, providerName)
	if err != nil {
		return "", err
	}

	b := &Batch{
		ID:           uuid.NewString(),
		Status:       types.BatchRunning,
		Provider:     providerName,
		ModelProfile: modelProfile,
		CreatedAt:    time.Now().UTC(),
		Features:     make(map[string]*types.FeatureResult, len(features)),
		Configs:      make(map[string]types.FeatureConfig, len(features)),
		group:        new(errgroup.Group),
	}
	for _, fc := range features {
		fid := uuid.NewString()
		b.Features[fid] = &types.FeatureResult{
			FeatureID:   fid,
			FeatureName: fc.FeatureName,
			Status:      types.FeaturePending,
		}
		b.Order = append(b.Order, fid)
		b.Configs[fid] = fc
	}
	o.store.Put(b)

	logging.Batch("Batch %s started: features=%d provider=%s", b.ID, len(features), client.Name())

	for _, fid := range b.Order {
		fid := fid
		fc := b.Configs[fid]
		b.group.Go(func() error {
			o.runFeature(ctx, b, fid, fc, client)
			return nil
		})
	}

	return b.ID, nil
}

// Wait joins the batch's initial feature goroutines. Returns false for an
// unknown batch id. Retries run synchronously on the caller's goroutine and
// are not part of the group.
func (o *Orchestrator) Wait(batchID string) bool {
	b, ok := o.store.Get(batchID)
	if !ok || b.group == nil {
		return ok
	}
	_ = b.group.Wait()
	return true
}

// runFeature executes one feature's pipeline and records the outcome.
// It is the only writer of that feature's state while it runs.
func (o *Orchestrator) runFeature(ctx context.Context, b *Batch, featureID string, fc types.FeatureConfig, client provider.Client) {
	b.mu.Lock()
	fr, ok := b.Features[featureID]
	if !ok {
		b.mu.Unlock()
		return
	}
	fr.Status = types.FeatureGenerating
	b.mu.Unlock()
	b.recomputeStatus()

	items, err := o.runner(ctx, client, fc, b.ModelProfile)

	b.mu.Lock()
	if err != nil {
		logging.Batch("Batch %s feature %s failed: %v", b.ID, featureID, err)
		fr.Status = types.FeatureFailed
		fr.Error = err.Error()
		fr.Items = nil
	} else {
		fr.Status = types.FeatureCompleted
		fr.Items = items
		fr.Error = ""
	}
	b.mu.Unlock()
	b.recomputeStatus()
}

// BatchStatus returns a snapshot of the batch and all its features, or
// ok=false for an unknown batch id.
func (o *Orchestrator) BatchStatus(batchID string) (types.BatchSnapshot, bool) {
	b, ok := o.store.Get(batchID)
	if !ok {
		return types.BatchSnapshot{}, false
	}
	return b.snapshot(), true
}

// RetryFeature re-runs one failed (or completed) feature with its original
// configuration, synchronously. providerOverride selects a different
// provider for the retry; empty keeps the batch's original. Returns false
// when the batch or feature id is unknown. Sibling features are untouched.
func (o *Orchestrator) RetryFeature(ctx context.Context, batchID, featureID, providerOverride string) bool {
	b, ok := o.store.Get(batchID)
	if !ok {
		return false
	}
	fc, ok := b.Configs[featureID]
	if !ok {
		return false
	}

	b.mu.Lock()
	fr := b.Features[featureID]
	fr.Status = types.FeaturePending
	fr.Error = ""
	fr.Items = nil
	b.mu.Unlock()
	b.recomputeStatus()

	providerName := providerOverride
	if providerName == "" {
		providerName = b.Provider
	}
	client, err := provider.Resolve(o.cfg, providerName)
	if err != nil {
		// Resolution failure on retry is recorded on the feature, matching
		// the per-feature failure semantics of the original run.
		b.mu.Lock()
		fr.Status = types.FeatureFailed
		fr.Error = err.Error()
		b.mu.Unlock()
		b.recomputeStatus()
		return true
	}

	logging.Batch("Batch %s feature %s retrying with provider %s", batchID, featureID, client.Name())
	o.runFeature(ctx, b, featureID, fc, client)
	return true
}

// MergedCases concatenates the completed items of every feature in the
// batch. With dedupe the title-fallback pass runs across the combined set,
// removing cross-feature near-duplicates. Unknown batch ids yield nil.
func (o *Orchestrator) MergedCases(batchID string, dedupe bool) []types.TestCase {
	b, ok := o.store.Get(batchID)
	if !ok {
		return nil
	}

	b.mu.Lock()
	var all []types.TestCase
	for _, fid := range b.Order {
		all = append(all, b.Features[fid].Items...)
	}
	b.mu.Unlock()

	if dedupe && len(all) > 0 {
		all = pipeline.RemoveNearDuplicateTitles(all)
	}
	return all
}

// RunSingleFeature runs the generation pipeline for one feature outside any
// batch. Errors propagate to the caller uncaught.
func (o *Orchestrator) RunSingleFeature(ctx context.Context, fc types.FeatureConfig, providerName, modelProfile string) ([]types.TestCase, error) {
	client, err := provider.Resolve(o.cfg, providerName)
	if err != nil {
		return nil, err
	}
	return o.runner(ctx, client, fc, modelProfile)
}
