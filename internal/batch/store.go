package batch

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"caseforge/internal/types"
)

// Batch is the in-process state of one generation batch. It lives for the
// process lifetime; the orchestrator never deletes it (retention is the
// owner's decision via Store.Delete).
type Batch struct {
	mu sync.Mutex

	ID           string
	Status       types.BatchStatus
	Provider     string
	ModelProfile string
	CreatedAt    time.Time

	// Features maps feature id -> state. Each state is mutated only by the
	// goroutine currently running that feature.
	Features map[string]*types.FeatureResult

	// Order preserves feature insertion order for stable snapshots.
	Order []string

	// Configs keeps the immutable FeatureConfig per feature id for retries.
	Configs map[string]types.FeatureConfig

	// group tracks the initial per-feature goroutines so the batch can be
	// joined deterministically.
	group *errgroup.Group
}

// snapshot returns a deep copy of the batch's caller-visible state.
func (b *Batch) snapshot() types.BatchSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	features := make([]types.FeatureResult, 0, len(b.Order))
	for _, fid := range b.Order {
		fr := b.Features[fid]
		cp := *fr
		cp.Items = append([]types.TestCase(nil), fr.Items...)
		features = append(features, cp)
	}
	return types.BatchSnapshot{
		BatchID:  b.ID,
		Status:   b.Status,
		Features: features,
	}
}

// recomputeStatus derives the batch status from the feature statuses.
// Called after every feature transition; the status is never stored
// independently of the features.
func (b *Batch) recomputeStatus() {
	b.mu.Lock()
	defer b.mu.Unlock()

	allCompleted := true
	anyFailed := false
	anyActive := false
	for _, fr := range b.Features {
		switch fr.Status {
		case types.FeatureCompleted:
		case types.FeatureFailed:
			allCompleted = false
			anyFailed = true
		case types.FeaturePending, types.FeatureGenerating:
			allCompleted = false
			anyActive = true
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted:
		b.Status = types.BatchCompleted
	case anyFailed:
		b.Status = types.BatchPartial
	case anyActive:
		b.Status = types.BatchRunning
	default:
		b.Status = types.BatchCompleted
	}
}

// Store is the injected repository for batch state. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(batchID string) (*Batch, bool)
	Put(b *Batch)
	Delete(batchID string)
	Len() int
}

// MemoryStore is the default in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*Batch
}

// NewMemoryStore creates an empty in-memory batch store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*Batch)}
}

func (s *MemoryStore) Get(batchID string) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	return b, ok
}

func (s *MemoryStore) Put(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
}

func (s *MemoryStore) Delete(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, batchID)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}
