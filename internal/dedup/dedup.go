// Package dedup removes semantically near-duplicate scenarios and test cases
// using embedding cosine similarity. When the embedding engine is unavailable
// (not configured, or the call fails) every operation degrades to a no-op:
// dedup is an optimization, never a failure mode.
package dedup

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"caseforge/internal/embedding"
	"caseforge/internal/logging"
)

// ScenarioDedupThreshold is the cosine similarity at or above which two
// scenario titles are treated as duplicates.
const ScenarioDedupThreshold = 0.90

// CaseDedupThreshold is the cosine similarity at or above which two expanded
// test cases are treated as duplicates. Kept separate from the scenario
// threshold so the two can be tuned independently.
const CaseDedupThreshold = 0.90

// Filler lead-ins stripped when normalizing scenario text. Order matters:
// longer phrases first so "validate that" is removed before "validate ".
var fillerPhrases = []string{
	"validate that",
	"ensure that",
	"verify that",
	"check that",
	"confirm that",
	"make sure that",
	"ensure ",
	"validate ",
	"verify ",
	"check ",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeScenario lowercases scenario text, strips filler lead-ins, and
// collapses whitespace. Used both for semantic comparison and as the
// embedding cache key.
func NormalizeScenario(scenario string) string {
	s := strings.ToLower(strings.TrimSpace(scenario))
	for _, phrase := range fillerPhrases {
		s = strings.ReplaceAll(s, phrase, " ")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Deduplicator performs embedding-based deduplication. A nil engine means
// embeddings are unavailable and all operations pass input through unchanged.
type Deduplicator struct {
	engine embedding.Engine
}

// New creates a Deduplicator. engine may be nil.
func New(engine embedding.Engine) *Deduplicator {
	return &Deduplicator{engine: engine}
}

// Available reports whether an embedding engine is configured.
func (d *Deduplicator) Available() bool {
	return d != nil && d.engine != nil
}

// DedupeScenarios removes near-duplicate scenarios. Exact duplicates of
// normalized text are merged first (first occurrence wins), then the
// remaining unique scenarios are embedded (through cache) and clustered with
// a greedy single pass. Within a duplicate pair the scenario with the shorter
// normalized text survives. Degrades to returning the input unchanged when
// embeddings are unavailable.
func (d *Deduplicator) DedupeScenarios(ctx context.Context, scenarios []string, threshold float64, cache *Cache) []string {
	if len(scenarios) <= 1 {
		return scenarios
	}
	if !d.Available() {
		logging.DedupDebug("Scenario dedup skipped: no embedding engine")
		return scenarios
	}

	// Exact-duplicate merge on normalized text. Blank normalizations are kept
	// verbatim and never merged.
	seen := make(map[string]struct{})
	var uniqueNorm, uniqueOrig []string
	for _, orig := range scenarios {
		norm := NormalizeScenario(orig)
		if norm != "" {
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
		}
		uniqueNorm = append(uniqueNorm, norm)
		uniqueOrig = append(uniqueOrig, orig)
	}
	if len(uniqueOrig) <= 1 {
		return uniqueOrig
	}

	vectors := d.embedCached(ctx, uniqueNorm, cache)
	if vectors == nil {
		return uniqueOrig
	}

	// Greedy single-pass clustering: keep index 0, compare each candidate
	// against every currently-kept index.
	kept := []int{0}
	for j := 1; j < len(uniqueOrig); j++ {
		isDup := false
		for n, i := range kept {
			if embedding.CosineSimilarity(vectors[i], vectors[j]) >= threshold {
				isDup = true
				if len(uniqueNorm[j]) < len(uniqueNorm[i]) {
					// Keep the terser form.
					kept = append(kept[:n], kept[n+1:]...)
					kept = append(kept, j)
				}
				break
			}
		}
		if !isDup {
			kept = append(kept, j)
		}
	}
	sort.Ints(kept)

	result := make([]string, 0, len(kept))
	for _, i := range kept {
		result = append(result, uniqueOrig[i])
	}
	if len(result) < len(scenarios) {
		logging.Dedup("Scenario dedup: %d -> %d (removed %d)", len(scenarios), len(result), len(scenarios)-len(result))
	}
	return result
}

// DedupeCaseIndices returns the indices to KEEP after embedding-based
// deduplication of test case texts. Same greedy pass as DedupeScenarios but
// with no cache and no prefer-shorter rule: the first occurrence always
// wins. Returns identity indices when embeddings are unavailable.
func (d *Deduplicator) DedupeCaseIndices(ctx context.Context, texts []string, threshold float64) []int {
	identity := func() []int {
		all := make([]int, len(texts))
		for i := range texts {
			all[i] = i
		}
		return all
	}

	if len(texts) <= 1 {
		return identity()
	}
	if !d.Available() {
		logging.DedupDebug("Case dedup skipped: no embedding engine")
		return identity()
	}

	vectors, err := d.engine.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		logging.Get(logging.CategoryDedup).Warn("Case embed failed, keeping all %d cases: %v", len(texts), err)
		return identity()
	}

	var kept []int
	for j := range texts {
		isDup := false
		for _, i := range kept {
			if embedding.CosineSimilarity(vectors[i], vectors[j]) >= threshold {
				isDup = true
				break
			}
		}
		if !isDup {
			kept = append(kept, j)
		}
	}
	return kept
}

// embedCached embeds texts through the cache, fetching only cache misses.
// Returns vectors in input order, or nil when the embedding call fails.
func (d *Deduplicator) embedCached(ctx context.Context, texts []string, cache *Cache) [][]float32 {
	if cache == nil {
		cache = NewCache()
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := cache.get(t); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		fetched, err := d.engine.EmbedBatch(ctx, missTexts)
		if err != nil || len(fetched) != len(missTexts) {
			logging.Get(logging.CategoryDedup).Warn("Scenario embed failed (%d texts): %v", len(missTexts), err)
			return nil
		}
		for k, i := range missIdx {
			cache.put(missTexts[k], fetched[k])
			vectors[i] = fetched[k]
		}
		logging.DedupDebug("Embedded %d new texts (%d cache hits)", len(missTexts), len(texts)-len(missTexts))
	}

	return vectors
}
