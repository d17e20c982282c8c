package pipeline

import (
	"context"
	"regexp"
	"strings"

	"caseforge/internal/dedup"
	"caseforge/internal/logging"
	"caseforge/internal/provider"
	"caseforge/internal/types"
)

// Pipeline generates test cases for a single feature: for each coverage
// dimension it extracts scenarios, deduplicates them semantically, and
// expands them into structured test cases, accumulating across dimensions.
type Pipeline struct {
	client  provider.Client
	deduper *dedup.Deduplicator
}

// New creates a Pipeline. deduper may be backed by a nil embedding engine,
// in which case semantic dedup degrades to the title-fallback pass only.
func New(client provider.Client, deduper *dedup.Deduplicator) *Pipeline {
	if deduper == nil {
		deduper = dedup.New(nil)
	}
	return &Pipeline{client: client, deduper: deduper}
}

// Run executes the full pipeline for one feature configuration and returns
// the final deduplicated test cases. Extraction, expansion, and provider
// errors propagate to the caller; the final title-fallback pass never fails.
func (p *Pipeline) Run(ctx context.Context, cfg types.FeatureConfig, modelProfile string) ([]types.TestCase, error) {
	instructions := buildInstructions(cfg)
	dims := Plan(cfg.CoverageLevel)

	logging.Pipeline("Generation started: feature=%q coverage=%s dimensions=%d provider=%s",
		cfg.FeatureName, cfg.CoverageLevel, len(dims), p.client.Name())

	// One embedding cache per feature run, shared across its dimensions.
	cache := dedup.NewCache()
	var accumulated []types.TestCase

	for _, dim := range dims {
		scenarios, err := p.extractScenarios(ctx, instructions, dim, cfg.CoverageLevel, modelProfile)
		if err != nil {
			return nil, err
		}

		scenarios = p.deduper.DedupeScenarios(ctx, scenarios, dedup.ScenarioDedupThreshold, cache)
		logging.PipelineDebug("Dimension %s: %d scenarios after dedup", dim, len(scenarios))

		cases, err := p.expandScenarios(ctx, instructions, dim, scenarios, accumulated, cfg.CoverageLevel, modelProfile)
		if err != nil {
			return nil, err
		}

		accumulated = append(accumulated, cases...)
		logging.PipelineDebug("Dimension %s produced %d cases; total so far: %d", dim, len(cases), len(accumulated))
	}

	accumulated = p.dedupeCases(ctx, accumulated)
	accumulated = RemoveNearDuplicateTitles(accumulated)

	logging.Pipeline("Generation finished: feature=%q cases=%d", cfg.FeatureName, len(accumulated))
	return accumulated, nil
}

// dedupeCases drops near-duplicate cases across dimensions using embedding
// similarity over scenario + description + steps. Unavailable embeddings
// keep everything; the title-fallback pass still runs after.
func (p *Pipeline) dedupeCases(ctx context.Context, cases []types.TestCase) []types.TestCase {
	if len(cases) <= 1 {
		return cases
	}

	texts := make([]string, len(cases))
	for i, tc := range cases {
		texts[i] = caseEmbeddingText(tc)
	}

	keep := p.deduper.DedupeCaseIndices(ctx, texts, dedup.CaseDedupThreshold)
	if len(keep) == len(cases) {
		return cases
	}

	result := make([]types.TestCase, 0, len(keep))
	for _, i := range keep {
		result = append(result, cases[i])
	}
	logging.Dedup("Embedding dedup: removed %d of %d cases", len(cases)-len(result), len(cases))
	return result
}

// caseEmbeddingText builds the single string used for embedding-based case
// similarity.
func caseEmbeddingText(tc types.TestCase) string {
	return strings.TrimSpace(tc.Scenario + " " + tc.Description + " " + strings.Join(tc.Steps, " "))
}

var titleWhitespaceRe = regexp.MustCompile(`\s+`)

func normalizeTitle(title string) string {
	return titleWhitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), " ")
}

func caseDetail(tc types.TestCase) int {
	return len(strings.Join(tc.Steps, " ")) + len(tc.ExpectedResult)
}

// RemoveNearDuplicateTitles is the deterministic, non-embedding fallback
// pass: cases whose normalized titles are equal, or where one title contains
// the other, are duplicates; the more detailed version (longer steps plus
// expected result) survives. Never fails.
func RemoveNearDuplicateTitles(cases []types.TestCase) []types.TestCase {
	if len(cases) <= 1 {
		return cases
	}

	result := make([]types.TestCase, 0, len(cases))
	for _, tc := range cases {
		key := normalizeTitle(tc.Scenario)
		detail := caseDetail(tc)
		found := false
		for i, existing := range result {
			existingKey := normalizeTitle(existing.Scenario)
			if key == existingKey || strings.Contains(existingKey, key) || strings.Contains(key, existingKey) {
				if detail > caseDetail(existing) {
					result[i] = tc
				}
				found = true
				break
			}
		}
		if !found {
			result = append(result, tc)
		}
	}
	return result
}
