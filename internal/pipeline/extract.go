package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"caseforge/internal/logging"
	"caseforge/internal/provider"
	"caseforge/internal/types"
)

// extractJSONObject performs best-effort extraction of the JSON object from
// an LLM response. Some models wrap the JSON in markdown fences or short
// prose despite strict instructions, so the substring from the first '{' to
// the last '}' is taken when both exist.
func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

// extractScenarios is PASS 1: ask the LLM to list all distinct scenarios for
// one coverage dimension. When the dimension defines a floor and the LLM
// returns fewer scenarios, re-prompt exactly once with the seen scenarios as
// an exclusion list; a second shortfall is accepted.
func (p *Pipeline) extractScenarios(ctx context.Context, instructions string, dim Dimension, level types.CoverageLevel, modelProfile string) ([]string, error) {
	var prior []string
	expansionRequest := ""
	expansionAttempted := false

	for {
		prompt := buildScenarioExtractionPrompt(instructions, dim, prior, expansionRequest)
		raw, err := p.client.Generate(ctx, prompt, provider.GenerateOptions{
			CoverageLevel: level,
			ModelProfile:  modelProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("scenario extraction call failed for dimension %s: %w", dim, err)
		}

		scenarios, err := parseScenarios(raw, dim)
		if err != nil {
			return nil, err
		}
		if expansionAttempted {
			scenarios = mergeDistinct(prior, scenarios)
		}

		min := dim.MinScenarios()
		if min > 0 && len(scenarios) < min && !expansionAttempted {
			expansionAttempted = true
			prior = scenarios
			expansionRequest = fmt.Sprintf(
				"You returned %d scenarios. We need at least %d distinct scenarios for this dimension. "+
					"List more distinct scenarios; do not merge or summarize.",
				len(scenarios), min)
			logging.Pipeline("Re-prompting for more scenarios: dimension=%s current=%d min=%d", dim, len(scenarios), min)
			continue
		}

		logging.PipelineDebug("Dimension %s: extracted %d scenarios", dim, len(scenarios))
		return scenarios, nil
	}
}

// mergeDistinct appends additions to base, skipping case-insensitive exact
// repeats. The re-prompt asks for new scenarios only, so the first batch must
// be carried forward.
func mergeDistinct(base, additions []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	out := append([]string{}, base...)
	for _, s := range additions {
		key := strings.ToLower(strings.TrimSpace(s))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// parseScenarios decodes the extraction response into scenario titles.
func parseScenarios(raw string, dim Dimension) ([]string, error) {
	cleaned := extractJSONObject(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, &ParseError{
			Dimension: dim,
			Preview:   preview(raw),
			Err:       fmt.Errorf("response is not valid JSON"),
		}
	}

	var envelope struct {
		Scenarios json.RawMessage `json:"scenarios"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, &SchemaError{Dimension: dim, Reason: "output must be a JSON object with a 'scenarios' field"}
	}
	if envelope.Scenarios == nil {
		return nil, &SchemaError{Dimension: dim, Reason: "missing 'scenarios' field"}
	}

	var rawScenarios []string
	if err := json.Unmarshal(envelope.Scenarios, &rawScenarios); err != nil {
		return nil, &SchemaError{Dimension: dim, Reason: "'scenarios' field must be a JSON array of strings"}
	}

	scenarios := make([]string, 0, len(rawScenarios))
	for _, s := range rawScenarios {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			scenarios = append(scenarios, trimmed)
		}
	}
	if len(scenarios) == 0 {
		return nil, &EmptyResultError{Dimension: dim}
	}
	return scenarios, nil
}
