package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"caseforge/internal/types"
)

// buildInstructions assembles the feature context block shared by both
// prompt passes.
func buildInstructions(cfg types.FeatureConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature name: %s\n", cfg.FeatureName)
	fmt.Fprintf(&b, "Feature description: %s\n", cfg.FeatureDescription)
	if s := strings.TrimSpace(cfg.AllowedActions); s != "" {
		b.WriteString("\n\nAllowed actions: " + s)
	}
	if s := strings.TrimSpace(cfg.ExcludedFeatures); s != "" {
		b.WriteString("\n\nExcluded features: " + s)
	}
	return b.String()
}

// buildScenarioExtractionPrompt builds the PASS 1 prompt: exhaustive scenario
// extraction for one coverage dimension. priorScenarios become a do-not-repeat
// block; expansionRequest is the one-shot "you returned too few" sentence.
func buildScenarioExtractionPrompt(instructions string, dim Dimension, priorScenarios []string, expansionRequest string) string {
	existingBlock := ""
	if len(priorScenarios) > 0 {
		priorJSON, _ := json.MarshalIndent(priorScenarios, "", "  ")
		existingBlock = fmt.Sprintf(`
You already listed these scenarios. Do NOT repeat them. Add ONLY new, distinct scenarios:
%s
`, priorJSON)
	}

	minHint := ""
	if min := dim.MinScenarios(); min > 0 {
		minHint = fmt.Sprintf("\nAim for at least %d distinct scenarios for this dimension. Be exhaustive.\n", min)
	}

	expansionBlock := ""
	if expansionRequest != "" {
		expansionBlock = "\n" + expansionRequest + "\n"
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a senior QA test architect. Your task is to list ALL distinct test scenarios for one coverage dimension.

Coverage dimension: %s
Focus: %s
%s
Rules:
- Do NOT merge scenarios. Each independent validation or flow must be its own scenario.
- Be exhaustive. List every distinct scenario you can identify for this dimension.
- Each scenario should be one short phrase (e.g. "User login with valid credentials", "Reject empty required field").
- Do not write test cases yet; only scenario titles or one-line descriptions.
- Core scenarios (happy path, required validations) are highest priority and must never be skipped.
%s
%s

Input context:
%s

Return ONLY valid JSON with this exact structure (no other text, no markdown):
{"scenarios": ["scenario 1", "scenario 2", ...]}

Output:
`, dim, dim.Focus(), minHint, existingBlock, expansionBlock, instructions))
}

// existingCasesJSON serializes existing test cases to a minimal JSON block
// for duplicate prevention in the expansion prompt.
func existingCasesJSON(cases []types.TestCase) string {
	if len(cases) == 0 {
		return ""
	}
	type minimalCase struct {
		Scenario    string   `json:"test_scenario"`
		Description string   `json:"test_description"`
		Steps       []string `json:"test_steps"`
	}
	minimal := make([]minimalCase, len(cases))
	for i, tc := range cases {
		minimal[i] = minimalCase{
			Scenario:    tc.Scenario,
			Description: tc.Description,
			Steps:       tc.Steps,
		}
	}
	out, _ := json.MarshalIndent(minimal, "", "  ")
	return string(out)
}

// buildTestExpansionPrompt builds the PASS 2 prompt: convert each scenario
// into one or more structured test cases. Minimum one test case per scenario;
// never summarize independent failures into one case.
func buildTestExpansionPrompt(instructions string, dim Dimension, scenarios []string, existingCases []types.TestCase) string {
	scenariosJSON, _ := json.MarshalIndent(scenarios, "", "  ")

	existingBlock := ""
	if existing := existingCasesJSON(existingCases); existing != "" {
		existingBlock = fmt.Sprintf(`
The following test cases already exist. Do NOT duplicate them:
%s
`, existing)
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a senior QA test architect. Convert each listed scenario into one or more structured test cases.

Coverage dimension: %s
Focus: %s

Scenarios to expand (each must become at least one test case):
%s
%s

Rules:
- Minimum one test case per scenario. Create additional test cases when variations (e.g. different inputs, boundaries) are needed.
- Never summarize multiple distinct failures or validations into one test case.
- Quality is more important than brevity. Each test case must be concrete and executable.
- Return ONLY valid JSON. No markdown, no prose.
- Use double quotes. No trailing commas.
- test_steps must be ordered and numbered (e.g. "1. Do X", "2. Do Y").
- pre_condition, test_data, expected_result must be non-empty strings.

Use this exact JSON structure:
{
  "test_cases": [
    {
      "test_scenario": "short title",
      "test_description": "what is validated",
      "pre_condition": "conditions before test",
      "test_data": "input/state required",
      "test_steps": ["1. step", "2. step"],
      "expected_result": "expected outcome"
    }
  ]
}

Input context:
%s

Output only the JSON object:
`, dim, dim.Focus(), scenariosJSON, existingBlock, instructions))
}
