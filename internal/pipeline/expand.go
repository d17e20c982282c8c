package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"caseforge/internal/logging"
	"caseforge/internal/provider"
	"caseforge/internal/types"
)

// Default sentences for narrative fields the LLM left blank. Field completion
// is unconditional and never raises.
const (
	defaultScenario       = "Test scenario as described"
	defaultDescription    = "Verify behavior per requirements"
	defaultPrecondition   = "No specific preconditions required"
	defaultTestData       = "Standard test data as per feature requirements"
	defaultExpectedResult = "Behavior matches the test scenario and acceptance criteria."
	defaultStep           = "1. Execute the test scenario as described"
)

// rawTestCase is the wire shape the expansion prompt demands.
type rawTestCase struct {
	Scenario       string   `json:"test_scenario"`
	Description    string   `json:"test_description"`
	Precondition   string   `json:"pre_condition"`
	TestData       string   `json:"test_data"`
	Steps          []string `json:"test_steps"`
	ExpectedResult string   `json:"expected_result"`
}

// expandScenarios is PASS 2: one LLM call per dimension covering all of that
// dimension's scenarios at once, converting each into one or more structured
// test cases. existingCases become a do-not-duplicate block in the prompt.
func (p *Pipeline) expandScenarios(ctx context.Context, instructions string, dim Dimension, scenarios []string, existingCases []types.TestCase, level types.CoverageLevel, modelProfile string) ([]types.TestCase, error) {
	if len(scenarios) == 0 {
		return nil, nil
	}

	prompt := buildTestExpansionPrompt(instructions, dim, scenarios, existingCases)
	raw, err := p.client.Generate(ctx, prompt, provider.GenerateOptions{
		CoverageLevel: level,
		ModelProfile:  modelProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("test expansion call failed for dimension %s: %w", dim, err)
	}

	cleaned := extractJSONObject(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, &ParseError{
			Dimension: dim,
			Preview:   preview(raw),
			Err:       fmt.Errorf("response is not valid JSON"),
		}
	}

	var envelope struct {
		TestCases json.RawMessage `json:"test_cases"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, &SchemaError{Dimension: dim, Reason: "output must be a JSON object with a 'test_cases' field"}
	}
	if envelope.TestCases == nil {
		return nil, &SchemaError{Dimension: dim, Reason: "missing 'test_cases' field"}
	}

	var rawCases []rawTestCase
	if err := json.Unmarshal(envelope.TestCases, &rawCases); err != nil {
		return nil, &SchemaError{Dimension: dim, Reason: "'test_cases' field must be a JSON array of test case objects"}
	}

	cases := make([]types.TestCase, len(rawCases))
	for i, rc := range rawCases {
		cases[i] = completeTestCase(rc)
	}
	logging.PipelineDebug("Dimension %s: expanded %d scenarios into %d cases", dim, len(scenarios), len(cases))
	return cases, nil
}

// completeTestCase sanitizes every narrative field and fills blanks with the
// documented defaults, so no output case ever carries an empty field.
func completeTestCase(rc rawTestCase) types.TestCase {
	tc := types.TestCase{
		ID:             uuid.New(),
		Scenario:       fieldOrDefault(rc.Scenario, defaultScenario),
		Description:    fieldOrDefault(rc.Description, defaultDescription),
		Precondition:   fieldOrDefault(rc.Precondition, defaultPrecondition),
		TestData:       fieldOrDefault(rc.TestData, defaultTestData),
		ExpectedResult: fieldOrDefault(rc.ExpectedResult, defaultExpectedResult),
		CreatedAt:      time.Now().UTC(),
	}

	steps := make([]string, 0, len(rc.Steps))
	for _, s := range rc.Steps {
		if cleaned := strings.TrimSpace(sanitizeText(s)); cleaned != "" {
			steps = append(steps, cleaned)
		}
	}
	if len(steps) == 0 {
		steps = []string{defaultStep}
	}
	tc.Steps = steps
	return tc
}

func fieldOrDefault(s, fallback string) string {
	if cleaned := strings.TrimSpace(sanitizeText(s)); cleaned != "" {
		return cleaned
	}
	return fallback
}

// sanitizeText drops surrogate code points (U+D800 through U+DFFF) and any
// invalid UTF-8 so every field stays representable as valid text.
func sanitizeText(s string) string {
	if utf8.ValidString(s) && !strings.ContainsFunc(s, isSurrogate) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isSurrogate(r) {
			return -1
		}
		return r
	}, strings.ToValidUTF8(s, ""))
}

func isSurrogate(r rune) bool {
	return r >= 0xD800 && r <= 0xDFFF
}
