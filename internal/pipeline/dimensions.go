// Package pipeline implements the scenario-driven test case generation
// pipeline: coverage planning, scenario extraction, semantic deduplication,
// and test case expansion, one coverage dimension at a time.
package pipeline

import (
	"caseforge/internal/types"
)

// Dimension is one named category of test intent. Each dimension has its own
// prompt focus and a minimum-scenario floor.
type Dimension string

const (
	DimensionCore        Dimension = "core"
	DimensionValidation  Dimension = "validation"
	DimensionNegative    Dimension = "negative"
	DimensionBoundary    Dimension = "boundary"
	DimensionState       Dimension = "state"
	DimensionSecurity    Dimension = "security"
	DimensionDestructive Dimension = "destructive"
)

// dimensionFocus is the prompt focus text per dimension.
var dimensionFocus = map[Dimension]string{
	DimensionCore: "Fundamental workflows, happy paths, and required validations. " +
		"Highest priority: never skip basic flows or mandatory checks.",
	DimensionValidation: "Field validation, required inputs, format errors, and user input mistakes. " +
		"Do not duplicate core flows.",
	DimensionNegative: "Invalid inputs, error paths, rejection cases, and user mistakes. " +
		"Each independent failure mode is its own scenario.",
	DimensionBoundary: "Boundary values, unusual inputs, limits, and edge values. " +
		"Do not duplicate core, validation, or negative scenarios.",
	DimensionState: "State transitions, multi-step flows, and state-dependent behavior. " +
		"Do not duplicate earlier dimensions.",
	DimensionSecurity: "Security-related scenarios: auth, authorization, injection, sensitive data. " +
		"Do not duplicate earlier dimensions.",
	DimensionDestructive: "Data corruption, conflicting operations, resilience failures, and recovery. " +
		"Do not duplicate earlier dimensions.",
}

// minScenariosPerDimension is the safety floor per dimension: when the LLM
// returns fewer scenarios, extraction re-prompts once for expansion. There is
// deliberately no upper bound; the floor forces breadth and the coverage
// level bounds total cost.
var minScenariosPerDimension = map[Dimension]int{
	DimensionCore:        5,
	DimensionValidation:  6,
	DimensionNegative:    6,
	DimensionBoundary:    8,
	DimensionState:       6,
	DimensionSecurity:    6,
	DimensionDestructive: 6,
}

// coverageLevelDimensions maps each coverage level to its ordered, cumulative
// dimension sequence. Order matters: later dimensions receive earlier
// dimensions' accumulated cases as dedup context.
var coverageLevelDimensions = map[types.CoverageLevel][]Dimension{
	types.CoverageLow:    {DimensionCore},
	types.CoverageMedium: {DimensionCore, DimensionValidation, DimensionNegative},
	types.CoverageHigh: {
		DimensionCore, DimensionValidation, DimensionNegative,
		DimensionBoundary, DimensionState,
	},
	types.CoverageComprehensive: {
		DimensionCore, DimensionValidation, DimensionNegative,
		DimensionBoundary, DimensionState, DimensionSecurity, DimensionDestructive,
	},
}

// Plan returns the ordered dimension sequence for a coverage level. Unknown
// levels fall back to medium. The returned slice is a copy.
func Plan(level types.CoverageLevel) []Dimension {
	dims, ok := coverageLevelDimensions[level]
	if !ok {
		dims = coverageLevelDimensions[types.CoverageMedium]
	}
	out := make([]Dimension, len(dims))
	copy(out, dims)
	return out
}

// Focus returns the prompt focus text for the dimension. Unknown dimensions
// share core's focus.
func (d Dimension) Focus() string {
	if focus, ok := dimensionFocus[d]; ok {
		return focus
	}
	return dimensionFocus[DimensionCore]
}

// MinScenarios returns the scenario floor for the dimension, or 0 when the
// dimension defines none.
func (d Dimension) MinScenarios() int {
	return minScenariosPerDimension[d]
}
