package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseforge/internal/types"
)

func TestPlanLevelsAreCumulative(t *testing.T) {
	// Each level's dimension sequence must be a strict prefix extension of
	// the level below it.
	low := Plan(types.CoverageLow)
	medium := Plan(types.CoverageMedium)
	high := Plan(types.CoverageHigh)
	comprehensive := Plan(types.CoverageComprehensive)

	require.Less(t, len(low), len(medium))
	require.Less(t, len(medium), len(high))
	require.Less(t, len(high), len(comprehensive))

	assert.Equal(t, low, medium[:len(low)])
	assert.Equal(t, medium, high[:len(medium)])
	assert.Equal(t, high, comprehensive[:len(high)])
}

func TestPlanStartsWithCore(t *testing.T) {
	for _, level := range []types.CoverageLevel{
		types.CoverageLow, types.CoverageMedium, types.CoverageHigh, types.CoverageComprehensive,
	} {
		dims := Plan(level)
		require.NotEmpty(t, dims, "level %s", level)
		assert.Equal(t, DimensionCore, dims[0], "level %s must start with core", level)
	}
}

func TestPlanUnknownLevelFallsBackToMedium(t *testing.T) {
	assert.Equal(t, Plan(types.CoverageMedium), Plan(types.CoverageLevel("bogus")))
}

func TestPlanReturnsCopy(t *testing.T) {
	a := Plan(types.CoverageMedium)
	a[0] = DimensionSecurity
	b := Plan(types.CoverageMedium)
	assert.Equal(t, DimensionCore, b[0])
}

func TestDimensionFloors(t *testing.T) {
	assert.Equal(t, 5, DimensionCore.MinScenarios())
	assert.Equal(t, 8, DimensionBoundary.MinScenarios())
	assert.Equal(t, 0, Dimension("bogus").MinScenarios())

	for _, d := range Plan(types.CoverageComprehensive) {
		assert.Positive(t, d.MinScenarios(), "dimension %s must have a floor", d)
	}
}

func TestDimensionFocus(t *testing.T) {
	for _, d := range Plan(types.CoverageComprehensive) {
		assert.NotEmpty(t, d.Focus(), "dimension %s", d)
	}
	// Unknown dimensions borrow core's focus rather than prompting with
	// empty text.
	assert.Equal(t, DimensionCore.Focus(), Dimension("bogus").Focus())
}

func TestParseCoverageLevel(t *testing.T) {
	assert.Equal(t, types.CoverageHigh, types.ParseCoverageLevel(" HIGH "))
	assert.Equal(t, types.CoverageMedium, types.ParseCoverageLevel("unknown"))
	assert.Equal(t, types.CoverageMedium, types.ParseCoverageLevel(""))
}
