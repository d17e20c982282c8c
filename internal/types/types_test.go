package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCaseWireNames(t *testing.T) {
	tc := TestCase{
		ID:             uuid.New(),
		Scenario:       "Login",
		Description:    "desc",
		Precondition:   "pre",
		TestData:       "data",
		Steps:          []string{"1. step"},
		ExpectedResult: "ok",
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(tc)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))
	for _, key := range []string{
		"id", "test_scenario", "test_description", "pre_condition",
		"test_data", "test_steps", "expected_result", "created_at",
	} {
		assert.Contains(t, wire, key)
	}
	assert.NotContains(t, wire, "created_by", "empty created_by must be omitted")
}

func TestFeatureConfigYAMLTagsMatchJSON(t *testing.T) {
	var fc FeatureConfig
	require.NoError(t, json.Unmarshal([]byte(`{
		"feature_name": "Login",
		"feature_description": "desc",
		"coverage_level": "high"
	}`), &fc))
	assert.Equal(t, "Login", fc.FeatureName)
	assert.Equal(t, CoverageHigh, fc.CoverageLevel)
}
