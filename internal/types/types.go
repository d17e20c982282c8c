// Package types defines the shared data model for test case generation:
// test cases, feature configurations, coverage levels, and batch statuses.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CoverageLevel selects how many coverage dimensions a generation run walks.
// Higher levels always include all dimensions of the lower ones.
type CoverageLevel string

const (
	CoverageLow           CoverageLevel = "low"
	CoverageMedium        CoverageLevel = "medium"
	CoverageHigh          CoverageLevel = "high"
	CoverageComprehensive CoverageLevel = "comprehensive"
)

// ParseCoverageLevel normalizes a user-supplied coverage level.
// Unknown values fall back to medium.
func ParseCoverageLevel(s string) CoverageLevel {
	switch CoverageLevel(strings.ToLower(strings.TrimSpace(s))) {
	case CoverageLow:
		return CoverageLow
	case CoverageMedium:
		return CoverageMedium
	case CoverageHigh:
		return CoverageHigh
	case CoverageComprehensive:
		return CoverageComprehensive
	default:
		return CoverageMedium
	}
}

// TestCase is one structured QA test case produced by the expansion pass.
// After field completion none of the narrative fields is empty.
type TestCase struct {
	ID             uuid.UUID `json:"id"`
	Scenario       string    `json:"test_scenario"`
	Description    string    `json:"test_description"`
	Precondition   string    `json:"pre_condition"`
	TestData       string    `json:"test_data"`
	Steps          []string  `json:"test_steps"`
	ExpectedResult string    `json:"expected_result"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// FeatureConfig describes one unit of generation work. It is immutable once
// a batch starts; the orchestrator keeps it around for retries.
type FeatureConfig struct {
	FeatureName        string        `json:"feature_name" yaml:"feature_name"`
	FeatureDescription string        `json:"feature_description" yaml:"feature_description"`
	AllowedActions     string        `json:"allowed_actions,omitempty" yaml:"allowed_actions,omitempty"`
	ExcludedFeatures   string        `json:"excluded_features,omitempty" yaml:"excluded_features,omitempty"`
	CoverageLevel      CoverageLevel `json:"coverage_level" yaml:"coverage_level"`
}

// FeatureStatus is the per-feature state machine:
// pending -> generating -> completed | failed.
type FeatureStatus string

const (
	FeaturePending    FeatureStatus = "pending"
	FeatureGenerating FeatureStatus = "generating"
	FeatureCompleted  FeatureStatus = "completed"
	FeatureFailed     FeatureStatus = "failed"
)

// BatchStatus is derived from the set of feature statuses, never stored
// independently of them.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
)

// FeatureResult is the caller-visible snapshot of one feature's run.
type FeatureResult struct {
	FeatureID   string        `json:"feature_id"`
	FeatureName string        `json:"feature_name"`
	Status      FeatureStatus `json:"status"`
	Items       []TestCase    `json:"items,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// BatchSnapshot is the caller-visible snapshot of a whole batch.
type BatchSnapshot struct {
	BatchID  string          `json:"batch_id"`
	Status   BatchStatus     `json:"status"`
	Features []FeatureResult `json:"features"`
}
