package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-relay/internal/utils"
)

func TestRuleEngineClassify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`defaults:
  risk_level: Medium
rules:
  - id: db
    match:
      log_contains: ["OperationalError", "connection refused"]
    failure_mode: Dependency Outage
    risk_level: Critical
    compliance_tags: ["SOC2-CC7.2"]
    labels: ["database"]
  - id: lint
    match:
      source: lint
    risk_level: Low
`), 0644))

	engine, err := NewRuleEngine(path, utils.DiscardLogger())
	require.NoError(t, err)

	g := engine.Classify("integration", "sqlalchemy OperationalError: could not connect", "CI")
	assert.Equal(t, "Critical", g.RiskLevel)
	assert.Equal(t, "Dependency Outage", g.FailureMode)
	assert.Equal(t, []string{"change-management", "SOC2-CC7.2"}, g.ComplianceTags)
	assert.Equal(t, []string{"database"}, g.Labels)
	assert.Equal(t, "CI", g.ExecutionModel)

	lint := engine.Classify("LINT", "E501 line too long", "Local")
	assert.Equal(t, "Low", lint.RiskLevel)
	assert.Equal(t, "Build Failure", lint.FailureMode)

	other := engine.Classify("unit", "AssertionError", "CI")
	assert.Equal(t, "Medium", other.RiskLevel, "defaults override")
}

func TestRuleEngineNoFile(t *testing.T) {
	engine, err := NewRuleEngine("non-existent", utils.DiscardLogger())
	require.NoError(t, err)

	g := engine.Classify("unit", "boom", "Local")
	assert.Equal(t, "High", g.RiskLevel)
	assert.Equal(t, "Build Failure", g.FailureMode)
}

func TestRuleEngineNilReceiver(t *testing.T) {
	var engine *RuleEngine
	g := engine.Classify("unit", "boom", "CI")
	assert.Equal(t, "CI", g.ExecutionModel)
}

func TestDefaultRulePack(t *testing.T) {
	engine, err := NewRuleEngine(filepath.Join("..", "..", "configs", "rules", "default.yaml"), utils.DiscardLogger())
	require.NoError(t, err)

	g := engine.Classify("deploy", "rollout stalled", "CI")
	assert.Equal(t, "Deployment Failure", g.FailureMode)
	assert.Equal(t, "Critical", g.RiskLevel)
	assert.Contains(t, g.Labels, "deploy")
}
