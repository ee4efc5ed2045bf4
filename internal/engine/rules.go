package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-relay/internal/models"
)

// RuleEngine classifies failures into governance metadata using a YAML rule pack.
// Later matching rules override scalar fields of earlier ones; tags and labels accumulate.
type RuleEngine struct {
	defaults models.Governance
	rules    []Rule
	logger   *slog.Logger
}

// Rule represents a single classification rule.
type Rule struct {
	ID             string    `yaml:"id"`
	Match          RuleMatch `yaml:"match"`
	FailureMode    string    `yaml:"failure_mode"`
	RiskLevel      string    `yaml:"risk_level"`
	ComplianceTags []string  `yaml:"compliance_tags"`
	Labels         []string  `yaml:"labels"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match anything.
type RuleMatch struct {
	Source      string   `yaml:"source"`
	LogContains []string `yaml:"log_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Defaults struct {
		FailureMode    string   `yaml:"failure_mode"`
		RiskLevel      string   `yaml:"risk_level"`
		ComplianceTags []string `yaml:"compliance_tags"`
	} `yaml:"defaults"`
	Rules []Rule `yaml:"rules"`
}

// DefaultGovernance is used when no rule pack is configured.
func DefaultGovernance() models.Governance {
	return models.Governance{
		FailureMode:    "Build Failure",
		RiskLevel:      "High",
		ComplianceTags: []string{"change-management"},
	}
}

// NewRuleEngine loads rules from path. An empty or missing path yields an engine that
// only applies DefaultGovernance.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	engine := &RuleEngine{defaults: DefaultGovernance(), logger: logger}
	if path == "" {
		return engine, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("rule pack not found; using default classification", slog.String("path", path))
			return engine, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Defaults.FailureMode != "" {
		engine.defaults.FailureMode = cfg.Defaults.FailureMode
	}
	if cfg.Defaults.RiskLevel != "" {
		engine.defaults.RiskLevel = cfg.Defaults.RiskLevel
	}
	if len(cfg.Defaults.ComplianceTags) > 0 {
		engine.defaults.ComplianceTags = cfg.Defaults.ComplianceTags
	}
	engine.rules = cfg.Rules
	return engine, nil
}

// Classify produces governance metadata for a failure. executionModel describes where the
// failure ran (CI or local) and is passed through untouched.
func (e *RuleEngine) Classify(source, log, executionModel string) models.Governance {
	if e == nil {
		g := DefaultGovernance()
		g.ExecutionModel = executionModel
		return g
	}

	g := models.Governance{
		ExecutionModel: executionModel,
		FailureMode:    e.defaults.FailureMode,
		RiskLevel:      e.defaults.RiskLevel,
		ComplianceTags: appendUnique(nil, e.defaults.ComplianceTags...),
	}
	lowered := strings.ToLower(log)
	for _, rule := range e.rules {
		if rule.Match.Source != "" && !strings.EqualFold(rule.Match.Source, source) {
			continue
		}
		if len(rule.Match.LogContains) > 0 && !containsAny(lowered, rule.Match.LogContains) {
			continue
		}
		e.logger.Debug("classification rule matched", slog.String("rule", rule.ID), slog.String("source", source))
		if rule.FailureMode != "" {
			g.FailureMode = rule.FailureMode
		}
		if rule.RiskLevel != "" {
			g.RiskLevel = rule.RiskLevel
		}
		g.ComplianceTags = appendUnique(g.ComplianceTags, rule.ComplianceTags...)
		g.Labels = appendUnique(g.Labels, rule.Labels...)
	}
	return g
}

func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
