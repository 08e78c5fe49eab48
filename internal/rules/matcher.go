// Package rules provides deterministic keyword and regex based account
// classification for expense line-item descriptions.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fintrax/pettyflow/internal/model"
)

// RuleConfidence is assigned to every rule match, signaling rule-based
// certainty regardless of what an AI classifier might say.
const RuleConfidence = 0.95

// Match is the outcome of evaluating the rule set against a description.
type Match struct {
	Rule      model.AccountingRule
	AccountID string
}

// Matcher evaluates an ordered list of accounting rules against normalized
// descriptions. It is pure: no side effects, no I/O, and identical input
// always yields identical output while the rule set is unchanged.
type Matcher struct {
	compiledRegex map[int]*regexp.Regexp
	rules         []model.AccountingRule
}

// NewMatcher creates a matcher with the given rules. Rules are ordered by
// priority (highest first) once at construction; regex patterns are
// pre-compiled and rules with invalid patterns never match.
func NewMatcher(ruleSet []model.AccountingRule) *Matcher {
	rules := make([]model.AccountingRule, len(ruleSet))
	copy(rules, ruleSet)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	m := &Matcher{
		rules:         rules,
		compiledRegex: make(map[int]*regexp.Regexp),
	}

	for _, rule := range rules {
		if rule.IsRegex && rule.Pattern != "" {
			if re, err := regexp.Compile(rule.Pattern); err == nil {
				m.compiledRegex[rule.ID] = re
			}
		}
	}

	return m
}

// Match evaluates the description against all active rules and returns the
// first match by priority, or nil if none match.
func (m *Matcher) Match(description string) *Match {
	normalized := model.NormalizeDescription(description)
	if normalized == "" {
		return nil
	}

	for _, rule := range m.rules {
		if !rule.IsActive {
			continue
		}
		if m.matchesRule(normalized, rule) {
			return &Match{Rule: rule, AccountID: rule.AccountID}
		}
	}

	return nil
}

// matchesRule checks a single rule against a normalized description.
func (m *Matcher) matchesRule(normalized string, rule model.AccountingRule) bool {
	if rule.Pattern == "" {
		return false
	}

	if rule.IsRegex {
		if re, ok := m.compiledRegex[rule.ID]; ok {
			return re.MatchString(normalized)
		}
		return false
	}

	// Keyword rules match on word containment (case-insensitive).
	return strings.Contains(normalized, strings.ToLower(rule.Pattern))
}

// Confidence returns the rule's confidence, falling back to the fixed
// rule-certainty constant when the rule carries none.
func (r *Match) Confidence() float64 {
	if r.Rule.Confidence > 0 {
		return r.Rule.Confidence
	}
	return RuleConfidence
}
