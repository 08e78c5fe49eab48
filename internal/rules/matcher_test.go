package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrax/pettyflow/internal/model"
)

func testRules() []model.AccountingRule {
	return []model.AccountingRule{
		{ID: 1, Name: "fuel", Pattern: `\b(fuel|petrol|diesel)\b`, AccountID: "acct-6002", Priority: 100, Confidence: 0.95, IsRegex: true, IsActive: true},
		{ID: 2, Name: "stationery", Pattern: "stationery", AccountID: "acct-6001", Priority: 80, Confidence: 0.95, IsActive: true},
		{ID: 3, Name: "transport", Pattern: `\b(taxi|bus fare)\b`, AccountID: "acct-6003", Priority: 90, Confidence: 0.95, IsRegex: true, IsActive: true},
		{ID: 4, Name: "disabled", Pattern: "generator", AccountID: "acct-9999", Priority: 200, IsActive: false},
	}
}

func TestMatcherKeyword(t *testing.T) {
	m := NewMatcher(testRules())

	match := m.Match("Office STATIONERY purchase")
	require.NotNil(t, match)
	assert.Equal(t, "acct-6001", match.AccountID)
	assert.Equal(t, "stationery", match.Rule.Name)
}

func TestMatcherRegex(t *testing.T) {
	m := NewMatcher(testRules())

	tests := []struct {
		description string
		wantAccount string
	}{
		{"Fuel for generator", "acct-6002"},
		{"10 litres of diesel", "acct-6002"},
		{"taxi to the bank", "acct-6003"},
		{"Bus fare for errand", "acct-6003"},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			match := m.Match(tt.description)
			require.NotNil(t, match)
			assert.Equal(t, tt.wantAccount, match.AccountID)
		})
	}
}

func TestMatcherNoMatch(t *testing.T) {
	m := NewMatcher(testRules())
	assert.Nil(t, m.Match("lunch with the auditors"))
	assert.Nil(t, m.Match(""))
	assert.Nil(t, m.Match("   !!!   "))
}

func TestMatcherSkipsInactiveRules(t *testing.T) {
	m := NewMatcher(testRules())
	// "generator" only appears in the disabled rule.
	assert.Nil(t, m.Match("generator oil top-up"))
}

func TestMatcherPriorityOrder(t *testing.T) {
	ruleSet := []model.AccountingRule{
		{ID: 1, Name: "low", Pattern: "fuel", AccountID: "acct-low", Priority: 10, IsActive: true},
		{ID: 2, Name: "high", Pattern: "fuel", AccountID: "acct-high", Priority: 100, IsActive: true},
	}
	m := NewMatcher(ruleSet)

	match := m.Match("fuel purchase")
	require.NotNil(t, match)
	assert.Equal(t, "acct-high", match.AccountID)
}

func TestMatcherInvalidRegexNeverMatches(t *testing.T) {
	ruleSet := []model.AccountingRule{
		{ID: 1, Name: "broken", Pattern: "[unclosed", AccountID: "acct-x", Priority: 100, IsRegex: true, IsActive: true},
	}
	m := NewMatcher(ruleSet)
	assert.Nil(t, m.Match("unclosed bracket"))
}

func TestMatcherDeterministic(t *testing.T) {
	m := NewMatcher(testRules())
	first := m.Match("fuel for the truck")
	require.NotNil(t, first)
	for i := 0; i < 10; i++ {
		again := m.Match("fuel for the truck")
		require.NotNil(t, again)
		assert.Equal(t, first.AccountID, again.AccountID)
		assert.Equal(t, first.Rule.ID, again.Rule.ID)
	}
}

func TestMatchConfidence(t *testing.T) {
	withConfidence := &Match{Rule: model.AccountingRule{Confidence: 0.9}}
	assert.InDelta(t, 0.9, withConfidence.Confidence(), 1e-9)

	without := &Match{Rule: model.AccountingRule{}}
	assert.InDelta(t, RuleConfidence, without.Confidence(), 1e-9)
}
