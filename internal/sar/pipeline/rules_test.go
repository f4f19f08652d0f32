package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelevantRulesMatchesStructuring(t *testing.T) {
	rules := RelevantRules("multiple cash deposits under the $10,000 threshold, likely structuring")

	assert.Contains(t, strings.ToLower(rules), "structuring")
	// 最多返回 3 份文档
	assert.LessOrEqual(t, strings.Count(rules, "\n\n---\n\n"), 2)
}

func TestRelevantRulesFallback(t *testing.T) {
	rules := RelevantRules("zzz qqq completely unrelated text")
	assert.Equal(t, "No specific templates found. Use general SAR guidelines.", rules)
}

func TestRelevantRulesTieBreakIsStable(t *testing.T) {
	first := RelevantRules("rapid movement of funds offshore")
	second := RelevantRules("rapid movement of funds offshore")
	assert.Equal(t, first, second)
}
