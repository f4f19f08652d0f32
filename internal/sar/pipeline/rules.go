package pipeline

import (
	"sort"
	"strings"
)

// regulatoryDocument 监管知识库条目
type regulatoryDocument struct {
	id       string
	keywords []string
	content  string
}

// regulatoryLibrary 内置的 SAR 模板、指南与类型学简介
var regulatoryLibrary = []regulatoryDocument{
	{
		id:       "template_structuring",
		keywords: []string{"structuring", "smurfing", "threshold", "below", "cash deposit"},
		content: `SAR Narrative Template - Structuring:

Subject Information: [Customer Name], [Customer ID], [Account Number]

Suspicious Activity: Between [start date] and [end date], the subject conducted [number] transactions totaling [amount] that appear designed to evade reporting requirements.

Transaction Pattern: The transactions were consistently structured in amounts just below the $10,000 reporting threshold, ranging from $[min] to $[max]. This pattern suggests deliberate structuring to avoid Currency Transaction Report (CTR) filing.

Why Suspicious: This activity is consistent with structuring under 31 USC 5324, where individuals break up large transactions to evade reporting requirements. The pattern, timing, and amounts indicate potential money laundering.

Supporting Facts: [Additional KYC inconsistencies, behavioral changes, or other red flags]`,
	},
	{
		id:       "template_rapid_movement",
		keywords: []string{"rapid", "layering", "transfer", "velocity", "immediate"},
		content: `SAR Narrative Template - Rapid Fund Movement:

Subject Information: [Customer Name], [Customer ID], [Account Number]

Suspicious Activity: The subject's account received [amount] from [number] different sources over [timeframe], followed by immediate outbound transfers to [destination].

Transaction Pattern: Funds were received in [number] deposits averaging [amount] each, then consolidated and transferred within [hours/days]. The rapid movement and lack of business purpose suggest layering activity.

Why Suspicious: This pattern is consistent with money laundering layering, where illicit funds are moved quickly through multiple accounts to obscure their origin. The velocity and complexity indicate potential criminal proceeds.

Supporting Facts: [Customer profile inconsistencies, unusual counterparties, geographic risk factors]`,
	},
	{
		id:       "guideline_fincen",
		keywords: []string{"suspicious", "unusual", "sar", "report"},
		content: `FinCEN SAR Narrative Guidelines:

1. Be Clear and Concise: Use plain language, avoid jargon
2. Be Specific: Include dates, amounts, account numbers
3. Be Objective: State facts, not opinions or speculation
4. Explain the Suspicious Nature: Link to known typologies
5. Include All Relevant Information: KYC data, transaction details, behavioral changes
6. Maintain Confidentiality: Protect customer information
7. Avoid Discrimination: Focus on behavior, not demographics`,
	},
	{
		id:       "typology_structuring",
		keywords: []string{"structuring", "structured", "multiple", "pattern"},
		content: `Money Laundering Typology - Structuring:

Definition: Breaking up large transactions into smaller amounts to avoid reporting thresholds.

Red Flags:
- Multiple transactions just below $10,000
- Consistent patterns over time
- Use of multiple accounts or locations
- No apparent business purpose

Regulatory Reference: 31 USC 5324 - Structuring transactions to evade reporting`,
	},
	{
		id:       "typology_funnel",
		keywords: []string{"funnel", "multiple sources", "consolidat", "single destination"},
		content: `Money Laundering Typology - Funnel Account:

Definition: Account receives funds from multiple sources and quickly transfers to single destination.

Red Flags:
- High volume of incoming transfers from different sources
- Rapid outbound movement
- Minimal account balance retention
- Inconsistent with customer profile

Common in: Trade-based money laundering, fraud proceeds consolidation`,
	},
}

const maxRelevantDocuments = 3

// RelevantRules 按告警描述的关键词命中数选取最相关的监管条目
func RelevantRules(alertReason string) string {
	lower := strings.ToLower(alertReason)

	type scored struct {
		doc  regulatoryDocument
		hits int
	}
	var matches []scored
	for _, doc := range regulatoryLibrary {
		hits := 0
		for _, kw := range doc.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{doc: doc, hits: hits})
		}
	}

	if len(matches) == 0 {
		return "No specific templates found. Use general SAR guidelines."
	}

	// 稳定排序：命中数降序，声明顺序打破平局
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].hits > matches[j].hits
	})
	if len(matches) > maxRelevantDocuments {
		matches = matches[:maxRelevantDocuments]
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.doc.content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
