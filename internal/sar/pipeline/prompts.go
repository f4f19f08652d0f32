package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptContext 单个阶段可见的提示上下文快照。
// 失败的前置阶段对应空字符串，阶段提示必须容忍缺失输入。
type PromptContext struct {
	CaseText string
	Rules    string
	outputs  map[Stage]string
}

// Output 返回前置阶段的文本输出，缺失或失败时为空字符串
func (pc *PromptContext) Output(stage Stage) string {
	if pc.outputs == nil {
		return ""
	}
	return pc.outputs[stage]
}

// BuildCaseText 将输入整理为各阶段共用的案件描述文本
func BuildCaseText(in CaseInput) string {
	customer := map[string]string{
		"customer_id":    in.CustomerID,
		"name":           in.CustomerName,
		"account_number": in.CustomerAccount,
	}
	customerJSON, _ := json.MarshalIndent(customer, "", "  ")
	kycJSON, _ := json.MarshalIndent(in.KYC, "", "  ")
	txJSON, _ := json.MarshalIndent(in.Transactions, "", "  ")

	return fmt.Sprintf(`CUSTOMER INFORMATION:
%s

KYC DATA:
%s

TRANSACTION DATA:
%s

ALERT REASON:
%s
`, customerJSON, kycJSON, txJSON, in.AlertReason)
}

func factsPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are a banking AML analyst.
From the case details below, extract only objective, verifiable facts.

Extract:
- Customer name
- Total amount involved
- Number of accounts involved
- Source of funds
- Destination of funds
- Time pattern
- Geographic pattern
- Transaction behavior

Be specific with numbers, dates, and amounts. Do not speculate.
Return the facts in clear bullet points.

Case Details:
%s`, pc.CaseText)
}

func redFlagsPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are an AML red flag detection engine.
Identify immediate suspicious indicators from the case.

Look for:
- Multiple accounts
- Cash deposits
- Foreign transfers
- Rapid movement of funds
- Structuring patterns (transactions near the $10,000 threshold)
- Dormant account activity
- Lack of economic purpose

Return only a bullet list of red flags with a regulatory basis for each.

Extracted Facts:
%s

Case Details:
%s`, pc.Output(StageFacts), pc.CaseText)
}

func timelinePrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Create a clear chronological timeline of events from the facts.

Show sequence of:
- Deposits
- Transfers
- Geographic movement
- Behavior change

Facts:
%s`, pc.Output(StageFacts))
}

func typologyConfidencePrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are an AML typology expert.
Based on the facts and red flags, determine which money laundering typology is present
and assign a confidence percentage (0-100%%).

Possible typologies: Structuring, Layering, Smurfing, Mule Account, Shell Company,
Trade-Based ML, Funnel Account, Rapid Fund Movement.

Name the typology, give the confidence percentage, and explain which facts support it.

Facts:
%s

Red Flags:
%s`, pc.Output(StageFacts), pc.Output(StageRedFlags))
}

func evidenceMapPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Map each red flag and the typology claim to the exact fact it came from.

For every claim, show:
Claim → Supporting Fact

Red Flags:
%s

Typology Assessment:
%s

Facts:
%s`, pc.Output(StageRedFlags), pc.Output(StageTypologyConfidence), pc.Output(StageFacts))
}

func qualityCheckPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are a SAR quality reviewer.
Check whether the analysis so far meets regulatory standards.

Checklist:
- Clear customer description
- Logical flow
- Evidence-backed statements
- Proper SAR structure
- Professional AML language

Return a checklist with ✅ or ❌ and explanations.

Facts:
%s

Red Flags:
%s

Timeline:
%s

Typology Assessment:
%s

Evidence Map:
%s`, pc.Output(StageFacts), pc.Output(StageRedFlags), pc.Output(StageTimeline),
		pc.Output(StageTypologyConfidence), pc.Output(StageEvidenceMap))
}

func contradictionsPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Compare the extracted facts with the event timeline.

Identify:
- Any mismatched numbers
- Dates/timelines that don't match
- Logical contradictions

Return a bullet list or say 'No contradictions found'.

Facts:
%s

Timeline:
%s`, pc.Output(StageFacts), pc.Output(StageTimeline))
}

func regulatoryHighlightsPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Highlight the points most critical for regulatory examiner review.
Explain why each is important.

Include:
- Most critical red flags
- Strongest evidence of suspicious activity
- Typology classification justification

Red Flags:
%s

Typology Assessment:
%s`, pc.Output(StageRedFlags), pc.Output(StageTypologyConfidence))
}

func nextActionsPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Based on the red flags and the quality assessment, suggest 3-5 next best actions.

Examples:
- Enhanced monitoring
- Account freeze
- Further investigation
- Report to authorities

Red Flags:
%s

Quality Assessment:
%s`, pc.Output(StageRedFlags), pc.Output(StageQualityCheck))
}

func improvementsPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are a senior SAR reviewer.
Based on the quality assessment and detected contradictions, suggest 2-3 concrete
improvements to make the eventual report clearer, more professional, and regulator-ready.

Quality Assessment:
%s

Contradictions:
%s`, pc.Output(StageQualityCheck), pc.Output(StageContradictions))
}

func narrativeDraftPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are a senior compliance officer with expertise in SAR narrative writing.
Follow these SAR writing rules strictly:
%s

YOUR TASK: Write a professional, regulator-ready SAR narrative (1000-2000 characters).

STRUCTURE: Follow FinCEN SAR narrative format
- Subject Information (who)
- Suspicious Activity Description (what happened)
- Transaction Pattern Analysis (amounts, timing, frequency)
- Why This Is Suspicious (link to ML typologies)
- Supporting Evidence (KYC inconsistencies, behavioral changes)

LANGUAGE: Professional, objective, fact-based. Use specific amounts and dates.
Avoid speculation. Focus on behavior, not demographics. Plain text only, no markdown.

Facts:
%s

Red Flags:
%s

Timeline:
%s

Typology Assessment:
%s

Evidence Map:
%s

Regulatory Highlights:
%s`, pc.Rules, pc.Output(StageFacts), pc.Output(StageRedFlags), pc.Output(StageTimeline),
		pc.Output(StageTypologyConfidence), pc.Output(StageEvidenceMap), pc.Output(StageRegulatoryHighlights))
}

func executiveSummaryPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Summarize this case in 5 simple lines for a non-technical senior manager.

Cover:
- Who (customer)
- What (activity)
- Why suspicious (pattern)
- Risk level
- Recommended action

Facts:
%s

Red Flags:
%s

Typology Assessment:
%s

Quality Assessment:
%s

Regulatory Highlights:
%s`, pc.Output(StageFacts), pc.Output(StageRedFlags), pc.Output(StageTypologyConfidence),
		pc.Output(StageQualityCheck), pc.Output(StageRegulatoryHighlights))
}

func piiCheckPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Check if this SAR narrative exposes unnecessary personal information.
Suggest any redactions needed.

SAR Narrative:
%s`, pc.Output(StageNarrativeDraft))
}

func reasoningTracePrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Explain step-by-step how the analysis reached its conclusions:
how the pattern was identified, which facts led to the typology, and why the
activity is suspicious rather than merely unusual.

Facts:
%s

Red Flags:
%s

Timeline:
%s

Typology Assessment:
%s

Evidence Map:
%s

Quality Assessment:
%s

Contradictions:
%s

Regulatory Highlights:
%s

Recommended Actions:
%s

Improvement Suggestions:
%s

PII Assessment:
%s`, pc.Output(StageFacts), pc.Output(StageRedFlags), pc.Output(StageTimeline),
		pc.Output(StageTypologyConfidence), pc.Output(StageEvidenceMap),
		pc.Output(StageQualityCheck), pc.Output(StageContradictions),
		pc.Output(StageRegulatoryHighlights), pc.Output(StageNextActions),
		pc.Output(StageImprovements), pc.Output(StagePIICheck))
}

func consistencyPassPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`Review the draft narrative and executive summary for cross-section consistency.

Check:
- Numbers and dates match between the narrative and the summary
- Claims in the narrative are consistent with detected contradictions
- Quality checklist concerns have been addressed

Return a bullet list of inconsistencies, or say 'Consistent'.

Draft Narrative:
%s

Executive Summary:
%s

Contradictions:
%s

Quality Assessment:
%s`, pc.Output(StageNarrativeDraft), pc.Output(StageExecutiveSummary),
		pc.Output(StageContradictions), pc.Output(StageQualityCheck))
}

func narrativeFinalPrompt(pc *PromptContext) string {
	return fmt.Sprintf(`You are a senior compliance officer finalizing a SAR narrative.
Rewrite the draft narrative into its final regulator-ready form, applying the
consistency findings, the PII redaction suggestions, and the reviewer improvements.
Keep it 1000-2000 characters of plain professional text. No markdown.

Draft Narrative:
%s

Consistency Findings:
%s

PII Assessment:
%s

Suggested Improvements:
%s`, pc.Output(StageNarrativeDraft), pc.Output(StageConsistencyPass),
		pc.Output(StagePIICheck), pc.Output(StageImprovements))
}

// refusalMarkers 模型显式拒绝或免责声明的标记，命中则降级
var refusalMarkers = []string{
	"i cannot",
	"i can't",
	"i am unable",
	"i'm unable",
	"as an ai",
	"i'm sorry",
	"cannot assist",
}

// isRefusal 判断响应是否包含拒绝标记
func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
