// Package pipeline SAR 叙述生成流水线
// 生成摘要：
// 1) 16 阶段提示链的阶段定义与依赖图
// 2) 阶段执行器、编排器、风险综合器与记录组装器
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// Stage 流水线阶段标识
type Stage string

const (
	StageFacts                Stage = "facts"
	StageRedFlags             Stage = "red_flags"
	StageTimeline             Stage = "timeline"
	StageTypologyConfidence   Stage = "typology_confidence"
	StageEvidenceMap          Stage = "evidence_map"
	StageQualityCheck         Stage = "quality_check"
	StageContradictions       Stage = "contradictions"
	StageRegulatoryHighlights Stage = "regulatory_highlights"
	StageNextActions          Stage = "next_actions"
	StageImprovements         Stage = "improvements"
	StageNarrativeDraft       Stage = "narrative_draft"
	StageExecutiveSummary     Stage = "executive_summary"
	StagePIICheck             Stage = "pii_check"
	StageReasoningTrace       Stage = "reasoning_trace"
	StageConsistencyPass      Stage = "consistency_pass"
	StageNarrativeFinal       Stage = "narrative_final"
)

// StageStatus 阶段结果状态
type StageStatus string

const (
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusFailed   StageStatus = "failed"
)

// StageResult 单个阶段的执行结果，每次运行每个阶段恰好产生一个
type StageResult struct {
	Stage       Stage
	Status      StageStatus
	Text        string
	ErrorDetail string
	// Unavailable 表示失败原因是后端不可达而非内容问题
	Unavailable bool
	Duration    time.Duration
}

// stageSpec 阶段声明：依赖与提示构造
type stageSpec struct {
	stage     Stage
	dependsOn []Stage
	prompt    func(pc *PromptContext) string
}

// stageGraph 按拓扑序声明的固定阶段图
var stageGraph = []stageSpec{
	{stage: StageFacts, prompt: factsPrompt},
	{stage: StageRedFlags, dependsOn: []Stage{StageFacts}, prompt: redFlagsPrompt},
	{stage: StageTimeline, dependsOn: []Stage{StageFacts}, prompt: timelinePrompt},
	{stage: StageTypologyConfidence, dependsOn: []Stage{StageFacts, StageRedFlags}, prompt: typologyConfidencePrompt},
	{stage: StageEvidenceMap, dependsOn: []Stage{StageFacts, StageRedFlags, StageTypologyConfidence}, prompt: evidenceMapPrompt},
	{stage: StageQualityCheck, dependsOn: []Stage{StageFacts, StageRedFlags, StageTimeline, StageTypologyConfidence, StageEvidenceMap}, prompt: qualityCheckPrompt},
	{stage: StageContradictions, dependsOn: []Stage{StageFacts, StageTimeline}, prompt: contradictionsPrompt},
	{stage: StageRegulatoryHighlights, dependsOn: []Stage{StageRedFlags, StageTypologyConfidence}, prompt: regulatoryHighlightsPrompt},
	{stage: StageNextActions, dependsOn: []Stage{StageRedFlags, StageQualityCheck}, prompt: nextActionsPrompt},
	{stage: StageImprovements, dependsOn: []Stage{StageQualityCheck, StageContradictions}, prompt: improvementsPrompt},
	{stage: StageNarrativeDraft, dependsOn: []Stage{StageFacts, StageRedFlags, StageTimeline, StageTypologyConfidence, StageEvidenceMap, StageRegulatoryHighlights}, prompt: narrativeDraftPrompt},
	{stage: StageExecutiveSummary, dependsOn: []Stage{StageFacts, StageRedFlags, StageTypologyConfidence, StageQualityCheck, StageRegulatoryHighlights}, prompt: executiveSummaryPrompt},
	// PII 检查针对叙述草稿执行
	{stage: StagePIICheck, dependsOn: []Stage{StageNarrativeDraft}, prompt: piiCheckPrompt},
	{stage: StageReasoningTrace, dependsOn: []Stage{StageFacts, StageRedFlags, StageTimeline, StageTypologyConfidence, StageEvidenceMap, StageQualityCheck, StageContradictions, StageRegulatoryHighlights, StageNextActions, StageImprovements, StagePIICheck}, prompt: reasoningTracePrompt},
	{stage: StageConsistencyPass, dependsOn: []Stage{StageNarrativeDraft, StageExecutiveSummary, StageContradictions, StageQualityCheck}, prompt: consistencyPassPrompt},
	{stage: StageNarrativeFinal, dependsOn: []Stage{StageNarrativeDraft, StageConsistencyPass, StagePIICheck, StageImprovements}, prompt: narrativeFinalPrompt},
}

// Stages 返回全部阶段标识，按声明顺序
func Stages() []Stage {
	stages := make([]Stage, 0, len(stageGraph))
	for _, spec := range stageGraph {
		stages = append(stages, spec.stage)
	}
	return stages
}

// CaseInput 流水线输入
type CaseInput struct {
	CustomerID      string
	CustomerName    string
	CustomerAccount string
	Transactions    []domain.Transaction
	KYC             domain.KYCProfile
	AlertReason     string
}

// Validate 校验输入完整性
func (in CaseInput) Validate() error {
	var missing []string
	if strings.TrimSpace(in.CustomerID) == "" {
		missing = append(missing, "customer_id")
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(in.CustomerAccount) == "" {
		missing = append(missing, "customer_account")
	}
	if strings.TrimSpace(in.AlertReason) == "" {
		missing = append(missing, "alert_reason")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: blank fields: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if len(in.Transactions) == 0 {
		return fmt.Errorf("%w: transaction list is empty", domain.ErrValidation)
	}
	return nil
}
