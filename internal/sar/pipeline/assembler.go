package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// Assembler 记录组装器：SARRecord 唯一的诞生点。
// 案件号由 snowflake 生成，删除后也不会复用。
type Assembler struct {
	node *snowflake.Node
}

// NewAssembler 创建组装器
func NewAssembler(nodeID int64) (*Assembler, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &Assembler{node: node}, nil
}

// NewCaseID 生成唯一案件号
func (a *Assembler) NewCaseID() string {
	return "SAR-" + strings.ToUpper(a.node.Generate().Base36())
}

// Assemble 将阶段输出、风险画像与输入合并为一条 draft 状态的 SARRecord
func (a *Assembler) Assemble(input CaseInput, run *RunResult, profile RiskProfile, authorID string) (*domain.SARRecord, error) {
	txJSON, err := json.Marshal(input.Transactions)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transactions: %w", err)
	}

	total := decimal.Zero
	for _, t := range input.Transactions {
		total = total.Add(t.Amount)
	}

	narrative := run.Text(StageNarrativeFinal)
	if strings.TrimSpace(narrative) == "" {
		narrative = run.Text(StageNarrativeDraft)
	}

	failed := make([]string, 0, len(run.FailedStages))
	for _, stage := range run.FailedStages {
		failed = append(failed, string(stage))
	}

	record := &domain.SARRecord{
		CaseID: a.NewCaseID(),

		CustomerID:      input.CustomerID,
		CustomerName:    input.CustomerName,
		CustomerAccount: input.CustomerAccount,

		TransactionCount: len(input.Transactions),
		TotalAmount:      total,
		TransactionData:  string(txJSON),
		AlertReason:      input.AlertReason,

		RiskScore: profile.Score,
		RiskLevel: profile.Level,
		Typology:  profile.Typology,

		Status: domain.StatusDraft,

		Narrative:        narrative,
		ExecutiveSummary: run.Text(StageExecutiveSummary),

		Facts:                  run.Text(StageFacts),
		RedFlags:               run.Text(StageRedFlags),
		Timeline:               run.Text(StageTimeline),
		TypologyConfidence:     run.Text(StageTypologyConfidence),
		EvidenceMap:            run.Text(StageEvidenceMap),
		QualityCheck:           run.Text(StageQualityCheck),
		Contradictions:         run.Text(StageContradictions),
		RegulatoryHighlights:   run.Text(StageRegulatoryHighlights),
		NextActions:            run.Text(StageNextActions),
		Improvements:           run.Text(StageImprovements),
		PIICheck:               run.Text(StagePIICheck),
		ReasoningTraceDetailed: run.Text(StageReasoningTrace),

		Incomplete:   run.Incomplete,
		FailedStages: strings.Join(failed, ","),

		CreatedBy: authorID,
	}

	return record, nil
}
