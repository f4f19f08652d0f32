package pipeline

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

func fullRun() *RunResult {
	results := make(map[Stage]StageResult, len(stageGraph))
	for _, spec := range stageGraph {
		results[spec.stage] = StageResult{
			Stage:  spec.stage,
			Status: StatusOK,
			Text:   "text for " + string(spec.stage),
		}
	}
	return &RunResult{Results: results}
}

func TestNewCaseIDFormat(t *testing.T) {
	a, err := NewAssembler(1)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^SAR-[0-9A-Z]+$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := a.NewCaseID()
		assert.Regexp(t, pattern, id)
		assert.False(t, seen[id], "case id %s generated twice", id)
		seen[id] = true
	}
}

func TestAssemble(t *testing.T) {
	a, err := NewAssembler(1)
	require.NoError(t, err)

	input := testInput()
	run := fullRun()
	profile := RiskProfile{Score: 59, Level: domain.RiskHigh, Typology: "Structuring"}

	record, err := a.Assemble(input, run, profile, "user-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDraft, record.Status)
	assert.Equal(t, "CUST-1", record.CustomerID)
	assert.Equal(t, "Jane Doe", record.CustomerName)
	assert.Equal(t, 2, record.TransactionCount)
	assert.True(t, record.TotalAmount.Equal(decimal.NewFromInt(18900)))
	assert.Equal(t, 59, record.RiskScore)
	assert.Equal(t, domain.RiskHigh, record.RiskLevel)
	assert.Equal(t, "Structuring", record.Typology)
	assert.Equal(t, "user-1", record.CreatedBy)

	// 终稿作为正式叙述
	assert.Equal(t, "text for narrative_final", record.Narrative)
	assert.Equal(t, "text for executive_summary", record.ExecutiveSummary)
	assert.Equal(t, "text for facts", record.Facts)
	assert.Equal(t, "text for reasoning_trace", record.ReasoningTraceDetailed)

	assert.False(t, record.Incomplete)
	assert.Empty(t, record.FailedStages)
	assert.JSONEq(t, `[
		{"date":"2026-01-10","amount":"9500","counterparty":"Cash Deposit","description":""},
		{"date":"2026-01-11","amount":"9400","counterparty":"Cash Deposit","description":""}
	]`, record.TransactionData)
}

func TestAssembleNarrativeFallback(t *testing.T) {
	a, err := NewAssembler(1)
	require.NoError(t, err)

	run := fullRun()
	run.Results[StageNarrativeFinal] = StageResult{Stage: StageNarrativeFinal, Status: StatusFailed}
	run.Incomplete = true
	run.FailedStages = []Stage{StageNarrativeFinal}

	record, err := a.Assemble(testInput(), run, RiskProfile{Level: domain.RiskLow, Typology: "Unknown"}, "user-1")
	require.NoError(t, err)

	// 终稿失败时回退到草稿
	assert.Equal(t, "text for narrative_draft", record.Narrative)
	assert.True(t, record.Incomplete)
	assert.Equal(t, "narrative_final", record.FailedStages)
}
