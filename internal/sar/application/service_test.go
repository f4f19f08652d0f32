package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/internal/sar/pipeline"
)

var (
	analyst    = domain.Actor{ID: "user-1", Name: "Alice", Role: domain.RoleAnalyst}
	otherUser  = domain.Actor{ID: "user-2", Name: "Bob", Role: domain.RoleAnalyst}
	supervisor = domain.Actor{ID: "sup-1", Name: "Carol", Role: domain.RoleSupervisor}
	admin      = domain.Actor{ID: "adm-1", Name: "Dave", Role: domain.RoleAdmin}
)

// memCaseRepo 以值语义存储案件，模拟条件更新的持久层
type memCaseRepo struct {
	mu    sync.Mutex
	cases map[string]domain.SARRecord
	// 与案件同事务写入的告警回链，按持久化时刻的值语义快照存储
	linkedAlerts map[string]domain.Alert
	getCalls     int
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{
		cases:        make(map[string]domain.SARRecord),
		linkedAlerts: make(map[string]domain.Alert),
	}
}

func (r *memCaseRepo) Create(_ context.Context, record *domain.SARRecord, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cases[record.CaseID]; exists {
		return fmt.Errorf("%w: duplicate case id", domain.ErrPersistence)
	}
	if alert != nil {
		if _, done := r.linkedAlerts[alert.AlertID]; done {
			return fmt.Errorf("%w: alert %s already processed", domain.ErrStateConflict, alert.AlertID)
		}
		r.linkedAlerts[alert.AlertID] = *alert
	}
	r.cases[record.CaseID] = *record
	return nil
}

func (r *memCaseRepo) GetByCaseID(_ context.Context, caseID string) (*domain.SARRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	stored, ok := r.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: case %s", domain.ErrNotFound, caseID)
	}
	copied := stored
	return &copied, nil
}

func (r *memCaseRepo) List(_ context.Context, filter domain.ListFilter) ([]*domain.SARRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SARRecord
	for _, stored := range r.cases {
		if filter.CreatedBy != "" && stored.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && stored.Status != filter.Status {
			continue
		}
		if filter.RiskLevel != "" && stored.RiskLevel != filter.RiskLevel {
			continue
		}
		copied := stored
		out = append(out, &copied)
	}
	return out, int64(len(out)), nil
}

func (r *memCaseRepo) UpdateNarrative(_ context.Context, record *domain.SARRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[record.CaseID]
	if !ok {
		return fmt.Errorf("%w: case %s", domain.ErrNotFound, record.CaseID)
	}
	if stored.Status != domain.StatusDraft {
		return fmt.Errorf("%w: narrative is frozen in status %s", domain.ErrStateConflict, stored.Status)
	}
	stored.Narrative = record.Narrative
	r.cases[record.CaseID] = stored
	return nil
}

func (r *memCaseRepo) TransitionStatus(_ context.Context, record *domain.SARRecord, allowedFrom ...domain.CaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[record.CaseID]
	if !ok {
		return fmt.Errorf("%w: case %s", domain.ErrNotFound, record.CaseID)
	}
	allowed := false
	for _, from := range allowedFrom {
		if stored.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: case is in status %s", domain.ErrStateConflict, stored.Status)
	}
	r.cases[record.CaseID] = *record
	return nil
}

func (r *memCaseRepo) Delete(_ context.Context, caseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[caseID]; !ok {
		return fmt.Errorf("%w: case %s", domain.ErrNotFound, caseID)
	}
	delete(r.cases, caseID)
	return nil
}

func (r *memCaseRepo) DeleteBatch(_ context.Context, caseIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for _, id := range caseIDs {
		if _, ok := r.cases[id]; ok {
			delete(r.cases, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memCaseRepo) DeleteAll(_ context.Context, createdBy string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, stored := range r.cases {
		if createdBy != "" && stored.CreatedBy != createdBy {
			continue
		}
		delete(r.cases, id)
		deleted++
	}
	return deleted, nil
}

func (r *memCaseRepo) Statistics(_ context.Context, createdBy string) (*domain.CaseStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.CaseStatistics{
		ByStatus:    make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}
	for _, stored := range r.cases {
		if createdBy != "" && stored.CreatedBy != createdBy {
			continue
		}
		stats.Total++
		stats.ByStatus[string(stored.Status)]++
		stats.ByRiskLevel[string(stored.RiskLevel)]++
	}
	return stats, nil
}

func (r *memCaseRepo) CountByStatus(_ context.Context, status domain.CaseStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, stored := range r.cases {
		if stored.Status == status {
			count++
		}
	}
	return count, nil
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*domain.Alert
}

func newMemAlertRepo() *memAlertRepo {
	return &memAlertRepo{alerts: make(map[string]*domain.Alert)}
}

func (r *memAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.AlertID] = alert
	return nil
}

func (r *memAlertRepo) GetByAlertID(_ context.Context, alertID string) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	return alert, nil
}

func (r *memAlertRepo) List(_ context.Context, onlyUnprocessed bool, _, _ int) ([]*domain.Alert, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Alert
	for _, alert := range r.alerts {
		if onlyUnprocessed && alert.IsProcessed {
			continue
		}
		out = append(out, alert)
	}
	return out, int64(len(out)), nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (r *memAuditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memAuditRepo) ListByCase(_ context.Context, caseID string) ([]*domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditEntry
	for _, e := range r.entries {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (p *capturePublisher) Publish(_ context.Context, event domain.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

// fnCompleter 固定响应的补全后端
type fnCompleter struct {
	fn func(ctx context.Context, prompt string) (string, error)
}

func (f *fnCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.fn(ctx, prompt)
}

const cannedStageText = "- Structuring near the reporting threshold\n- Rapid movement of funds\nStructuring typology with 80% confidence."

type testEnv struct {
	service   *SARService
	cases     *memCaseRepo
	alerts    *memAlertRepo
	audits    *memAuditRepo
	publisher *capturePublisher
}

func newTestEnv(t *testing.T, completer pipeline.Completer) *testEnv {
	t.Helper()
	if completer == nil {
		completer = &fnCompleter{fn: func(context.Context, string) (string, error) {
			return cannedStageText, nil
		}}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := pipeline.NewExecutor(completer, time.Second)
	orchestrator := pipeline.NewOrchestrator(executor, 4, logger, nil)
	assembler, err := pipeline.NewAssembler(1)
	require.NoError(t, err)

	env := &testEnv{
		cases:     newMemCaseRepo(),
		alerts:    newMemAlertRepo(),
		audits:    &memAuditRepo{},
		publisher: &capturePublisher{},
	}
	env.service = NewSARService(
		env.cases, env.alerts, env.audits,
		orchestrator, assembler, env.publisher, nil, nil, logger,
	)
	return env
}

func generateRequest() GenerateCaseRequest {
	return GenerateCaseRequest{
		CustomerID:      "CUST-1",
		CustomerName:    "Jane Doe",
		CustomerAccount: "ACC-1",
		Transactions: []TransactionInput{
			{Date: "2026-01-10", Amount: decimal.NewFromInt(9500), Counterparty: "Cash Deposit"},
			{Date: "2026-01-11", Amount: decimal.NewFromInt(9400), Counterparty: "Cash Deposit"},
		},
		AlertReason: "Structuring pattern detected near reporting threshold",
	}
}

func TestGenerateCaseEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(detail.CaseID, "SAR-"))
	assert.Equal(t, string(domain.StatusDraft), detail.Status)
	assert.Equal(t, analyst.ID, detail.CreatedBy)
	assert.GreaterOrEqual(t, detail.RiskScore, 0)
	assert.LessOrEqual(t, detail.RiskScore, 100)
	assert.Equal(t, string(domain.RiskHigh), detail.RiskLevel)
	assert.Equal(t, "Structuring", detail.Typology)
	assert.False(t, detail.Incomplete)

	sections := []string{
		detail.Narrative, detail.ExecutiveSummary,
		detail.Facts, detail.RedFlags, detail.Timeline, detail.TypologyConfidence,
		detail.EvidenceMap, detail.QualityCheck, detail.Contradictions,
		detail.RegulatoryHighlights, detail.NextActions, detail.Improvements,
		detail.PIICheck, detail.ReasoningTraceDetailed,
	}
	for i, section := range sections {
		assert.NotEmpty(t, section, "section %d should be populated", i)
	}

	assert.Equal(t, []string{domain.AuditActionGenerate}, env.audits.actions())
	assert.Equal(t, []string{"sar.case.generated"}, env.publisher.names())
}

func TestGenerateCaseValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	req := generateRequest()
	req.Transactions = nil
	_, err := env.service.GenerateCase(context.Background(), analyst, req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGenerateCaseInFlightDedup(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := &fnCompleter{fn: func(ctx context.Context, prompt string) (string, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return cannedStageText, nil
	}}

	env := newTestEnv(t, blocking)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := env.service.GenerateCase(ctx, analyst, generateRequest())
		done <- err
	}()

	<-started
	_, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	assert.ErrorIs(t, err, domain.ErrGenerationInFlight)

	close(release)
	require.NoError(t, <-done)

	// 释放后同一客户可以再次生成
	_, err = env.service.GenerateCase(ctx, analyst, generateRequest())
	assert.NoError(t, err)
}

func TestCaseLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)
	caseID := detail.CaseID

	edited, err := env.service.EditNarrative(ctx, analyst, caseID, "revised narrative text")
	require.NoError(t, err)
	assert.Equal(t, "revised narrative text", edited.Narrative)

	submitted, err := env.service.SubmitCase(ctx, analyst, caseID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusPendingReview), submitted.Status)

	// 提交后叙述冻结
	_, err = env.service.EditNarrative(ctx, analyst, caseID, "too late")
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	_, err = env.service.ApproveCase(ctx, analyst, caseID, "")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	approved, err := env.service.ApproveCase(ctx, supervisor, caseID, "well documented")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusApproved), approved.Status)
	assert.Equal(t, supervisor.ID, approved.ApprovedBy)

	filed, err := env.service.FileCase(ctx, supervisor, caseID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusFiled), filed.Status)

	// 已申报案件不可再批准
	_, err = env.service.ApproveCase(ctx, supervisor, caseID, "")
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	assert.Equal(t, []string{
		domain.AuditActionGenerate,
		domain.AuditActionEdit,
		domain.AuditActionSubmit,
		domain.AuditActionApprove,
		domain.AuditActionFile,
	}, env.audits.actions())
}

func TestRejectAndReopen(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)
	caseID := detail.CaseID

	_, err = env.service.SubmitCase(ctx, analyst, caseID)
	require.NoError(t, err)

	_, err = env.service.RejectCase(ctx, supervisor, caseID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	rejected, err := env.service.RejectCase(ctx, supervisor, caseID, "timeline is unclear")
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusRejected), rejected.Status)
	require.Len(t, rejected.ReviewComments, 1)

	reopened, err := env.service.ReopenCase(ctx, analyst, caseID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusDraft), reopened.Status)

	// 重开后可重新编辑
	_, err = env.service.EditNarrative(ctx, analyst, caseID, "addressed the timeline")
	assert.NoError(t, err)
}

func TestVisibilityScoping(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	_, err = env.service.GetCase(ctx, otherUser, detail.CaseID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.service.GetCase(ctx, supervisor, detail.CaseID)
	assert.NoError(t, err)

	mine, err := env.service.ListCases(ctx, analyst, ListCasesQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)

	others, err := env.service.ListCases(ctx, otherUser, ListCasesQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), others.Total)
}

func TestDeletePermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	err = env.service.DeleteCase(ctx, otherUser, detail.CaseID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.service.DeleteCases(ctx, analyst, []string{detail.CaseID})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.service.DeleteAllCases(ctx, supervisor)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	result, err := env.service.DeleteAllCases(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Deleted)

	err = env.service.DeleteCase(ctx, analyst, detail.CaseID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchDeleteSkipsMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	result, err := env.service.DeleteCases(ctx, supervisor, []string{detail.CaseID, "SAR-MISSING"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Deleted)
}

func TestIngestAlertAndGenerate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	view, err := env.service.IngestAlert(ctx, analyst, IngestAlertRequest{
		CustomerID:      "CUST-9",
		CustomerName:    "Acme Trading Ltd",
		CustomerAccount: "ACC-9",
		AlertType:       "Structuring/Smurfing",
		AlertReason:     "structuring: repeated cash deposits below threshold",
		Transactions: []TransactionInput{
			{Date: "2026-02-01", Amount: decimal.NewFromInt(9800)},
			{Date: "2026-02-02", Amount: decimal.NewFromInt(9700)},
			{Date: "2026-02-03", Amount: decimal.NewFromInt(9600)},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(view.AlertID, "ALERT-"))
	assert.NotEmpty(t, view.Priority)

	detail, err := env.service.GenerateFromAlert(ctx, analyst, view.AlertID)
	require.NoError(t, err)
	assert.Equal(t, "CUST-9", detail.CustomerID)

	// 告警被原子地标记为已处理并回链案件
	alert, err := env.alerts.GetByAlertID(ctx, view.AlertID)
	require.NoError(t, err)
	assert.True(t, alert.IsProcessed)
	assert.Equal(t, detail.CaseID, alert.SARCaseID)

	// 持久化时刻 processed_at 必须已经填好，否则该列在库里恒为 NULL
	persisted, ok := env.cases.linkedAlerts[view.AlertID]
	require.True(t, ok)
	assert.True(t, persisted.IsProcessed)
	require.NotNil(t, persisted.ProcessedAt)
	assert.Equal(t, detail.CaseID, persisted.SARCaseID)

	_, err = env.service.GenerateFromAlert(ctx, analyst, view.AlertID)
	assert.ErrorIs(t, err, domain.ErrStateConflict)
}

func TestExportFormats(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	for _, format := range []ExportFormat{FormatCSV, FormatXML, FormatPDF} {
		data, filename, contentType, err := env.service.ExportCase(ctx, analyst, detail.CaseID, format)
		require.NoError(t, err, "format %s", format)
		assert.NotEmpty(t, data)
		assert.Equal(t, fmt.Sprintf("SAR_%s.%s", detail.CaseID, format), filename)
		assert.NotEmpty(t, contentType)
	}

	_, _, _, err = env.service.ExportCase(ctx, analyst, detail.CaseID, ExportFormat("docx"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, _, err = env.service.ExportCase(ctx, otherUser, detail.CaseID, FormatCSV)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestEmailWithoutConfiguration(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	err = env.service.EmailCase(ctx, analyst, detail.CaseID, FormatPDF, "fiu@example.gov")
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

type captureEmailer struct {
	mu          sync.Mutex
	records     []*domain.SARRecord
	filenames   []string
	attachments [][]byte
}

func (e *captureEmailer) Send(record *domain.SARRecord, recipient, filename string, attachment []byte, contentType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	e.filenames = append(e.filenames, filename)
	e.attachments = append(e.attachments, attachment)
	return nil
}

func TestEmailCaseLoadsRecordOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	emailer := &captureEmailer{}
	env.service.emailer = emailer
	ctx := context.Background()

	detail, err := env.service.GenerateCase(ctx, analyst, generateRequest())
	require.NoError(t, err)

	env.cases.mu.Lock()
	env.cases.getCalls = 0
	env.cases.mu.Unlock()

	err = env.service.EmailCase(ctx, analyst, detail.CaseID, FormatPDF, "fiu@example.gov")
	require.NoError(t, err)

	// 渲染与投递使用同一次读取的记录
	env.cases.mu.Lock()
	calls := env.cases.getCalls
	env.cases.mu.Unlock()
	assert.Equal(t, 1, calls)

	require.Len(t, emailer.records, 1)
	assert.Equal(t, detail.CaseID, emailer.records[0].CaseID)
	assert.Equal(t, fmt.Sprintf("SAR_%s.pdf", detail.CaseID), emailer.filenames[0])
	assert.NotEmpty(t, emailer.attachments[0])
	assert.Contains(t, env.audits.actions(), domain.AuditActionEmailSent)
}

func TestBackendUnavailableAborts(t *testing.T) {
	down := &fnCompleter{fn: func(context.Context, string) (string, error) {
		return "", fmt.Errorf("%w: connection refused", domain.ErrBackendUnavailable)
	}}
	env := newTestEnv(t, down)

	_, err := env.service.GenerateCase(context.Background(), analyst, generateRequest())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	// 失败的运行不落盘
	stats, err := env.cases.Statistics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}
