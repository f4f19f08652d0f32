// Package application SAR 案件应用服务
// 生成摘要：
// 1) 案件生成编排：流水线 → 风险综合 → 记录组装 → 持久化
// 2) 案件生命周期操作、查询、导出与告警处理
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/internal/sar/export"
	"github.com/wyfcoding/amlcase/internal/sar/pipeline"
	"github.com/wyfcoding/amlcase/pkg/metrics"
)

// ExportFormat 导出格式
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatXML ExportFormat = "xml"
	FormatPDF ExportFormat = "pdf"
)

// Emailer 投递导出附件，生产实现为 export.EmailSender
type Emailer interface {
	Send(record *domain.SARRecord, recipient, filename string, attachment []byte, contentType string) error
}

// SARService 案件应用服务
type SARService struct {
	cases  domain.SARRepository
	alerts domain.AlertRepository
	audits domain.AuditRepository

	orchestrator *pipeline.Orchestrator
	assembler    *pipeline.Assembler
	publisher    domain.EventPublisher
	emailer      Emailer

	metrics *metrics.Metrics
	logger  *slog.Logger

	// 同一告警/客户同时只允许一次生成
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewSARService 创建应用服务，metrics 与 emailer 可为 nil
func NewSARService(
	cases domain.SARRepository,
	alerts domain.AlertRepository,
	audits domain.AuditRepository,
	orchestrator *pipeline.Orchestrator,
	assembler *pipeline.Assembler,
	publisher domain.EventPublisher,
	emailer Emailer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SARService {
	return &SARService{
		cases:        cases,
		alerts:       alerts,
		audits:       audits,
		orchestrator: orchestrator,
		assembler:    assembler,
		publisher:    publisher,
		emailer:      emailer,
		metrics:      m,
		logger:       logger,
		inFlight:     make(map[string]struct{}),
	}
}

// GenerateCase 直接从请求数据生成案件
func (s *SARService) GenerateCase(ctx context.Context, actor domain.Actor, req GenerateCaseRequest) (*CaseDetail, error) {
	input := toCaseInput(req)
	return s.generate(ctx, actor, input, nil, "customer:"+req.CustomerID)
}

// GenerateFromAlert 从告警生成案件，成功后在同一事务内标记告警已处理
func (s *SARService) GenerateFromAlert(ctx context.Context, actor domain.Actor, alertID string) (*CaseDetail, error) {
	alert, err := s.alerts.GetByAlertID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsProcessed {
		return nil, fmt.Errorf("%w: alert %s already generated case %s", domain.ErrStateConflict, alertID, alert.SARCaseID)
	}

	var transactions []domain.Transaction
	if err := json.Unmarshal([]byte(alert.TransactionData), &transactions); err != nil {
		return nil, fmt.Errorf("%w: alert %s has malformed transaction data: %v", domain.ErrValidation, alertID, err)
	}
	var kyc domain.KYCProfile
	if alert.KYCData != "" {
		if err := json.Unmarshal([]byte(alert.KYCData), &kyc); err != nil {
			return nil, fmt.Errorf("%w: alert %s has malformed kyc data: %v", domain.ErrValidation, alertID, err)
		}
	}

	input := pipeline.CaseInput{
		CustomerID:      alert.CustomerID,
		CustomerName:    alert.CustomerName,
		CustomerAccount: alert.CustomerAccount,
		Transactions:    transactions,
		KYC:             kyc,
		AlertReason:     alert.AlertReason,
	}
	return s.generate(ctx, actor, input, alert, "alert:"+alertID)
}

func (s *SARService) generate(ctx context.Context, actor domain.Actor, input pipeline.CaseInput, alert *domain.Alert, slot string) (*CaseDetail, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if err := s.acquire(slot); err != nil {
		return nil, err
	}
	defer s.release(slot)

	run, err := s.orchestrator.Run(ctx, input)
	if err != nil {
		return nil, err
	}

	profile := pipeline.Synthesize(run)
	record, err := s.assembler.Assemble(input, run, profile, actor.ID)
	if err != nil {
		return nil, err
	}

	if alert != nil {
		alert.MarkProcessed(record.CaseID)
	}
	if err := s.cases.Create(ctx, record, alert); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, record.CaseID, domain.AuditActionGenerate,
		fmt.Sprintf("risk=%d level=%s incomplete=%t", record.RiskScore, record.RiskLevel, record.Incomplete))

	s.publish(ctx, &domain.CaseGeneratedEvent{
		CaseID:     record.CaseID,
		CustomerID: record.CustomerID,
		RiskScore:  record.RiskScore,
		RiskLevel:  record.RiskLevel,
		Typology:   record.Typology,
		Incomplete: record.Incomplete,
		CreatedBy:  record.CreatedBy,
		Timestamp:  time.Now(),
	})

	if s.metrics != nil {
		s.metrics.CasesGeneratedTotal.WithLabelValues(string(record.RiskLevel)).Inc()
	}
	s.logger.InfoContext(ctx, "case generated",
		"case_id", record.CaseID,
		"customer_id", record.CustomerID,
		"risk_level", record.RiskLevel,
		"incomplete", record.Incomplete,
		"duration", run.Duration,
	)

	return toCaseDetail(record), nil
}

func (s *SARService) acquire(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[slot]; busy {
		return fmt.Errorf("%w: generation already running for %s", domain.ErrGenerationInFlight, slot)
	}
	s.inFlight[slot] = struct{}{}
	return nil
}

func (s *SARService) release(slot string) {
	s.mu.Lock()
	delete(s.inFlight, slot)
	s.mu.Unlock()
}

// GetCase 查询单个案件
func (s *SARService) GetCase(ctx context.Context, actor domain.Actor, caseID string) (*CaseDetail, error) {
	record, err := s.cases.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(record.CreatedBy) {
		return nil, fmt.Errorf("%w: %s cannot view case %s", domain.ErrPermissionDenied, actor.ID, caseID)
	}
	return toCaseDetail(record), nil
}

// ListCases 分页查询案件，分析师仅能看到自己创建的
func (s *SARService) ListCases(ctx context.Context, actor domain.Actor, query ListCasesQuery) (*CaseListResult, error) {
	filter := domain.ListFilter{
		Status:    domain.CaseStatus(query.Status),
		RiskLevel: domain.RiskLevel(query.RiskLevel),
		Offset:    query.Offset,
		Limit:     query.Limit,
	}
	if !actor.CanReview() {
		filter.CreatedBy = actor.ID
	}

	records, total, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]CaseSummary, 0, len(records))
	for _, r := range records {
		items = append(items, toCaseSummary(r))
	}
	return &CaseListResult{Items: items, Total: total, Offset: filter.Offset, Limit: filter.Limit}, nil
}

// Statistics 案件统计，分析师仅统计自己创建的
func (s *SARService) Statistics(ctx context.Context, actor domain.Actor) (*domain.CaseStatistics, error) {
	createdBy := ""
	if !actor.CanReview() {
		createdBy = actor.ID
	}
	return s.cases.Statistics(ctx, createdBy)
}

// EditNarrative 更新叙述文本，仅草稿状态
func (s *SARService) EditNarrative(ctx context.Context, actor domain.Actor, caseID, narrative string) (*CaseDetail, error) {
	record, err := s.cases.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := record.EditNarrative(actor, narrative); err != nil {
		return nil, err
	}
	if err := s.cases.UpdateNarrative(ctx, record); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, caseID, domain.AuditActionEdit, "")
	s.drainEvents(ctx, record)
	return toCaseDetail(record), nil
}

// SubmitCase 提交审核
func (s *SARService) SubmitCase(ctx context.Context, actor domain.Actor, caseID string) (*CaseDetail, error) {
	return s.transition(ctx, actor, caseID, domain.AuditActionSubmit,
		func(r *domain.SARRecord) error { return r.Submit(actor) },
		domain.StatusDraft)
}

// ApproveCase 批准案件，可附意见
func (s *SARService) ApproveCase(ctx context.Context, actor domain.Actor, caseID, comment string) (*CaseDetail, error) {
	return s.transition(ctx, actor, caseID, domain.AuditActionApprove,
		func(r *domain.SARRecord) error { return r.Approve(actor, comment) },
		domain.StatusDraft, domain.StatusPendingReview)
}

// RejectCase 驳回案件，意见必填
func (s *SARService) RejectCase(ctx context.Context, actor domain.Actor, caseID, comment string) (*CaseDetail, error) {
	return s.transition(ctx, actor, caseID, domain.AuditActionReject,
		func(r *domain.SARRecord) error { return r.Reject(actor, comment) },
		domain.StatusDraft, domain.StatusPendingReview)
}

// FileCase 申报已批准案件
func (s *SARService) FileCase(ctx context.Context, actor domain.Actor, caseID string) (*CaseDetail, error) {
	return s.transition(ctx, actor, caseID, domain.AuditActionFile,
		func(r *domain.SARRecord) error { return r.File(actor) },
		domain.StatusApproved)
}

// ReopenCase 重新打开被驳回的案件
func (s *SARService) ReopenCase(ctx context.Context, actor domain.Actor, caseID string) (*CaseDetail, error) {
	return s.transition(ctx, actor, caseID, domain.AuditActionReopen,
		func(r *domain.SARRecord) error { return r.Reopen(actor) },
		domain.StatusRejected)
}

// transition 加载聚合、执行状态变更并以条件更新落盘。
// allowedFrom 与聚合方法内的状态守卫一致，数据库层兜底并发冲突。
func (s *SARService) transition(
	ctx context.Context,
	actor domain.Actor,
	caseID, action string,
	apply func(*domain.SARRecord) error,
	allowedFrom ...domain.CaseStatus,
) (*CaseDetail, error) {
	record, err := s.cases.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := apply(record); err != nil {
		return nil, err
	}
	if err := s.cases.TransitionStatus(ctx, record, allowedFrom...); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, caseID, action, "status="+string(record.Status))
	s.drainEvents(ctx, record)

	if s.metrics != nil {
		s.metrics.CaseTransitionsTotal.WithLabelValues(string(record.Status)).Inc()
		s.refreshPendingGauge(ctx)
	}
	return toCaseDetail(record), nil
}

func (s *SARService) refreshPendingGauge(ctx context.Context) {
	count, err := s.cases.CountByStatus(ctx, domain.StatusPendingReview)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to refresh pending review gauge", "error", err)
		return
	}
	s.metrics.CasesPendingReview.Set(float64(count))
}

// DeleteCase 删除单个案件；已申报案件仅管理员可删
func (s *SARService) DeleteCase(ctx context.Context, actor domain.Actor, caseID string) error {
	record, err := s.cases.GetByCaseID(ctx, caseID)
	if err != nil {
		return err
	}
	if !actor.CanEdit(record.CreatedBy) {
		return fmt.Errorf("%w: %s cannot delete case %s", domain.ErrPermissionDenied, actor.ID, caseID)
	}
	if record.Status == domain.StatusFiled && !actor.CanAdminister() {
		return fmt.Errorf("%w: filed cases can only be deleted by an administrator", domain.ErrPermissionDenied)
	}

	if err := s.cases.Delete(ctx, caseID); err != nil {
		return err
	}
	s.audit(ctx, actor, caseID, domain.AuditActionDelete, "")
	return nil
}

// DeleteCases 批量删除，缺失的案件号跳过
func (s *SARService) DeleteCases(ctx context.Context, actor domain.Actor, caseIDs []string) (*DeleteBatchResult, error) {
	if !actor.CanReview() {
		return nil, fmt.Errorf("%w: role %s cannot bulk delete", domain.ErrPermissionDenied, actor.Role)
	}
	if len(caseIDs) == 0 {
		return nil, fmt.Errorf("%w: case id list is empty", domain.ErrValidation)
	}

	deleted, err := s.cases.DeleteBatch(ctx, caseIDs)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "", domain.AuditActionDelete, fmt.Sprintf("batch deleted %d of %d", deleted, len(caseIDs)))
	return &DeleteBatchResult{Deleted: deleted}, nil
}

// DeleteAllCases 清空全部案件，仅管理员
func (s *SARService) DeleteAllCases(ctx context.Context, actor domain.Actor) (*DeleteBatchResult, error) {
	if !actor.CanAdminister() {
		return nil, fmt.Errorf("%w: role %s cannot delete all cases", domain.ErrPermissionDenied, actor.Role)
	}

	deleted, err := s.cases.DeleteAll(ctx, "")
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "", domain.AuditActionDelete, fmt.Sprintf("deleted all %d cases", deleted))
	return &DeleteBatchResult{Deleted: deleted}, nil
}

// ExportCase 导出案件为指定格式，返回内容、文件名与 MIME 类型
func (s *SARService) ExportCase(ctx context.Context, actor domain.Actor, caseID string, format ExportFormat) ([]byte, string, string, error) {
	record, err := s.exportableCase(ctx, actor, caseID)
	if err != nil {
		return nil, "", "", err
	}
	data, filename, contentType, err := renderExport(record, format)
	if err != nil {
		return nil, "", "", err
	}

	s.audit(ctx, actor, caseID, domain.AuditActionExport, "format="+string(format))
	if s.metrics != nil {
		s.metrics.ExportsTotal.WithLabelValues(string(format)).Inc()
	}
	return data, filename, contentType, nil
}

// EmailCase 导出案件并通过邮件投递，案件只读取一次
func (s *SARService) EmailCase(ctx context.Context, actor domain.Actor, caseID string, format ExportFormat, recipient string) error {
	if s.emailer == nil {
		return fmt.Errorf("%w: email delivery is not configured", domain.ErrBackendUnavailable)
	}

	record, err := s.exportableCase(ctx, actor, caseID)
	if err != nil {
		return err
	}
	data, filename, contentType, err := renderExport(record, format)
	if err != nil {
		return err
	}
	if err := s.emailer.Send(record, recipient, filename, data, contentType); err != nil {
		return err
	}

	s.audit(ctx, actor, caseID, domain.AuditActionExport, "format="+string(format))
	s.audit(ctx, actor, caseID, domain.AuditActionEmailSent, "recipient="+recipient)
	if s.metrics != nil {
		s.metrics.ExportsTotal.WithLabelValues(string(format)).Inc()
	}
	s.logger.InfoContext(ctx, "case exported via email", "case_id", caseID, "format", format, "recipient", recipient)
	return nil
}

func (s *SARService) exportableCase(ctx context.Context, actor domain.Actor, caseID string) (*domain.SARRecord, error) {
	record, err := s.cases.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(record.CreatedBy) {
		return nil, fmt.Errorf("%w: %s cannot export case %s", domain.ErrPermissionDenied, actor.ID, caseID)
	}
	return record, nil
}

func renderExport(record *domain.SARRecord, format ExportFormat) ([]byte, string, string, error) {
	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case FormatCSV:
		data, err = export.CSV(record)
		contentType = "text/csv"
	case FormatXML:
		data, err = export.XML(record)
		contentType = "application/xml"
	case FormatPDF:
		data, err = export.PDF(record)
		contentType = "application/pdf"
	default:
		return nil, "", "", fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, format)
	}
	if err != nil {
		return nil, "", "", err
	}
	return data, fmt.Sprintf("SAR_%s.%s", record.CaseID, format), contentType, nil
}

// IngestAlert 录入告警并计算优先级
func (s *SARService) IngestAlert(ctx context.Context, actor domain.Actor, req IngestAlertRequest) (*AlertView, error) {
	transactions := toTransactions(req.Transactions)
	kyc := toKYC(req.KYC)

	txJSON, err := json.Marshal(transactions)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize transactions: %v", domain.ErrValidation, err)
	}
	kycJSON, err := json.Marshal(kyc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize kyc profile: %v", domain.ErrValidation, err)
	}

	alertType := req.AlertType
	if alertType == "" {
		alertType = "Unknown"
	}

	alert := &domain.Alert{
		AlertID:         newAlertID(),
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerAccount: req.CustomerAccount,
		AlertType:       alertType,
		AlertReason:     req.AlertReason,
		Priority:        domain.CalculatePriority(transactions, alertType, kyc, req.AlertReason),
		TransactionData: string(txJSON),
		KYCData:         string(kycJSON),
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}

	s.publish(ctx, &domain.AlertIngestedEvent{
		AlertID:   alert.AlertID,
		Priority:  string(alert.Priority),
		Timestamp: time.Now(),
	})
	if s.metrics != nil {
		s.metrics.AlertsIngestedTotal.Inc()
	}
	s.logger.InfoContext(ctx, "alert ingested",
		"alert_id", alert.AlertID,
		"customer_id", alert.CustomerID,
		"priority", alert.Priority,
	)

	view := toAlertView(alert)
	return &view, nil
}

// ListAlerts 分页查询告警
func (s *SARService) ListAlerts(ctx context.Context, onlyUnprocessed bool, offset, limit int) (*AlertListResult, error) {
	alerts, total, err := s.alerts.List(ctx, onlyUnprocessed, offset, limit)
	if err != nil {
		return nil, err
	}

	items := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, toAlertView(a))
	}
	return &AlertListResult{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// AuditTrail 查询案件审计日志
func (s *SARService) AuditTrail(ctx context.Context, actor domain.Actor, caseID string) ([]*domain.AuditEntry, error) {
	record, err := s.cases.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(record.CreatedBy) {
		return nil, fmt.Errorf("%w: %s cannot view case %s", domain.ErrPermissionDenied, actor.ID, caseID)
	}
	return s.audits.ListByCase(ctx, caseID)
}

// audit 追加审计日志，写入失败仅记录不致错
func (s *SARService) audit(ctx context.Context, actor domain.Actor, caseID, action, detail string) {
	entry := &domain.AuditEntry{
		CaseID:    caseID,
		ActorID:   actor.ID,
		ActorRole: string(actor.Role),
		Action:    action,
		Detail:    detail,
	}
	if err := s.audits.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit entry",
			"case_id", caseID, "action", action, "error", err)
	}
}

// publish 发布领域事件，失败仅记录不致错
func (s *SARService) publish(ctx context.Context, event domain.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish domain event",
			"event", event.EventName(), "error", err)
	}
}

func (s *SARService) drainEvents(ctx context.Context, record *domain.SARRecord) {
	for _, event := range record.GetDomainEvents() {
		s.publish(ctx, event)
	}
	record.ClearDomainEvents()
}

func newAlertID() string {
	return "ALERT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
