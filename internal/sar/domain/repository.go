package domain

import (
	"context"
)

// ListFilter 案件列表查询条件
type ListFilter struct {
	// 非空时仅返回该创建者的案件
	CreatedBy string
	// 非空时按状态过滤
	Status CaseStatus
	// 非空时按风险等级过滤
	RiskLevel RiskLevel
	Offset    int
	Limit     int
}

// CaseStatistics 案件统计
type CaseStatistics struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	ByRiskLevel map[string]int64 `json:"by_risk_level"`
}

// SARRepository SAR案件仓储
type SARRepository interface {
	// Create 持久化新案件；alert 非 nil 时在同一事务内回写告警处理标记
	Create(ctx context.Context, record *SARRecord, alert *Alert) error
	GetByCaseID(ctx context.Context, caseID string) (*SARRecord, error)
	List(ctx context.Context, filter ListFilter) ([]*SARRecord, int64, error)
	// UpdateNarrative 仅在 draft 状态下更新叙述文本，状态不符返回 ErrStateConflict
	UpdateNarrative(ctx context.Context, record *SARRecord) error
	// TransitionStatus 以条件更新落盘状态转换，数据库当前状态不在 allowedFrom 内返回 ErrStateConflict
	TransitionStatus(ctx context.Context, record *SARRecord, allowedFrom ...CaseStatus) error
	Delete(ctx context.Context, caseID string) error
	// DeleteBatch 批量删除，返回实际删除条数，缺失的 caseID 直接跳过
	DeleteBatch(ctx context.Context, caseIDs []string) (int64, error)
	// DeleteAll 删除全部案件（可按创建者过滤），返回删除条数
	DeleteAll(ctx context.Context, createdBy string) (int64, error)
	Statistics(ctx context.Context, createdBy string) (*CaseStatistics, error)
	CountByStatus(ctx context.Context, status CaseStatus) (int64, error)
}

// AlertRepository 告警仓储
type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	GetByAlertID(ctx context.Context, alertID string) (*Alert, error)
	List(ctx context.Context, onlyUnprocessed bool, offset, limit int) ([]*Alert, int64, error)
}

// AuditRepository 审计日志仓储
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByCase(ctx context.Context, caseID string) ([]*AuditEntry, error)
}
