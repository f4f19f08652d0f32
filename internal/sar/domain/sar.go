// Package domain SAR 案件领域层
// 生成摘要：
// 1) 定义 SARRecord 聚合根与状态机
// 2) 定义告警、审计、领域事件模型
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CaseStatus 案件状态
type CaseStatus string

const (
	StatusDraft         CaseStatus = "draft"          // 草稿
	StatusPendingReview CaseStatus = "pending_review" // 待审核
	StatusApproved      CaseStatus = "approved"       // 已批准
	StatusRejected      CaseStatus = "rejected"       // 已驳回
	StatusFiled         CaseStatus = "filed"          // 已申报
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SARRecord SAR案件聚合根
type SARRecord struct {
	gorm.Model
	CaseID string `gorm:"column:case_id;type:varchar(32);uniqueIndex;not null"`

	// 客户身份信息，组装后冻结
	CustomerID      string `gorm:"column:customer_id;type:varchar(64);index;not null"`
	CustomerName    string `gorm:"column:customer_name;type:varchar(128);not null"`
	CustomerAccount string `gorm:"column:customer_account;type:varchar(64)"`

	// 交易摘要
	TransactionCount int             `gorm:"column:transaction_count;not null"`
	TotalAmount      decimal.Decimal `gorm:"column:total_amount;type:decimal(20,2)"`
	TransactionData  string          `gorm:"column:transaction_data;type:text"`
	AlertReason      string          `gorm:"column:alert_reason;type:varchar(512);not null"`

	// 风险画像，由综合器推导，不可独立设置
	RiskScore int       `gorm:"column:risk_score;not null"`
	RiskLevel RiskLevel `gorm:"column:risk_level;type:varchar(16);not null"`
	Typology  string    `gorm:"column:typology;type:varchar(128)"`

	Status CaseStatus `gorm:"column:status;type:varchar(20);index;not null;default:draft"`

	// 叙述文本，草稿状态下唯一可编辑字段
	Narrative        string `gorm:"column:narrative;type:text"`
	ExecutiveSummary string `gorm:"column:executive_summary;type:text"`

	// 分析段落，流水线各阶段输出
	Facts                  string `gorm:"column:facts;type:text"`
	RedFlags               string `gorm:"column:red_flags;type:text"`
	Timeline               string `gorm:"column:timeline;type:text"`
	TypologyConfidence     string `gorm:"column:typology_confidence;type:text"`
	EvidenceMap            string `gorm:"column:evidence_map;type:text"`
	QualityCheck           string `gorm:"column:quality_check;type:text"`
	Contradictions         string `gorm:"column:contradictions;type:text"`
	RegulatoryHighlights   string `gorm:"column:regulatory_highlights;type:text"`
	NextActions            string `gorm:"column:next_actions;type:text"`
	Improvements           string `gorm:"column:improvements;type:text"`
	PIICheck               string `gorm:"column:pii_check;type:text"`
	ReasoningTraceDetailed string `gorm:"column:reasoning_trace_detailed;type:text"`

	// 流水线降级标记
	Incomplete   bool   `gorm:"column:incomplete;not null;default:false"`
	FailedStages string `gorm:"column:failed_stages;type:varchar(512)"`

	// 归属与审核
	CreatedBy  string     `gorm:"column:created_by;type:varchar(64);index;not null"`
	ReviewedBy string     `gorm:"column:reviewed_by;type:varchar(64)"`
	ApprovedBy string     `gorm:"column:approved_by;type:varchar(64)"`
	ReviewedAt *time.Time `gorm:"column:reviewed_at"`
	ApprovedAt *time.Time `gorm:"column:approved_at"`
	FiledAt    *time.Time `gorm:"column:filed_at"`

	ReviewComments []ReviewComment `gorm:"foreignKey:CaseID;references:CaseID"`

	// 领域事件
	domainEvents []DomainEvent `gorm:"-"`
}

// TableName 表名
func (SARRecord) TableName() string {
	return "sar_records"
}

// ReviewComment 审核意见
type ReviewComment struct {
	gorm.Model
	CaseID     string `gorm:"column:case_id;type:varchar(32);index;not null"`
	AuthorID   string `gorm:"column:author_id;type:varchar(64);not null"`
	AuthorName string `gorm:"column:author_name;type:varchar(128)"`
	AuthorRole string `gorm:"column:author_role;type:varchar(20)"`
	Comment    string `gorm:"column:comment;type:text;not null"`
}

// TableName 表名
func (ReviewComment) TableName() string {
	return "sar_review_comments"
}

// EditNarrative 编辑叙述文本，仅草稿状态允许
func (r *SARRecord) EditNarrative(actor Actor, narrative string) error {
	if !actor.CanEdit(r.CreatedBy) {
		return fmt.Errorf("%w: %s cannot edit case %s", ErrPermissionDenied, actor.ID, r.CaseID)
	}
	if r.Status != StatusDraft {
		return fmt.Errorf("%w: cannot edit narrative in status %s", ErrStateConflict, r.Status)
	}
	if narrative == "" {
		return fmt.Errorf("%w: narrative must not be empty", ErrValidation)
	}

	r.Narrative = narrative

	r.addEvent(&CaseNarrativeEditedEvent{
		CaseID:    r.CaseID,
		EditorID:  actor.ID,
		Timestamp: time.Now(),
	})

	return nil
}

// Submit 提交审核，draft → pending_review
func (r *SARRecord) Submit(actor Actor) error {
	if !actor.CanEdit(r.CreatedBy) {
		return fmt.Errorf("%w: %s cannot submit case %s", ErrPermissionDenied, actor.ID, r.CaseID)
	}
	if r.Status != StatusDraft {
		return fmt.Errorf("%w: cannot submit in status %s", ErrStateConflict, r.Status)
	}

	r.Status = StatusPendingReview

	r.addEvent(&CaseStatusChangedEvent{
		CaseID:    r.CaseID,
		From:      StatusDraft,
		To:        StatusPendingReview,
		ActorID:   actor.ID,
		Timestamp: time.Now(),
	})

	return nil
}

// Approve 批准案件，draft/pending_review → approved
func (r *SARRecord) Approve(actor Actor, comment string) error {
	if !actor.CanReview() {
		return fmt.Errorf("%w: role %s cannot approve", ErrPermissionDenied, actor.Role)
	}
	if r.Status != StatusDraft && r.Status != StatusPendingReview {
		return fmt.Errorf("%w: cannot approve in status %s", ErrStateConflict, r.Status)
	}

	now := time.Now()
	prev := r.Status
	r.Status = StatusApproved
	r.ReviewedBy = actor.ID
	r.ApprovedBy = actor.ID
	r.ReviewedAt = &now
	r.ApprovedAt = &now

	if comment != "" {
		r.appendComment(actor, comment)
	}

	r.addEvent(&CaseStatusChangedEvent{
		CaseID:    r.CaseID,
		From:      prev,
		To:        StatusApproved,
		ActorID:   actor.ID,
		Timestamp: now,
	})

	return nil
}

// Reject 驳回案件，draft/pending_review → rejected
func (r *SARRecord) Reject(actor Actor, comment string) error {
	if !actor.CanReview() {
		return fmt.Errorf("%w: role %s cannot reject", ErrPermissionDenied, actor.Role)
	}
	if r.Status != StatusDraft && r.Status != StatusPendingReview {
		return fmt.Errorf("%w: cannot reject in status %s", ErrStateConflict, r.Status)
	}
	if comment == "" {
		return fmt.Errorf("%w: rejection requires a comment", ErrValidation)
	}

	now := time.Now()
	prev := r.Status
	r.Status = StatusRejected
	r.ReviewedBy = actor.ID
	r.ReviewedAt = &now

	r.appendComment(actor, comment)

	r.addEvent(&CaseStatusChangedEvent{
		CaseID:    r.CaseID,
		From:      prev,
		To:        StatusRejected,
		ActorID:   actor.ID,
		Timestamp: now,
	})

	return nil
}

// File 申报案件，approved → filed
func (r *SARRecord) File(actor Actor) error {
	if !actor.CanReview() {
		return fmt.Errorf("%w: role %s cannot file", ErrPermissionDenied, actor.Role)
	}
	if r.Status != StatusApproved {
		return fmt.Errorf("%w: cannot file in status %s", ErrStateConflict, r.Status)
	}

	now := time.Now()
	prev := r.Status
	r.Status = StatusFiled
	r.FiledAt = &now

	r.addEvent(&CaseStatusChangedEvent{
		CaseID:    r.CaseID,
		From:      prev,
		To:        StatusFiled,
		ActorID:   actor.ID,
		Timestamp: now,
	})

	return nil
}

// Reopen 重新打开被驳回的案件，rejected → draft
func (r *SARRecord) Reopen(actor Actor) error {
	if !actor.CanEdit(r.CreatedBy) {
		return fmt.Errorf("%w: %s cannot reopen case %s", ErrPermissionDenied, actor.ID, r.CaseID)
	}
	if r.Status != StatusRejected {
		return fmt.Errorf("%w: cannot reopen in status %s", ErrStateConflict, r.Status)
	}

	prev := r.Status
	r.Status = StatusDraft

	r.addEvent(&CaseStatusChangedEvent{
		CaseID:    r.CaseID,
		From:      prev,
		To:        StatusDraft,
		ActorID:   actor.ID,
		Timestamp: time.Now(),
	})

	return nil
}

// Exportable 判断案件是否允许导出：仅组装完成的案件可导出
func (r *SARRecord) Exportable() bool {
	return r.CaseID != ""
}

func (r *SARRecord) appendComment(actor Actor, comment string) {
	r.ReviewComments = append(r.ReviewComments, ReviewComment{
		CaseID:     r.CaseID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		AuthorRole: string(actor.Role),
		Comment:    comment,
	})
}

func (r *SARRecord) addEvent(event DomainEvent) {
	r.domainEvents = append(r.domainEvents, event)
}

// GetDomainEvents 获取待发布领域事件
func (r *SARRecord) GetDomainEvents() []DomainEvent {
	return r.domainEvents
}

// ClearDomainEvents 清空领域事件
func (r *SARRecord) ClearDomainEvents() {
	r.domainEvents = nil
}
