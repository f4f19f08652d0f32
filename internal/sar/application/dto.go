package application

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/internal/sar/pipeline"
)

// TransactionInput 单笔交易输入
type TransactionInput struct {
	Date         string          `json:"date" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Counterparty string          `json:"counterparty"`
	Description  string          `json:"description"`
}

// KYCInput 客户画像输入
type KYCInput struct {
	Occupation           string `json:"occupation"`
	AnnualIncome         string `json:"annual_income"`
	AccountAgeMonths     int    `json:"account_age_months"`
	IsPEP                bool   `json:"is_pep"`
	HighRiskJurisdiction bool   `json:"high_risk_jurisdiction"`
	ComplexOwnership     bool   `json:"complex_ownership"`
	Employees            *int   `json:"employees"`
	PhysicalLocation     string `json:"physical_location"`
}

// GenerateCaseRequest 案件生成请求
type GenerateCaseRequest struct {
	CustomerID      string             `json:"customer_id" binding:"required"`
	CustomerName    string             `json:"customer_name" binding:"required"`
	CustomerAccount string             `json:"customer_account" binding:"required"`
	Transactions    []TransactionInput `json:"transactions" binding:"required"`
	KYC             KYCInput           `json:"kyc"`
	AlertReason     string             `json:"alert_reason" binding:"required"`
}

// IngestAlertRequest 告警录入请求
type IngestAlertRequest struct {
	CustomerID      string             `json:"customer_id" binding:"required"`
	CustomerName    string             `json:"customer_name" binding:"required"`
	CustomerAccount string             `json:"customer_account" binding:"required"`
	AlertType       string             `json:"alert_type"`
	AlertReason     string             `json:"alert_reason" binding:"required"`
	Transactions    []TransactionInput `json:"transactions" binding:"required"`
	KYC             KYCInput           `json:"kyc"`
}

// ListCasesQuery 案件列表查询
type ListCasesQuery struct {
	Status    string `form:"status"`
	RiskLevel string `form:"risk_level"`
	Offset    int    `form:"offset"`
	Limit     int    `form:"limit"`
}

// ReviewCommentView 审核意见视图
type ReviewCommentView struct {
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	AuthorRole string    `json:"author_role"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// CaseDetail 案件完整视图
type CaseDetail struct {
	CaseID string `json:"case_id"`

	CustomerID      string `json:"customer_id"`
	CustomerName    string `json:"customer_name"`
	CustomerAccount string `json:"customer_account"`

	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AlertReason      string          `json:"alert_reason"`

	RiskScore int    `json:"risk_score"`
	RiskLevel string `json:"risk_level"`
	Typology  string `json:"typology"`

	Status string `json:"status"`

	Narrative        string `json:"narrative"`
	ExecutiveSummary string `json:"executive_summary"`

	Facts                  string `json:"facts"`
	RedFlags               string `json:"red_flags"`
	Timeline               string `json:"timeline"`
	TypologyConfidence     string `json:"typology_confidence"`
	EvidenceMap            string `json:"evidence_map"`
	QualityCheck           string `json:"quality_check"`
	Contradictions         string `json:"contradictions"`
	RegulatoryHighlights   string `json:"regulatory_highlights"`
	NextActions            string `json:"next_actions"`
	Improvements           string `json:"improvements"`
	PIICheck               string `json:"pii_check"`
	ReasoningTraceDetailed string `json:"reasoning_trace_detailed"`

	Incomplete   bool     `json:"incomplete"`
	FailedStages []string `json:"failed_stages,omitempty"`

	CreatedBy  string     `json:"created_by"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	FiledAt    *time.Time `json:"filed_at,omitempty"`

	ReviewComments []ReviewCommentView `json:"review_comments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseSummary 案件列表视图
type CaseSummary struct {
	CaseID       string    `json:"case_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	RiskScore    int       `json:"risk_score"`
	RiskLevel    string    `json:"risk_level"`
	Typology     string    `json:"typology"`
	Status       string    `json:"status"`
	Incomplete   bool      `json:"incomplete"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// CaseListResult 分页结果
type CaseListResult struct {
	Items  []CaseSummary `json:"items"`
	Total  int64         `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// AlertView 告警视图
type AlertView struct {
	AlertID         string    `json:"alert_id"`
	CustomerID      string    `json:"customer_id"`
	CustomerName    string    `json:"customer_name"`
	CustomerAccount string    `json:"customer_account"`
	AlertType       string    `json:"alert_type"`
	AlertReason     string    `json:"alert_reason"`
	Priority        string    `json:"priority"`
	IsProcessed     bool      `json:"is_processed"`
	SARCaseID       string    `json:"sar_case_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AlertListResult 告警分页结果
type AlertListResult struct {
	Items  []AlertView `json:"items"`
	Total  int64       `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

// DeleteBatchResult 批量删除结果
type DeleteBatchResult struct {
	Deleted int64 `json:"deleted"`
}

func toTransactions(inputs []TransactionInput) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, domain.Transaction{
			Date:         in.Date,
			Amount:       in.Amount,
			Counterparty: in.Counterparty,
			Description:  in.Description,
		})
	}
	return out
}

func toKYC(in KYCInput) domain.KYCProfile {
	return domain.KYCProfile{
		Occupation:           in.Occupation,
		AnnualIncome:         in.AnnualIncome,
		AccountAgeMonths:     in.AccountAgeMonths,
		IsPEP:                in.IsPEP,
		HighRiskJurisdiction: in.HighRiskJurisdiction,
		ComplexOwnership:     in.ComplexOwnership,
		Employees:            in.Employees,
		PhysicalLocation:     in.PhysicalLocation,
	}
}

func toCaseInput(req GenerateCaseRequest) pipeline.CaseInput {
	return pipeline.CaseInput{
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerAccount: req.CustomerAccount,
		Transactions:    toTransactions(req.Transactions),
		KYC:             toKYC(req.KYC),
		AlertReason:     req.AlertReason,
	}
}

func toCaseDetail(record *domain.SARRecord) *CaseDetail {
	var failed []string
	if record.FailedStages != "" {
		failed = strings.Split(record.FailedStages, ",")
	}

	comments := make([]ReviewCommentView, 0, len(record.ReviewComments))
	for _, c := range record.ReviewComments {
		comments = append(comments, ReviewCommentView{
			AuthorID:   c.AuthorID,
			AuthorName: c.AuthorName,
			AuthorRole: c.AuthorRole,
			Comment:    c.Comment,
			CreatedAt:  c.CreatedAt,
		})
	}

	return &CaseDetail{
		CaseID: record.CaseID,

		CustomerID:      record.CustomerID,
		CustomerName:    record.CustomerName,
		CustomerAccount: record.CustomerAccount,

		TransactionCount: record.TransactionCount,
		TotalAmount:      record.TotalAmount,
		AlertReason:      record.AlertReason,

		RiskScore: record.RiskScore,
		RiskLevel: string(record.RiskLevel),
		Typology:  record.Typology,

		Status: string(record.Status),

		Narrative:        record.Narrative,
		ExecutiveSummary: record.ExecutiveSummary,

		Facts:                  record.Facts,
		RedFlags:               record.RedFlags,
		Timeline:               record.Timeline,
		TypologyConfidence:     record.TypologyConfidence,
		EvidenceMap:            record.EvidenceMap,
		QualityCheck:           record.QualityCheck,
		Contradictions:         record.Contradictions,
		RegulatoryHighlights:   record.RegulatoryHighlights,
		NextActions:            record.NextActions,
		Improvements:           record.Improvements,
		PIICheck:               record.PIICheck,
		ReasoningTraceDetailed: record.ReasoningTraceDetailed,

		Incomplete:   record.Incomplete,
		FailedStages: failed,

		CreatedBy:  record.CreatedBy,
		ReviewedBy: record.ReviewedBy,
		ApprovedBy: record.ApprovedBy,
		ReviewedAt: record.ReviewedAt,
		ApprovedAt: record.ApprovedAt,
		FiledAt:    record.FiledAt,

		ReviewComments: comments,

		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func toCaseSummary(record *domain.SARRecord) CaseSummary {
	return CaseSummary{
		CaseID:       record.CaseID,
		CustomerID:   record.CustomerID,
		CustomerName: record.CustomerName,
		RiskScore:    record.RiskScore,
		RiskLevel:    string(record.RiskLevel),
		Typology:     record.Typology,
		Status:       string(record.Status),
		Incomplete:   record.Incomplete,
		CreatedBy:    record.CreatedBy,
		CreatedAt:    record.CreatedAt,
	}
}

func toAlertView(alert *domain.Alert) AlertView {
	return AlertView{
		AlertID:         alert.AlertID,
		CustomerID:      alert.CustomerID,
		CustomerName:    alert.CustomerName,
		CustomerAccount: alert.CustomerAccount,
		AlertType:       alert.AlertType,
		AlertReason:     alert.AlertReason,
		Priority:        string(alert.Priority),
		IsProcessed:     alert.IsProcessed,
		SARCaseID:       alert.SARCaseID,
		CreatedAt:       alert.CreatedAt,
	}
}
