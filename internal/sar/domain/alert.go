package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertPriority 告警优先级
type AlertPriority string

const (
	PriorityLow      AlertPriority = "low"
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

// Transaction 单笔可疑交易
type Transaction struct {
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty"`
	Description  string          `json:"description"`
}

// KYCProfile 客户尽职调查画像
type KYCProfile struct {
	Occupation           string `json:"occupation,omitempty"`
	AnnualIncome         string `json:"annual_income,omitempty"`
	AccountAgeMonths     int    `json:"account_age_months,omitempty"`
	IsPEP                bool   `json:"is_pep,omitempty"`
	HighRiskJurisdiction bool   `json:"high_risk_jurisdiction,omitempty"`
	ComplexOwnership     bool   `json:"complex_ownership,omitempty"`
	Employees            *int   `json:"employees,omitempty"`
	PhysicalLocation     string `json:"physical_location,omitempty"`
}

// Alert 可疑交易告警
type Alert struct {
	gorm.Model
	AlertID string `gorm:"column:alert_id;type:varchar(32);uniqueIndex;not null"`

	CustomerID      string `gorm:"column:customer_id;type:varchar(64);index;not null"`
	CustomerName    string `gorm:"column:customer_name;type:varchar(128);not null"`
	CustomerAccount string `gorm:"column:customer_account;type:varchar(64);not null"`

	AlertReason string        `gorm:"column:alert_reason;type:varchar(512);not null"`
	AlertType   string        `gorm:"column:alert_type;type:varchar(64)"`
	Priority    AlertPriority `gorm:"column:priority;type:varchar(16);not null;default:medium"`

	// 交易与 KYC 数据以 JSON 文本存储
	TransactionData string `gorm:"column:transaction_data;type:text;not null"`
	KYCData         string `gorm:"column:kyc_data;type:text"`

	IsProcessed bool       `gorm:"column:is_processed;index;not null;default:false"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
	// 弱引用，指向由该告警生成的案件
	SARCaseID string `gorm:"column:sar_case_id;type:varchar(32)"`
}

// TableName 表名
func (Alert) TableName() string {
	return "alerts"
}

// MarkProcessed 标记告警已处理并回链生成的案件
func (a *Alert) MarkProcessed(caseID string) {
	now := time.Now()
	a.IsProcessed = true
	a.ProcessedAt = &now
	a.SARCaseID = caseID
}

// alertTypeScores 告警类型风险权重
var alertTypeScores = map[string]int{
	"Structuring/Smurfing": 20,
	"Layering":             25,
	"PEP Activity":         22,
	"Shell Company":        23,
	"Trade-Based ML":       25,
	"Cryptocurrency":       18,
	"Suspicious Wires":     20,
	"Unusual Activity":     15,
	"New Account Activity": 17,
	"Check Cashing":        12,
	"Unknown":              10,
}

// redFlagKeywords 告警描述中的风险关键词权重
var redFlagKeywords = map[string]int{
	"offshore":            3,
	"cayman":              3,
	"shell":               3,
	"layering":            3,
	"structuring":         3,
	"smurfing":            3,
	"pep":                 3,
	"politically exposed": 3,
	"immediate":           2,
	"rapid":               2,
	"suspicious":          2,
	"unusual":             2,
	"threshold":           2,
	"cryptocurrency":      2,
	"cash":                1,
	"wire":                1,
	"foreign":             1,
}

// CalculatePriority 根据交易金额、频率、告警类型、客户画像与关键词计算优先级
func CalculatePriority(transactions []Transaction, alertType string, kyc KYCProfile, alertReason string) AlertPriority {
	total := amountScore(transactions) +
		frequencyScore(transactions) +
		typeScore(alertType) +
		customerRiskScore(kyc) +
		redFlagScore(alertReason)

	switch {
	case total >= 75:
		return PriorityCritical
	case total >= 55:
		return PriorityHigh
	case total >= 35:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// amountScore 交易金额得分，上限 30
func amountScore(transactions []Transaction) int {
	if len(transactions) == 0 {
		return 0
	}

	total := decimal.Zero
	maxAmount := decimal.Zero
	for _, t := range transactions {
		total = total.Add(t.Amount)
		if t.Amount.GreaterThan(maxAmount) {
			maxAmount = t.Amount
		}
	}

	var score int
	switch {
	case total.GreaterThanOrEqual(decimal.NewFromInt(500000)):
		score = 30
	case total.GreaterThanOrEqual(decimal.NewFromInt(250000)):
		score = 25
	case total.GreaterThanOrEqual(decimal.NewFromInt(100000)):
		score = 20
	case total.GreaterThanOrEqual(decimal.NewFromInt(50000)):
		score = 15
	case total.GreaterThanOrEqual(decimal.NewFromInt(25000)):
		score = 10
	default:
		score = 5
	}

	// 单笔大额加分
	if maxAmount.GreaterThanOrEqual(decimal.NewFromInt(250000)) {
		score += 5
	}

	if score > 30 {
		score = 30
	}
	return score
}

// frequencyScore 交易频率得分，上限 20
func frequencyScore(transactions []Transaction) int {
	count := len(transactions)
	switch {
	case count == 0:
		return 0
	case count >= 10:
		return 20
	case count >= 7:
		return 17
	case count >= 5:
		return 14
	case count >= 3:
		return 10
	default:
		return 5
	}
}

func typeScore(alertType string) int {
	if score, ok := alertTypeScores[alertType]; ok {
		return score
	}
	return 10
}

// customerRiskScore 客户风险画像得分，上限 15
func customerRiskScore(kyc KYCProfile) int {
	if kyc == (KYCProfile{}) {
		return 5
	}

	score := 0
	if kyc.IsPEP {
		score += 8
	}
	if kyc.HighRiskJurisdiction {
		score += 5
	}
	if kyc.AccountAgeMonths > 0 && kyc.AccountAgeMonths < 6 {
		score += 4
	}
	if kyc.ComplexOwnership {
		score += 3
	}
	if kyc.Employees != nil && *kyc.Employees == 0 {
		score += 3
	}
	if kyc.PhysicalLocation == "Virtual Office" {
		score += 2
	}

	if score > 15 {
		score = 15
	}
	return score
}

// redFlagScore 关键词得分，上限 10
func redFlagScore(alertReason string) int {
	if alertReason == "" {
		return 0
	}

	lower := strings.ToLower(alertReason)
	score := 0
	for keyword, points := range redFlagKeywords {
		if strings.Contains(lower, keyword) {
			score += points
		}
	}

	if score > 10 {
		score = 10
	}
	return score
}
