package domain

import "gorm.io/gorm"

// AuditAction 审计动作
const (
	AuditActionGenerate  = "generate"
	AuditActionEdit      = "edit_narrative"
	AuditActionSubmit    = "submit"
	AuditActionApprove   = "approve"
	AuditActionReject    = "reject"
	AuditActionFile      = "file"
	AuditActionReopen    = "reopen"
	AuditActionDelete    = "delete"
	AuditActionExport    = "export"
	AuditActionEmailSent = "email_sent"
)

// AuditEntry 审计日志条目，记录对案件的每次操作
type AuditEntry struct {
	gorm.Model
	CaseID    string `gorm:"column:case_id;type:varchar(32);index"`
	ActorID   string `gorm:"column:actor_id;type:varchar(64);index;not null"`
	ActorRole string `gorm:"column:actor_role;type:varchar(20)"`
	Action    string `gorm:"column:action;type:varchar(32);not null"`
	Detail    string `gorm:"column:detail;type:varchar(512)"`
}

// TableName 表名
func (AuditEntry) TableName() string {
	return "sar_audit_entries"
}
