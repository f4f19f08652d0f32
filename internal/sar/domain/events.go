// Package domain SAR 案件领域事件
package domain

import (
	"context"
	"time"
)

// DomainEvent 领域事件接口
type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
	// Key 用作消息分区键
	Key() string
}

// EventPublisher 领域事件发布器
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// CaseGeneratedEvent 案件生成完成事件
type CaseGeneratedEvent struct {
	CaseID     string    `json:"case_id"`
	CustomerID string    `json:"customer_id"`
	RiskScore  int       `json:"risk_score"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Typology   string    `json:"typology"`
	Incomplete bool      `json:"incomplete"`
	CreatedBy  string    `json:"created_by"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *CaseGeneratedEvent) EventName() string     { return "sar.case.generated" }
func (e *CaseGeneratedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *CaseGeneratedEvent) Key() string           { return e.CaseID }

// CaseStatusChangedEvent 案件状态变更事件
type CaseStatusChangedEvent struct {
	CaseID    string     `json:"case_id"`
	From      CaseStatus `json:"from"`
	To        CaseStatus `json:"to"`
	ActorID   string     `json:"actor_id"`
	Timestamp time.Time  `json:"timestamp"`
}

func (e *CaseStatusChangedEvent) EventName() string     { return "sar.case.status_changed" }
func (e *CaseStatusChangedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *CaseStatusChangedEvent) Key() string           { return e.CaseID }

// CaseNarrativeEditedEvent 叙述编辑事件
type CaseNarrativeEditedEvent struct {
	CaseID    string    `json:"case_id"`
	EditorID  string    `json:"editor_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *CaseNarrativeEditedEvent) EventName() string     { return "sar.case.narrative_edited" }
func (e *CaseNarrativeEditedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *CaseNarrativeEditedEvent) Key() string           { return e.CaseID }

// AlertIngestedEvent 告警入库事件
type AlertIngestedEvent struct {
	AlertID   string    `json:"alert_id"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *AlertIngestedEvent) EventName() string     { return "sar.alert.ingested" }
func (e *AlertIngestedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *AlertIngestedEvent) Key() string           { return e.AlertID }
