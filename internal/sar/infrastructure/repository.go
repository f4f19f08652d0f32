package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/pkg/db"
)

// GormSARRepository SAR案件仓储的 GORM 实现
type GormSARRepository struct {
	db *db.DB
}

func NewGormSARRepository(database *db.DB) *GormSARRepository {
	return &GormSARRepository{db: database}
}

// Create 持久化案件。alert 非 nil 时，案件写入与告警回链在同一事务内完成。
func (r *GormSARRepository) Create(ctx context.Context, record *domain.SARRecord, alert *domain.Alert) error {
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if alert != nil {
			res := tx.Model(&domain.Alert{}).
				Where("alert_id = ? AND is_processed = ?", alert.AlertID, false).
				Updates(map[string]interface{}{
					"is_processed": true,
					"processed_at": alert.ProcessedAt,
					"sar_case_id":  record.CaseID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: alert %s already processed", domain.ErrStateConflict, alert.AlertID)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *GormSARRepository) GetByCaseID(ctx context.Context, caseID string) (*domain.SARRecord, error) {
	var record domain.SARRecord
	err := r.db.WithContext(ctx).
		Preload("ReviewComments").
		Where("case_id = ?", caseID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: case %s", domain.ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return &record, nil
}

func (r *GormSARRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.SARRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.SARRecord{})
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RiskLevel != "" {
		query = query.Where("risk_level = ?", filter.RiskLevel)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []*domain.SARRecord
	err := query.Order("created_at DESC").Offset(filter.Offset).Limit(limit).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return records, total, nil
}

// UpdateNarrative 仅当记录仍处于 draft 状态时更新叙述文本
func (r *GormSARRepository) UpdateNarrative(ctx context.Context, record *domain.SARRecord) error {
	res := r.db.WithContext(ctx).Model(&domain.SARRecord{}).
		Where("case_id = ? AND status = ?", record.CaseID, domain.StatusDraft).
		Update("narrative", record.Narrative)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: case %s is no longer editable", domain.ErrStateConflict, record.CaseID)
	}
	return nil
}

// TransitionStatus 条件更新实现原子的 check-then-set 状态转换。
// 数据库中的当前状态不在 allowedFrom 内时转换不生效并返回 ErrStateConflict。
func (r *GormSARRepository) TransitionStatus(ctx context.Context, record *domain.SARRecord, allowedFrom ...domain.CaseStatus) error {
	updates := map[string]interface{}{
		"status":      record.Status,
		"reviewed_by": record.ReviewedBy,
		"approved_by": record.ApprovedBy,
		"reviewed_at": record.ReviewedAt,
		"approved_at": record.ApprovedAt,
		"filed_at":    record.FiledAt,
	}

	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&domain.SARRecord{}).
			Where("case_id = ? AND status IN ?", record.CaseID, allowedFrom).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: case %s not in expected status", domain.ErrStateConflict, record.CaseID)
		}

		for i := range record.ReviewComments {
			comment := &record.ReviewComments[i]
			if comment.ID == 0 {
				if err := tx.Create(comment).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *GormSARRepository) Delete(ctx context.Context, caseID string) error {
	res := r.db.WithContext(ctx).Where("case_id = ?", caseID).Delete(&domain.SARRecord{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: case %s", domain.ErrNotFound, caseID)
	}
	return nil
}

// DeleteBatch 批量删除，缺失的 caseID 直接跳过
func (r *GormSARRepository) DeleteBatch(ctx context.Context, caseIDs []string) (int64, error) {
	if len(caseIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("case_id IN ?", caseIDs).Delete(&domain.SARRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormSARRepository) DeleteAll(ctx context.Context, createdBy string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.SARRecord{})
	if createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	} else {
		query = query.Where("1 = 1")
	}
	res := query.Delete(&domain.SARRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormSARRepository) Statistics(ctx context.Context, createdBy string) (*domain.CaseStatistics, error) {
	type bucket struct {
		Label string
		Count int64
	}

	stats := &domain.CaseStatistics{
		ByStatus:    make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}

	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&domain.SARRecord{})
		if createdBy != "" {
			q = q.Where("created_by = ?", createdBy)
		}
		return q
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	var byStatus []bucket
	if err := base().Select("status AS label, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Label] = b.Count
	}

	var byRisk []bucket
	if err := base().Select("risk_level AS label, COUNT(*) AS count").Group("risk_level").Scan(&byRisk).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	for _, b := range byRisk {
		stats.ByRiskLevel[b.Label] = b.Count
	}

	return stats, nil
}

func (r *GormSARRepository) CountByStatus(ctx context.Context, status domain.CaseStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SARRecord{}).Where("status = ?", status).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return count, nil
}

// GormAlertRepository 告警仓储的 GORM 实现
type GormAlertRepository struct {
	db *db.DB
}

func NewGormAlertRepository(database *db.DB) *GormAlertRepository {
	return &GormAlertRepository{db: database}
}

func (r *GormAlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *GormAlertRepository) GetByAlertID(ctx context.Context, alertID string) (*domain.Alert, error) {
	var alert domain.Alert
	err := r.db.WithContext(ctx).Where("alert_id = ?", alertID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return &alert, nil
}

func (r *GormAlertRepository) List(ctx context.Context, onlyUnprocessed bool, offset, limit int) ([]*domain.Alert, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Alert{})
	if onlyUnprocessed {
		query = query.Where("is_processed = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var alerts []*domain.Alert
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return alerts, total, nil
}

// GormAuditRepository 审计日志仓储的 GORM 实现
type GormAuditRepository struct {
	db *db.DB
}

func NewGormAuditRepository(database *db.DB) *GormAuditRepository {
	return &GormAuditRepository{db: database}
}

func (r *GormAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (r *GormAuditRepository) ListByCase(ctx context.Context, caseID string) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	err := r.db.WithContext(ctx).Where("case_id = ?", caseID).Order("created_at ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}
