// Package http SAR 案件 HTTP 接口层
// 生成摘要：
// 1) 案件生成、生命周期、查询、导出、告警相关路由
// 2) 领域错误到 HTTP 状态码的映射
package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/amlcase/internal/sar/application"
	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/pkg/middleware"
)

// SARHandler 案件接口处理器
type SARHandler struct {
	service *application.SARService
}

// NewSARHandler 创建处理器
func NewSARHandler(service *application.SARService) *SARHandler {
	return &SARHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *SARHandler) RegisterRoutes(r gin.IRouter) {
	sars := r.Group("/sars")
	{
		sars.POST("/generate", h.GenerateCase)
		sars.GET("", h.ListCases)
		sars.DELETE("", h.DeleteAllCases)
		sars.GET("/statistics", h.GetStatistics)
		sars.POST("/delete-multiple", h.DeleteCases)

		sars.GET("/:case_id", h.GetCase)
		sars.DELETE("/:case_id", h.DeleteCase)
		sars.PUT("/:case_id/narrative", h.EditNarrative)
		sars.POST("/:case_id/submit", h.SubmitCase)
		sars.POST("/:case_id/approve", h.ApproveCase)
		sars.POST("/:case_id/reject", h.RejectCase)
		sars.POST("/:case_id/file", h.FileCase)
		sars.POST("/:case_id/reopen", h.ReopenCase)
		sars.GET("/:case_id/audit", h.GetAuditTrail)
		sars.GET("/:case_id/export/:format", h.ExportCase)
		sars.POST("/:case_id/export/email", h.EmailCase)
	}

	alerts := r.Group("/alerts")
	{
		alerts.POST("", h.IngestAlert)
		alerts.GET("", h.ListAlerts)
		alerts.POST("/:alert_id/generate", h.GenerateFromAlert)
	}
}

// actor 从认证中间件写入的 context 值构造操作者身份
func actor(c *gin.Context) domain.Actor {
	return domain.Actor{
		ID:   c.GetString(middleware.ActorIDKey),
		Name: c.GetString(middleware.ActorNameKey),
		Role: domain.Role(c.GetString(middleware.ActorRoleKey)),
	}
}

// respondError 领域错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStateConflict), errors.Is(err, domain.ErrGenerationInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GenerateCase 生成新案件
func (h *SARHandler) GenerateCase(c *gin.Context) {
	var req application.GenerateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.service.GenerateCase(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// GetCase 查询案件详情
func (h *SARHandler) GetCase(c *gin.Context) {
	detail, err := h.service.GetCase(c.Request.Context(), actor(c), c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListCases 案件列表
func (h *SARHandler) ListCases(c *gin.Context) {
	var query application.ListCasesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ListCases(c.Request.Context(), actor(c), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStatistics 案件统计
func (h *SARHandler) GetStatistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type editNarrativeRequest struct {
	Narrative string `json:"narrative" binding:"required"`
}

// EditNarrative 编辑叙述文本
func (h *SARHandler) EditNarrative(c *gin.Context) {
	var req editNarrativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.service.EditNarrative(c.Request.Context(), actor(c), c.Param("case_id"), req.Narrative)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SubmitCase 提交审核
func (h *SARHandler) SubmitCase(c *gin.Context) {
	detail, err := h.service.SubmitCase(c.Request.Context(), actor(c), c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type reviewRequest struct {
	Comment string `json:"comment"`
}

// ApproveCase 批准案件
func (h *SARHandler) ApproveCase(c *gin.Context) {
	var req reviewRequest
	// 批准意见可选，空请求体不构成错误
	_ = c.ShouldBindJSON(&req)

	detail, err := h.service.ApproveCase(c.Request.Context(), actor(c), c.Param("case_id"), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// RejectCase 驳回案件，意见必填
func (h *SARHandler) RejectCase(c *gin.Context) {
	var req reviewRequest
	_ = c.ShouldBindJSON(&req)

	detail, err := h.service.RejectCase(c.Request.Context(), actor(c), c.Param("case_id"), req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// FileCase 申报案件
func (h *SARHandler) FileCase(c *gin.Context) {
	detail, err := h.service.FileCase(c.Request.Context(), actor(c), c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ReopenCase 重新打开被驳回的案件
func (h *SARHandler) ReopenCase(c *gin.Context) {
	detail, err := h.service.ReopenCase(c.Request.Context(), actor(c), c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteCase 删除单个案件
func (h *SARHandler) DeleteCase(c *gin.Context) {
	if err := h.service.DeleteCase(c.Request.Context(), actor(c), c.Param("case_id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "case deleted"})
}

type deleteBatchRequest struct {
	CaseIDs []string `json:"case_ids" binding:"required"`
}

// DeleteCases 批量删除案件
func (h *SARHandler) DeleteCases(c *gin.Context) {
	var req deleteBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.DeleteCases(c.Request.Context(), actor(c), req.CaseIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteAllCases 清空全部案件
func (h *SARHandler) DeleteAllCases(c *gin.Context) {
	result, err := h.service.DeleteAllCases(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetAuditTrail 案件审计日志
func (h *SARHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.service.AuditTrail(c.Request.Context(), actor(c), c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	type auditView struct {
		ActorID   string `json:"actor_id"`
		ActorRole string `json:"actor_role"`
		Action    string `json:"action"`
		Detail    string `json:"detail,omitempty"`
		Timestamp string `json:"timestamp"`
	}
	views := make([]auditView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditView{
			ActorID:   e.ActorID,
			ActorRole: e.ActorRole,
			Action:    e.Action,
			Detail:    e.Detail,
			Timestamp: e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": views})
}

// ExportCase 导出案件文件
func (h *SARHandler) ExportCase(c *gin.Context) {
	format := application.ExportFormat(c.Param("format"))

	data, filename, contentType, err := h.service.ExportCase(c.Request.Context(), actor(c), c.Param("case_id"), format)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

type emailExportRequest struct {
	Recipient string `json:"recipient" binding:"required,email"`
	Format    string `json:"format"`
}

// EmailCase 导出案件并通过邮件投递
func (h *SARHandler) EmailCase(c *gin.Context) {
	var req emailExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Format == "" {
		req.Format = string(application.FormatPDF)
	}

	err := h.service.EmailCase(c.Request.Context(), actor(c), c.Param("case_id"),
		application.ExportFormat(req.Format), req.Recipient)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report sent", "recipient": req.Recipient})
}

// IngestAlert 录入告警
func (h *SARHandler) IngestAlert(c *gin.Context) {
	var req application.IngestAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.service.IngestAlert(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListAlerts 告警列表
func (h *SARHandler) ListAlerts(c *gin.Context) {
	onlyUnprocessed, _ := strconv.ParseBool(c.DefaultQuery("unprocessed", "false"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := h.service.ListAlerts(c.Request.Context(), onlyUnprocessed, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GenerateFromAlert 从告警生成案件
func (h *SARHandler) GenerateFromAlert(c *gin.Context) {
	detail, err := h.service.GenerateFromAlert(c.Request.Context(), actor(c), c.Param("alert_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}
