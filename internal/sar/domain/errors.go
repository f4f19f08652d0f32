package domain

import "errors"

// 结构性错误哨兵，接口层据此映射 HTTP 状态码
var (
	// ErrValidation 输入校验失败
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied 操作者角色不满足要求
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStateConflict 状态机不允许该转换
	ErrStateConflict = errors.New("state conflict")
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrBackendUnavailable LLM 后端不可达
	ErrBackendUnavailable = errors.New("llm backend unavailable")
	// ErrGenerationInFlight 同一告警的生成任务已在执行
	ErrGenerationInFlight = errors.New("generation already in flight")
	// ErrPersistence 持久化失败
	ErrPersistence = errors.New("persistence failed")
)
