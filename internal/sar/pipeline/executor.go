package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// Completer LLM 补全后端
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Executor 单阶段执行器：一次模型调用归一化为一个 StageResult
type Executor struct {
	completer Completer
	timeout   time.Duration
}

// NewExecutor 创建阶段执行器
func NewExecutor(completer Completer, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Executor{completer: completer, timeout: timeout}
}

// Run 执行一个阶段。任何结果都不以 error 形式向上传播：
// 后端错误与空响应归一为 failed，拒绝标记归一为 degraded。
func (e *Executor) Run(ctx context.Context, stage Stage, prompt string) StageResult {
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text, err := e.completer.Complete(callCtx, prompt)
	elapsed := time.Since(start)

	if err != nil {
		return StageResult{
			Stage:       stage,
			Status:      StatusFailed,
			ErrorDetail: err.Error(),
			Unavailable: errors.Is(err, domain.ErrBackendUnavailable) || errors.Is(err, context.DeadlineExceeded),
			Duration:    elapsed,
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return StageResult{
			Stage:       stage,
			Status:      StatusFailed,
			ErrorDetail: "empty model response",
			Duration:    elapsed,
		}
	}

	if isRefusal(text) {
		return StageResult{
			Stage:       stage,
			Status:      StatusDegraded,
			Text:        text,
			ErrorDetail: "model signalled refusal or uncertainty",
			Duration:    elapsed,
		}
	}

	return StageResult{
		Stage:    stage,
		Status:   StatusOK,
		Text:     text,
		Duration: elapsed,
	}
}
