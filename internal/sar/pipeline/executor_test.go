package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
)

// stubCompleter 以函数驱动的补全后端
type stubCompleter struct {
	fn func(ctx context.Context, prompt string) (string, error)
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return s.fn(ctx, prompt)
}

func newTestExecutor(fn func(ctx context.Context, prompt string) (string, error)) *Executor {
	return NewExecutor(&stubCompleter{fn: fn}, 5*time.Second)
}

func TestExecutorRunOK(t *testing.T) {
	e := newTestExecutor(func(ctx context.Context, prompt string) (string, error) {
		return "  analysis output  ", nil
	})

	res := e.Run(context.Background(), StageFacts, "prompt")
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "analysis output", res.Text)
	assert.False(t, res.Unavailable)
}

func TestExecutorRunEmptyResponse(t *testing.T) {
	e := newTestExecutor(func(ctx context.Context, prompt string) (string, error) {
		return "   \n  ", nil
	})

	res := e.Run(context.Background(), StageTimeline, "prompt")
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Unavailable)
	assert.Equal(t, "empty model response", res.ErrorDetail)
}

func TestExecutorRunBackendUnavailable(t *testing.T) {
	e := newTestExecutor(func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("%w: connection refused", domain.ErrBackendUnavailable)
	})

	res := e.Run(context.Background(), StageFacts, "prompt")
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.Unavailable)
}

func TestExecutorRunContentError(t *testing.T) {
	e := newTestExecutor(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model returned status 400")
	})

	res := e.Run(context.Background(), StageRedFlags, "prompt")
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Unavailable)
}

func TestExecutorRunRefusal(t *testing.T) {
	e := newTestExecutor(func(ctx context.Context, prompt string) (string, error) {
		return "I'm sorry, as an AI I cannot finalize regulatory filings.", nil
	})

	res := e.Run(context.Background(), StageNarrativeFinal, "prompt")
	assert.Equal(t, StatusDegraded, res.Status)
	assert.NotEmpty(t, res.Text)
}

func TestExecutorRunTimeout(t *testing.T) {
	e := NewExecutor(&stubCompleter{fn: func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}, 10*time.Millisecond)

	res := e.Run(context.Background(), StageFacts, "prompt")
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.Unavailable)
}
