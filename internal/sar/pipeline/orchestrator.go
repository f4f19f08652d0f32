package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/pkg/metrics"
)

// RunResult 一次流水线运行的全部阶段结果
type RunResult struct {
	Results map[Stage]StageResult
	// Incomplete 任一阶段失败时为真
	Incomplete   bool
	FailedStages []Stage
	Duration     time.Duration
}

// Result 返回指定阶段的结果
func (r *RunResult) Result(stage Stage) StageResult {
	return r.Results[stage]
}

// Text 返回指定阶段的文本输出，失败阶段为空字符串
func (r *RunResult) Text(stage Stage) string {
	return r.Results[stage].Text
}

// Orchestrator 阶段编排器：按依赖图分轮调度，同一轮内的独立阶段可并发执行。
// 并发度受 maxConcurrency 约束，后端单线程时应配置为 1。
type Orchestrator struct {
	executor       *Executor
	maxConcurrency int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewOrchestrator 创建编排器，metrics 可为 nil
func NewOrchestrator(executor *Executor, maxConcurrency int, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Orchestrator{
		executor:       executor,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		metrics:        m,
	}
}

// Run 执行完整的 16 阶段流水线。
// 单阶段失败不会中止运行，依赖方收到空字符串继续执行；
// 唯一的中止条件是输入阶段后端完全不可达，或调用方取消。
func (o *Orchestrator) Run(ctx context.Context, input CaseInput) (*RunResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	caseText := BuildCaseText(input)
	rules := RelevantRules(input.AlertReason)

	results := make(map[Stage]StageResult, len(stageGraph))
	var mu sync.Mutex

	pending := make([]stageSpec, len(stageGraph))
	copy(pending, stageGraph)

	for len(pending) > 0 {
		// 取消只在轮次边界生效，不截断进行中的模型调用
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ready, rest := splitReady(pending, results)
		if len(ready) == 0 {
			// 声明图为拓扑序时不可能发生
			return nil, fmt.Errorf("pipeline stage graph is stuck: %d stages unreachable", len(rest))
		}
		pending = rest

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.maxConcurrency)
		for _, spec := range ready {
			spec := spec
			g.Go(func() error {
				pc := o.snapshot(caseText, rules, spec.dependsOn, results, &mu)
				res := o.executor.Run(gctx, spec.stage, spec.prompt(pc))

				o.observe(ctx, res)

				mu.Lock()
				results[spec.stage] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// 首个阶段后端不可达意味着没有任何分析可以进行
		if res, ok := results[StageFacts]; ok && res.Status == StatusFailed && res.Unavailable {
			return nil, fmt.Errorf("%w: facts stage unreachable: %s", domain.ErrBackendUnavailable, res.ErrorDetail)
		}
	}

	run := &RunResult{
		Results:  results,
		Duration: time.Since(start),
	}
	for _, spec := range stageGraph {
		if results[spec.stage].Status == StatusFailed {
			run.Incomplete = true
			run.FailedStages = append(run.FailedStages, spec.stage)
		}
	}

	if o.metrics != nil {
		o.metrics.PipelineDuration.Observe(run.Duration.Seconds())
	}
	o.logger.InfoContext(ctx, "pipeline run finished",
		"customer_id", input.CustomerID,
		"duration", run.Duration,
		"incomplete", run.Incomplete,
		"failed_stages", len(run.FailedStages),
	)

	return run, nil
}

// splitReady 将 pending 拆分为本轮可执行与仍需等待的阶段。
// 就绪条件：所有声明依赖已产生 StageResult，无论其状态如何。
func splitReady(pending []stageSpec, results map[Stage]StageResult) (ready, rest []stageSpec) {
	for _, spec := range pending {
		ok := true
		for _, dep := range spec.dependsOn {
			if _, done := results[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, spec)
		} else {
			rest = append(rest, spec)
		}
	}
	return ready, rest
}

// snapshot 为单个阶段构造提示上下文，仅复制其声明依赖的输出
func (o *Orchestrator) snapshot(caseText, rules string, deps []Stage, results map[Stage]StageResult, mu *sync.Mutex) *PromptContext {
	outputs := make(map[Stage]string, len(deps))
	mu.Lock()
	for _, dep := range deps {
		outputs[dep] = results[dep].Text
	}
	mu.Unlock()
	return &PromptContext{
		CaseText: caseText,
		Rules:    rules,
		outputs:  outputs,
	}
}

func (o *Orchestrator) observe(ctx context.Context, res StageResult) {
	if o.metrics != nil {
		o.metrics.PipelineStagesTotal.WithLabelValues(string(res.Stage), string(res.Status)).Inc()
	}
	if res.Status == StatusFailed {
		o.logger.WarnContext(ctx, "pipeline stage failed",
			"stage", res.Stage,
			"unavailable", res.Unavailable,
			"detail", res.ErrorDetail,
		)
	} else {
		o.logger.DebugContext(ctx, "pipeline stage finished",
			"stage", res.Stage,
			"status", res.Status,
			"duration", res.Duration,
		)
	}
}
