// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/amlcase/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 数据库查询计数
	DBQueriesTotal prometheus.Counter
	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// LLM 调用计数（按结果分类：ok, degraded, unavailable）
	LLMCallsTotal *prometheus.CounterVec
	// LLM 调用耗时
	LLMCallDuration prometheus.Histogram

	// 流水线阶段计数（按阶段与状态分类）
	PipelineStagesTotal *prometheus.CounterVec
	// 整条流水线耗时
	PipelineDuration prometheus.Histogram

	// 业务指标
	CasesGeneratedTotal   *prometheus.CounterVec
	CasesPendingReview    prometheus.Gauge
	CaseTransitionsTotal  *prometheus.CounterVec
	ExportsTotal          *prometheus.CounterVec
	AlertsIngestedTotal   prometheus.Counter

	registry *prometheus.Registry
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		DBQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "db_queries_total",
			Help:      "Total database queries",
		}),
		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "llm_calls_total",
			Help:      "Total LLM completion calls by outcome",
		}, []string{"outcome"}),
		LLMCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM completion call duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		PipelineStagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "pipeline_stages_total",
			Help:      "Total pipeline stages executed by stage and status",
		}, []string{"stage", "status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "pipeline_duration_seconds",
			Help:      "End to end pipeline duration in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),

		CasesGeneratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "cases_generated_total",
			Help:      "Total SAR cases generated by risk level",
		}, []string{"risk_level"}),
		CasesPendingReview: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "cases_pending_review",
			Help:      "Number of cases awaiting review",
		}),
		CaseTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "case_transitions_total",
			Help:      "Total case status transitions by target status",
		}, []string{"to_status"}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "exports_total",
			Help:      "Total case exports by format",
		}, []string{"format"}),
		AlertsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amlcase",
			Subsystem: serviceName,
			Name:      "alerts_ingested_total",
			Help:      "Total transaction alerts ingested",
		}),

		registry: prometheus.NewRegistry(),
	}
	return m
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueriesTotal,
		m.DBQueryDuration,
		m.LLMCallsTotal,
		m.LLMCallDuration,
		m.PipelineStagesTotal,
		m.PipelineDuration,
		m.CasesGeneratedTotal,
		m.CasesPendingReview,
		m.CaseTransitionsTotal,
		m.ExportsTotal,
		m.AlertsIngestedTotal,
	}

	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// Handler 返回基于私有 registry 的 Prometheus handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func (m *Metrics) StartHTTPServer(port int, path string) {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()
}
