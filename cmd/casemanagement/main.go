// Package main SAR 案件管理服务入口
// 生成摘要：
// 1) 加载配置、初始化日志/数据库/指标/消息队列
// 2) 装配流水线与应用服务，启动 HTTP 服务并优雅退出
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/amlcase/internal/sar/application"
	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/internal/sar/export"
	"github.com/wyfcoding/amlcase/internal/sar/infrastructure"
	"github.com/wyfcoding/amlcase/internal/sar/infrastructure/llm"
	"github.com/wyfcoding/amlcase/internal/sar/infrastructure/messaging"
	sarhttp "github.com/wyfcoding/amlcase/internal/sar/interfaces/http"
	"github.com/wyfcoding/amlcase/internal/sar/pipeline"
	"github.com/wyfcoding/amlcase/pkg/config"
	"github.com/wyfcoding/amlcase/pkg/db"
	"github.com/wyfcoding/amlcase/pkg/logger"
	"github.com/wyfcoding/amlcase/pkg/metrics"
	"github.com/wyfcoding/amlcase/pkg/middleware"
	"github.com/wyfcoding/amlcase/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/casemanagement/config.toml", "path to config file")
	nodeID := flag.Int64("node", 1, "snowflake node id")
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.ServiceName, logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting service",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to init database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&domain.SARRecord{},
		&domain.ReviewComment{},
		&domain.Alert{},
		&domain.AuditEntry{},
	); err != nil {
		logger.Fatal(ctx, "Failed to migrate database", "error", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("casemanagement")
		if err := m.Register(); err != nil {
			logger.Fatal(ctx, "Failed to register metrics", "error", err)
		}
		m.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// Kafka 未启用时事件仅记录日志
	var publisher domain.EventPublisher = messaging.NewNoopEventPublisher()
	var producer *mq.KafkaProducer
	if cfg.Kafka.Enabled {
		producer, err = mq.NewProducer(mq.KafkaConfig{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			logger.Fatal(ctx, "Failed to create kafka producer", "error", err)
		}
		defer producer.Close()
		publisher = messaging.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
	}

	completer := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxRetries:  cfg.LLM.MaxRetries,
		Timeout:     time.Duration(cfg.LLM.Timeout) * time.Second,
	})
	executor := pipeline.NewExecutor(completer, time.Duration(cfg.LLM.Timeout)*time.Second)
	orchestrator := pipeline.NewOrchestrator(executor, cfg.LLM.MaxConcurrency, logger.Get(), m)

	assembler, err := pipeline.NewAssembler(*nodeID)
	if err != nil {
		logger.Fatal(ctx, "Failed to create assembler", "error", err)
	}

	// 注意保持未配置时为 nil 接口，类型化的 nil 指针会绕过服务内的判空
	var emailer application.Emailer
	if cfg.SMTP.Host != "" {
		emailer = export.NewEmailSender(cfg.SMTP)
	}

	service := application.NewSARService(
		infrastructure.NewGormSARRepository(database),
		infrastructure.NewGormAlertRepository(database),
		infrastructure.NewGormAuditRepository(database),
		orchestrator,
		assembler,
		publisher,
		emailer,
		m,
		logger.Get(),
	)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.GinLoggingMiddleware(),
		middleware.GinRecoveryMiddleware(),
		middleware.GinCORSMiddleware(),
	)
	if m != nil {
		engine.Use(middleware.GinMetricsMiddleware(m))
	}

	engine.GET("/health", func(c *gin.Context) {
		if err := database.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "up", "service": cfg.ServiceName})
	})

	api := engine.Group("/api/v1")
	api.Use(middleware.GinRateLimitMiddleware(middleware.NewRateLimiter(100, 50)))
	if cfg.Auth.JWTSecret != "" {
		api.Use(middleware.GinAuthMiddleware(cfg.Auth.JWTSecret))
	}
	sarhttp.NewSARHandler(service).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info(gctx, "HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal(ctx, "Service terminated abnormally", "error", err)
	}
	logger.Info(ctx, "Service stopped")
}
