package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codegrader/internal/common/auth"
	"codegrader/internal/common/cache"
	"codegrader/internal/common/db"
	commonmw "codegrader/internal/common/http/middleware"
	"codegrader/internal/common/mq"
	"codegrader/internal/common/storage"
	"codegrader/internal/judge/client"
	judgectl "codegrader/internal/judge/controller"
	judgesvc "codegrader/internal/judge/service"
	"codegrader/internal/submit/controller"
	submitRepo "codegrader/internal/submit/repository"
	"codegrader/internal/submit/service"
	pkgerrors "codegrader/pkg/errors"
	"codegrader/pkg/utils/logger"
	"codegrader/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/submit_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "submit service exited", zap.Error(err))
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	database, err := db.Open(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	var redisCache cache.Cache
	if appCfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = rc.Close()
		}()
		redisCache = rc
	} else {
		logger.Warn(ctx, "redis disabled, submission cache and idempotency keys are off")
	}

	var producer mq.Producer
	if len(appCfg.Kafka.Brokers) > 0 && appCfg.Submit.EventsTopic != "" {
		kq, err := mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = kq.Close()
		}()
		producer = kq
	}

	var objStorage storage.ObjectStorage
	if appCfg.Submit.ArchiveSource && appCfg.MinIO.Endpoint != "" {
		ms, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		objStorage = ms
	}

	judgeClient, err := client.New(appCfg.Judge.clientConfig(), nil)
	if err != nil {
		return fmt.Errorf("init judge client failed: %w", err)
	}
	dispatcher, err := judgesvc.NewDispatcher(judgeClient, appCfg.Judge.dispatchConfig())
	if err != nil {
		return fmt.Errorf("init dispatcher failed: %w", err)
	}
	fetcher, err := judgesvc.NewFetcher(judgeClient, appCfg.Judge.Timeout)
	if err != nil {
		return fmt.Errorf("init fetcher failed: %w", err)
	}

	verifier, err := auth.NewVerifier(appCfg.Auth)
	if err != nil {
		return fmt.Errorf("init token verifier failed: %w", err)
	}

	submitService, err := service.NewSubmitService(service.Config{
		SubmissionRepo: submitRepo.NewSubmissionRepositoryWithTTL(
			database, redisCache, appCfg.Submit.SubmissionCacheTTL, appCfg.Submit.SubmissionEmptyTTL,
		),
		TokenRepo:        submitRepo.NewTokenRepository(database),
		Tx:               database,
		Dispatcher:       dispatcher,
		Fetcher:          fetcher,
		Cache:            redisCache,
		Storage:          objStorage,
		Producer:         producer,
		Comparison:       appCfg.Grading.Comparison,
		SourceBucket:     appCfg.Submit.SourceBucket,
		SourceKeyPrefix:  appCfg.Submit.SourceKeyPrefix,
		EventsTopic:      appCfg.Submit.EventsTopic,
		MaxCodeBytes:     appCfg.Submit.MaxCodeBytes,
		IdempotencyTTL:   appCfg.Submit.IdempotencyTTL,
		BatchMaxSize:     appCfg.Submit.BatchMaxSize,
		BatchConcurrency: appCfg.Submit.BatchConcurrency,
		BatchStagger:     *appCfg.Submit.BatchStagger,
		Timeouts:         appCfg.Submit.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init submit service failed: %w", err)
	}

	router := buildRouter(routerDeps{
		verifier:    verifier,
		executions:  judgectl.NewExecutionController(dispatcher, fetcher),
		submissions: controller.NewSubmissionController(submitService),
		health:      healthCheck(database, redisCache),
	})
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "submit http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("db_driver", database.Driver()),
			zap.Bool("cache", redisCache != nil),
			zap.Bool("events", producer != nil),
			zap.Bool("archive", objStorage != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	closeCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(closeCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

type routerDeps struct {
	verifier    commonmw.TokenVerifier
	executions  *judgectl.ExecutionController
	submissions *controller.SubmissionController
	health      gin.HandlerFunc
}

func buildRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", deps.health)

	api := router.Group("/api/v1", commonmw.AuthMiddleware(deps.verifier))
	api.GET("/languages", deps.executions.Languages)

	executions := api.Group("/executions")
	executions.POST("", deps.executions.Dispatch)
	executions.POST("/results", deps.executions.BatchResults)
	executions.GET("/:token", deps.executions.GetResult)

	submissions := api.Group("/submissions")
	submissions.POST("", deps.submissions.Create)
	submissions.GET("", deps.submissions.List)
	submissions.POST("/batch", deps.submissions.Batch)
	submissions.GET("/:id", deps.submissions.Get)
	submissions.POST("/:id/finalize", deps.submissions.Finalize)
	submissions.POST("/:id/refresh", deps.submissions.Refresh)

	return router
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthCheck reports 503 when the database or the configured cache is unreachable.
func healthCheck(database pinger, cacheClient cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{"database": "ok"}
		healthy := true
		if err := database.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if cacheClient != nil {
			checks["cache"] = "ok"
			if err := cacheClient.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
				healthy = false
			}
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Code:    pkgerrors.ServiceUnavailable,
				Message: "unhealthy",
				Data:    checks,
			})
			return
		}
		response.Success(c, checks)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
