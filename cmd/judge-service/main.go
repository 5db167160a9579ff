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

	"pvjudge/internal/common/cache"
	commonmw "pvjudge/internal/common/http/middleware"
	"pvjudge/internal/common/mq"
	"pvjudge/internal/common/storage"
	"pvjudge/internal/judge/controller"
	"pvjudge/internal/judge/dispatch"
	"pvjudge/internal/judge/repository"
	"pvjudge/internal/judge/sandbox/observer"
	"pvjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	issueFor := flag.String("issue-token", "", "Print a bearer token for this principal and exit")
	issueRole := flag.String("role", "runner", "Role carried by -issue-token")
	issueTTL := flag.Duration("ttl", 24*time.Hour, "Lifetime of -issue-token")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		verifier, err := commonmw.NewTokenVerifier(appCfg.Server.Auth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init auth failed: %v\n", err)
			os.Exit(1)
		}
		token, err := verifier.Issue(*issueFor, *issueRole, *issueTTL, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := serve(appCfg); err != nil {
		logger.Error(context.Background(), "judge service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func serve(appCfg *AppConfig) error {
	ctx := context.Background()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	var suites *repository.SuiteStore
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			return fmt.Errorf("init minio failed: %w", err)
		}
		suites = repository.NewSuiteStore(objStorage, redisCache, appCfg.Suites)
	}

	var kafkaQueue *mq.KafkaQueue
	if appCfg.Kafka.Enabled() {
		kafkaQueue, err = mq.NewKafkaQueue(appCfg.Kafka.KafkaConfig)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = kafkaQueue.Close()
		}()
	}

	judgeSvc, err := appCfg.NewService(observer.LogRecorder{})
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	verdicts := repository.NewVerdictRepository(redisCache, appCfg.Verdict.TTL)
	if appCfg.Verdict.RecentLimit > 0 {
		verdicts.RecentLimit = appCfg.Verdict.RecentLimit
	}
	runnerCfg := dispatch.RunnerConfig{Judger: judgeSvc, Verdicts: verdicts, Subjects: appCfg.Subjects}
	if suites != nil {
		runnerCfg.Suites = suites
	}
	if kafkaQueue != nil {
		runnerCfg.Events = repository.NewMQVerdictEventPublisher(kafkaQueue, appCfg.Kafka.VerdictTopic)
	}
	runner, err := dispatch.NewRunner(runnerCfg)
	if err != nil {
		return fmt.Errorf("init runner failed: %w", err)
	}

	if kafkaQueue != nil {
		dispatcher, err := dispatch.NewDispatcher(dispatch.DispatcherConfig{
			Runner:          runner,
			Producer:        kafkaQueue,
			RetryTopic:      appCfg.Kafka.RetryTopic,
			DeadLetterTopic: appCfg.Kafka.DeadLetter,
			PoolRetryMax:    appCfg.Kafka.PoolRetryMax,
			PoolRetryBase:   appCfg.Kafka.PoolRetryBase,
			PoolRetryMaxD:   appCfg.Kafka.PoolRetryMaxD,
		})
		if err != nil {
			return fmt.Errorf("init dispatcher failed: %w", err)
		}
		err = dispatcher.Subscribe(ctx, kafkaQueue, appCfg.Kafka.RequestTopic, &mq.SubscribeOptions{
			ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
			Concurrency:     appCfg.Kafka.Concurrency,
			MaxRetries:      appCfg.Kafka.MaxRetries,
			RetryDelay:      appCfg.Kafka.RetryDelay,
			DeadLetterTopic: appCfg.Kafka.DeadLetter,
		})
		if err != nil {
			return fmt.Errorf("subscribe kafka failed: %w", err)
		}
		if err := kafkaQueue.Start(); err != nil {
			return fmt.Errorf("start kafka consumer failed: %w", err)
		}
		defer func() {
			_ = kafkaQueue.Stop()
		}()
	}

	var suiteWriter controller.SuiteWriter
	if suites != nil {
		suiteWriter = suites
	}
	verifier, err := commonmw.NewTokenVerifier(appCfg.Server.Auth)
	if err != nil {
		return fmt.Errorf("init auth failed: %w", err)
	}
	judgeController := controller.NewJudgeController(runner, verdicts, suiteWriter, appCfg.Suites.MaxBytes)
	httpServer := buildHTTPServer(appCfg.Server, judgeController, verifier, commonmw.NewRateLimiter(redisCache, 0))
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started", zap.String("addr", appCfg.Server.Addr))
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

	sctx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController, verifier *commonmw.TokenVerifier, limiter *commonmw.RateLimiter) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RecoveryMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	judgeController.RegisterRoutes(router, controller.Guards{
		Auth:       commonmw.AuthMiddleware(verifier),
		RunLimit:   commonmw.RateLimitMiddleware(limiter, "runs", cfg.RunLimit),
		SuiteAdmin: commonmw.RequireRole(cfg.SuiteRoles...),
		SuiteLimit: commonmw.RateLimitMiddleware(limiter, "suites", cfg.SuiteLimit),
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
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
