package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otpinbox/backend/internal/config"
	"otpinbox/backend/internal/health"
	"otpinbox/backend/internal/logger"
	"otpinbox/backend/internal/monitoring"
	"otpinbox/backend/internal/pool"
	"otpinbox/backend/internal/ratelimit"
	"otpinbox/backend/internal/retention"
	"otpinbox/backend/internal/service"
	"otpinbox/backend/internal/smtp"
	"otpinbox/backend/internal/storage"
	"otpinbox/backend/internal/storage/memory"
	rediscache "otpinbox/backend/internal/storage/redis"
	sqlstore "otpinbox/backend/internal/storage/sql"
	httptransport "otpinbox/backend/internal/transport/http"
)

// main 启动同时包含 HTTP API 与入站 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting otpinbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Strings("domains", cfg.Address.AllowedDomains),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		// 内存存储（开发环境）
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// Redis 令牌查询缓存（可选）
	var tokenCache *rediscache.Cache
	if cfg.Redis.Enabled {
		tokenCache, err = rediscache.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect redis, continuing without token cache", zap.Error(err))
			tokenCache = nil
		} else {
			log.Info("redis token cache enabled", zap.String("address", cfg.Redis.Address))
		}
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)
	healthChecker.AddRedisCheck(tokenCache)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Webhook 投递协程池
	workers := pool.NewWorkerPool(cfg.Webhook.Workers, cfg.Webhook.QueueSize)
	workers.Start(ctx)

	// 初始化服务层
	limiter := ratelimit.NewLimiter(store)
	addressService := service.NewAddressService(store, tokenCache, cfg)
	webhookService := service.NewWebhookService(store, workers, metrics, log, cfg.Webhook.Timeout)
	messageService := service.NewMessageService(store, webhookService, metrics, log)
	otpService := service.NewOTPService(store, metrics)
	recoveryService := service.NewRecoveryService(
		store, limiter, service.NewLogNoticeSender(log), cfg, metrics, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		AddressService:  addressService,
		MessageService:  messageService,
		OTPService:      otpService,
		WebhookService:  webhookService,
		RecoveryService: recoveryService,
		RateLimiter:     limiter,
		Metrics:         metrics,
		Health:          healthChecker,
		Store:           store,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// 长轮询最长 30s，写超时需要留出余量
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建入站 SMTP 服务器
	smtpBackend := smtp.NewBackend(store, messageService, cfg, metrics, log)
	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second
	smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageBytes
	smtpServer.MaxRecipients = 50

	// 过期邮件与投递记录清理
	sweeper := retention.NewSweeper(store, log, metrics, cfg.Retention.SweepInterval)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 保留策略清理 goroutine
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		workers.Stop()
		if tokenCache != nil {
			if err := tokenCache.Close(); err != nil {
				log.Warn("redis close warning", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
