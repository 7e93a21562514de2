package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailverify/backend/internal/config"
	"mailverify/backend/internal/dnsbl"
	"mailverify/backend/internal/domain"
	"mailverify/backend/internal/health"
	"mailverify/backend/internal/logger"
	"mailverify/backend/internal/mailer"
	"mailverify/backend/internal/monitoring"
	"mailverify/backend/internal/pool"
	"mailverify/backend/internal/queue"
	"mailverify/backend/internal/ratelimit"
	"mailverify/backend/internal/resolver"
	"mailverify/backend/internal/service"
	"mailverify/backend/internal/smtpprobe"
	"mailverify/backend/internal/storage"
	"mailverify/backend/internal/storage/memory"
	"mailverify/backend/internal/storage/postgres"
	redisstore "mailverify/backend/internal/storage/redis"
	httptransport "mailverify/backend/internal/transport/http"
	"mailverify/backend/internal/typo"
	"mailverify/backend/internal/whois"
)

// main 启动验证 API 与灰名单重试循环。
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

	log, err := logger.FromConfig(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mailverify server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// 存储层
	base, closeBase, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer closeBase()

	var (
		store     storage.Repository = base
		redisPing health.Pinger
		retries   queue.DelayedQueue
	)
	if cfg.Redis.Enabled {
		rc, err := redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()

		ttl := redisstore.TTLs{
			Domain:         days(cfg.Cache.MXRecordDayGap),
			ProcessedEmail: days(cfg.Cache.ProcessedEmailDayGap),
			ErrorDomain:    days(cfg.Cache.ErrorDomainCooldownDays),
		}
		store = redisstore.NewCache(base, rc, ttl, metrics, log)
		redisPing = rc
		retries = queue.NewRedisQueue(rc.Client(), "")
		log.Info("using Redis cache and retry queue", zap.String("address", cfg.Redis.Address))
	} else {
		retries = queue.NewMemoryQueue()
		log.Info("using in-process retry queue")
	}
	defer func() { _ = retries.Close() }()

	// 验证组件
	dns, err := resolver.New(resolver.Config{
		Nameservers: cfg.Blacklist.Nameservers,
		Timeout:     cfg.Blacklist.Timeout,
	})
	if err != nil {
		log.Fatal("failed to initialize DNS resolver", zap.Error(err))
	}

	blacklist := dnsbl.NewChecker(dns, dnsbl.Config{
		Zones:      cfg.Blacklist.Zones,
		Timeout:    cfg.Blacklist.Timeout,
		VerdictTTL: cfg.Blacklist.VerdictTTL,
	}, metrics, log)
	defer blacklist.Close()

	prober := smtpprobe.NewProber(smtpprobe.Config{
		HeloName:         cfg.Probe.HeloName,
		MailFrom:         cfg.Probe.MailFrom,
		Port:             cfg.Probe.Port,
		ConnectTimeout:   cfg.Probe.ConnectTimeout,
		CommandTimeout:   cfg.Probe.CommandTimeout,
		SlowThreshold:    cfg.Probe.SlowThreshold,
		QuiescenceWindow: cfg.Probe.QuiescenceWindow,
	}, log)

	deps := service.ValidationDeps{
		Repository: store,
		Prober:     prober,
		Blacklist:  blacklist,
		Typo:       typo.NewDetector(domain.FreeProviders()),
		Resolver:   dns,
		Lists:      domain.NewLists(),
		Metrics:    metrics,
		Logger:     log,
	}
	if cfg.Whois.Enabled {
		deps.Whois = whois.NewClient(cfg.Whois.Timeout)
	}

	// 真实发信与完成通知
	var notifier service.Notifier = mailer.NewLogNotifier(log)
	if m := mailer.New(cfg.VerifyPlus, log); m != nil {
		deps.VerifyPlus = m
		if cfg.VerifyPlus.NotifyEmail != "" {
			notifier = mailer.NewEmailNotifier(m, cfg.VerifyPlus.NotifyEmail, log)
		}
		log.Info("verify+ enabled", zap.String("smtp_host", cfg.VerifyPlus.SMTPHost))
	}

	validation := service.NewValidationService(deps, cfg)

	scheduler := ratelimit.NewScheduler(map[domain.ProviderClass]ratelimit.Limits{
		domain.ProviderConservative: {Concurrency: 1, Spacing: cfg.Batch.ConservativeSpacing, BatchSize: 1},
		domain.ProviderGeneral: {
			Concurrency: cfg.Batch.GeneralConcurrency,
			Spacing:     cfg.Batch.GeneralSpacing,
			BatchSize:   cfg.Batch.GeneralBatchSize,
		},
	}, metrics)

	workers := pool.NewWorkerPool(cfg.Batch.RetryWorkers, cfg.Batch.RetryWorkers*10, log, metrics)

	batches := service.NewBatchService(service.BatchDeps{
		Validator: validation,
		Jobs:      store,
		Domains:   store,
		Resolver:  dns,
		Scheduler: scheduler,
		Queue:     retries,
		Pool:      workers,
		Notifier:  notifier,
		Metrics:   metrics,
		Logger:    log,
	}, service.BatchOptions{
		GreylistDelay:        cfg.Batch.GreylistDelay,
		ConservativeSuffixes: validation.ConservativeSuffixes(),
	})

	healthChecker := health.NewHealthChecker(store, redisPing, log)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:     cfg,
		Validation: validation,
		Batches:    batches,
		Health:     healthChecker,
		Metrics:    metrics,
		Logger:     log,
	})

	// SMTP 探测可能持续数十秒，写超时需要覆盖一次完整探测
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		return batches.Run(groupCtx)
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		batches.Wait()
		workers.Stop()

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 按配置选择存储后端，返回存储与关闭函数
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Repository, func(), error) {
	poolCfg := postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	switch cfg.Database.Type {
	case "":
		log.Info("using memory storage (development mode)")
		store := memory.NewStore()
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		client, err := postgres.New(&cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		store, err := client.Store()
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
		return store, client.Close, nil

	case "mysql":
		store, err := postgres.NewMySQLStore(cfg.Database.DSN, poolCfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
		return store, func() { _ = store.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
