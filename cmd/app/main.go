// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"student-offer-automation/internal/config"
	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
	"student-offer-automation/internal/domain/ports/repository"
	"student-offer-automation/internal/infra/db/memory"
	pg "student-offer-automation/internal/infra/db/postgres"
	drv "student-offer-automation/internal/infra/driver"
	"student-offer-automation/internal/infra/logging"
	"student-offer-automation/internal/infra/metrics"
	"student-offer-automation/internal/infra/notify"
	red "student-offer-automation/internal/infra/redis"
	"student-offer-automation/internal/infra/sched"
	"student-offer-automation/internal/infra/security"
	"student-offer-automation/internal/infra/verify"
	"student-offer-automation/internal/infra/web"
	"student-offer-automation/internal/usecase"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop driver, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version)

	// ---- Stores ----
	// Dev without a database URL runs entirely in process: memory stores,
	// in-process run lock, no Redis.
	var (
		jobRepo      repository.JobRepository
		cardRepo     repository.CardRepository
		proxyRepo    repository.ProxyRepository
		oplogRepo    repository.OperationLogRepository
		settingsRepo repository.SettingsRepository
		txm          repository.TransactionManager
		locker       usecase.RunLocker
	)
	if cfg.Runtime.Dev && cfg.Database.URL == "" {
		logger.Info().Msg("stores: in-memory (dev)")
		jobRepo = memory.NewJobStore()
		cardRepo = memory.NewCardStore()
		proxyRepo = memory.NewProxyStore()
		oplogRepo = memory.NewOplogStore()
		settingsRepo = memory.NewSettingsStore()
		locker = memory.NewRunLock()
	} else {
		pool, perr := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
		if perr != nil {
			logger.Fatal().Err(perr).Msg("postgres")
		}
		defer pool.Close()

		redisClient, rerr := red.NewClient(ctx, &cfg.Redis)
		if rerr != nil {
			logger.Fatal().Err(rerr).Msg("redis")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)

		var cipher *security.Cipher
		if cfg.Security.EncryptionKey != "" {
			cipher, err = security.NewCipher(cfg.Security.EncryptionKey)
			if err != nil {
				logger.Fatal().Err(err).Msg("encryption key")
			}
		} else {
			logger.Warn().Msg("security.encryption_key unset; credentials stored in plaintext")
		}

		jobRepo = pg.NewJobRepo(pool, cipher)
		cardRepo = pg.NewCardRepo(pool)
		proxyRepo = pg.NewProxyRepo(pool)
		oplogRepo = pg.NewOperationLogRepo(pool)
		settingsRepo = pg.NewSettingsRepo(pool)
		txm = pg.NewTxManager(pool)
	}

	// ---- Driver ----
	var driver adapter.AutomationDriver
	if cfg.Runtime.Dev {
		driver = drv.NewNoopDriver()
		logger.Info().Msg("driver: noop (dev)")
	} else {
		driver, err = drv.NewHTTPDriver(cfg.Driver.BaseURL, cfg.Driver.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("driver")
		}
		logger.Info().Str("base_url", cfg.Driver.BaseURL).Msg("driver: sidecar")
	}

	// ---- Verification client ----
	verifier := verify.NewClient(verify.Options{
		BaseURL:      cfg.Verifier.BaseURL,
		BypassKey:    cfg.Verifier.BypassKey,
		BatchSize:    cfg.Verifier.BatchSize,
		PollInterval: cfg.Verifier.PollInterval,
		PollAttempts: cfg.Verifier.PollAttempts,
		HTTPTimeout:  cfg.Verifier.HTTPTimeout,
	}, logger)

	// ---- Notifier ----
	var notifier adapter.Notifier
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		notifier, err = notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
	} else {
		notifier = notify.NewNoopNotifier(logger)
	}

	// ---- Use cases ----
	poolUC := usecase.NewPoolUseCase(cardRepo, proxyRepo, oplogRepo, logger)
	statsUC := usecase.NewStatsUseCase(jobRepo, cardRepo, proxyRepo)
	importUC := usecase.NewImportUseCase(jobRepo, cardRepo, proxyRepo, oplogRepo, txm, logger)
	batchUC := usecase.NewBatchUseCase(jobRepo, cardRepo, oplogRepo, driver, verifier, notifier, locker, cfg.Driver.OfferURL, logger)

	// ---- Re-verify sweeper ----
	sweeper := sched.NewReverifySweeper(jobRepo, cfg.Batch.SweepInterval, cfg.Batch.SweepStaleAfter, logger)
	go sweeper.Start(ctx)

	// ---- Operator API ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, "", 30*time.Minute)
	defaults := model.BatchOptions{
		Concurrency:      cfg.Batch.Concurrency,
		CardsPerJob:      cfg.Batch.CardsPerJob,
		DetectSettleWait: cfg.Batch.DetectSettleWait,
		BindSettleWait:   cfg.Batch.BindSettleWait,
	}
	server := web.NewServer(statsUC, poolUC, importUC, batchUC, jobRepo, oplogRepo, settingsRepo, auth, cfg.Admin.APIKey, defaults, logger)
	go func() {
		if err := server.Run(ctx, fmt.Sprintf(":%d", cfg.Admin.Port)); err != nil {
			logger.Error().Err(err).Msg("operator api stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	batchUC.Stop()
	cancel()
}
