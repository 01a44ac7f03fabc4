package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BoltzExchange/boltz-backend-sub009/internal/config"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/decoder"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/handler"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/hook"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/infra/postgresql"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/infra/postgresql/migrations"
	infraredis "github.com/BoltzExchange/boltz-backend-sub009/internal/infra/redis"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning/cln"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/lightning/lnd"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/nodeswitch"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/observability"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/queue"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/repository"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/routingfee"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/service"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/tracker"
	"github.com/BoltzExchange/boltz-backend-sub009/internal/transport"
)

const (
	currencyBTC       = "BTC"
	workerConcurrency = 4
	consumerPrefetch  = 8
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	publisher := queue.NewRabbitMQPublisher(mq)
	defer publisher.Close()
	consumer := queue.NewRabbitMQConsumer(mq, consumerPrefetch, logger)

	metrics := observability.NewMetrics()

	decoderClient, err := decoder.NewServiceClient(cfg.DecoderURL)
	if err != nil {
		logger.Fatal("decoder client initialization failed", zap.Error(err))
	}

	var decisionHook hook.Selector
	if cfg.HookURL != "" {
		hookClient, err := hook.NewClient(logger, cfg.HookURL, time.Duration(cfg.HookTimeoutSeconds)*time.Second)
		if err != nil {
			logger.Fatal("hook client initialization failed", zap.Error(err))
		}
		decisionHook = hookClient
	}

	currency := lightning.Currency{Symbol: currencyBTC}
	if cfg.LndHost != "" {
		lndClient := lnd.NewClient(logger, "lnd-btc", currencyBTC, lnd.Config{
			Host:         cfg.LndHost,
			Port:         cfg.LndPort,
			CertPath:     cfg.LndCertPath,
			MacaroonPath: cfg.LndMacaroonPath,
		})
		if err := lndClient.Connect(ctx); err != nil {
			logger.Warn("lnd connection failed, continuing without it", zap.Error(err))
		}
		defer lndClient.Disconnect()
		currency.LND = lndClient
	}
	if cfg.ClnSocketPath != "" {
		clnClient := cln.NewClient(logger, "cln-btc", currencyBTC, cln.NewGlightningRPC(cfg.ClnSocketPath, cfg.ClnLightningDir))
		if err := clnClient.Connect(ctx); err != nil {
			logger.Warn("cln connection failed, continuing without it", zap.Error(err))
		}
		defer clnClient.Disconnect()
		currency.CLN = clnClient
	}
	if !currency.HasClient() {
		logger.Fatal("no lightning backend configured")
	}
	registry := lightning.NewRegistry(currency)

	paymentRepo := repository.NewGormPaymentRepo(db)
	swapRepo := repository.NewGormSwapRepo(db)

	pendingTracker := tracker.NewPendingPaymentTracker(
		logger,
		paymentRepo,
		publisher,
		limiter,
		metrics,
		registry,
		tracker.Config{
			RaceTimeout:     time.Duration(cfg.RaceTimeoutSeconds) * time.Second,
			PaymentTimeout:  time.Duration(cfg.PaymentTimeoutMinutes) * time.Minute,
			ClnPollInterval: time.Duration(cfg.ClnPollIntervalSeconds) * time.Second,
		},
	)
	defer pendingTracker.Stop()

	if err := pendingTracker.Init(ctx); err != nil {
		logger.Fatal("pending payment resume failed", zap.Error(err))
	}

	nodeSwitch := nodeswitch.New(logger, paymentRepo, decisionHook, metrics, nodeswitch.Config{
		PreferredNodes:        cfg.PreferredNodes,
		Referrals:             cfg.NodeReferrals,
		SubmarineThresholdSat: cfg.SubmarineThresholdSat,
		ReverseThresholdSat:   cfg.ReverseThresholdSat,
		MaxClnRetries:         cfg.MaxClnRetries,
	})

	fees, err := routingfee.NewCalculator(logger, cfg.RoutingFeeDefaultRatio, cfg.RoutingFeeOverrides)
	if err != nil {
		logger.Fatal("routing fee configuration invalid", zap.Error(err))
	}

	payments, err := service.NewPaymentService(
		swapRepo,
		decoderClient,
		nodeSwitch,
		fees,
		pendingTracker,
		registry,
		consumer,
		workerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("payment service initialization failed", zap.Error(err))
	}

	retryScanner, err := service.NewRetryScanner(paymentRepo, publisher, 0, 0, logger)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb, registry)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return payments.Start(groupCtx)
	})
	g.Go(func() error {
		return retryScanner.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("swapayd started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("swapayd terminated", zap.Error(err))
	}

	logger.Info("swapayd stopped")
}
