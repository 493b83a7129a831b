package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"bitpredict/internal/app"
	"bitpredict/internal/auth"
	cronrunner "bitpredict/internal/cron"
	"bitpredict/internal/guess"
	"bitpredict/internal/handler"
	"bitpredict/internal/logger"

	_ "bitpredict/docs"
)

func main() {
	cfg, err := app.ConfigFromEnv()
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, zap.String("env", cfg.App.Env))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatal("auth.jwt_secret is required (BP_AUTH_JWT_SECRET)")
	}

	store, err := app.OpenStore(cfg.DB, true, logger)
	if err != nil {
		logger.Fatal("store open failed", zap.Error(err))
	}
	defer store.Close()

	prices, err := app.NewPrices(cfg.Price, logger)
	if err != nil {
		logger.Fatal("price source init failed", zap.Error(err))
	}
	defer prices.Close()
	logger.Info("price source ready",
		zap.String("mode", cfg.Price.Mode),
		zap.String("cache", prices.CacheBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := &guess.Engine{
		Repo:    store.Repo,
		Prices:  prices.Source,
		Clock:   guess.SystemClock{},
		Config:  cfg.Guess,
		Logger:  logger,
		Metrics: guess.NewMetrics(registry),
	}
	scheduler := guess.NewScheduler(ctx, engine, cfg.Guess.SettlementDelay, cfg.Guess.ResolveTimeout, engine.Clock, logger)
	engine.Timer = scheduler

	if prices.Stream != nil {
		go func() {
			if err := prices.Stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("trade stream stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Guess.RearmOnStart {
		n, err := engine.RearmPending(ctx)
		if err != nil {
			logger.Warn("re-arm pending guesses failed", zap.Error(err))
		} else {
			logger.Info("re-armed pending guesses", zap.Int("count", n))
		}
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.AddJob("reconcile_sweep", cfg.Cron.ReconcileSweep, time.Minute, func(ctx context.Context) error {
			n, err := engine.SweepOverdue(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("expired overdue guesses", zap.Int("count", n))
			}
			return nil
		})
		if err != nil {
			logger.Warn("cron register reconcile sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())
	router.Use(handler.AccessLog(logger))
	router.Use(handler.CORS())

	verifier := auth.JWT{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.Auth.TokenTTL,
		Issuer:   cfg.Auth.Issuer,
	}
	healthHandler := &handler.HealthHandler{Ping: store.Ping, Price: prices.Health}
	healthHandler.Register(router)
	handler.RegisterDocs(router)
	guessHandler := &handler.GuessHandler{
		Engine:   engine,
		Prices:   prices.Source,
		Verifier: verifier,
		Logger:   logger,
	}
	guessHandler.Register(router)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.Duration("settlement_delay", cfg.Guess.SettlementDelay),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	cronRunner.Stop()
	// Guesses left pending here are expired by the reconciler after restart.
	scheduler.Stop()
}
