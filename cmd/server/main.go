package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/drivesense-backend/internal/api"
	"github.com/jengzang/drivesense-backend/internal/auth"
	"github.com/jengzang/drivesense-backend/internal/config"
	"github.com/jengzang/drivesense-backend/internal/handler"
	"github.com/jengzang/drivesense-backend/internal/live"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/middleware"
	"github.com/jengzang/drivesense-backend/internal/ml"
	"github.com/jengzang/drivesense-backend/internal/service"
	"github.com/jengzang/drivesense-backend/internal/storage"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("JWT_SECRET is not set, using the development default")
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 模型不可用时拒绝启动
	classifier, err := ml.LoadClassifier(ctx, cfg.ClassifierBundle)
	if err != nil {
		return err
	}
	scorer, err := ml.LoadScorer(ctx, cfg.RegressorBundle)
	if err != nil {
		return err
	}
	logger.Info("models loaded",
		"classifier", cfg.ClassifierBundle,
		"window_length", classifier.WindowLength(),
		"regressor", cfg.RegressorBundle,
	)

	// 初始化数据库
	stores, closeStores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStores(context.Background()); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	m := metrics.New()
	pool := ml.NewPool(cfg.InferenceWorkers, cfg.InferenceQueue, logger)
	defer pool.Close()

	liveHandler := live.NewHandler(live.Deps{
		Classifier: classifier,
		Pool:       pool,
		Sessions:   stores.Sessions,
		Behaviors:  stores.Behaviors,
		Metrics:    m,
		Logger:     logger.With("component", "live"),
	}, live.Config{
		Policy:      cfg.WindowPolicy,
		IdleTimeout: cfg.LiveIdleTimeout,
	})

	var ipLimiter, userLimiter *middleware.RateLimiter
	if cfg.IPRateLimit > 0 {
		ipLimiter = middleware.NewRateLimiter(cfg.IPRateLimit, cfg.RateLimitWindow)
		defer ipLimiter.Stop()
	}
	if cfg.RateLimit > 0 {
		userLimiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		defer userLimiter.Stop()
	}

	// 初始化路由
	router := api.SetupRouter(api.Deps{
		Logger:      logger,
		Metrics:     m,
		Verifier:    auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Users:       stores.Users,
		Sessions:    handler.NewSessionHandler(service.NewSessionService(stores, classifier.Labels(), scorer, pool, m, logger)),
		Accounts:    handler.NewUserHandler(service.NewUserService(stores)),
		Reports:     handler.NewReportHandler(service.NewReportService(stores, logger)),
		Live:        liveHandler,
		IPLimiter:   ipLimiter,
		UserLimiter: userLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Port, "store", cfg.DBDriver, "window_policy", cfg.WindowPolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by Shutdown
		err := errors.Join(
			liveHandler.Close(shutdownCtx),
			srv.Shutdown(shutdownCtx),
		)
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
